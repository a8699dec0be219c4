// Package extract implements email discovery over fetched HTML documents.
//
// Three passes run against each page:
//   - mailto: addresses lifted from a[href^='mailto:'] anchors
//   - text: regex matches over the page's text nodes
//   - de-obfuscation: the same regex over text with common obfuscations
//     ("[at]", "(at)", " at ", "[dot]", "(dot)") substituted away
//
// The passes share one address set, so an address found by several methods
// is reported once while each method's counter still reflects what that
// pass discovered.
package extract
