package model

// Method identifies how an email address was discovered on a page.
// Per-method counts are part of each page record so consumers can tell
// link-derived addresses from ones scraped out of visible text.
type Method int

const (
	// MethodMailto indicates the address came from a mailto: anchor href.
	// These are the most reliable finds since the page author published
	// the address explicitly as a contact link.
	MethodMailto Method = iota

	// MethodText indicates the address was matched by the email regex in
	// the page's text content.
	MethodText

	// MethodDeobfuscated indicates the address only appeared after
	// de-obfuscation substitutions ("[at]" -> "@", "[dot]" -> ".") were
	// applied to the page text.
	MethodDeobfuscated
)

// String returns a human-readable representation of the discovery method.
func (m Method) String() string {
	switch m {
	case MethodMailto:
		return "mailto"
	case MethodText:
		return "text"
	case MethodDeobfuscated:
		return "deobfuscated"
	default:
		return "unknown"
	}
}

// Methods lists all discovery methods in display order.
func Methods() []Method {
	return []Method{MethodMailto, MethodText, MethodDeobfuscated}
}
