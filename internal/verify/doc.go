// Package verify checks whether harvested email domains can actually
// receive mail.
//
// Verification is DNS-only: a domain passes when it publishes MX records
// or, failing that, when it resolves at all (implicit MX per RFC 5321).
// No SMTP connection is made, so verification stays fast and does not
// touch the target's mail infrastructure.
//
// Lookups for a batch of domains run concurrently with a bounded pool,
// and results are cached for the lifetime of the Verifier so repeated
// runs over overlapping lead lists stay cheap.
package verify
