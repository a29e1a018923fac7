package article

import "anonpress.org/internal/alias"

// RedactedMarker replaces sensitive content in masked views.
const RedactedMarker = "XXXX"

// privilegedRoles see articles unmasked.
var privilegedRoles = map[string]struct{}{
	"admin":       {},
	"contributor": {},
	"corrector":   {},
}

// Privileged reports whether any role in the set grants unmasked reads.
func Privileged(roles []string) bool {
	for _, r := range roles {
		if _, ok := privilegedRoles[r]; ok {
			return true
		}
	}
	return false
}

// Masked returns the read-time projection of an article for the given role
// set. Privileged readers get a plain copy. Everyone else gets raw_text and
// auto_anonymized_text replaced by the redaction marker, and the text field
// of every alias entry redacted while alias and alias_type are preserved.
// The stored article is never modified.
func Masked(a Article, roles []string) Article {
	out := a.Clone()
	if Privileged(roles) {
		return out
	}
	out.RawText = RedactedMarker
	if out.AutoAnonymizedText != "" {
		out.AutoAnonymizedText = RedactedMarker
	}
	out.AutoAnonymizedAliases = redactAliases(out.AutoAnonymizedAliases)
	out.ManualAnonymizedAliases = redactAliases(out.ManualAnonymizedAliases)
	return out
}

func redactAliases(in []alias.Alias) []alias.Alias {
	for i := range in {
		in[i].Text = RedactedMarker
	}
	return in
}
