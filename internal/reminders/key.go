package reminders

import "strings"

const keySeparator = "_"

// keyEscaper percent-encodes the separator and the escape character inside
// the ID components of a key. IDs without either character, such as UUIDs,
// are left untouched, so keys keep their historical plain form.
var keyEscaper = strings.NewReplacer("%", "%25", keySeparator, "%5F")

// DedupKey returns the ledger key of one (workshop, recipient, rule) reminder:
// "{workshopID}_{userID}_{identity}". The two IDs are escaped; the identity is
// the remainder after the second separator and is kept verbatim, since rule
// identities such as "24h_default" contain the separator themselves.
func DedupKey(workshopID, userID, identity string) string {
	return joinKey(workshopID, userID) + keySeparator + identity
}

// LegacyKey returns the key written for reminders sent before rules had
// identities. It is only consulted for the DefaultIdentity rule.
func LegacyKey(workshopID, userID string) string {
	return joinKey(workshopID, userID) + keySeparator + "reminder"
}

func joinKey(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = keyEscaper.Replace(p)
	}
	return strings.Join(escaped, keySeparator)
}
