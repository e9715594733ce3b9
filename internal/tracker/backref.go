package tracker

import "regexp"

var backRefRe = regexp.MustCompile(`\[triage:([^\]\s]+)\]`)

// BackRef returns the token embedded in a tracker entry's notes to link it
// to an email.
func BackRef(emailID string) string {
	return "[triage:" + emailID + "]"
}

// ParseBackRef extracts the first email id referenced in notes.
func ParseBackRef(notes string) (string, bool) {
	m := backRefRe.FindStringSubmatch(notes)
	if m == nil {
		return "", false
	}
	return m[1], true
}
