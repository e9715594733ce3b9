package model

import (
	"hash/fnv"
	"strconv"
)

// fieldSep separates attributes so that ("ab", "c") and ("a", "bc") hash
// differently.
const fieldSep = "\x1f"

// Fingerprint derives a short change-detection string from an item's
// analysis-relevant attributes. The attribute order is fixed.
//
// 32-bit FNV-1a, base36 encoded. Collisions only cost a missed
// re-analysis until the next content change; this is not a security hash.
func Fingerprint(subject, body, sender, date string, starred, unread bool) string {
	h := fnv.New32a()
	for _, part := range []string{
		subject, body, sender, date,
		strconv.FormatBool(starred),
		strconv.FormatBool(unread),
	} {
		h.Write([]byte(part))
		h.Write([]byte(fieldSep))
	}
	return strconv.FormatUint(uint64(h.Sum32()), 36)
}
