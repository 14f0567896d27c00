package feed

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// listIDPattern matches raw list identifiers of the form
// "<storeName>-<storeNumber>-<suffix>", case-insensitively.
var listIDPattern = regexp.MustCompile(`(?i)^([a-z]+)-(\d+)-.*$`)

var titleCaser = cases.Title(language.English)

// NormalizeListID derives the canonical location name from a raw feed list-id.
//
// "store-1-abc" becomes "Store Store 01" and "wdc-7-foo" becomes "Wdc Store 07".
// Input that does not match the list-id pattern is returned unchanged; that
// makes the function idempotent on its own output. The pass-through is a
// documented fallback, not an error.
func NormalizeListID(raw string) string {
	m := listIDPattern.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}

	name := titleCaser.String(strings.ToLower(m[1]))
	number := m[2]
	if len(number) < 2 {
		number = "0" + number
	}
	return name + " Store " + number
}
