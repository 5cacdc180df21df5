package registration

import (
	"regexp"
	"strings"
)

var spreadsheetURLRe = regexp.MustCompile(`^https://docs\.google\.com/spreadsheets/d/([A-Za-z0-9_-]+)(?:[/?#].*)?$`)

// ExtractID returns the spreadsheet id: the path segment after /d/.
func ExtractID(rawURL string) (string, bool) {
	m := spreadsheetURLRe.FindStringSubmatch(strings.TrimSpace(rawURL))
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// ValidateURL reports whether rawURL is a recognised spreadsheet link.
func ValidateURL(rawURL string) bool {
	_, ok := ExtractID(rawURL)
	return ok
}
