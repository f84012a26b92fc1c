package ingest

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeTitle strips prefix from the front of title once, then
// NFC-normalizes and trims it. An empty prefix only normalizes.
func NormalizeTitle(title, prefix string) string {
	title = norm.NFC.String(title)
	if prefix != "" {
		title = strings.TrimPrefix(title, norm.NFC.String(prefix))
	}
	return strings.TrimSpace(title)
}

// normalizeOptional NFC-normalizes and trims s, mapping blank to nil.
func normalizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(norm.NFC.String(*s))
	if v == "" {
		return nil
	}
	return &v
}
