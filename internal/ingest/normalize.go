package ingest

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes document text before fingerprinting and analysis:
// unicode NFC, then whitespace collapsed to single spaces. Two fetches of the
// same article normalize to identical text regardless of encoding quirks.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	return strings.Join(strings.Fields(text), " ")
}
