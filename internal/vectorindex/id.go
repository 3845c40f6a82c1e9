package vectorindex

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// MaxIDLength bounds the sanitized title part of a vector id.
const MaxIDLength = 90

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SafeID folds title to ASCII and replaces every character outside
// [A-Za-z0-9_-] with an underscore. The result is at most MaxIDLength bytes.
func SafeID(title string) string {
	folded := norm.NFKD.String(title)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}

	id := unsafeIDChars.ReplaceAllString(b.String(), "_")
	if len(id) > MaxIDLength {
		id = id[:MaxIDLength]
	}
	return id
}

// randomSuffix returns six lowercase hex characters.
func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}
