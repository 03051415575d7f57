package content

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize converts a display name into the canonical slug used for storage
// directory lookups: leading and trailing whitespace is trimmed, the result is
// lowercased, and every internal whitespace run collapses to a single hyphen.
// "Global React Components" becomes "global-react-components".
// Normalizing an already normalized slug returns it unchanged, so callers may
// apply it without tracking whether a name came from user input or from disk.
func Normalize(name string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(strings.ToLower(name)), "-")
}
