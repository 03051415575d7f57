package content

import "errors"

// Kind identifies which of the three content storages an item belongs to.
type Kind int

const (
	// KindPage is a site page: rendered copy plus optional style and script parts.
	KindPage Kind = iota
	// KindTemplate is a reusable web template.
	KindTemplate
	// KindSnippet is a small translatable content fragment.
	KindSnippet
)

// String returns the storage name used in logs and API payloads.
func (k Kind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindTemplate:
		return "template"
	case KindSnippet:
		return "snippet"
	default:
		return "unknown"
	}
}

// ParseKind converts an API payload value back into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "page":
		return KindPage, nil
	case "template":
		return KindTemplate, nil
	case "snippet":
		return KindSnippet, nil
	default:
		return 0, errors.New("unknown content kind: " + s)
	}
}

// ErrNotFound is returned when no file satisfies a resolution request.
// A miss is an expected condition: renderers turn it into an inline
// diagnostic marker rather than failing the surrounding render.
var ErrNotFound = errors.New("content not found")

// Item is one resolved piece of content.
type Item struct {
	// Name is the canonical slug the item was resolved under.
	Name string `json:"name"`

	// DisplayName is the human-readable base name taken from the file,
	// without its language tag or storage suffix.
	DisplayName string `json:"display_name"`

	// Kind records which storage the item came from.
	Kind Kind `json:"-"`

	// Language is the variant that was actually resolved. It may differ
	// from the requested language after fallback, and is empty for
	// language-independent items such as web templates.
	Language string `json:"language,omitempty"`

	// Source is the raw text of the item.
	Source string `json:"source"`

	// Style and Script carry the sibling css/js parts of a page.
	// They are empty for every other kind.
	Style  string `json:"style,omitempty"`
	Script string `json:"script,omitempty"`

	// Path is the file the source text was read from.
	Path string `json:"path"`
}
