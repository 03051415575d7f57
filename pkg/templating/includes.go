package templating

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/porticodev/portico/pkg/content"
)

// Include tokens are substituted before the engine parses the source: the
// platform's include directive resolves against the snippet storage first
// and the web template storage second, with language preference rules the
// engine's native include cannot reach.
var (
	// includeToken matches {% include 'Name' %} with either quote style.
	// Arguments after the name are tolerated and ignored.
	includeToken = regexp.MustCompile(`\{%-?\s*include\s+(?:'([^']+)'|"([^"]+)")[^%]*%\}`)

	// snippetToken matches the snippet-object forms {{ Snippets.Name }}
	// and {{ snippets['Name with spaces'] }}.
	snippetToken = regexp.MustCompile(`\{\{-?\s*[Ss]nippets(?:\.([A-Za-z0-9_-]+)|\[\s*(?:'([^']+)'|"([^"]+)")\s*])\s*-?\}\}`)
)

// notFoundMarker is the exact inline diagnostic operators grep rendered
// pages for. Do not reword it.
func notFoundMarker(name string) string {
	return fmt.Sprintf("<!-- Include not found: %s -->", name)
}

func snippetMissingMarker(name string) string {
	return fmt.Sprintf("<!-- Snippet not found: %s -->", name)
}

// expand substitutes include and snippet tokens depth-first. Fetched
// sources are expanded recursively before substitution; replacements are
// never rescanned at the current level, so expansion work is bounded by
// limit even for cyclic include graphs. At the limit the branch is
// returned untouched, leaving its tokens visible in the output.
func (r *Renderer) expand(source, language string, depth, limit int) string {
	if depth >= limit {
		r.logger.Warn("include depth limit reached, leaving branch unexpanded",
			slog.Int("depth", depth),
			slog.String("language", language),
		)
		return source
	}

	out := includeToken.ReplaceAllStringFunc(source, func(token string) string {
		m := includeToken.FindStringSubmatch(token)
		name := firstNonEmpty(m[1], m[2])

		item, err := r.source.ResolveInclude(name, language)
		if err != nil {
			if !errors.Is(err, content.ErrNotFound) {
				r.logger.Error("include resolution failed",
					slog.String("include", name),
					slog.Any("error", err),
				)
			}
			return notFoundMarker(name)
		}
		return r.expand(item.Source, language, depth+1, limit)
	})

	out = snippetToken.ReplaceAllStringFunc(out, func(token string) string {
		m := snippetToken.FindStringSubmatch(token)
		name := firstNonEmpty(m[1], m[2], m[3])

		item, err := r.source.Resolve(content.KindSnippet, name, language)
		if err != nil {
			if !errors.Is(err, content.ErrNotFound) {
				r.logger.Error("snippet resolution failed",
					slog.String("snippet", name),
					slog.Any("error", err),
				)
			}
			return snippetMissingMarker(name)
		}
		return r.expand(item.Source, language, depth+1, limit)
	})

	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
