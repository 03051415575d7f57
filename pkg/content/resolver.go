package content

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Storage layout of the site export. This is a fixed external format shared
// with the platform's download tooling and must not drift.
const (
	pagesDirName     = "web-pages"
	pagePartsDirName = "content-pages"
	templatesDirName = "web-templates"
	snippetsDirName  = "content-snippets"
	filesDirName     = "web-files"

	pageCopySuffix   = ".webpage.copy.html"
	pageStyleSuffix  = ".webpage.custom_css.css"
	pageScriptSuffix = ".webpage.custom_javascript.js"
	templateSuffix   = ".webtemplate.source.html"
	snippetSuffix    = ".contentsnippet.value.html"
)

// languageTag matches the trailing language qualifier of a storage file base
// name, e.g. the "en-US" in "Home.en-US.webpage.copy.html".
var languageTag = regexp.MustCompile(`^[a-zA-Z]{2,3}(-[a-zA-Z0-9]+)*$`)

// Config holds the filesystem layout a Resolver reads from.
type Config struct {
	// Root is the directory containing the exported site.
	Root string `json:"root"`

	// DefaultLanguage is used when a resolution request does not name a
	// language explicitly.
	DefaultLanguage string `json:"default_language"`
}

// DefaultConfig returns a Config with safe default values.
func DefaultConfig() *Config {
	return &Config{
		Root:            "./site",
		DefaultLanguage: "en-US",
	}
}

// FilesDir returns the directory holding the export's static web files.
func (c *Config) FilesDir() string {
	return filepath.Join(c.Root, filesDirName)
}

// Option adjusts a single resolution call.
type Option func(*resolveOptions)

type resolveOptions struct {
	bypassCache bool
}

// WithoutCache forces a fresh filesystem read even when a cached entry
// exists. The fresh result still replaces the cached entry, so it doubles as
// a per-item refresh for hot-reload flows.
func WithoutCache() Option {
	return func(o *resolveOptions) {
		o.bypassCache = true
	}
}

// Resolver locates content in the site export and caches what it finds.
// All methods are concurrent-safe.
type Resolver struct {
	logger *slog.Logger
	config *Config
	cache  *cache
}

// NewResolver creates a Resolver reading from config.Root. A nil logger
// discards all output.
func NewResolver(logger *slog.Logger, config *Config) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		logger: logger,
		config: config,
		cache:  newCache(),
	}
}

// Resolve loads one item from the given storage. The name may be a display
// name or an already normalized slug; an empty language selects the
// configured default. Successful resolutions are cached per
// (kind, slug, language); pass WithoutCache to force a fresh read.
func (r *Resolver) Resolve(kind Kind, name, language string, opts ...Option) (Item, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	slug := Normalize(name)
	if slug == "" || strings.Contains(slug, "..") || strings.ContainsAny(slug, `/\`) {
		// Names feed directly into filesystem paths, so anything that
		// could escape the storage directory is treated as a miss.
		return Item{}, fmt.Errorf("invalid content name %q: %w", name, ErrNotFound)
	}
	if language == "" {
		language = r.config.DefaultLanguage
	}
	if kind == KindTemplate {
		// Templates are language-independent; a single cache entry
		// serves every requested language.
		language = ""
	}

	key := cacheKey{kind: kind, name: slug, language: language}
	if !o.bypassCache {
		if item, ok := r.cache.get(key); ok {
			return item, nil
		}
	}

	var (
		item Item
		err  error
	)
	switch kind {
	case KindPage:
		item, err = r.loadPage(slug, language)
	case KindTemplate:
		item, err = r.loadTemplate(slug)
	case KindSnippet:
		item, err = r.loadSnippet(slug, language)
	default:
		return Item{}, fmt.Errorf("resolve: unknown kind %d", kind)
	}
	if err != nil {
		return Item{}, err
	}

	r.cache.set(key, item)
	return item, nil
}

// ResolveInclude performs the include-directive lookup order: the snippet
// storage first, so translated fragments win, then the web template storage.
// ErrNotFound is returned only when both storages miss.
func (r *Resolver) ResolveInclude(name, language string) (Item, error) {
	item, err := r.Resolve(KindSnippet, name, language)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Item{}, err
	}

	item, err = r.Resolve(KindTemplate, name, "")
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Item{}, err
	}

	return Item{}, fmt.Errorf("include %q: %w", name, ErrNotFound)
}

// List returns the sorted slugs present in a storage. A missing storage
// directory is an empty listing, not an error.
func (r *Resolver) List(kind Kind) ([]string, error) {
	var dir string
	switch kind {
	case KindPage:
		dir = filepath.Join(r.config.Root, pagesDirName)
	case KindTemplate:
		dir = filepath.Join(r.config.Root, templatesDirName)
	case KindSnippet:
		dir = filepath.Join(r.config.Root, snippetsDirName)
	default:
		return nil, fmt.Errorf("list: unknown kind %d", kind)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	slugs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			slugs = append(slugs, entry.Name())
		}
	}
	sort.Strings(slugs)
	return slugs, nil
}

// ClearCache drops every cached entry. The watcher calls this when anything
// under the export root changes; entries repopulate lazily on the next
// resolution.
func (r *Resolver) ClearCache() {
	r.cache.clear()
	r.logger.Debug("content cache cleared")
}

// CacheLen reports the number of cached entries.
func (r *Resolver) CacheLen() int {
	return r.cache.len()
}

func (r *Resolver) loadPage(slug, language string) (Item, error) {
	dir := filepath.Join(r.config.Root, pagesDirName, slug, pagePartsDirName)
	pick, err := pickFile(dir, pageCopySuffix, language)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Item{}, fmt.Errorf("page %q: %w", slug, ErrNotFound)
		}
		return Item{}, err
	}

	lang := variantLanguage(pick, pageCopySuffix)
	if !strings.EqualFold(lang, language) {
		r.logger.Debug("page language fallback",
			slog.String("page", slug),
			slog.String("requested", language),
			slog.String("using", lang),
		)
	}

	path := filepath.Join(dir, pick)
	source, err := os.ReadFile(path)
	if err != nil {
		return Item{}, fmt.Errorf("reading page copy %s: %w", path, err)
	}

	base := strings.TrimSuffix(pick, pageCopySuffix)
	item := Item{
		Name:        slug,
		DisplayName: trimLanguage(base, lang),
		Kind:        KindPage,
		Language:    lang,
		Source:      string(source),
		Path:        path,
	}

	// The style and script parts are optional siblings sharing the copy
	// file's base name. A read failure just means the part does not exist.
	if b, err := os.ReadFile(filepath.Join(dir, base+pageStyleSuffix)); err == nil {
		item.Style = string(b)
	}
	if b, err := os.ReadFile(filepath.Join(dir, base+pageScriptSuffix)); err == nil {
		item.Script = string(b)
	}
	return item, nil
}

func (r *Resolver) loadTemplate(slug string) (Item, error) {
	dir := filepath.Join(r.config.Root, templatesDirName, slug)
	pick, err := pickFile(dir, templateSuffix, "")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Item{}, fmt.Errorf("template %q: %w", slug, ErrNotFound)
		}
		return Item{}, err
	}

	path := filepath.Join(dir, pick)
	source, err := os.ReadFile(path)
	if err != nil {
		return Item{}, fmt.Errorf("reading template %s: %w", path, err)
	}

	lang := variantLanguage(pick, templateSuffix)
	return Item{
		Name:        slug,
		DisplayName: trimLanguage(strings.TrimSuffix(pick, templateSuffix), lang),
		Kind:        KindTemplate,
		Source:      string(source),
		Path:        path,
	}, nil
}

func (r *Resolver) loadSnippet(slug, language string) (Item, error) {
	dir := filepath.Join(r.config.Root, snippetsDirName, slug)
	pick, err := pickFile(dir, snippetSuffix, language)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Item{}, fmt.Errorf("snippet %q: %w", slug, ErrNotFound)
		}
		return Item{}, err
	}

	path := filepath.Join(dir, pick)
	source, err := os.ReadFile(path)
	if err != nil {
		return Item{}, fmt.Errorf("reading snippet %s: %w", path, err)
	}

	lang := variantLanguage(pick, snippetSuffix)
	return Item{
		Name:        slug,
		DisplayName: trimLanguage(strings.TrimSuffix(pick, snippetSuffix), lang),
		Kind:        KindSnippet,
		Language:    lang,
		Source:      string(source),
		Path:        path,
	}, nil
}

// pickFile selects the best file carrying the given storage suffix inside
// dir: the requested language variant first, then an unqualified file, then
// the lexicographically first remaining variant so fallback stays
// deterministic.
func pickFile(dir, suffix, language string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading %s: %w", dir, err)
	}

	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		candidates = append(candidates, entry.Name())
	}
	if len(candidates) == 0 {
		return "", ErrNotFound
	}
	sort.Strings(candidates)

	bare := ""
	for _, name := range candidates {
		tag := variantLanguage(name, suffix)
		if language != "" && strings.EqualFold(tag, language) {
			return name, nil
		}
		if tag == "" && bare == "" {
			bare = name
		}
	}
	if bare != "" {
		return bare, nil
	}
	return candidates[0], nil
}

// variantLanguage extracts the language tag from a storage file name, or ""
// when the base name carries none.
func variantLanguage(file, suffix string) string {
	base := strings.TrimSuffix(file, suffix)
	idx := strings.LastIndex(base, ".")
	if idx < 0 {
		return ""
	}
	tag := base[idx+1:]
	if !languageTag.MatchString(tag) {
		return ""
	}
	return tag
}

func trimLanguage(base, lang string) string {
	if lang == "" {
		return base
	}
	return strings.TrimSuffix(base, "."+lang)
}
