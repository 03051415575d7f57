package templating

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/nikolalohinski/gonja/v2/builtins"
	gonjacfg "github.com/nikolalohinski/gonja/v2/config"
	"github.com/nikolalohinski/gonja/v2/exec"
	"github.com/nikolalohinski/gonja/v2/loaders"

	"github.com/porticodev/portico/pkg/content"
)

// ContentSource is the slice of the content resolver the renderer needs for
// include expansion.
type ContentSource interface {
	Resolve(kind content.Kind, name, language string, opts ...content.Option) (content.Item, error)
	ResolveInclude(name, language string) (content.Item, error)
}

// Classifier guards executable content from the engine.
type Classifier interface {
	IsExecutableCode(text string) bool
}

// Renderer turns resolved content into final markup. It preprocesses
// include tokens, classifies the expanded text, and runs what remains
// through the engine, caching compiled templates by content hash.
// All methods are concurrent-safe.
type Renderer struct {
	logger     *slog.Logger
	source     ContentSource
	classifier Classifier

	mu        sync.RWMutex
	config    *Config
	engineCfg *gonjacfg.Config
	env       *exec.Environment
	compiled  map[string]*exec.Template
}

// NewRenderer builds the engine environment once and returns a ready
// Renderer. A nil logger discards all output; a nil classifier sends every
// source through the engine.
func NewRenderer(logger *slog.Logger, config *Config, source ContentSource, classifier Classifier) *Renderer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Renderer{
		logger:     logger,
		source:     source,
		classifier: classifier,
		compiled:   make(map[string]*exec.Template),
		env: &exec.Environment{
			Filters:           builtins.Filters.Update(customFilters()),
			Tests:             builtins.Tests,
			ControlStructures: builtins.ControlStructures,
			Methods:           builtins.Methods,
			Context:           builtins.GlobalFunctions,
		},
	}
	r.applyConfig(config)

	logger.Info("Renderer initialized",
		slog.Int("max_include_depth", config.MaxIncludeDepth),
		slog.Bool("auto_escape", config.AutoEscape),
	)
	return r
}

// SetConfig applies a new configuration without restarting. The compiled
// cache is dropped because cached templates bake in the old engine
// settings.
func (r *Renderer) SetConfig(config *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyConfigLocked(config)
	r.compiled = make(map[string]*exec.Template)
}

func (r *Renderer) applyConfig(config *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyConfigLocked(config)
}

func (r *Renderer) applyConfigLocked(config *Config) {
	r.config = config
	r.engineCfg = &gonjacfg.Config{
		BlockStartString:    "{%",
		BlockEndString:      "%}",
		VariableStartString: "{{",
		VariableEndString:   "}}",
		CommentStartString:  "{#",
		CommentEndString:    "#}",
		AutoEscape:          config.AutoEscape,
		StrictUndefined:     config.StrictUndefined,
	}
}

// GetConfig returns the current configuration.
// This mainly exists for concurrency-safety reasons.
func (r *Renderer) GetConfig() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.config
}

// Render expands, classifies, and executes one source. The returned text is
// always usable: with a nil error it is the final markup, and alongside a
// SyntaxError or RuntimeError it is the preprocessed text, so callers can
// log the diagnostic and serve the partial render. name identifies the
// source in diagnostics, e.g. "page/home".
func (r *Renderer) Render(name, source string, ctx *Context) (string, error) {
	r.mu.RLock()
	limit := r.config.MaxIncludeDepth
	r.mu.RUnlock()

	expanded := r.expand(source, ctx.language(), 0, limit)

	// Classification runs on the expanded text: an include may pull raw
	// script into an otherwise harmless page.
	if r.classifier != nil && r.classifier.IsExecutableCode(expanded) {
		r.logger.Debug("serving source verbatim", slog.String("source", name))
		return expanded, nil
	}

	tpl, err := r.compile(expanded)
	if err != nil {
		return expanded, &SyntaxError{Name: name, Err: err}
	}

	out, err := tpl.ExecuteToString(exec.NewContext(ctx.vars()))
	if err != nil {
		return expanded, &RuntimeError{Name: name, Err: err}
	}
	return out, nil
}

// compile returns a compiled template for the exact source text, reusing
// the cache when the same text was compiled before.
func (r *Renderer) compile(source string) (*exec.Template, error) {
	sum := sha256.Sum256([]byte(source))
	key := hex.EncodeToString(sum[:])

	r.mu.RLock()
	tpl, ok := r.compiled[key]
	engineCfg := r.engineCfg
	r.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	loader, err := loaders.NewMemoryLoader(map[string]string{key: source})
	if err != nil {
		return nil, fmt.Errorf("creating template loader: %w", err)
	}
	tpl, err = exec.NewTemplate(key, engineCfg, loader, r.env)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.compiled[key] = tpl
	r.mu.Unlock()
	return tpl, nil
}

// ClearCache drops every compiled template. The watcher calls this next to
// the content cache clear so edited sources recompile.
func (r *Renderer) ClearCache() {
	r.mu.Lock()
	r.compiled = make(map[string]*exec.Template)
	r.mu.Unlock()
	r.logger.Debug("compiled template cache cleared")
}

// CacheLen reports the number of cached compiled templates.
func (r *Renderer) CacheLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.compiled)
}
