package classify

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// Config holds the tunable parameters for content classification.
type Config struct {
	// StructuralThreshold is the flat score at which structural signals
	// alone classify content as code.
	StructuralThreshold float64 `json:"structural_threshold"`

	// DensityThreshold is the weighted indicator density, per 1000
	// characters, at which content classifies as code.
	DensityThreshold float64 `json:"density_threshold"`

	// AlwaysCode lists file base names that are treated as code without
	// consulting the heuristics. Useful for bundles whose content defeats
	// pattern matching.
	AlwaysCode []string `json:"always_code"`
}

// DefaultConfig returns a Config with thresholds tuned so that shipped
// JavaScript classifies as code while ordinary page markup does not.
func DefaultConfig() *Config {
	return &Config{
		StructuralThreshold: 2.0,
		DensityThreshold:    4.0,
		AlwaysCode:          []string{},
	}
}

// Breakdown reports how one classification was reached.
type Breakdown struct {
	// Structural is the flat score accumulated from structural signals.
	Structural float64 `json:"structural"`
	// Density is the weighted indicator score per 1000 characters,
	// clamped at zero after markup signals are subtracted.
	Density float64 `json:"density"`
	// Length is the size of the classified text in bytes.
	Length int `json:"length"`
	// Signals maps each firing signal name to its occurrence count.
	Signals map[string]int `json:"signals"`
	// Code is the final verdict.
	Code bool `json:"code"`
}

// Classifier applies the configured thresholds to the signal sets.
// It performs no I/O and is safe for concurrent use.
type Classifier struct {
	config *Config
	logger *slog.Logger
	always map[string]struct{}
}

// New creates a Classifier. A nil logger discards all output.
func New(config *Config, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	always := make(map[string]struct{}, len(config.AlwaysCode))
	for _, name := range config.AlwaysCode {
		always[strings.ToLower(name)] = struct{}{}
	}
	return &Classifier{
		config: config,
		logger: logger,
		always: always,
	}
}

// IsExecutableCode reports whether the text should bypass template
// rendering and be served verbatim.
func (c *Classifier) IsExecutableCode(text string) bool {
	b := c.Score(text)
	if b.Code {
		c.logger.Debug("content classified as code",
			slog.Float64("structural", b.Structural),
			slog.Float64("density", b.Density),
			slog.Int("length", b.Length),
		)
	}
	return b.Code
}

// IsExecutableFile classifies content that has a known file name. The
// configured allowlist and the minified-suffix convention short-circuit the
// heuristics; everything else falls through to IsExecutableCode.
func (c *Classifier) IsExecutableFile(name, text string) bool {
	base := strings.ToLower(filepath.Base(name))
	if _, ok := c.always[base]; ok {
		return true
	}
	if strings.HasSuffix(base, ".min.js") {
		return true
	}
	return c.IsExecutableCode(text)
}

// Density normalization floor. Below this size a single stray indicator
// would otherwise dominate the per-1000-character score.
const minDensityChars = 200

// Score runs every signal against the text and returns the full breakdown.
// It applies the same decision rule as IsExecutableCode, so callers and
// tests can see exactly which signals drove a verdict.
func (c *Classifier) Score(text string) Breakdown {
	b := Breakdown{
		Length:  len(text),
		Signals: make(map[string]int),
	}
	if strings.TrimSpace(text) == "" {
		return b
	}

	for _, sig := range structuralSignals {
		n := len(sig.re.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		b.Signals[sig.name] = n
		// Structural evidence scores once however often it repeats.
		b.Structural += sig.weight
	}

	var weighted float64
	for _, sig := range densitySignals {
		n := len(sig.re.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		b.Signals[sig.name] = n
		weighted += sig.weight * float64(n)
	}
	for _, sig := range markupSignals {
		n := len(sig.re.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		b.Signals[sig.name] = n
		weighted += sig.weight * float64(n)
	}

	kchars := float64(len(text)) / 1000.0
	if kchars < minDensityChars/1000.0 {
		kchars = minDensityChars / 1000.0
	}
	b.Density = weighted / kchars
	if b.Density < 0 {
		b.Density = 0
	}

	b.Code = b.Structural >= c.config.StructuralThreshold ||
		b.Density >= c.config.DensityThreshold
	return b
}
