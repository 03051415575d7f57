package templating

// Config holds all configuration options for the rendering engine.
type Config struct {
	// MaxIncludeDepth bounds recursive include expansion. At the limit the
	// remaining branch is left untouched, tokens and all, which keeps
	// cyclic include graphs from hanging a render.
	MaxIncludeDepth int `json:"max_include_depth"`

	// AutoEscape toggles the engine's HTML auto-escaping. Portal content
	// routinely embeds markup in variables, so this defaults to off; the
	// escape filter covers the places escaping is wanted.
	AutoEscape bool `json:"auto_escape"`

	// StrictUndefined makes references to unknown variables fail the
	// render instead of producing empty output.
	StrictUndefined bool `json:"strict_undefined"`
}

// DefaultConfig returns a Config with safe default values.
func DefaultConfig() *Config {
	return &Config{
		MaxIncludeDepth: 10,
		AutoEscape:      false,
		StrictUndefined: false,
	}
}
