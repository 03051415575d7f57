package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/porticodev/portico/pkg/classify"
	"github.com/porticodev/portico/pkg/content"
	"github.com/porticodev/portico/pkg/fixture"
	"github.com/porticodev/portico/pkg/templating"
)

// ServerConfig holds the configuration for the HTTP servers.
type ServerConfig struct {
	ServerAddr          string `json:"server_addr"`
	ApiAddr             string `json:"api_addr"`
	LogLevel            string `json:"log_level"`
	DataDir             string `json:"data_dir"`
	RulesPath           string `json:"rules_path"`
	CaptureDatabasePath string `json:"capture_database_path"`
	// AdminToken guards the admin API when set. Empty leaves the API open,
	// which is the expected mode on a developer machine.
	AdminToken      string `json:"admin_token"`
	WatchContent    bool   `json:"watch_content"`
	WatchDebounceMs int    `json:"watch_debounce_ms"`
}

// SiteConfig describes the exported site being served.
type SiteConfig struct {
	Name            string            `json:"name"`
	BaseURL         string            `json:"base_url"`
	Root            string            `json:"root"`
	HomePage        string            `json:"home_page"`
	DefaultLanguage string            `json:"default_language"`
	Languages       []string          `json:"languages"`
	Settings        map[string]string `json:"settings"`
}

// ContentConfig derives the resolver configuration for this site.
func (sc *SiteConfig) ContentConfig() *content.Config {
	return &content.Config{
		Root:            sc.Root,
		DefaultLanguage: sc.DefaultLanguage,
	}
}

// ProxyConfig holds settings for API dispatch, forwarding and capture.
type ProxyConfig struct {
	// BackendBaseURL is the live backend unmatched requests are forwarded
	// to. Empty runs mock-only: every unmatched request gets the
	// backend-unavailable response.
	BackendBaseURL string   `json:"backend_base_url"`
	ApiPrefixes    []string `json:"api_prefixes"`
	TimeoutMs      int      `json:"timeout_ms"`
	// BearerToken, when set, replaces the Authorization header on forwarded
	// requests.
	BearerToken      string   `json:"bearer_token"`
	CaptureEnabled   bool     `json:"capture_enabled"`
	MaxCaptures      int      `json:"max_captures"`
	RelaxedQueryKeys []string `json:"relaxed_query_keys"`
	IdentityEndpoint string   `json:"identity_endpoint"`
	IdentityUserID   string   `json:"identity_user_id"`
}

// MatchConfig derives the rule-matching configuration.
func (pc *ProxyConfig) MatchConfig() *fixture.MatchConfig {
	return &fixture.MatchConfig{RelaxedQueryKeys: pc.RelaxedQueryKeys}
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server   *ServerConfig      `json:"server_config"`
	Site     *SiteConfig        `json:"site_config"`
	Proxy    *ProxyConfig       `json:"proxy_config"`
	Render   *templating.Config `json:"render_config"`
	Classify *classify.Config   `json:"classify_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ServerAddr:          ":7070",
		ApiAddr:             ":7071",
		LogLevel:            "info",
		DataDir:             "./data",
		RulesPath:           "./data/portico_rules.json",
		CaptureDatabasePath: "./data/portico_captures.db?_journal_mode=WAL&_busy_timeout=5000",
		AdminToken:          "",
		WatchContent:        true,
		WatchDebounceMs:     300,
	}
}

// DefaultSiteConfig creates a site configuration with default values.
func DefaultSiteConfig() *SiteConfig {
	return &SiteConfig{
		Name:            "Portico Dev Site",
		BaseURL:         "http://localhost:7070",
		Root:            "./site",
		HomePage:        "Home",
		DefaultLanguage: "en-US",
		Languages:       []string{"en-US"},
		Settings:        map[string]string{},
	}
}

// DefaultProxyConfig creates a proxy configuration with default values.
func DefaultProxyConfig() *ProxyConfig {
	return &ProxyConfig{
		BackendBaseURL:   "",
		ApiPrefixes:      []string{"/_api/"},
		TimeoutMs:        15000,
		BearerToken:      "",
		CaptureEnabled:   true,
		MaxCaptures:      1000,
		RelaxedQueryKeys: []string{"$select", "$expand"},
		IdentityEndpoint: "",
		IdentityUserID:   "local-dev",
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	// Initialize with default configurations
	config := &Config{
		Server:   DefaultServerConfig(),
		Site:     DefaultSiteConfig(),
		Proxy:    DefaultProxyConfig(),
		Render:   templating.DefaultConfig(),
		Classify: classify.DefaultConfig(),
	}

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Log a warning instead of failing, as the server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		// For other errors (e.g., permission denied), return the error.
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal the JSON from the file into the config struct.
	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ConfigManager handles thread-safe access to configuration and pushes
// updates into the components that can apply them without a restart.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
	logger     *slog.Logger
	renderer   *templating.Renderer
	matcher    *fixture.Matcher
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	return &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}, nil
}

// SetRenderer registers the renderer to receive render config updates.
func (cm *ConfigManager) SetRenderer(r *templating.Renderer) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.renderer = r
	// Ensure the renderer starts with the current config
	if r != nil {
		r.SetConfig(cm.config.Render)
	}
}

// SetMatcher registers the matcher to receive query-matching config updates.
func (cm *ConfigManager) SetMatcher(m *fixture.Matcher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.matcher = m
	if m != nil {
		m.SetConfig(cm.config.Proxy.MatchConfig())
	}
}

// SetLogger sets the logger. That's about it.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.logger = logger
}

// Get returns a thread-safe copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	// Return a dereferenced copy to prevent external modification of the internal state
	return *cm.config
}

// Update updates the configuration, saves it to disk, and applies the parts
// the running components can pick up. Listener addresses, storage paths and
// classifier tuning take effect on the next restart.
func (cm *ConfigManager) Update(newConfig Config) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	// An update that omits a section keeps the current one.
	if newConfig.Server == nil {
		newConfig.Server = cm.config.Server
	}
	if newConfig.Site == nil {
		newConfig.Site = cm.config.Site
	}
	if newConfig.Proxy == nil {
		newConfig.Proxy = cm.config.Proxy
	}
	if newConfig.Render == nil {
		newConfig.Render = cm.config.Render
	}
	if newConfig.Classify == nil {
		newConfig.Classify = cm.config.Classify
	}

	if cm.renderer != nil {
		cm.renderer.SetConfig(newConfig.Render)
	}
	if cm.matcher != nil {
		cm.matcher.SetConfig(newConfig.Proxy.MatchConfig())
	}

	*cm.config = newConfig

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
