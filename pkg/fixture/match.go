package fixture

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// MatchConfig holds the tunable parts of request matching.
type MatchConfig struct {
	// RelaxedQueryKeys are query constraint keys whose values are compared
	// as comma-separated field sets instead of verbatim strings. Any field
	// overlap counts as a match.
	RelaxedQueryKeys []string `json:"relaxed_query_keys"`
}

// DefaultMatchConfig creates a matching configuration with default values.
func DefaultMatchConfig() *MatchConfig {
	return &MatchConfig{
		RelaxedQueryKeys: []string{"$select", "$expand"},
	}
}

// Matcher evaluates inbound requests against the store's rule set.
type Matcher struct {
	logger *slog.Logger
	store  *Store

	mu      sync.RWMutex
	relaxed map[string]struct{}
}

// NewMatcher creates a matcher over the given store.
func NewMatcher(logger *slog.Logger, store *Store, config *MatchConfig) *Matcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config == nil {
		config = DefaultMatchConfig()
	}
	m := &Matcher{logger: logger, store: store}
	m.SetConfig(config)
	return m
}

// SetConfig atomically replaces the matching configuration.
func (m *Matcher) SetConfig(config *MatchConfig) {
	relaxed := make(map[string]struct{}, len(config.RelaxedQueryKeys))
	for _, key := range config.RelaxedQueryKeys {
		relaxed[strings.ToLower(strings.TrimSpace(key))] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relaxed = relaxed
}

// Match returns a copy of the first enabled rule that accepts the request,
// or nil when nothing matches. Evaluation follows the store's match order,
// so higher priority always wins regardless of registration order.
func (m *Matcher) Match(req *http.Request) *Rule {
	rule := m.store.first(func(r *Rule) bool {
		return r.Enabled && m.accepts(r, req)
	})
	if rule != nil {
		m.logger.Debug("Fixture rule matched",
			"rule_id", rule.ID, "method", req.Method, "path", req.URL.Path)
	}
	return rule
}

func (m *Matcher) accepts(rule *Rule, req *http.Request) bool {
	if !strings.EqualFold(rule.Method, req.Method) {
		return false
	}
	if !matchPath(rule.PathPattern, req.URL.Path) {
		return false
	}
	return m.acceptsQuery(rule.Query, req.URL.Query())
}

// acceptsQuery requires every constraint key to be present with an
// acceptable value. Requests may carry extra parameters freely.
func (m *Matcher) acceptsQuery(constraints map[string]string, query url.Values) bool {
	if len(constraints) == 0 {
		return true
	}

	m.mu.RLock()
	relaxed := m.relaxed
	m.mu.RUnlock()

	for key, want := range constraints {
		values, ok := query[key]
		if !ok || len(values) == 0 {
			return false
		}
		if _, isRelaxed := relaxed[strings.ToLower(key)]; isRelaxed {
			if !fieldSetsOverlap(want, values[0]) {
				return false
			}
		} else if values[0] != want {
			return false
		}
	}
	return true
}

// matchPath compares a pattern and a concrete path segment by segment.
// Trailing slashes are ignored on both sides.
func matchPath(pattern, path string) bool {
	if pattern == path {
		return true
	}
	patSegs := splitPath(pattern)
	pathSegs := splitPath(path)

	for i, seg := range patSegs {
		if seg == "*" && i == len(patSegs)-1 {
			// A trailing wildcard swallows the rest of the path, but
			// there has to be a rest.
			return len(pathSegs) >= len(patSegs)
		}
		if i >= len(pathSegs) {
			return false
		}
		switch {
		case seg == "*":
		case strings.HasPrefix(seg, ":") && len(seg) > 1:
		case seg != pathSegs[i]:
			return false
		}
	}
	return len(pathSegs) == len(patSegs)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// fieldSetsOverlap reports whether the two comma-separated field lists share
// at least one field. An empty constraint list only requires key presence.
func fieldSetsOverlap(want, got string) bool {
	wantFields := splitFields(want)
	if len(wantFields) == 0 {
		return true
	}
	gotFields := make(map[string]struct{})
	for _, field := range splitFields(got) {
		gotFields[field] = struct{}{}
	}
	for _, field := range wantFields {
		if _, ok := gotFields[field]; ok {
			return true
		}
	}
	return false
}

func splitFields(raw string) []string {
	var fields []string
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(strings.ToLower(field))
		if field != "" {
			fields = append(fields, field)
		}
	}
	return fields
}
