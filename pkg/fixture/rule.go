package fixture

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrRuleNotFound is returned when a rule id does not exist in the store.
var ErrRuleNotFound = errors.New("rule not found")

// Rule is a single request/response fixture. A rule answers a request when
// its method, path pattern and query constraints all accept it.
type Rule struct {
	ID string `json:"id"`
	// Method is the HTTP method the rule answers, stored upper-case.
	Method string `json:"method"`
	// PathPattern is matched segment-wise against the request path.
	// A ":name" segment accepts any single segment and a "*" segment
	// accepts one segment, or the whole remainder when it is last.
	PathPattern string `json:"path_pattern"`
	// Query lists constraints that must all be present on the request.
	// Values for relaxed keys are compared as comma-separated field sets.
	Query       map[string]string `json:"query,omitempty"`
	Status      int               `json:"status"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        string            `json:"body"`
	Priority    int               `json:"priority"`
	Enabled     bool              `json:"enabled"`
	DelayMs     int               `json:"delay_ms"`
	HitCount    int64             `json:"hit_count"`
	LastUsedAt  time.Time         `json:"last_used_at"`
	CreatedAt   time.Time         `json:"created_at"`
	Description string            `json:"description,omitempty"`
}

// Validate checks the fields a rule needs before it can match requests.
// A zero Status is allowed and defaults to 200 when the rule is stored.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Method) == "" {
		return fmt.Errorf("rule method is required")
	}
	if !strings.HasPrefix(r.PathPattern, "/") {
		return fmt.Errorf("rule path pattern must start with '/': %q", r.PathPattern)
	}
	if r.Status != 0 && (r.Status < 100 || r.Status > 599) {
		return fmt.Errorf("rule status out of range: %d", r.Status)
	}
	if r.DelayMs < 0 {
		return fmt.Errorf("rule delay must not be negative: %d", r.DelayMs)
	}
	return nil
}

// applyDefaults fills identity and response fields that hand-written or
// imported rules commonly leave out.
func (r *Rule) applyDefaults() {
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == 0 {
		r.Status = http.StatusOK
	}
}

// clone returns a deep copy so callers can never mutate stored state.
func (r *Rule) clone() *Rule {
	c := *r
	c.Query = maps.Clone(r.Query)
	c.Headers = maps.Clone(r.Headers)
	return &c
}
