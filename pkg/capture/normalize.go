package capture

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/porticodev/portico/pkg/fixture"
)

// volatileQueryKeys change on every request (cache busters, clock values) and
// are dropped when a capture is promoted, since no replay would ever carry
// the same value again.
var volatileQueryKeys = map[string]struct{}{
	"_":         {},
	"timestamp": {},
}

// ToRule converts a recorded transaction into a mock rule answering the same
// request shape. The rule starts enabled at priority zero with no identity or
// statistics, so the fixture store stamps it like any hand-written rule. Only
// the response content type is carried over from the recorded headers; the
// rest are hop-specific noise.
func ToRule(t *Transaction) *fixture.Rule {
	path := t.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	rule := &fixture.Rule{
		Method:      t.Method,
		PathPattern: path,
		Status:      t.Status,
		Body:        t.ResponseBody,
		Enabled:     true,
		Description: fmt.Sprintf("captured %s %s", t.Method, t.Path),
	}

	if values, err := url.ParseQuery(t.Query); err == nil {
		constraints := make(map[string]string)
		for key, vals := range values {
			if _, volatile := volatileQueryKeys[strings.ToLower(key)]; volatile {
				continue
			}
			if len(vals) > 0 && vals[0] != "" {
				constraints[key] = vals[0]
			}
		}
		if len(constraints) > 0 {
			rule.Query = constraints
		}
	}

	if ct := t.ResponseHeaders.Get("Content-Type"); ct != "" {
		rule.Headers = map[string]string{"Content-Type": ct}
	}
	return rule
}
