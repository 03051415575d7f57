package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/porticodev/portico/pkg/templating"
)

// identityTimeout bounds the identity lookup so a dead backend cannot
// stall page renders.
const identityTimeout = 2 * time.Second

// identityClient resolves the signed-in user for portal renders. Lookups
// that fail for any reason fall back to a synthesized local developer
// identity, so rendering never blocks on the backend.
type identityClient struct {
	logger   *slog.Logger
	doer     HTTPDoer
	endpoint string
	userID   string
}

func newIdentityClient(logger *slog.Logger, config *ProxyConfig, doer HTTPDoer) *identityClient {
	if doer == nil {
		doer = &http.Client{}
	}
	return &identityClient{
		logger:   logger,
		doer:     doer,
		endpoint: config.IdentityEndpoint,
		userID:   config.IdentityUserID,
	}
}

// CurrentUser fetches the configured user from the identity endpoint, or
// returns the fallback user when no endpoint is configured or the lookup
// fails.
func (c *identityClient) CurrentUser(ctx context.Context) *templating.UserRecord {
	if c.endpoint == "" {
		return c.FallbackUser()
	}

	ctx, cancel := context.WithTimeout(ctx, identityTimeout)
	defer cancel()

	target := c.endpoint
	if c.userID != "" {
		target += "?id=" + url.QueryEscape(c.userID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		c.logger.Warn("Failed to build identity request", "endpoint", c.endpoint, "error", err)
		return c.FallbackUser()
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		c.logger.Warn("Identity lookup failed, using fallback user", "error", err)
		return c.FallbackUser()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Identity lookup failed, using fallback user", "status", resp.StatusCode)
		return c.FallbackUser()
	}

	var user templating.UserRecord
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		c.logger.Warn("Failed to decode identity response, using fallback user", "error", err)
		return c.FallbackUser()
	}
	if user.ID == "" {
		user.ID = c.userID
	}
	return &user
}

// FallbackUser synthesizes the local developer identity.
func (c *identityClient) FallbackUser() *templating.UserRecord {
	return &templating.UserRecord{
		ID:        c.userID,
		FullName:  "Local Developer",
		FirstName: "Local",
		LastName:  "Developer",
		Email:     "developer@localhost",
		Roles:     []string{"Administrators"},
	}
}
