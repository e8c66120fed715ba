// Package api implements the "api" connector: an HTTP GET against a
// configured endpoint, with optional auth and extra headers.
//
// Settings: endpoint (required), authType (apiKey, bearer, jwt, basic),
// headers (object of string values), maxBytes. Secrets depend on authType:
// apiKey; token; username and password.
package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"daybook/internal/config"
	"daybook/internal/connector"
	"daybook/internal/datasource/httpds"

	"github.com/pkg/errors"
)

// Kind is the source type served by this connector.
const Kind = "api"

func init() {
	connector.Register(Kind, New(httpds.Config{MaxRetries: 2, Timeout: 30 * time.Second}))
}

// Connector polls HTTP endpoints.
type Connector struct {
	client *httpds.Client
}

// New returns a Connector using a client built from cfg.
func New(cfg httpds.Config) *Connector {
	return &Connector{client: httpds.NewClient(cfg)}
}

// ValidateConfig requires an absolute http(s) endpoint and a known auth type.
func (c *Connector) ValidateConfig(cfg config.Options) error {
	if cfg == nil {
		return fmt.Errorf("Config is missing")
	}
	endpoint := cfg.String("endpoint", "")
	if endpoint == "" {
		return fmt.Errorf("Endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("Endpoint must be an absolute http(s) URL")
	}
	switch auth := cfg.String("authType", ""); auth {
	case httpds.AuthNone, httpds.AuthAPIKey, httpds.AuthBearer, httpds.AuthJWT, httpds.AuthBasic:
	default:
		return fmt.Errorf("Invalid authType: %s", auth)
	}
	return nil
}

// ValidateSecrets checks the credentials the auth type needs.
func (c *Connector) ValidateSecrets(cfg config.Options, secrets map[string]string) error {
	return httpds.ValidateAuth(cfg.String("authType", ""), secrets)
}

// Poll fetches the endpoint body as text.
func (c *Connector) Poll(ctx context.Context, cfg config.Options, secrets map[string]string) (any, error) {
	if err := c.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	body, err := c.client.Fetch(ctx, httpds.Request{
		URL:      cfg.String("endpoint", ""),
		AuthType: cfg.String("authType", ""),
		Secrets:  secrets,
		Headers:  cfg.StringMap("headers"),
		MaxBytes: int64(cfg.Int("maxBytes", 0)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "poll failed")
	}
	return string(body), nil
}
