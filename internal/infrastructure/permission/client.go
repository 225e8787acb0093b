// Package permission implements the external permission resolution service client.
package permission

import (
	"context"
	"net/http"
	"strings"

	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/internal/infrastructure/gateway"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

// Client posts a PermissionRequest to the permission service and returns its answer.
type Client struct {
	url  string
	http *http.Client
	gw   *gateway.Gateway
	log  logger.Logger
}

var _ service.PermissionService = (*Client)(nil)

// NewClient creates a Client for serviceURL.
func NewClient(serviceURL string, httpClient *http.Client, gw *gateway.Gateway, log logger.Logger) (*Client, error) {
	if strings.TrimSpace(serviceURL) == "" {
		return nil, errors.ErrConfiguration("permissions.service_url", "must not be empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{url: serviceURL, http: httpClient, gw: gw, log: log.WithComponent("PermissionClient")}, nil
}

// Resolve asks the permission service for the permissions of req.
// A response without a permissions field is malformed.
func (c *Client) Resolve(ctx context.Context, req service.PermissionRequest) ([]string, error) {
	var resp struct {
		Permissions *[]string `json:"permissions"`
	}
	op := gateway.HTTPOperation(c.http, "permissions.resolve",
		gateway.JSONRequest(http.MethodPost, c.url, req, nil))
	if err := c.gw.InvokeJSON(ctx, op, &resp); err != nil {
		return nil, err
	}
	if resp.Permissions == nil {
		return nil, errors.ErrMalformedResponse("permissions.resolve", nil)
	}
	c.log.Debug(ctx, "permissions resolved by service",
		logger.String("identity_id", req.IdentityID),
		logger.Int("count", len(*resp.Permissions)))
	return *resp.Permissions, nil
}
