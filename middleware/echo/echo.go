// Package echo mounts billing webhook receivers on Echo
package echo

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/subsync/pkg/billing"
)

// Router is implemented by *echo.Echo and *echo.Group
type Router interface {
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	OPTIONS(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

// Config holds webhook handler configuration
type Config struct {
	// Provider is the billing provider receiving deliveries (required)
	Provider billing.Provider

	// MaxBodyBytes bounds the request body
	// Default: billing.MaxWebhookBodyBytes
	MaxBodyBytes int64

	// OnProcessed is called after each delivery reaches the provider (optional)
	OnProcessed func(c echo.Context, result billing.Result)
}

// WebhookHandler returns an Echo handler that feeds deliveries to the provider.
// Rate limiting is left to Echo middleware.
func WebhookHandler(cfg Config) echo.HandlerFunc {
	if cfg.Provider == nil {
		panic("subsync/echo: Config.Provider is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = billing.MaxWebhookBodyBytes
	}
	headers := cfg.Provider.ResponseHeaders()

	return func(c echo.Context) error {
		for k, v := range headers {
			c.Response().Header().Set(k, v)
		}
		if c.Request().Method == http.MethodOptions {
			return c.NoContent(http.StatusNoContent)
		}

		req := c.Request()
		req.Body = http.MaxBytesReader(c.Response(), req.Body, cfg.MaxBodyBytes)
		body, err := io.ReadAll(req.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": billing.ErrPayloadTooLarge.Error()})
			}
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		if len(body) == 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": billing.ErrEmptyPayload.Error()})
		}

		result := cfg.Provider.Process(req.Context(), body, req.Header.Get(cfg.Provider.SignatureHeader()))
		if cfg.OnProcessed != nil {
			cfg.OnProcessed(c, result)
		}
		return c.Blob(result.StatusCode, echo.MIMEApplicationJSON, result.Body)
	}
}

// Register mounts the webhook handler for POST and OPTIONS on path
func Register(r Router, path string, cfg Config) {
	h := WebhookHandler(cfg)
	r.POST(path, h)
	r.OPTIONS(path, h)
}
