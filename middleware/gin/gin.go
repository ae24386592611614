// Package gin mounts billing webhook receivers on Gin
package gin

import (
	"errors"
	"io"
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/subsync/pkg/billing"
)

// Config holds webhook handler configuration
type Config struct {
	// Provider is the billing provider receiving deliveries (required)
	Provider billing.Provider

	// MaxBodyBytes bounds the request body
	// Default: billing.MaxWebhookBodyBytes
	MaxBodyBytes int64

	// OnProcessed is called after each delivery reaches the provider (optional)
	OnProcessed func(c *gongin.Context, result billing.Result)
}

// WebhookHandler returns a Gin handler that feeds deliveries to the provider.
// Rate limiting is left to Gin middleware.
func WebhookHandler(cfg Config) gongin.HandlerFunc {
	if cfg.Provider == nil {
		panic("subsync/gin: Config.Provider is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = billing.MaxWebhookBodyBytes
	}
	headers := cfg.Provider.ResponseHeaders()

	return func(c *gongin.Context) {
		for k, v := range headers {
			c.Header(k, v)
		}
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, cfg.MaxBodyBytes)
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gongin.H{"error": billing.ErrPayloadTooLarge.Error()})
				return
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, gongin.H{"error": err.Error()})
			return
		}
		if len(body) == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gongin.H{"error": billing.ErrEmptyPayload.Error()})
			return
		}

		result := cfg.Provider.Process(c.Request.Context(), body, c.GetHeader(cfg.Provider.SignatureHeader()))
		if cfg.OnProcessed != nil {
			cfg.OnProcessed(c, result)
		}
		c.Data(result.StatusCode, "application/json", result.Body)
	}
}

// Register mounts the webhook handler for POST and OPTIONS on path
func Register(r gongin.IRoutes, path string, cfg Config) {
	h := WebhookHandler(cfg)
	r.POST(path, h)
	r.OPTIONS(path, h)
}
