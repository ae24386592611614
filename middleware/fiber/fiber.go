// Package fiber mounts billing webhook receivers on Fiber
package fiber

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

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
	OnProcessed func(c *fiber.Ctx, result billing.Result)
}

// WebhookHandler returns a Fiber handler that feeds deliveries to the provider.
// Rate limiting is left to Fiber middleware.
func WebhookHandler(cfg Config) fiber.Handler {
	if cfg.Provider == nil {
		panic("subsync/fiber: Config.Provider is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = billing.MaxWebhookBodyBytes
	}
	headers := cfg.Provider.ResponseHeaders()

	return func(c *fiber.Ctx) error {
		for k, v := range headers {
			c.Set(k, v)
		}
		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(http.StatusNoContent)
		}

		raw := c.Body()
		if int64(len(raw)) > cfg.MaxBodyBytes {
			return c.Status(http.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": billing.ErrPayloadTooLarge.Error()})
		}
		if len(raw) == 0 {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": billing.ErrEmptyPayload.Error()})
		}
		// fasthttp reuses the request buffer after the handler returns
		body := append([]byte(nil), raw...)

		result := cfg.Provider.Process(c.UserContext(), body, c.Get(cfg.Provider.SignatureHeader()))
		if cfg.OnProcessed != nil {
			cfg.OnProcessed(c, result)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(result.StatusCode).Send(result.Body)
	}
}

// Register mounts the webhook handler for POST and OPTIONS on path
func Register(r fiber.Router, path string, cfg Config) {
	h := WebhookHandler(cfg)
	r.Post(path, h)
	r.Options(path, h)
}
