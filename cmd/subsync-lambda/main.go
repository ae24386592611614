// Command subsync-lambda runs the Stripe webhook receiver behind an
// API Gateway HTTP API (payload format 2.0).
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"

	"github.com/mihaimyh/subsync/internal/app"
	"github.com/mihaimyh/subsync/internal/config"
	"github.com/mihaimyh/subsync/pkg/billing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := app.NewLogger(cfg, os.Stdout)

	// No scrape endpoint exists here, so metrics are disabled
	a, err := app.New(context.Background(), app.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}

	// lambda.Start never returns; backends are closed on SIGTERM, which the
	// runtime only sends when an extension is registered
	h := &handler{provider: a.Provider}
	lambda.StartWithOptions(h.Handle, lambda.WithEnableSIGTERM(closeOnShutdown(a, logger)))
	return nil
}

func closeOnShutdown(c io.Closer, logger zerolog.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close backends")
			return
		}
		logger.Info().Msg("backends closed")
	}
}

type handler struct {
	provider billing.Provider
}

// Handle answers one API Gateway request
func (h *handler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	switch req.RequestContext.HTTP.Method {
	case http.MethodOptions:
		return h.respond(http.StatusNoContent, nil), nil
	case http.MethodPost:
	default:
		resp := h.errorResponse(http.StatusMethodNotAllowed, "method not allowed")
		resp.Headers["Allow"] = "POST, OPTIONS"
		return resp, nil
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return h.errorResponse(http.StatusBadRequest, "invalid body encoding"), nil
		}
		body = decoded
	}
	if int64(len(body)) > billing.MaxWebhookBodyBytes {
		return h.errorResponse(http.StatusRequestEntityTooLarge, billing.ErrPayloadTooLarge.Error()), nil
	}
	if len(body) == 0 {
		return h.errorResponse(http.StatusBadRequest, "empty body"), nil
	}

	result := h.provider.Process(ctx, body, header(req.Headers, h.provider.SignatureHeader()))
	return h.respond(result.StatusCode, result.Body), nil
}

func (h *handler) respond(status int, body []byte) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    h.provider.ResponseHeaders(),
		Body:       string(body),
	}
}

func (h *handler) errorResponse(status int, msg string) events.APIGatewayV2HTTPResponse {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return h.respond(status, body)
}

// API Gateway lowercases header names
func header(headers map[string]string, name string) string {
	if v, ok := headers[strings.ToLower(name)]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
