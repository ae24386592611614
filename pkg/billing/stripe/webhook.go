package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mihaimyh/subsync/pkg/billing"
	"github.com/mihaimyh/subsync/pkg/billing/internal"
	"github.com/mihaimyh/subsync/pkg/subsync"
)

// SignatureHeader is the request header carrying the Stripe signature
const SignatureHeader = "Stripe-Signature"

var (
	receivedBody, _ = json.Marshal(internal.ReceivedBody{Received: true})

	corsHeaders = map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type, Stripe-Signature",
		"Access-Control-Allow-Methods": "POST, OPTIONS",
	}
)

// ResponseHeaders returns the headers set on every webhook response.
// Serverless entry points use it to mirror WebhookHandler.
func ResponseHeaders() map[string]string {
	h := map[string]string{
		"Content-Type":           "application/json",
		"Cache-Control":          "no-store",
		"X-Content-Type-Options": "nosniff",
	}
	for k, v := range corsHeaders {
		h[k] = v
	}
	return h
}

// SignatureHeader implements billing.Provider
func (p *Provider) SignatureHeader() string {
	return SignatureHeader
}

// ResponseHeaders implements billing.Provider
func (p *Provider) ResponseHeaders() map[string]string {
	return ResponseHeaders()
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	var inner http.Handler = http.HandlerFunc(p.handleWebhook)
	if p.rateLimiter != nil {
		inner = p.rateLimiter.Middleware(inner)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setResponseHeaders(w)

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodPost:
			inner.ServeHTTP(w, r)
		default:
			w.Header().Set("Allow", "POST, OPTIONS")
			_ = internal.WriteJSON(w, http.StatusMethodNotAllowed, internal.ErrorBody{Error: "method not allowed"})
		}
	})
}

func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := internal.ReadBodyStrict(w, r, billing.MaxWebhookBodyBytes)
	if err != nil {
		status := http.StatusBadRequest
		errorType := "invalid_payload"
		if errors.Is(err, billing.ErrPayloadTooLarge) {
			status = http.StatusRequestEntityTooLarge
			errorType = "payload_too_large"
		}
		p.metrics.RecordWebhookError(providerName, errorType)
		p.logger.Warn("stripe webhook body rejected", subsync.Field{Key: "error", Value: err.Error()})
		_ = internal.WriteJSON(w, status, internal.ErrorBody{Error: err.Error()})
		return
	}

	result := p.Process(r.Context(), body, r.Header.Get(SignatureHeader))
	_ = internal.WriteRaw(w, result.StatusCode, result.Body)
}

// Process verifies and reconciles one webhook delivery.
// Every failure is answered with 400 so Stripe redelivers, as is a duplicate
// whose first attempt has not finished. Ignored event types and deliveries
// already applied are answered with 200.
func (p *Provider) Process(ctx context.Context, body []byte, signature string) billing.Result {
	start := time.Now()

	payload, err := Verify(body, signature, p.webhookSecret)
	if err != nil {
		errorType := "auth_failed"
		if errors.Is(err, subsync.ErrInvalidPayload) {
			errorType = "invalid_payload"
		}
		p.metrics.RecordWebhookError(providerName, errorType)
		p.logger.Warn("stripe webhook verification failed", subsync.Field{Key: "error", Value: err.Error()})
		return failure("", err)
	}

	eventType := string(payload.Type)
	defer func() {
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(start))
	}()

	claimed := false
	var token string
	if p.guard != nil {
		state, tok, gerr := p.guard.Claim(ctx, payload.EventID)
		switch {
		case gerr != nil:
			// Fail open
			p.logger.Warn("event guard unavailable",
				subsync.Field{Key: "event_id", Value: payload.EventID},
				subsync.Field{Key: "error", Value: gerr.Error()},
			)
		case state == billing.EventDone:
			p.metrics.RecordWebhookEvent(providerName, eventType, "duplicate")
			p.logger.Info("stripe event already processed",
				subsync.Field{Key: "event_id", Value: payload.EventID},
				subsync.Field{Key: "event_type", Value: eventType},
			)
			return success(eventType)
		case state == billing.EventInProgress:
			// Not acknowledged: the attempt holding the claim may still fail
			p.metrics.RecordWebhookEvent(providerName, eventType, "in_progress")
			p.logger.Info("stripe event is being processed by another attempt",
				subsync.Field{Key: "event_id", Value: payload.EventID},
				subsync.Field{Key: "event_type", Value: eventType},
			)
			return failure(eventType, billing.ErrEventInProgress)
		default:
			claimed, token = true, tok
		}
	}

	err = p.reconcile(ctx, payload)
	if errors.Is(err, subsync.ErrUnrecognizedEventType) {
		if claimed {
			p.completeEvent(ctx, payload.EventID)
		}
		p.metrics.RecordWebhookEvent(providerName, eventType, "ignored")
		p.logger.Info("stripe event type ignored",
			subsync.Field{Key: "event_id", Value: payload.EventID},
			subsync.Field{Key: "event_type", Value: eventType},
		)
		return success(eventType)
	}
	if err != nil {
		if claimed {
			if rerr := p.guard.Release(ctx, payload.EventID, token); rerr != nil {
				p.logger.Error("failed to release event guard",
					subsync.Field{Key: "event_id", Value: payload.EventID},
					subsync.Field{Key: "error", Value: rerr.Error()},
				)
			}
		}
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, classifyError(err))
		p.logger.Error("stripe webhook processing failed",
			subsync.Field{Key: "event_id", Value: payload.EventID},
			subsync.Field{Key: "event_type", Value: eventType},
			subsync.Field{Key: "error", Value: err.Error()},
		)
		return failure(eventType, err)
	}

	if claimed {
		p.completeEvent(ctx, payload.EventID)
	}
	p.metrics.RecordWebhookEvent(providerName, eventType, "success")
	return success(eventType)
}

// completeEvent records a handled event. A failure only costs a re-apply on redelivery.
func (p *Provider) completeEvent(ctx context.Context, eventID string) {
	if err := p.guard.Complete(ctx, eventID); err != nil {
		p.logger.Error("failed to complete event guard",
			subsync.Field{Key: "event_id", Value: eventID},
			subsync.Field{Key: "error", Value: err.Error()},
		)
	}
}

func (p *Provider) reconcile(ctx context.Context, payload VerifiedPayload) error {
	ev, err := p.normalizer.Normalize(ctx, payload)
	if err != nil {
		return err
	}

	m, err := p.resolver.Resolve(ev)
	if err != nil {
		return err
	}

	affected, err := p.applier.Apply(ctx, m)
	if err != nil {
		return err
	}
	p.metrics.RecordPlanChange(providerName, m.Fields.Plan, string(m.Fields.SubscriptionStatus))

	if p.callback == nil {
		return nil
	}
	return p.callback(ctx, billing.WebhookEvent{
		EventID:        payload.EventID,
		Provider:       providerName,
		EventType:      string(payload.Type),
		EventTimestamp: payload.Created,
		Plan:           m.Fields.Plan,
		Status:         string(m.Fields.SubscriptionStatus),
		Credits:        m.Fields.Credits,
		Affected:       affected,
	})
}

func success(eventType string) billing.Result {
	return billing.Result{StatusCode: http.StatusOK, Body: receivedBody, EventType: eventType}
}

func failure(eventType string, err error) billing.Result {
	body, _ := json.Marshal(internal.ErrorBody{Error: publicMessage(err)})
	return billing.Result{StatusCode: http.StatusBadRequest, Body: body, EventType: eventType, Err: err}
}

// publicMessage keeps store and API internals out of responses
func publicMessage(err error) string {
	for _, sentinel := range []error{subsync.ErrStore, subsync.ErrLineItemLookup} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, subsync.ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, subsync.ErrMissingRequiredField):
		return "missing_field"
	case errors.Is(err, subsync.ErrLineItemLookup):
		return "line_item_lookup"
	case errors.Is(err, billing.ErrEventInProgress):
		return "in_progress"
	case errors.Is(err, subsync.ErrNoMatchingUser):
		return "no_matching_user"
	case errors.Is(err, subsync.ErrStore):
		return "store_error"
	default:
		return "processing_error"
	}
}

func setResponseHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	for k, v := range corsHeaders {
		w.Header().Set(k, v)
	}
}
