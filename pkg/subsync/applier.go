package subsync

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	outcomeApplied = "applied"
	outcomeNoMatch = "no_match"
	outcomeError   = "error"
)

// ApplierConfig configures an Applier
type ApplierConfig struct {
	// Store is the user store mutations are written to (required)
	Store UserStore

	// Logger is optional; defaults to NoopLogger
	Logger Logger

	// Metrics is optional; defaults to NoopMetrics
	Metrics Metrics
}

// Applier executes entitlement mutations against a UserStore.
// Each Apply performs exactly one store update and never retries.
type Applier struct {
	store   UserStore
	logger  Logger
	metrics Metrics
}

// NewApplier creates an Applier
func NewApplier(config ApplierConfig) (*Applier, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	return &Applier{
		store:   config.Store,
		logger:  config.Logger,
		metrics: config.Metrics,
	}, nil
}

// Apply writes m to the store and returns the number of records updated.
//
// A store failure is returned wrapped in ErrStore. A successful update that
// matched no record is returned as ErrNoMatchingUser so callers can tell a
// provisioning race apart from a broken store.
func (a *Applier) Apply(ctx context.Context, m EntitlementMutation) (int64, error) {
	if m.Key.Value == "" {
		return 0, fmt.Errorf("%w: empty %s lookup value", ErrMissingRequiredField, m.Key.Kind)
	}
	if !m.Match.Valid() {
		return 0, fmt.Errorf("invalid match mode %q", m.Match)
	}

	start := time.Now()
	affected, err := a.store.UpdateEntitlement(ctx, m.Key, m.Match, m.Fields)
	a.metrics.RecordApplyDuration(m.Key.Kind, time.Since(start))

	if err != nil {
		a.metrics.RecordApply(m.Key.Kind, outcomeError)
		a.logger.Error("entitlement update failed",
			Field{"lookup", string(m.Key.Kind)},
			Field{"match", string(m.Match)},
			Field{"error", err.Error()},
		)
		if errors.Is(err, ErrStore) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", ErrStore, err)
	}

	if affected == 0 {
		a.metrics.RecordApply(m.Key.Kind, outcomeNoMatch)
		a.logger.Warn("entitlement update matched no user",
			Field{"lookup", string(m.Key.Kind)},
			Field{"match", string(m.Match)},
			Field{"plan", m.Fields.Plan},
		)
		return 0, fmt.Errorf("%w: %s", ErrNoMatchingUser, m.Key.Kind)
	}

	a.metrics.RecordApply(m.Key.Kind, outcomeApplied)
	a.logger.Info("entitlement updated",
		Field{"lookup", string(m.Key.Kind)},
		Field{"affected", affected},
		Field{"plan", m.Fields.Plan},
		Field{"status", string(m.Fields.SubscriptionStatus)},
		Field{"credits", m.Fields.Credits},
	)
	return affected, nil
}
