package subsync_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/subsync/pkg/subsync"
	"github.com/mihaimyh/subsync/storage/memory"
)

type logEntry struct {
	level  string
	msg    string
	fields []subsync.Field
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, fields []subsync.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) Debug(msg string, fields ...subsync.Field) { l.record("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...subsync.Field)  { l.record("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...subsync.Field)  { l.record("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...subsync.Field) { l.record("error", msg, fields) }

func (l *recordingLogger) levels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.level)
	}
	return out
}

func (l *recordingLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if strings.Contains(e.msg, s) {
			return true
		}
		for _, f := range e.fields {
			if strings.Contains(fmt.Sprint(f.Value), s) {
				return true
			}
		}
	}
	return false
}

type countingMetrics struct {
	subsync.NoopMetrics
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *countingMetrics) RecordApply(lookup subsync.LookupKind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[string(lookup)+"/"+outcome]++
}

type harness struct {
	store    *memory.Storage
	resolver *subsync.Resolver
	applier  *subsync.Applier
	logger   *recordingLogger
	metrics  *countingMetrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   memory.New(),
		logger:  &recordingLogger{},
		metrics: &countingMetrics{},
	}
	h.resolver = newTestResolver(t, "")

	applier, err := subsync.NewApplier(subsync.ApplierConfig{
		Store:   h.store,
		Logger:  h.logger,
		Metrics: h.metrics,
	})
	require.NoError(t, err)
	h.applier = applier
	return h
}

func (h *harness) reconcile(t *testing.T, ev subsync.Event) (int64, error) {
	t.Helper()
	m, err := h.resolver.Resolve(ev)
	require.NoError(t, err)
	return h.applier.Apply(context.Background(), m)
}

func TestApply_CheckoutActivatesPlan(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Insert(subsync.UserRecord{ID: "u1", Email: "Alice@Example.com"})
	require.NoError(t, err)

	n, err := h.reconcile(t, subsync.CheckoutCompleted{
		SessionID:     "cs_1",
		CustomerID:    "cus_1",
		CustomerEmail: "alice@example.com",
		PriceID:       "price_gold",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, _ := h.store.Get("u1")
	assert.Equal(t, "cus_1", got.StripeCustomerID)
	assert.Equal(t, subsync.StatusActive, got.SubscriptionStatus)
	assert.Equal(t, "gold", got.Plan)
	assert.Equal(t, 3000, got.Credits)
	assert.Equal(t, fixedNow.UTC(), got.SubscriptionUpdatedAt)
	assert.Equal(t, 1, h.metrics.outcomes["email/applied"])
}

func TestApply_DeletionDowngradesToFree(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Insert(subsync.UserRecord{
		ID: "u1", Email: "a@example.com", StripeCustomerID: "cus_1",
		SubscriptionStatus: subsync.StatusActive, Plan: "elite", Credits: 500000,
	})
	require.NoError(t, err)

	_, err = h.reconcile(t, subsync.SubscriptionDeleted{CustomerID: "cus_1"})
	require.NoError(t, err)

	got, _ := h.store.Get("u1")
	assert.Equal(t, subsync.StatusInactive, got.SubscriptionStatus)
	assert.Equal(t, "free", got.Plan)
	assert.Equal(t, 1000, got.Credits)
	assert.Equal(t, "cus_1", got.StripeCustomerID)
}

func TestApply_UpdateChangesPlan(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Insert(subsync.UserRecord{
		ID: "u1", Email: "a@example.com", StripeCustomerID: "cus_1",
		SubscriptionStatus: subsync.StatusActive, Plan: "gold", Credits: 3000,
	})
	require.NoError(t, err)

	_, err = h.reconcile(t, subsync.SubscriptionUpdated{CustomerID: "cus_1", PriceID: "price_diamond", IsActive: true})
	require.NoError(t, err)

	got, _ := h.store.Get("u1")
	assert.Equal(t, "diamond", got.Plan)
	assert.Equal(t, 100000, got.Credits)
	assert.Equal(t, subsync.StatusActive, got.SubscriptionStatus)
}

func TestApply_Idempotent(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Insert(subsync.UserRecord{ID: "u1", Email: "a@example.com", StripeCustomerID: "cus_1"})
	require.NoError(t, err)

	ev := subsync.SubscriptionUpdated{CustomerID: "cus_1", PriceID: "price_elite", IsActive: true}
	_, err = h.reconcile(t, ev)
	require.NoError(t, err)
	first, _ := h.store.Get("u1")

	n, err := h.reconcile(t, ev)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	second, _ := h.store.Get("u1")

	assert.Equal(t, first, second)
}

func TestApply_OutOfOrderDeliveryIsLastWriteWins(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Insert(subsync.UserRecord{ID: "u1", Email: "a@example.com", StripeCustomerID: "cus_1"})
	require.NoError(t, err)

	// The deletion happened first at the provider but arrives before the update
	_, err = h.reconcile(t, subsync.SubscriptionUpdated{CustomerID: "cus_1", PriceID: "price_gold", IsActive: true})
	require.NoError(t, err)
	_, err = h.reconcile(t, subsync.SubscriptionDeleted{CustomerID: "cus_1"})
	require.NoError(t, err)

	got, _ := h.store.Get("u1")
	assert.Equal(t, "free", got.Plan)
	assert.Equal(t, subsync.StatusInactive, got.SubscriptionStatus)
}

func TestApply_NoMatchingUser(t *testing.T) {
	h := newHarness(t)

	n, err := h.reconcile(t, subsync.CheckoutCompleted{CustomerEmail: "ghost@example.com", PriceID: "price_gold"})
	assert.ErrorIs(t, err, subsync.ErrNoMatchingUser)
	assert.NotErrorIs(t, err, subsync.ErrStore)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, []string{"warn"}, h.logger.levels())
	assert.Equal(t, 1, h.metrics.outcomes["email/no_match"])
}

func TestApply_StoreError(t *testing.T) {
	dbErr := errors.New("connection refused")
	logger := &recordingLogger{}
	metrics := &countingMetrics{}
	applier, err := subsync.NewApplier(subsync.ApplierConfig{
		Store: subsync.UserStoreFunc(func(context.Context, subsync.LookupKey, subsync.MatchMode, subsync.EntitlementFields) (int64, error) {
			return 0, dbErr
		}),
		Logger:  logger,
		Metrics: metrics,
	})
	require.NoError(t, err)

	_, err = applier.Apply(context.Background(), subsync.EntitlementMutation{
		Key:   subsync.CustomerIDKey("cus_1"),
		Match: subsync.MatchExact,
	})
	assert.ErrorIs(t, err, subsync.ErrStore)
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, subsync.ErrNoMatchingUser)
	assert.Equal(t, []string{"error"}, logger.levels())
	assert.Equal(t, 1, metrics.outcomes["customer_id/error"])
}

func TestApply_DoesNotLogLookupValues(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Insert(subsync.UserRecord{ID: "u1", Email: "secret.person@example.com"})
	require.NoError(t, err)

	_, err = h.reconcile(t, subsync.CheckoutCompleted{CustomerID: "cus_hidden", CustomerEmail: "secret.person@example.com", PriceID: "price_gold"})
	require.NoError(t, err)
	_, _ = h.reconcile(t, subsync.SubscriptionDeleted{CustomerID: "cus_missing"})

	assert.False(t, h.logger.contains("secret.person"))
	assert.False(t, h.logger.contains("cus_missing"))
}

func TestApply_EmptyKeyValue(t *testing.T) {
	calls := 0
	applier, err := subsync.NewApplier(subsync.ApplierConfig{
		Store: subsync.UserStoreFunc(func(context.Context, subsync.LookupKey, subsync.MatchMode, subsync.EntitlementFields) (int64, error) {
			calls++
			return 1, nil
		}),
	})
	require.NoError(t, err)

	_, err = applier.Apply(context.Background(), subsync.EntitlementMutation{
		Key:   subsync.EmailKey(""),
		Match: subsync.MatchCaseInsensitive,
	})
	assert.ErrorIs(t, err, subsync.ErrMissingRequiredField)
	assert.Equal(t, 0, calls)
}

func TestApply_SingleStoreCall(t *testing.T) {
	calls := 0
	var gotFields subsync.EntitlementFields
	applier, err := subsync.NewApplier(subsync.ApplierConfig{
		Store: subsync.UserStoreFunc(func(_ context.Context, _ subsync.LookupKey, _ subsync.MatchMode, f subsync.EntitlementFields) (int64, error) {
			calls++
			gotFields = f
			return 2, nil
		}),
	})
	require.NoError(t, err)

	fields := subsync.EntitlementFields{
		SubscriptionStatus:    subsync.StatusActive,
		Plan:                  "gold",
		Credits:               3000,
		SubscriptionUpdatedAt: time.Unix(0, 0).UTC(),
	}
	n, err := applier.Apply(context.Background(), subsync.EntitlementMutation{
		Key:    subsync.CustomerIDKey("cus_1"),
		Match:  subsync.MatchExact,
		Fields: fields,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, calls)
	assert.Equal(t, fields, gotFields)
}

func TestNewApplier_RequiresStore(t *testing.T) {
	_, err := subsync.NewApplier(subsync.ApplierConfig{})
	assert.Error(t, err)
}
