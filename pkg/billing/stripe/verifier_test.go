package stripe

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/subsync/pkg/subsync"
)

func TestVerify_Valid(t *testing.T) {
	body := eventJSON(t, "evt_1", "checkout.session.completed", checkoutObject("a@example.com", "cus_1"))

	p, err := Verify(body, sign(body, testSecret, time.Now()), testSecret)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", p.EventID)
	assert.Equal(t, subsync.EventCheckoutCompleted, p.Type)
	assert.Equal(t, time.Unix(1735689600, 0).UTC(), p.Created)
	assert.Contains(t, string(p.Object), "cs_test_1")
}

func TestVerify_Failures(t *testing.T) {
	body := eventJSON(t, "evt_1", "checkout.session.completed", checkoutObject("a@example.com", "cus_1"))
	valid := sign(body, testSecret, time.Now())
	tampered := bytes.Replace(body, []byte("a@example.com"), []byte("b@example.com"), 1)

	tests := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		want      error
	}{
		{"missing header", body, "", testSecret, subsync.ErrMissingSignature},
		{"blank header", body, "   ", testSecret, subsync.ErrMissingSignature},
		{"missing secret", body, valid, "", subsync.ErrMissingSecret},
		{"wrong secret", body, valid, "whsec_other", subsync.ErrInvalidSignature},
		{"tampered body", tampered, valid, testSecret, subsync.ErrInvalidSignature},
		{"garbage header", body, "not-a-signature", testSecret, subsync.ErrInvalidSignature},
		{"stale timestamp", body, sign(body, testSecret, time.Now().Add(-time.Hour)), testSecret, subsync.ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Verify(tt.body, tt.signature, tt.secret)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerify_SignedButNotAnEvent(t *testing.T) {
	body := []byte("this is not json")
	_, err := Verify(body, sign(body, testSecret, time.Now()), testSecret)
	assert.ErrorIs(t, err, subsync.ErrInvalidPayload)

	empty := []byte(`{}`)
	_, err = Verify(empty, sign(empty, testSecret, time.Now()), testSecret)
	assert.ErrorIs(t, err, subsync.ErrInvalidPayload)
}

func TestParseUnverified(t *testing.T) {
	body := eventJSON(t, "evt_2", "customer.subscription.deleted", subscriptionObject("cus_1", "canceled", "price_gold"))

	p, err := ParseUnverified(body)
	require.NoError(t, err)
	assert.Equal(t, "evt_2", p.EventID)
	assert.Equal(t, subsync.EventSubscriptionDeleted, p.Type)

	_, err = ParseUnverified([]byte(`{"id":"evt_3"}`))
	assert.ErrorIs(t, err, subsync.ErrInvalidPayload)

	_, err = ParseUnverified([]byte(`not json`))
	assert.ErrorIs(t, err, subsync.ErrInvalidPayload)
}
