package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapProviderStatus(t *testing.T) {
	cases := []struct {
		in     string
		want   PaymentStatus
		wantOK bool
	}{
		{"PAID", PaymentPaid, true},
		{"SETTLED", PaymentPaid, true},
		{"EXPIRED", PaymentExpired, true},
		{"FAILED", PaymentFailed, true},
		{"PENDING", "", false},
		{"paid", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := MapProviderStatus(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.wantOK, ok, tc.in)
	}
}

func TestEnrollmentStatus_Active(t *testing.T) {
	assert.True(t, EnrollmentPending.Active())
	assert.True(t, EnrollmentConfirmed.Active())
	assert.False(t, EnrollmentCancelled.Active())
	assert.False(t, EnrollmentCompleted.Active())
	assert.False(t, EnrollmentWaitingList.Active())
}

func TestPaymentStatus_FinalAndRetryable(t *testing.T) {
	assert.True(t, PaymentPaid.Final())
	assert.True(t, PaymentRefunded.Final())
	assert.False(t, PaymentPending.Final())
	assert.True(t, PaymentFailed.Retryable())
	assert.True(t, PaymentExpired.Retryable())
	assert.False(t, PaymentPaid.Retryable())
}

func TestDisplayTables(t *testing.T) {
	assert.Equal(t, "Confirmed", EnrollmentDisplay(EnrollmentConfirmed).Label)
	assert.Equal(t, "success", PaymentDisplay(PaymentPaid).Color)
	assert.Equal(t, "Rejected", WebhookDisplay(WebhookInvalid).Label)
	assert.Equal(t, "Unknown", PaymentDisplay(PaymentStatus("bogus")).Label)
	assert.False(t, PaymentStatus("bogus").Valid())
	assert.True(t, EnrollmentWaitingList.Valid())

	// every enum value has an entry with a distinct weight
	seen := map[int]bool{}
	for _, s := range []EnrollmentStatus{EnrollmentPending, EnrollmentConfirmed, EnrollmentCancelled, EnrollmentCompleted, EnrollmentWaitingList} {
		w := EnrollmentDisplay(s).Weight
		assert.False(t, seen[w], "duplicate weight %d", w)
		seen[w] = true
	}
}
