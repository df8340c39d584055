package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(status Status) Record {
	now := time.Now()
	return Record{
		ID:             "test",
		Status:         status,
		Ready:          status == StatusReady,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

func TestApplyForwardPath(t *testing.T) {
	rec := newRecord(StatusInitializing)
	now := time.Now()

	require.True(t, apply(&rec, Event{Kind: EventQRIssued, Challenge: "desafio-1"}, now))
	assert.Equal(t, StatusQRPending, rec.Status)
	assert.Equal(t, "desafio-1", rec.QRChallenge)
	assert.False(t, rec.Ready)

	require.True(t, apply(&rec, Event{Kind: EventAuthenticated}, now))
	assert.Equal(t, StatusAuthenticated, rec.Status)
	assert.Empty(t, rec.QRChallenge)

	require.True(t, apply(&rec, Event{Kind: EventReady}, now))
	assert.Equal(t, StatusReady, rec.Status)
	assert.True(t, rec.Ready)
}

func TestApplyQRRefresh(t *testing.T) {
	rec := newRecord(StatusQRPending)
	rec.QRChallenge = "desafio-1"

	require.True(t, apply(&rec, Event{Kind: EventQRIssued, Challenge: "desafio-2"}, time.Now()))
	assert.Equal(t, StatusQRPending, rec.Status)
	assert.Equal(t, "desafio-2", rec.QRChallenge)
}

func TestApplyRejectsRegression(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		evt     Event
	}{
		{"qr atrasado depois de ready", StatusReady, Event{Kind: EventQRIssued, Challenge: "x"}},
		{"authenticated depois de ready", StatusReady, Event{Kind: EventAuthenticated}},
		{"qr depois de authenticated", StatusAuthenticated, Event{Kind: EventQRIssued, Challenge: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecord(tt.current)
			before := rec

			assert.False(t, apply(&rec, tt.evt, time.Now()))
			assert.Equal(t, before.Status, rec.Status)
			assert.Equal(t, before.Ready, rec.Ready)
			assert.Equal(t, before.LastActivityAt, rec.LastActivityAt, "evento rejeitado não marca atividade")
		})
	}
}

func TestApplyDisconnectedAcceptsProgress(t *testing.T) {
	rec := newRecord(StatusDisconnected)

	require.True(t, apply(&rec, Event{Kind: EventReady}, time.Now()))
	assert.Equal(t, StatusReady, rec.Status)
	assert.True(t, rec.Ready)
}

func TestApplyAuthFailedBlocksProgress(t *testing.T) {
	rec := newRecord(StatusAuthFailed)

	assert.False(t, apply(&rec, Event{Kind: EventReady}, time.Now()))
	assert.False(t, apply(&rec, Event{Kind: EventQRIssued, Challenge: "x"}, time.Now()))
	assert.Equal(t, StatusAuthFailed, rec.Status)
}

func TestApplyFailureEventsAlwaysAccepted(t *testing.T) {
	rec := newRecord(StatusReady)

	require.True(t, apply(&rec, Event{Kind: EventAuthFailed, Reason: "logged out"}, time.Now()))
	assert.Equal(t, StatusAuthFailed, rec.Status)
	assert.False(t, rec.Ready)
	assert.Equal(t, "logged out", rec.Error)

	rec = newRecord(StatusReady)
	require.True(t, apply(&rec, Event{Kind: EventDisconnected, Reason: "connection closed"}, time.Now()))
	assert.Equal(t, StatusDisconnected, rec.Status)
	assert.False(t, rec.Ready)
}

// O desafio de QR só pode existir enquanto o status for qr_pending,
// independente da sequência de eventos aplicada.
func TestQRChallengeInvariant(t *testing.T) {
	events := []Event{
		{Kind: EventQRIssued, Challenge: "a"},
		{Kind: EventAuthenticated},
		{Kind: EventQRIssued, Challenge: "b"},
		{Kind: EventDisconnected, Reason: "drop"},
		{Kind: EventQRIssued, Challenge: "c"},
		{Kind: EventReady},
		{Kind: EventAuthFailed, Reason: "boom"},
		{Kind: EventStateChanged, RawState: "connected"},
	}

	rec := newRecord(StatusInitializing)
	for _, evt := range events {
		apply(&rec, evt, time.Now())
		if rec.Status != StatusQRPending {
			assert.Empty(t, rec.QRChallenge, "desafio vazando no status %s", rec.Status)
		}
	}
}

func TestApplyReadyImpliesStatusReady(t *testing.T) {
	statuses := []Status{StatusInitializing, StatusQRPending, StatusAuthenticated, StatusReady, StatusAuthFailed, StatusDisconnected}
	kinds := []Event{
		{Kind: EventQRIssued, Challenge: "x"},
		{Kind: EventAuthenticated},
		{Kind: EventReady},
		{Kind: EventAuthFailed, Reason: "r"},
		{Kind: EventDisconnected, Reason: "r"},
		{Kind: EventStateChanged, RawState: "s"},
	}

	for _, st := range statuses {
		for _, evt := range kinds {
			rec := newRecord(st)
			apply(&rec, evt, time.Now())
			if rec.Ready {
				assert.Equal(t, StatusReady, rec.Status)
			}
		}
	}
}
