package store_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/standin/internal/store"
)

const (
	threshold     = 2 * time.Minute
	maxInactivity = 6 * time.Hour
	recentWindow  = 5 * time.Minute
	selfThread    = "+15550000000"
)

func newTestStore(now time.Time) *store.Store {
	return store.New(0, 0, store.WithClock(func() time.Time { return now }))
}

// seedThread creates a conversation with the given own/counterpart message ages.
func seedThread(s *store.Store, id string, now time.Time, ownAge, counterpartAge time.Duration) {
	s.RecordOwnMessage(id, "my last message", now.Add(-ownAge), false)
	s.RecordCounterpartMessage(id, "are you there?", now.Add(-counterpartAge))
}

func TestGetOrCreate(t *testing.T) {
	s := newTestStore(time.Now())

	conv := s.GetOrCreate("+15551234567")
	assert.Equal(t, "+15551234567", conv.ID)
	assert.Equal(t, store.StateIdle, conv.State)
	assert.Empty(t, conv.RecentExchange)
	assert.Empty(t, conv.OwnSamples)
	assert.True(t, conv.LastOwnMessageAt.IsZero())
	assert.False(t, conv.HasCounterpartActivity())

	// Same record on repeat lookup.
	s.RecordCounterpartMessage("+15551234567", "hi", time.Now())
	again := s.GetOrCreate("+15551234567")
	assert.Len(t, again.RecentExchange, 1)
	assert.Len(t, s.All(), 1)
}

func TestMutatorsRequireExistingConversation(t *testing.T) {
	s := newTestStore(time.Now())

	assert.Error(t, s.SetAwaitingApproval("+15559999999"))
	assert.Error(t, s.EnterActive("+15559999999"))
	assert.Error(t, s.LeaveActive("+15559999999"))
	_, err := s.IncrementTurn("+15559999999")
	assert.Error(t, err)
}

func TestUserMessageReclaimsControl(t *testing.T) {
	// P1: a non-automated own message forces Idle and zeroes the turn
	// counter, whatever the session looked like.
	now := time.Now()
	s := newTestStore(now)
	id := "+15551234567"

	seedThread(s, id, now, threshold, time.Minute)
	require.NoError(t, s.SetAwaitingApproval(id))
	require.NoError(t, s.EnterActive(id))
	for range 2 {
		_, err := s.IncrementTurn(id)
		require.NoError(t, err)
	}

	s.RecordOwnMessage(id, "stop, I got it", now, false)

	conv, ok := s.Snapshot(id)
	require.True(t, ok)
	assert.Equal(t, store.StateIdle, conv.State)
	assert.Zero(t, conv.TurnsSentThisSession)
	assert.Equal(t, now, conv.LastOwnMessageAt)
}

func TestUserMessageClearsAwaitingApproval(t *testing.T) {
	now := time.Now()
	s := newTestStore(now)
	id := "+15551234567"

	seedThread(s, id, now, threshold, time.Minute)
	require.NoError(t, s.SetAwaitingApproval(id))

	s.RecordOwnMessage(id, "never mind", now, false)

	conv, _ := s.Snapshot(id)
	assert.Equal(t, store.StateIdle, conv.State)
	_, pending := s.AwaitingApprovalThread()
	assert.False(t, pending)
}

func TestAutomatedSendDoesNotResetClock(t *testing.T) {
	// P2: automated sends are thread activity but never touch the
	// inactivity clock or the style samples.
	now := time.Now()
	s := newTestStore(now)
	id := "+15551234567"

	lastOwn := now.Add(-10 * time.Minute)
	s.RecordOwnMessage(id, "real message", lastOwn, false)
	require.NoError(t, s.EnterActive(id))

	s.RecordOwnMessage(id, "automated reply", now, true)

	conv, _ := s.Snapshot(id)
	assert.Equal(t, lastOwn, conv.LastOwnMessageAt)
	assert.Equal(t, store.StateActive, conv.State)
	assert.Len(t, conv.OwnSamples, 1)
	assert.Len(t, conv.RecentExchange, 2)
	assert.True(t, conv.RecentExchange[1].Automated)
}

func TestListEligibleForOffer(t *testing.T) {
	now := time.Now()
	s := newTestStore(now)

	seedThread(s, "+15551111111", now, 125*time.Second, 10*time.Second)

	eligible := s.ListEligibleForOffer(threshold, maxInactivity, recentWindow, selfThread)
	require.Len(t, eligible, 1)
	assert.Equal(t, "+15551111111", eligible[0].ID)
}

func TestListEligibleSkipsSelfThread(t *testing.T) {
	now := time.Now()
	s := newTestStore(now)

	seedThread(s, selfThread, now, 125*time.Second, 10*time.Second)

	assert.Empty(t, s.ListEligibleForOffer(threshold, maxInactivity, recentWindow, selfThread))
}

func TestListEligibleSkipsBusyStates(t *testing.T) {
	// P3: AwaitingApproval and Active conversations are never selected.
	now := time.Now()

	for _, state := range []store.AutomationState{store.StateAwaitingApproval, store.StateActive} {
		t.Run(string(state), func(t *testing.T) {
			s := newTestStore(now)
			seedThread(s, "+15551111111", now, 125*time.Second, 10*time.Second)

			if state == store.StateAwaitingApproval {
				require.NoError(t, s.SetAwaitingApproval("+15551111111"))
			} else {
				require.NoError(t, s.EnterActive("+15551111111"))
			}

			assert.Empty(t, s.ListEligibleForOffer(threshold, maxInactivity, recentWindow, selfThread))
		})
	}
}

func TestListEligibleInactivityBounds(t *testing.T) {
	// P7: both inactivity bounds are inclusive, to the millisecond.
	now := time.Now()

	cases := []struct {
		name     string
		ownAge   time.Duration
		eligible bool
	}{
		{"exactly at threshold", threshold, true},
		{"one ms below threshold", threshold - time.Millisecond, false},
		{"exactly at max", maxInactivity, true},
		{"one ms past max", maxInactivity + time.Millisecond, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(now)
			seedThread(s, "+15551111111", now, tc.ownAge, 10*time.Second)

			eligible := s.ListEligibleForOffer(threshold, maxInactivity, recentWindow, selfThread)
			if tc.eligible {
				assert.Len(t, eligible, 1)
			} else {
				assert.Empty(t, eligible)
			}
		})
	}
}

func TestListEligibleRequiresRecentCounterpart(t *testing.T) {
	now := time.Now()

	t.Run("no counterpart message", func(t *testing.T) {
		s := newTestStore(now)
		s.RecordOwnMessage("+15551111111", "hello?", now.Add(-threshold), false)
		assert.Empty(t, s.ListEligibleForOffer(threshold, maxInactivity, recentWindow, selfThread))
	})

	t.Run("counterpart silent past window", func(t *testing.T) {
		s := newTestStore(now)
		seedThread(s, "+15551111111", now, threshold, recentWindow)
		assert.Empty(t, s.ListEligibleForOffer(threshold, maxInactivity, recentWindow, selfThread))
	})
}

func TestListEligibleCoolingDown(t *testing.T) {
	now := time.Now()

	t.Run("fresh counterpart activity after deactivation", func(t *testing.T) {
		s := newTestStore(now)
		id := "+15551111111"
		s.RecordOwnMessage(id, "hello", now.Add(-threshold), false)
		require.NoError(t, s.EnterActive(id))
		require.NoError(t, s.LeaveActive(id))
		s.RecordCounterpartMessage(id, "you still there?", now.Add(time.Second))

		eligible := s.ListEligibleForOffer(threshold, maxInactivity, recentWindow, selfThread)
		assert.Len(t, eligible, 1)
	})

	t.Run("no activity since deactivation", func(t *testing.T) {
		s := newTestStore(now)
		id := "+15551111111"
		seedThread(s, id, now, threshold, time.Minute)
		require.NoError(t, s.EnterActive(id))
		require.NoError(t, s.LeaveActive(id))

		assert.Empty(t, s.ListEligibleForOffer(threshold, maxInactivity, recentWindow, selfThread))
	})
}

func TestLeaveAndAbortActive(t *testing.T) {
	now := time.Now()
	s := newTestStore(now)
	id := "+15551111111"
	s.RecordOwnMessage(id, "hello", now.Add(-time.Hour), false)

	require.NoError(t, s.EnterActive(id))
	_, err := s.IncrementTurn(id)
	require.NoError(t, err)
	require.NoError(t, s.LeaveActive(id))

	conv, _ := s.Snapshot(id)
	assert.Equal(t, store.StateCoolingDown, conv.State)
	assert.Zero(t, conv.TurnsSentThisSession)
	assert.Equal(t, now, conv.DeactivatedAt)

	// A failed session aborts straight to Idle.
	require.NoError(t, s.EnterActive(id))
	require.NoError(t, s.AbortActive(id))

	conv, _ = s.Snapshot(id)
	assert.Equal(t, store.StateIdle, conv.State)
}

func TestExpireCooldowns(t *testing.T) {
	now := time.Now()
	current := now
	s := store.New(0, 0, store.WithClock(func() time.Time { return current }))
	id := "+15551111111"

	s.RecordOwnMessage(id, "hello", now.Add(-time.Hour), false)
	require.NoError(t, s.EnterActive(id))
	require.NoError(t, s.LeaveActive(id))

	grace := 3 * time.Minute
	assert.Zero(t, s.ExpireCooldowns(grace))

	current = now.Add(grace + time.Second)
	assert.Equal(t, 1, s.ExpireCooldowns(grace))

	conv, _ := s.Snapshot(id)
	assert.Equal(t, store.StateIdle, conv.State)
}

func TestHistoryCaps(t *testing.T) {
	now := time.Now()
	s := store.New(3, 5, store.WithClock(func() time.Time { return now }))
	id := "+15551111111"

	for i := range 10 {
		s.RecordOwnMessage(id, fmt.Sprintf("own %d", i), now.Add(time.Duration(i)*time.Second), false)
		s.RecordCounterpartMessage(id, fmt.Sprintf("theirs %d", i), now.Add(time.Duration(i)*time.Second))
	}

	conv, _ := s.Snapshot(id)
	assert.Len(t, conv.OwnSamples, 3)
	assert.Len(t, conv.RecentExchange, 5)

	// Most recent entries are retained, oldest dropped.
	assert.Equal(t, "own 9", conv.OwnSamples[2].Text)
	assert.Equal(t, "theirs 9", conv.RecentExchange[4].Text)
}

func TestAwaitingApprovalThread(t *testing.T) {
	now := time.Now()
	s := newTestStore(now)

	_, pending := s.AwaitingApprovalThread()
	assert.False(t, pending)

	seedThread(s, "+15551111111", now, threshold, time.Minute)
	require.NoError(t, s.SetAwaitingApproval("+15551111111"))

	id, pending := s.AwaitingApprovalThread()
	assert.True(t, pending)
	assert.Equal(t, "+15551111111", id)

	require.NoError(t, s.ClearAwaitingApproval("+15551111111"))
	_, pending = s.AwaitingApprovalThread()
	assert.False(t, pending)
}
