package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velvetpages/chatroom-api/internal/models"
)

var presenceEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestTracker() *PresenceTracker {
	return NewPresenceTracker(5*time.Minute, 15*time.Minute)
}

func TestTrackDefaultsToOnline(t *testing.T) {
	tracker := newTestTracker()
	tracker.Track("Alice", "", presenceEpoch)

	status, ok := tracker.Status("Alice")
	require.True(t, ok)
	require.Equal(t, models.StatusOnline, status)
}

func TestOnlineUserGoesAwayAfterIdleThreshold(t *testing.T) {
	tracker := newTestTracker()
	tracker.Track("Alice", models.StatusOnline, presenceEpoch)

	require.Empty(t, tracker.Tick(presenceEpoch.Add(5*time.Minute)))

	transitions := tracker.Tick(presenceEpoch.Add(5*time.Minute + time.Second))
	require.Len(t, transitions, 1)
	require.Equal(t, PresenceTransition{Nickname: "Alice", From: models.StatusOnline, To: models.StatusAway}, transitions[0])
}

func TestOfflineTimerFiresRegardlessOfState(t *testing.T) {
	tracker := newTestTracker()
	tracker.Track("Alice", models.StatusBusy, presenceEpoch)
	tracker.Track("Bob", models.StatusOnline, presenceEpoch)

	transitions := tracker.Tick(presenceEpoch.Add(15*time.Minute + time.Second))
	require.Len(t, transitions, 2)
	require.Equal(t, models.StatusOffline, transitions[0].To)
	require.Equal(t, models.StatusOffline, transitions[1].To)
	require.Equal(t, "Alice", transitions[0].Nickname)
	require.Equal(t, "Bob", transitions[1].Nickname)
}

func TestAwayTimerOnlyDemotesOnlineUsers(t *testing.T) {
	tracker := newTestTracker()
	tracker.Track("Alice", models.StatusBusy, presenceEpoch)

	require.Empty(t, tracker.Tick(presenceEpoch.Add(6*time.Minute)))

	status, _ := tracker.Status("Alice")
	require.Equal(t, models.StatusBusy, status)
}

func TestActivityRevivesAwayAndOfflineUsers(t *testing.T) {
	tracker := newTestTracker()
	tracker.Track("Alice", models.StatusAway, presenceEpoch)
	tracker.Track("Bob", models.StatusOffline, presenceEpoch)

	transition, changed := tracker.RecordActivity("Alice", presenceEpoch.Add(time.Minute))
	require.True(t, changed)
	require.Equal(t, models.StatusOnline, transition.To)
	require.Equal(t, models.StatusAway, transition.From)

	transition, changed = tracker.RecordActivity("Bob", presenceEpoch.Add(time.Minute))
	require.True(t, changed)
	require.Equal(t, models.StatusOnline, transition.To)
}

func TestActivityDoesNotClearManualBusy(t *testing.T) {
	tracker := newTestTracker()
	tracker.Track("Alice", models.StatusBusy, presenceEpoch)

	_, changed := tracker.RecordActivity("Alice", presenceEpoch.Add(time.Minute))
	require.False(t, changed)

	status, _ := tracker.Status("Alice")
	require.Equal(t, models.StatusBusy, status)
}

func TestActivityResetsIdleTimers(t *testing.T) {
	tracker := newTestTracker()
	tracker.Track("Alice", models.StatusOnline, presenceEpoch)

	tracker.RecordActivity("Alice", presenceEpoch.Add(4*time.Minute))

	// 5m+ after epoch but under 5m since the last activity.
	require.Empty(t, tracker.Tick(presenceEpoch.Add(8*time.Minute)))

	transitions := tracker.Tick(presenceEpoch.Add(10*time.Minute))
	require.Len(t, transitions, 1)
	require.Equal(t, models.StatusAway, transitions[0].To)
}

func TestRecordActivityUnknownUserIsNoop(t *testing.T) {
	tracker := newTestTracker()

	_, changed := tracker.RecordActivity("Ghost", presenceEpoch)
	require.False(t, changed)
}

func TestForgetStopsTracking(t *testing.T) {
	tracker := newTestTracker()
	tracker.Track("Alice", models.StatusOnline, presenceEpoch)
	tracker.Forget("Alice")

	_, ok := tracker.Status("Alice")
	require.False(t, ok)
	require.Empty(t, tracker.Tick(presenceEpoch.Add(time.Hour)))
}
