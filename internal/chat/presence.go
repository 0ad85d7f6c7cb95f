package chat

import (
	"sort"
	"time"

	"github.com/velvetpages/chatroom-api/internal/models"
)

// PresenceTransition records one status change observed by the tracker.
type PresenceTransition struct {
	Nickname string                `json:"nickname"`
	From     models.PresenceStatus `json:"from"`
	To       models.PresenceStatus `json:"to"`
}

type presenceEntry struct {
	status       models.PresenceStatus
	lastActivity time.Time
}

// PresenceTracker derives a user's status from elapsed idle time. Activity
// revives away and offline users to online; a manually chosen busy status is
// sticky until the offline timer fires or the user changes it. Not safe for
// concurrent use.
type PresenceTracker struct {
	entries     map[string]*presenceEntry
	awayIdle    time.Duration
	offlineIdle time.Duration
}

// NewPresenceTracker builds a tracker with the given idle thresholds.
func NewPresenceTracker(awayIdle, offlineIdle time.Duration) *PresenceTracker {
	return &PresenceTracker{
		entries:     make(map[string]*presenceEntry),
		awayIdle:    awayIdle,
		offlineIdle: offlineIdle,
	}
}

// Track starts following a user with their login-time status. A tracked
// nickname is replaced in place.
func (t *PresenceTracker) Track(nickname string, status models.PresenceStatus, at time.Time) {
	if status == "" {
		status = models.StatusOnline
	}
	t.entries[nickname] = &presenceEntry{status: status, lastActivity: at}
}

// Forget stops following a user.
func (t *PresenceTracker) Forget(nickname string) {
	delete(t.entries, nickname)
}

// Status returns the tracked status for a nickname.
func (t *PresenceTracker) Status(nickname string) (models.PresenceStatus, bool) {
	entry, ok := t.entries[nickname]
	if !ok {
		return "", false
	}
	return entry.status, true
}

// SetStatus applies an explicitly chosen status, overriding any inferred one.
func (t *PresenceTracker) SetStatus(nickname string, status models.PresenceStatus) {
	if entry, ok := t.entries[nickname]; ok {
		entry.status = status
	}
}

// RecordActivity notes a user interaction. Away and offline users come back
// online; a manual busy state persists. Unknown nicknames are a no-op.
func (t *PresenceTracker) RecordActivity(nickname string, at time.Time) (PresenceTransition, bool) {
	entry, ok := t.entries[nickname]
	if !ok {
		return PresenceTransition{}, false
	}
	entry.lastActivity = at

	if entry.status == models.StatusAway || entry.status == models.StatusOffline {
		from := entry.status
		entry.status = models.StatusOnline
		return PresenceTransition{Nickname: nickname, From: from, To: models.StatusOnline}, true
	}
	return PresenceTransition{}, false
}

// Tick re-evaluates the idle timers for every tracked user and returns the
// transitions that fired, ordered by nickname. The away timer only demotes
// users who are online; the offline timer fires regardless of current state.
func (t *PresenceTracker) Tick(now time.Time) []PresenceTransition {
	var transitions []PresenceTransition
	for nickname, entry := range t.entries {
		idle := now.Sub(entry.lastActivity)
		switch {
		case idle > t.offlineIdle && entry.status != models.StatusOffline:
			transitions = append(transitions, PresenceTransition{Nickname: nickname, From: entry.status, To: models.StatusOffline})
			entry.status = models.StatusOffline
		case idle > t.awayIdle && entry.status == models.StatusOnline:
			transitions = append(transitions, PresenceTransition{Nickname: nickname, From: entry.status, To: models.StatusAway})
			entry.status = models.StatusAway
		}
	}
	sort.Slice(transitions, func(i, j int) bool { return transitions[i].Nickname < transitions[j].Nickname })
	return transitions
}
