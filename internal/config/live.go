package config

import "sync/atomic"

// Live holds the current settings snapshot. Readers get an immutable pointer;
// writers replace it as a whole.
type Live struct {
	current atomic.Pointer[Settings]
}

// NewLive creates a Live holder seeded with the initial settings.
func NewLive(initial Settings) *Live {
	l := &Live{}
	l.current.Store(&initial)
	return l
}

// Snapshot returns the current settings. Callers must not modify it.
func (l *Live) Snapshot() *Settings {
	return l.current.Load()
}

// Swap installs next and returns the previous snapshot.
func (l *Live) Swap(next *Settings) *Settings {
	return l.current.Swap(next)
}

// Changed reports whether a change between the two snapshots requires
// the webhook registration to be refreshed. Only the bot connection counts:
// the webhook URL comes from the static PUBLIC_URL.
func Changed(old, next *Settings) bool {
	if next == nil {
		return false
	}
	if old == nil {
		return true
	}
	return old.Enabled != next.Enabled || old.BotToken != next.BotToken
}
