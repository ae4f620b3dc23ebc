package viewstate

import "time"

// DefaultNoticeTTL is how long a toast stays visible.
const DefaultNoticeTTL = 5 * time.Second

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notice is a transient, auto-dismissed user notification.
type Notice struct {
	ID        uint64    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notify queues a notice that expires after the store's TTL.
func (s *Store) Notify(level Level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneNoticesLocked()
	s.noticeSeq++
	s.notices = append(s.notices, Notice{
		ID:        s.noticeSeq,
		Level:     level,
		Message:   msg,
		ExpiresAt: s.now().Add(s.noticeTTL),
	})
}

// Notices returns the notices that have not expired yet.
func (s *Store) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeNoticesLocked()
}

// activeNoticesLocked prunes and copies the live notices. Caller holds s.mu.
func (s *Store) activeNoticesLocked() []Notice {
	s.pruneNoticesLocked()
	out := make([]Notice, len(s.notices))
	copy(out, s.notices)
	return out
}

// pruneNoticesLocked drops expired notices. Caller holds s.mu.
func (s *Store) pruneNoticesLocked() {
	now := s.now()
	active := s.notices[:0]
	for _, n := range s.notices {
		if now.Before(n.ExpiresAt) {
			active = append(active, n)
		}
	}
	clear(s.notices[len(active):])
	s.notices = active
}
