// Package session holds per-user conversation state and the store that
// tracks it across events.
package session

import "sync"

// Kind distinguishes audio from video content.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Candidate is a single search hit: a display title plus a reference the
// resolver can download.
type Candidate struct {
	Title string
	URL   string
}

// HistoryEntry records one completed download. Entries are append-only and
// ordered by completion time.
type HistoryEntry struct {
	Title     string
	SourceURL string
	Kind      Kind
}

// Session is the conversation state for one user. The zero value is a fresh,
// un-onboarded session.
type Session struct {
	// Language is "fr" or "en" once picked; empty until onboarding completes.
	// Rendering falls back to French while empty.
	Language string

	// Mode is the content type the user is currently downloading.
	Mode Kind

	// PendingQuery is the last free text, URL, or selected candidate URL.
	// Consumed by the quality step.
	PendingQuery string

	// SearchResults is the last candidate list shown to the user. Superseded
	// by the next search, cleared on mode selection.
	SearchResults []Candidate

	// History lists completed downloads in completion order.
	History []HistoryEntry
}

// State is the conversation phase derived from the session fields. There is
// no stored enum: the fields are the single source of truth and State just
// names the combination, mainly for logs and tests.
type State string

const (
	StateAwaitingLanguage  State = "awaiting_language"
	StateMainMenu          State = "main_menu"
	StateAwaitingModeInput State = "awaiting_mode_input"
	StateAwaitingSelection State = "awaiting_selection"
	StateAwaitingQuality   State = "awaiting_quality"
)

// State derives the conversation phase from the session fields.
func (s *Session) State() State {
	switch {
	case s.Language == "":
		return StateAwaitingLanguage
	case s.PendingQuery != "":
		return StateAwaitingQuality
	case len(s.SearchResults) > 0:
		return StateAwaitingSelection
	case s.Mode != "":
		return StateAwaitingModeInput
	default:
		return StateMainMenu
	}
}

// Store maps user identities to sessions. Implementations must create a
// default session on first access and must be safe for concurrent use across
// users. Per-user event ordering is the caller's responsibility (see the bot
// dispatch queue); the store only guarantees map-level consistency.
type Store interface {
	// Get returns the session for userID, creating a fresh one if absent.
	Get(userID int64) *Session
	// Put replaces the session for userID.
	Put(userID int64, s *Session)
	// Update applies fn to the session for userID (created if absent).
	Update(userID int64, fn func(*Session))
}

// MemoryStore is the in-process Store used in production. Sessions live for
// the lifetime of the process; there is no durability.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]*Session)}
}

// Get returns the session for userID, creating a default one if absent.
func (m *MemoryStore) Get(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(userID)
}

// Put replaces the session for userID.
func (m *MemoryStore) Put(userID int64, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = s
}

// Update applies fn to the session for userID, creating it first if absent.
func (m *MemoryStore) Update(userID int64, fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.get(userID))
}

func (m *MemoryStore) get(userID int64) *Session {
	s, ok := m.sessions[userID]
	if !ok {
		s = &Session{}
		m.sessions[userID] = s
	}
	return s
}
