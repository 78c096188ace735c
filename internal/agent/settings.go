package agent

import (
	"sync"

	"github.com/scribelabs/scribe-core/internal/config"
)

// UserSettings holds one user's transcription state as last announced by the
// platform. MinUtteranceLength is in seconds.
type UserSettings struct {
	Locale             string
	Provider           string
	PartialUtterances  bool
	MinUtteranceLength float64
}

// Registry tracks per-meeting per-user settings. The platform can announce
// speech options before a locale, so entries exist independently of running
// pipelines. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	defaults UserSettings
	meetings map[string]map[string]UserSettings
}

func NewRegistry(cfg config.STTConfig) *Registry {
	return &Registry{
		defaults: UserSettings{
			PartialUtterances:  cfg.PartialUtterances,
			MinUtteranceLength: cfg.MinUtteranceLength,
		},
		meetings: make(map[string]map[string]UserSettings),
	}
}

// Get returns the user's settings and whether a locale has been announced.
// Users without an entry get the configured defaults.
func (r *Registry) Get(meetingID, userID string) (UserSettings, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if users, ok := r.meetings[meetingID]; ok {
		if s, ok := users[userID]; ok {
			return s, s.Locale != ""
		}
	}
	return r.defaults, false
}

// SetLocale records the user's locale and provider. It reports whether the
// locale actually changed, so callers know a running stream needs a restart.
func (r *Registry) SetLocale(meetingID, userID, locale, provider string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.entryLocked(meetingID, userID)
	changed := s.Locale != locale
	s.Locale = locale
	s.Provider = provider
	r.meetings[meetingID][userID] = s
	return changed
}

// SetOptions records the user's interim gating policy.
func (r *Registry) SetOptions(meetingID, userID string, partialUtterances bool, minUtteranceLength float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.entryLocked(meetingID, userID)
	s.PartialUtterances = partialUtterances
	s.MinUtteranceLength = minUtteranceLength
	r.meetings[meetingID][userID] = s
}

func (r *Registry) entryLocked(meetingID, userID string) UserSettings {
	users, ok := r.meetings[meetingID]
	if !ok {
		users = make(map[string]UserSettings)
		r.meetings[meetingID] = users
	}
	s, ok := users[userID]
	if !ok {
		s = r.defaults
	}
	return s
}

// MeetingActive reports whether any user in the meeting still has a locale
// announced.
func (r *Registry) MeetingActive(meetingID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.meetings[meetingID] {
		if s.Locale != "" {
			return true
		}
	}
	return false
}

// ActiveUsers counts users with transcription enabled across all meetings.
func (r *Registry) ActiveUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, users := range r.meetings {
		for _, s := range users {
			if s.Locale != "" {
				n++
			}
		}
	}
	return n
}

// Clear removes a user's entry, disabling transcription for them.
func (r *Registry) Clear(meetingID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if users, ok := r.meetings[meetingID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(r.meetings, meetingID)
		}
	}
}

// DropMeeting removes every entry for a meeting once its job ends.
func (r *Registry) DropMeeting(meetingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.meetings, meetingID)
}
