package agent

import (
	"testing"

	"github.com/scribelabs/scribe-core/internal/config"
)

func testSTTConfig() config.STTConfig {
	cfg := config.Default().STT
	cfg.PartialUtterances = true
	cfg.MinUtteranceLength = 0.5
	return cfg
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry(testSTTConfig())

	s, enabled := r.Get("m1", "u1")
	if enabled {
		t.Fatal("unknown user must not be enabled")
	}
	if !s.PartialUtterances || s.MinUtteranceLength != 0.5 {
		t.Fatalf("defaults = %+v", s)
	}
}

func TestRegistrySetLocale(t *testing.T) {
	r := NewRegistry(testSTTConfig())

	if changed := r.SetLocale("m1", "u1", "en-US", "gladia"); !changed {
		t.Fatal("first locale must count as a change")
	}
	s, enabled := r.Get("m1", "u1")
	if !enabled || s.Locale != "en-US" || s.Provider != "gladia" {
		t.Fatalf("settings = %+v enabled=%v", s, enabled)
	}
	if !s.PartialUtterances {
		t.Fatal("locale set must keep option defaults")
	}

	if changed := r.SetLocale("m1", "u1", "en-US", "gladia"); changed {
		t.Fatal("same locale must not count as a change")
	}
	if changed := r.SetLocale("m1", "u1", "fr-FR", "gladia"); !changed {
		t.Fatal("new locale must count as a change")
	}
}

func TestRegistryOptionsBeforeLocale(t *testing.T) {
	r := NewRegistry(testSTTConfig())

	r.SetOptions("m1", "u1", false, 2.0)
	s, enabled := r.Get("m1", "u1")
	if enabled {
		t.Fatal("options alone must not enable transcription")
	}
	if s.PartialUtterances || s.MinUtteranceLength != 2.0 {
		t.Fatalf("settings = %+v", s)
	}

	// Locale arriving later keeps the announced options.
	r.SetLocale("m1", "u1", "en-US", "gladia")
	s, enabled = r.Get("m1", "u1")
	if !enabled || s.PartialUtterances || s.MinUtteranceLength != 2.0 {
		t.Fatalf("settings = %+v enabled=%v", s, enabled)
	}
}

func TestRegistryClear(t *testing.T) {
	r := NewRegistry(testSTTConfig())

	r.SetLocale("m1", "u1", "en-US", "gladia")
	r.Clear("m1", "u1")
	if _, enabled := r.Get("m1", "u1"); enabled {
		t.Fatal("cleared user must be disabled")
	}
}

func TestRegistryMeetingActive(t *testing.T) {
	r := NewRegistry(testSTTConfig())

	if r.MeetingActive("m1") {
		t.Fatal("empty meeting must not be active")
	}
	r.SetOptions("m1", "u1", true, 0)
	if r.MeetingActive("m1") {
		t.Fatal("options without a locale must not count as active")
	}
	r.SetLocale("m1", "u2", "en-US", "gladia")
	if !r.MeetingActive("m1") {
		t.Fatal("announced locale must count as active")
	}
	r.Clear("m1", "u2")
	if r.MeetingActive("m1") {
		t.Fatal("clearing the last locale must deactivate the meeting")
	}
}

func TestRegistryActiveUsers(t *testing.T) {
	r := NewRegistry(testSTTConfig())

	r.SetLocale("m1", "u1", "en-US", "gladia")
	r.SetLocale("m2", "u1", "fr-FR", "gladia")
	r.SetOptions("m2", "u2", false, 0)
	if got := r.ActiveUsers(); got != 2 {
		t.Fatalf("active users = %d, want 2", got)
	}

	r.Clear("m1", "u1")
	if got := r.ActiveUsers(); got != 1 {
		t.Fatalf("active users = %d, want 1", got)
	}
}

func TestRegistryDropMeeting(t *testing.T) {
	r := NewRegistry(testSTTConfig())

	r.SetLocale("m1", "u1", "en-US", "gladia")
	r.SetLocale("m1", "u2", "fr-FR", "gladia")
	r.DropMeeting("m1")

	if _, enabled := r.Get("m1", "u1"); enabled {
		t.Fatal("dropped meeting must lose all users")
	}
	if _, enabled := r.Get("m1", "u2"); enabled {
		t.Fatal("dropped meeting must lose all users")
	}
}
