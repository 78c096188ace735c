package platform

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type localeEvent struct {
	meetingID, userID, locale, provider string
}

type optionsEvent struct {
	meetingID, userID string
	opts              SpeechOptionsBody
}

type recordingHandler struct {
	locales chan localeEvent
	options chan optionsEvent
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		locales: make(chan localeEvent, 4),
		options: make(chan optionsEvent, 4),
	}
}

func (h *recordingHandler) HandleLocaleChanged(meetingID, userID, locale, provider string) {
	h.locales <- localeEvent{meetingID, userID, locale, provider}
}

func (h *recordingHandler) HandleSpeechOptions(meetingID, userID string, opts SpeechOptionsBody) {
	h.options <- optionsEvent{meetingID, userID, opts}
}

func controlMessage(t *testing.T, name, meetingID, userID string, body any) string {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	m := Message{
		Envelope: Envelope{
			Name:      name,
			Routing:   Routing{MeetingID: meetingID, UserID: userID},
			Timestamp: time.Now().UnixMilli(),
		},
		Core: Core{
			Header: Header{Name: name, MeetingID: meetingID, UserID: userID},
			Body:   raw,
		},
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return string(data)
}

func TestListenerDispatchesLocaleChanged(t *testing.T) {
	client, mr := newTestBus(t)
	h := newRecordingHandler()

	l := NewListener(context.Background(), client, h, zerolog.Nop())
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Close()

	mr.Publish(ChannelFromPlatform, controlMessage(t, MsgUserSpeechLocaleChanged, "m1", "u1",
		LocaleChangedBody{Locale: "fr-FR", Provider: "gladia"}))

	select {
	case got := <-h.locales:
		want := localeEvent{"m1", "u1", "fr-FR", "gladia"}
		if got != want {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for locale event")
	}
}

func TestListenerDispatchesSpeechOptions(t *testing.T) {
	client, mr := newTestBus(t)
	h := newRecordingHandler()

	l := NewListener(context.Background(), client, h, zerolog.Nop())
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Close()

	mr.Publish(ChannelFromPlatform, controlMessage(t, MsgUserSpeechOptionsChanged, "m2", "u2",
		SpeechOptionsBody{PartialUtterances: true, MinUtteranceLength: 2.5}))

	select {
	case got := <-h.options:
		if got.meetingID != "m2" || got.userID != "u2" {
			t.Fatalf("routing = %+v", got)
		}
		if !got.opts.PartialUtterances || got.opts.MinUtteranceLength != 2.5 {
			t.Fatalf("opts = %+v", got.opts)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for options event")
	}
}

func TestListenerSurvivesMalformedPayloads(t *testing.T) {
	client, mr := newTestBus(t)
	h := newRecordingHandler()

	l := NewListener(context.Background(), client, h, zerolog.Nop())
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Close()

	mr.Publish(ChannelFromPlatform, "{this is not json")
	mr.Publish(ChannelFromPlatform, controlMessage(t, "SomeOtherEvtMsg", "m1", "u1", map[string]any{"x": 1}))
	mr.Publish(ChannelFromPlatform, controlMessage(t, MsgUserSpeechLocaleChanged, "m1", "u1",
		LocaleChangedBody{Locale: "en-US", Provider: "gladia"}))

	select {
	case got := <-h.locales:
		if got.locale != "en-US" {
			t.Fatalf("locale = %q", got.locale)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("listener stopped dispatching after bad payloads")
	}

	select {
	case extra := <-h.locales:
		t.Fatalf("unexpected extra locale event: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}
