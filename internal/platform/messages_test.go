package platform

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/scribelabs/scribe-core/internal/transcript"
)

func TestNewUpdateTranscript(t *testing.T) {
	ev := transcript.Event{
		UserID:   "w_abc123",
		Language: "en",
		Text:     "hello there",
		Start:    1.0,
		End:      2.5,
		Final:    true,
		Unit:     transcript.UnitSeconds,
	}
	now := time.UnixMilli(1714000000123)

	msg, err := NewUpdateTranscript("meeting-1", ev, "en-US", now)
	if err != nil {
		t.Fatalf("NewUpdateTranscript: %v", err)
	}

	if msg.Envelope.Name != MsgUpdateTranscript {
		t.Fatalf("envelope name = %q", msg.Envelope.Name)
	}
	if msg.Envelope.Routing.MeetingID != "meeting-1" || msg.Envelope.Routing.UserID != "w_abc123" {
		t.Fatalf("routing = %+v", msg.Envelope.Routing)
	}
	if msg.Envelope.Timestamp != 1714000000123 {
		t.Fatalf("timestamp = %d", msg.Envelope.Timestamp)
	}
	if msg.Core.Header.Name != MsgUpdateTranscript || msg.Core.Header.MeetingID != "meeting-1" {
		t.Fatalf("header = %+v", msg.Core.Header)
	}

	var body UpdateTranscriptBody
	if err := msg.DecodeBody(&body); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if body.TranscriptID != "w_abc123-en-US-1000" {
		t.Fatalf("transcriptId = %q", body.TranscriptID)
	}
	if body.Start != "1000" || body.End != "2500" {
		t.Fatalf("start/end = %q/%q", body.Start, body.End)
	}
	if body.Text != "" {
		t.Fatalf("text should stay empty, got %q", body.Text)
	}
	if body.Transcript != "hello there" {
		t.Fatalf("transcript = %q", body.Transcript)
	}
	if body.Locale != "en-US" || !body.Result {
		t.Fatalf("locale/result = %q/%v", body.Locale, body.Result)
	}
}

func TestNewUpdateTranscriptInterim(t *testing.T) {
	ev := transcript.Event{
		UserID: "u1",
		Text:   "partial words",
		Start:  0.5,
		End:    0.9,
		Final:  false,
	}

	msg, err := NewUpdateTranscript("m1", ev, "en-US", time.Now())
	if err != nil {
		t.Fatalf("NewUpdateTranscript: %v", err)
	}
	var body UpdateTranscriptBody
	if err := msg.DecodeBody(&body); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if body.Result {
		t.Fatal("interim event must publish result=false")
	}
	if body.Start != "500" || body.End != "900" {
		t.Fatalf("start/end = %q/%q", body.Start, body.End)
	}
}

func TestUpdateTranscriptWireShape(t *testing.T) {
	ev := transcript.Event{UserID: "u1", Text: "words", Start: 1, End: 2, Final: true}
	msg, err := NewUpdateTranscript("m1", ev, "en-US", time.Now())
	if err != nil {
		t.Fatalf("NewUpdateTranscript: %v", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// The platform requires the empty text key to be present on the wire.
	if !strings.Contains(string(data), `"text":""`) {
		t.Fatalf("wire message missing empty text field: %s", data)
	}
	if !strings.Contains(string(data), `"transcript":"words"`) {
		t.Fatalf("wire message missing transcript field: %s", data)
	}
}

func TestParseLocaleChanged(t *testing.T) {
	payload := `{
		"envelope": {"name": "UserSpeechLocaleChangedEvtMsg", "routing": {"meetingId": "m1", "userId": "u1"}, "timestamp": 123},
		"core": {"header": {"name": "UserSpeechLocaleChangedEvtMsg", "meetingId": "m1", "userId": "u1"}, "body": {"locale": "pt-BR", "provider": "gladia"}}
	}`

	m, err := ParseMessage([]byte(payload))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if m.Envelope.Name != MsgUserSpeechLocaleChanged {
		t.Fatalf("name = %q", m.Envelope.Name)
	}
	var body LocaleChangedBody
	if err := m.DecodeBody(&body); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if body.Locale != "pt-BR" || body.Provider != "gladia" {
		t.Fatalf("body = %+v", body)
	}
}

func TestParseSpeechOptions(t *testing.T) {
	payload := `{
		"envelope": {"name": "UserSpeechOptionsChangedEvtMsg", "routing": {"meetingId": "m1", "userId": "u1"}, "timestamp": 123},
		"core": {"header": {"name": "UserSpeechOptionsChangedEvtMsg", "meetingId": "m1", "userId": "u1"}, "body": {"partialUtterances": true, "minUtteranceLength": 1.5}}
	}`

	m, err := ParseMessage([]byte(payload))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	var body SpeechOptionsBody
	if err := m.DecodeBody(&body); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if !body.PartialUtterances || body.MinUtteranceLength != 1.5 {
		t.Fatalf("body = %+v", body)
	}
}

func TestParseMessageMalformed(t *testing.T) {
	if _, err := ParseMessage([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
