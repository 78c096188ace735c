// Package platform speaks the meeting platform's Redis wire contracts:
// the envelope/core message layout, the akka-apps channels, and the three
// speech message types the worker cares about.
package platform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/scribelabs/scribe-core/internal/transcript"
)

const (
	ChannelToPlatform   = "to-akka-apps-redis-channel"
	ChannelFromPlatform = "from-akka-apps-redis-channel"

	MsgUpdateTranscript         = "UpdateTranscriptPubMsg"
	MsgUserSpeechLocaleChanged  = "UserSpeechLocaleChangedEvtMsg"
	MsgUserSpeechOptionsChanged = "UserSpeechOptionsChangedEvtMsg"
)

type Routing struct {
	MeetingID string `json:"meetingId"`
	UserID    string `json:"userId"`
}

type Envelope struct {
	Name      string  `json:"name"`
	Routing   Routing `json:"routing"`
	Timestamp int64   `json:"timestamp"`
}

type Header struct {
	Name      string `json:"name"`
	MeetingID string `json:"meetingId"`
	UserID    string `json:"userId"`
}

type Core struct {
	Header Header          `json:"header"`
	Body   json.RawMessage `json:"body"`
}

// Message is the platform's two-part wire layout. Body stays raw until the
// envelope name tells us what to decode it into.
type Message struct {
	Envelope Envelope `json:"envelope"`
	Core     Core     `json:"core"`
}

// DecodeBody unmarshals the core body into a typed body struct.
func (m Message) DecodeBody(v any) error {
	return json.Unmarshal(m.Core.Body, v)
}

// ParseMessage decodes the outer layout of an inbound platform message.
func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("platform: decode message: %w", err)
	}
	return m, nil
}

// UpdateTranscriptBody is the outbound transcript edit. Start and End are
// millisecond strings, and the words ride in Transcript while Text stays
// empty; the platform's pad consumer expects exactly this split.
type UpdateTranscriptBody struct {
	TranscriptID string `json:"transcriptId"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Text         string `json:"text"`
	Transcript   string `json:"transcript"`
	Locale       string `json:"locale"`
	Result       bool   `json:"result"`
}

// LocaleChangedBody enables, changes, or (when either field is empty)
// disables transcription for the routed user.
type LocaleChangedBody struct {
	Locale   string `json:"locale"`
	Provider string `json:"provider"`
}

// SpeechOptionsBody updates the user's interim gating policy. The minimum
// utterance length is in seconds.
type SpeechOptionsBody struct {
	PartialUtterances  bool    `json:"partialUtterances"`
	MinUtteranceLength float64 `json:"minUtteranceLength"`
}

// NewUpdateTranscript builds the wire message for one normalized event.
// The event's seconds convert back to integer milliseconds exactly once,
// here at the boundary, and the transcript id reuses the start time so that
// interim updates for the same utterance edit the same pad line.
func NewUpdateTranscript(meetingID string, ev transcript.Event, locale string, now time.Time) (Message, error) {
	startMS := transcript.MillisFromSeconds(ev.Start)
	endMS := transcript.MillisFromSeconds(ev.End)

	body := UpdateTranscriptBody{
		TranscriptID: fmt.Sprintf("%s-%s-%d", ev.UserID, locale, startMS),
		Start:        strconv.FormatInt(startMS, 10),
		End:          strconv.FormatInt(endMS, 10),
		Text:         "",
		Transcript:   ev.Text,
		Locale:       locale,
		Result:       ev.Final,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Message{}, fmt.Errorf("platform: encode transcript body: %w", err)
	}

	return Message{
		Envelope: Envelope{
			Name:      MsgUpdateTranscript,
			Routing:   Routing{MeetingID: meetingID, UserID: ev.UserID},
			Timestamp: now.UnixMilli(),
		},
		Core: Core{
			Header: Header{
				Name:      MsgUpdateTranscript,
				MeetingID: meetingID,
				UserID:    ev.UserID,
			},
			Body: raw,
		},
	}, nil
}
