package agent

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/scribelabs/scribe-core/internal/audio"
	"github.com/scribelabs/scribe-core/internal/config"
	"github.com/scribelabs/scribe-core/internal/stt"
	"github.com/scribelabs/scribe-core/internal/stt/gladia"
	"github.com/scribelabs/scribe-core/internal/transcript"
)

// meetingSession serves one media room: it tracks which users have audio
// tracks, which have transcription enabled, and runs one pipeline per user
// with both. A pipeline starts only when its user has a subscribed
// microphone track AND an announced locale, whichever arrives last.
type meetingSession struct {
	job      *JobContext
	cfg      config.Config
	provider stt.Provider
	tap      audio.Tap
	log      zerolog.Logger

	normalizer *transcript.Normalizer
	filter     transcript.Filter

	mu    sync.Mutex
	room  *lksdk.Room
	users map[string]*userState
	ended bool
	done  chan struct{}
}

type userState struct {
	track   *webrtc.TrackRemote
	trackID string
	pipe    *pipeline
}

func newMeetingSession(job *JobContext, provider stt.Provider, tap audio.Tap) *meetingSession {
	cfg := job.Config()
	return &meetingSession{
		job:      job,
		cfg:      cfg,
		provider: provider,
		tap:      tap,
		log:      job.Log,
		normalizer: transcript.NewNormalizer(transcript.Units{
			Interim: transcript.UnitFromString(cfg.STT.InterimTimeUnit),
			Final:   transcript.UnitFromString(cfg.STT.FinalTimeUnit),
		}),
		filter: transcript.NewFilter(cfg.STT.InterimThreshold(), cfg.STT.FinalThreshold()),
		users:  make(map[string]*userState),
		done:   make(chan struct{}),
	}
}

func (s *meetingSession) roomCallback() *lksdk.RoomCallback {
	return &lksdk.RoomCallback{
		OnDisconnected: s.endSession,
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			s.onParticipantLeft(rp.Identity())
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed:   s.onTrackSubscribed,
			OnTrackUnsubscribed: s.onTrackUnsubscribed,
		},
	}
}

func (s *meetingSession) setRoom(room *lksdk.Room) {
	s.mu.Lock()
	s.room = room
	s.mu.Unlock()
}

func (s *meetingSession) onTrackSubscribed(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	userID := rp.Identity()
	if userID == s.cfg.Agent.Identity {
		return
	}
	if pub.Source() != livekit.TrackSource_MICROPHONE {
		s.log.Debug().Str("userId", userID).Str("source", pub.Source().String()).Msg("ignoring non-microphone track")
		return
	}

	s.log.Info().Str("userId", userID).Str("trackId", pub.SID()).Msg("audio track subscribed")

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.users[userID]
	if !ok {
		st = &userState{}
		s.users[userID] = st
	}
	st.track = track
	st.trackID = pub.SID()
	s.startPipelineLocked(userID, st)
}

func (s *meetingSession) onTrackUnsubscribed(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	userID := rp.Identity()

	s.mu.Lock()
	st := s.users[userID]
	var toStop *pipeline
	if st != nil {
		toStop = st.pipe
		st.pipe = nil
		st.track = nil
		st.trackID = ""
	}
	s.mu.Unlock()

	if toStop != nil {
		s.log.Info().Str("userId", userID).Msg("audio track unsubscribed, stopping pipeline")
		go toStop.stop()
	}
}

func (s *meetingSession) onParticipantLeft(userID string) {
	s.mu.Lock()
	st := s.users[userID]
	var toStop *pipeline
	if st != nil {
		toStop = st.pipe
		delete(s.users, userID)
	}
	s.mu.Unlock()

	s.job.Settings().Clear(s.job.MeetingID, userID)
	if toStop != nil {
		go toStop.stop()
	}
	s.log.Info().Str("userId", userID).Msg("participant left")
}

// SyncUser converges the user's pipeline to the settings registry. Called
// off the control dispatch goroutine, so blocking on vendor dials is fine.
func (s *meetingSession) SyncUser(userID string) {
	s.mu.Lock()
	st := s.users[userID]
	set, enabled := s.job.Settings().Get(s.job.MeetingID, userID)

	var toStop *pipeline
	switch {
	case st == nil:
		// No track yet; the pipeline starts when one subscribes.
	case !enabled:
		toStop = st.pipe
		st.pipe = nil
	case st.pipe == nil:
		s.startPipelineLocked(userID, st)
	case st.pipe.locale != set.Locale:
		// Vendor sessions are fixed to one language; retargeting means a
		// fresh session.
		s.log.Info().Str("userId", userID).Str("from", st.pipe.locale).Str("to", set.Locale).Msg("locale changed, restarting pipeline")
		toStop = st.pipe
		st.pipe = nil
	}
	s.mu.Unlock()

	if toStop == nil {
		return
	}
	toStop.stop()
	if enabled {
		s.mu.Lock()
		if cur := s.users[userID]; cur != nil && cur.pipe == nil {
			s.startPipelineLocked(userID, cur)
		}
		s.mu.Unlock()
	}
}

// startPipelineLocked opens a vendor stream and starts the pumps. The dial
// happens under the session lock; it is bounded by the job context.
func (s *meetingSession) startPipelineLocked(userID string, st *userState) {
	set, enabled := s.job.Settings().Get(s.job.MeetingID, userID)
	if !enabled || st.track == nil || st.pipe != nil {
		return
	}

	language := gladia.SanitizeLanguage(set.Locale)
	ctx, cancel := context.WithCancel(s.job.Context())
	stream, err := s.provider.NewStream(ctx, stt.StreamParams{
		Language:   language,
		SampleRate: s.cfg.STT.SampleRate,
		Channels:   s.cfg.STT.Channels,
		UserID:     userID,
		TrackID:    st.trackID,
	})
	if err != nil {
		cancel()
		s.log.Error().Err(err).Str("userId", userID).Msg("vendor stream failed to open")
		s.job.Metrics().RecordStreamError()
		return
	}

	p := &pipeline{
		session:  s,
		userID:   userID,
		trackID:  st.trackID,
		locale:   set.Locale,
		language: language,
		track:    st.track,
		stream:   stream,
		ctx:      ctx,
		cancel:   cancel,
	}
	st.pipe = p
	s.job.Metrics().RecordTrackStart()

	p.wg.Add(2)
	go p.pumpAudio()
	go p.pumpEvents()

	s.log.Info().
		Str("userId", userID).
		Str("locale", set.Locale).
		Str("language", language).
		Msg("transcription pipeline started")
}

func (s *meetingSession) endSession() {
	s.mu.Lock()
	if !s.ended {
		s.ended = true
		close(s.done)
	}
	s.mu.Unlock()
}

func (s *meetingSession) close() {
	s.mu.Lock()
	var pipes []*pipeline
	for _, st := range s.users {
		if st.pipe != nil {
			pipes = append(pipes, st.pipe)
			st.pipe = nil
		}
	}
	s.mu.Unlock()

	for _, p := range pipes {
		p.stop()
	}
	if err := s.tap.Close(); err != nil {
		s.log.Warn().Err(err).Msg("audio tap close failed")
	}
}

// roomTranscript is the data-channel echo payload for in-room subscribers.
type roomTranscript struct {
	Type   string  `json:"type"`
	UserID string  `json:"userId"`
	Locale string  `json:"locale"`
	Text   string  `json:"text"`
	Final  bool    `json:"final"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
}

func (s *meetingSession) echoToRoom(ev transcript.Event, locale string) {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	if room == nil {
		return
	}

	payload, err := json.Marshal(roomTranscript{
		Type:   "transcript",
		UserID: ev.UserID,
		Locale: locale,
		Text:   ev.Text,
		Final:  ev.Final,
		Start:  ev.Start,
		End:    ev.End,
	})
	if err != nil {
		return
	}
	if err := room.LocalParticipant.PublishData(payload,
		lksdk.WithDataPublishReliable(true),
		lksdk.WithDataPublishTopic("transcription")); err != nil {
		s.log.Debug().Err(err).Msg("room echo failed")
	}
}
