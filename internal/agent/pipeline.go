package agent

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/scribelabs/scribe-core/internal/audio"
	"github.com/scribelabs/scribe-core/internal/stt"
	"github.com/scribelabs/scribe-core/internal/transcript"
)

// pipeline moves one user's audio to the vendor and their transcripts back
// to the platform. Two pumps: RTP in, events out. It dies with its stream;
// the session decides whether to start a replacement.
type pipeline struct {
	session  *meetingSession
	userID   string
	trackID  string
	locale   string
	language string
	track    *webrtc.TrackRemote
	stream   stt.Stream

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (p *pipeline) stop() {
	p.cancel()
	_ = p.stream.Close()
	p.wg.Wait()
	p.session.job.Metrics().RecordTrackEnd()
	p.session.log.Info().Str("userId", p.userID).Msg("transcription pipeline stopped")
}

// pumpAudio reads RTP from the track, decodes Opus, resamples to the
// vendor's rate, and writes PCM to the stream. The read deadline keeps the
// loop responsive to cancellation.
func (p *pipeline) pumpAudio() {
	defer p.wg.Done()

	dec, err := audio.NewDecoder()
	if err != nil {
		p.session.log.Error().Err(err).Str("userId", p.userID).Msg("opus decoder unavailable")
		return
	}
	m := p.session.job.Metrics()

	for {
		if p.ctx.Err() != nil {
			return
		}
		_ = p.track.SetReadDeadline(time.Now().Add(time.Second))
		pkt, _, err := p.track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			p.session.log.Debug().Err(err).Str("userId", p.userID).Msg("rtp read failed")
			continue
		}

		buf, err := p.packetToPCM(dec, pkt)
		if err != nil {
			p.session.log.Debug().Err(err).Str("userId", p.userID).Msg("opus decode failed")
			continue
		}
		if len(buf) == 0 {
			continue
		}

		if err := p.stream.SendAudio(p.ctx, buf); err != nil {
			if p.ctx.Err() != nil || errors.Is(err, stt.ErrStreamClosed) {
				return
			}
			p.session.log.Warn().Err(err).Str("userId", p.userID).Msg("vendor write failed")
			m.RecordStreamError()
			return
		}
		m.RecordAudioSent(len(buf))
	}
}

// packetToPCM turns one RTP packet's Opus payload into little-endian PCM16
// at the vendor's sample rate, feeding the tap along the way. An empty
// result with nil error means the packet carried nothing useful.
func (p *pipeline) packetToPCM(dec *audio.Decoder, pkt *rtp.Packet) ([]byte, error) {
	if len(pkt.Payload) == 0 {
		return nil, nil
	}
	pcm, err := dec.Decode(pkt.Payload)
	if err != nil {
		return nil, err
	}
	out := audio.Resample(pcm, audio.OpusSampleRate, p.session.cfg.STT.SampleRate)
	p.session.tap.OnFrame(p.userID, out)
	return audio.Bytes(out), nil
}

// pumpEvents drains the vendor stream until it closes.
func (p *pipeline) pumpEvents() {
	defer p.wg.Done()

	for ev := range p.stream.Events() {
		p.handleEvent(ev)
	}
	if err := p.stream.Err(); err != nil && p.ctx.Err() == nil {
		p.session.log.Warn().Err(err).Str("userId", p.userID).Msg("vendor stream ended with error")
		p.session.job.Metrics().RecordStreamError()
	}
}

// handleEvent is the per-utterance path: normalize to seconds, gate, filter
// on confidence, then publish. Suppression is a logged decision, never an
// error; publish failures are logged and the pipeline keeps going.
func (p *pipeline) handleEvent(ev transcript.Event) {
	s := p.session
	m := s.job.Metrics()
	started := time.Now()

	m.RecordVendorEvent(ev.Final)
	ev.UserID = p.userID
	ev = s.normalizer.Normalize(ev)

	set, _ := s.job.Settings().Get(s.job.MeetingID, p.userID)
	gates := transcript.Gates{
		PartialUtterances:  set.PartialUtterances,
		MinUtteranceLength: set.MinUtteranceLength,
	}
	if d := gates.Apply(ev); !d.Forwarded() {
		m.RecordSuppressed(d.Reason)
		s.log.Debug().Str("userId", p.userID).Str("reason", d.Reason).Bool("final", ev.Final).Msg("transcript suppressed")
		return
	}
	if d := s.filter.Apply(ev); !d.Forwarded() {
		m.RecordSuppressed(d.Reason)
		line := s.log.Debug().Str("userId", p.userID).Str("reason", d.Reason).Bool("final", ev.Final)
		if ev.Confidence != nil {
			line = line.Float64("confidence", *ev.Confidence)
		}
		line.Msg("transcript suppressed")
		return
	}

	m.RecordForwarded(ev.Final)
	locale := s.job.Publisher().ResolveLocale(ev.Language, p.locale)

	if err := s.job.Publisher().PublishTranscript(p.ctx, s.job.MeetingID, ev, locale); err != nil {
		m.RecordPublishError()
		s.log.Warn().Err(err).Str("userId", p.userID).Msg("platform publish failed")
	}
	if s.cfg.Agent.RoomEcho {
		s.echoToRoom(ev, locale)
	}
	if ev.Final {
		if err := s.job.Archive().AppendTranscript(p.ctx, s.job.MeetingID, locale, ev); err != nil {
			s.log.Warn().Err(err).Str("userId", p.userID).Msg("archive append failed")
		}
	}

	m.ObserveEventLatency(time.Since(started).Seconds())
}
