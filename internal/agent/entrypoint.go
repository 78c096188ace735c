package agent

import (
	"fmt"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/rs/zerolog"

	"github.com/scribelabs/scribe-core/internal/audio"
	"github.com/scribelabs/scribe-core/internal/config"
	"github.com/scribelabs/scribe-core/internal/stt"
	"github.com/scribelabs/scribe-core/internal/stt/gladia"
)

// Entrypoint is the default meeting job body: build the vendor plugin from
// the startup configuration, join the meeting's media room, and serve
// pipelines until the room ends or the job is shut down.
func Entrypoint(job *JobContext) error {
	provider := gladia.NewProvider(job.Config().STT)
	return run(job, provider)
}

func run(job *JobContext, provider stt.Provider) error {
	cfg := job.Config()

	session := newMeetingSession(job, provider, buildTap(cfg, job.Log))

	room, err := lksdk.ConnectToRoom(cfg.LiveKit.URL, lksdk.ConnectInfo{
		APIKey:              cfg.LiveKit.APIKey,
		APISecret:           cfg.LiveKit.APISecret,
		RoomName:            job.MeetingID,
		ParticipantIdentity: cfg.Agent.Identity,
	}, session.roomCallback(), lksdk.WithAutoSubscribe(true))
	if err != nil {
		session.close()
		return &JobError{MeetingID: job.MeetingID, Err: fmt.Errorf("join room: %w", err)}
	}
	session.setRoom(room)
	job.AttachUserHandler(session)

	if err := job.Archive().StartMeeting(job.Context(), job.MeetingID); err != nil {
		job.Log.Warn().Err(err).Msg("archive meeting start failed")
	}

	select {
	case <-job.Context().Done():
	case <-session.done:
		job.Log.Info().Msg("media room disconnected")
	}

	room.Disconnect()
	session.close()
	return nil
}

func buildTap(cfg config.Config, log zerolog.Logger) audio.Tap {
	if cfg.Agent.AudioTapDir == "" {
		return audio.NoopTap{}
	}
	tap, err := audio.NewWAVTap(cfg.Agent.AudioTapDir, cfg.STT.SampleRate, log)
	if err != nil {
		log.Warn().Err(err).Msg("audio tap unavailable")
		return audio.NoopTap{}
	}
	return tap
}
