package platform

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/scribelabs/scribe-core/internal/bus"
)

// Handler receives decoded speech control events. Implementations must not
// block: the listener dispatches from a single goroutine.
type Handler interface {
	// HandleLocaleChanged fires when a user enables, changes, or disables
	// transcription. An empty locale or provider means disable.
	HandleLocaleChanged(meetingID, userID, locale, provider string)

	// HandleSpeechOptions fires when a user's interim gating policy changes.
	HandleSpeechOptions(meetingID, userID string, opts SpeechOptionsBody)
}

// Listener subscribes to the platform's outbound channel and forwards the
// speech control events to the worker. Messages it cannot decode are logged
// and skipped so one bad producer cannot stall the feed.
type Listener struct {
	bus     *bus.Client
	handler Handler
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sub    *redis.PubSub
}

// NewListener prepares a listener bound to the parent context. Call Start to
// begin receiving.
func NewListener(parent context.Context, busClient *bus.Client, handler Handler, log zerolog.Logger) *Listener {
	ctx, cancel := context.WithCancel(parent)
	return &Listener{
		bus:     busClient,
		handler: handler,
		log:     log.With().Str("component", "platform-listener").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the control channel and launches the dispatch loop.
// It returns once the subscription is confirmed.
func (l *Listener) Start() error {
	sub := l.bus.Subscribe(l.ctx, ChannelFromPlatform)
	if _, err := sub.Receive(l.ctx); err != nil {
		_ = sub.Close()
		return err
	}
	l.sub = sub

	l.wg.Add(1)
	go l.run()

	l.log.Info().Str("channel", ChannelFromPlatform).Msg("listening for speech control events")
	return nil
}

func (l *Listener) run() {
	defer l.wg.Done()
	ch := l.sub.Channel()
	for {
		select {
		case <-l.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			l.dispatch([]byte(msg.Payload))
		}
	}
}

func (l *Listener) dispatch(payload []byte) {
	m, err := ParseMessage(payload)
	if err != nil {
		l.log.Warn().Err(err).Msg("skipping undecodable platform message")
		return
	}

	meetingID := m.Envelope.Routing.MeetingID
	userID := m.Envelope.Routing.UserID

	switch m.Envelope.Name {
	case MsgUserSpeechLocaleChanged:
		var body LocaleChangedBody
		if err := m.DecodeBody(&body); err != nil {
			l.log.Warn().Err(err).Str("name", m.Envelope.Name).Msg("skipping malformed body")
			return
		}
		l.handler.HandleLocaleChanged(meetingID, userID, body.Locale, body.Provider)
	case MsgUserSpeechOptionsChanged:
		var body SpeechOptionsBody
		if err := m.DecodeBody(&body); err != nil {
			l.log.Warn().Err(err).Str("name", m.Envelope.Name).Msg("skipping malformed body")
			return
		}
		l.handler.HandleSpeechOptions(meetingID, userID, body)
	default:
		// Everything else on the channel is for other consumers.
	}
}

// Healthy reports whether the listener has an active subscription.
func (l *Listener) Healthy() bool {
	return l != nil && l.sub != nil
}

// Close stops the dispatch loop and tears down the subscription.
func (l *Listener) Close() {
	l.cancel()
	if l.sub != nil {
		_ = l.sub.Close()
	}
	l.wg.Wait()
	l.log.Info().Msg("platform listener stopped")
}
