package platform

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scribelabs/scribe-core/internal/bus"
	"github.com/scribelabs/scribe-core/internal/transcript"
)

// Publisher turns forwarded transcript events into UpdateTranscriptPubMsg
// messages on the platform's inbound channel.
type Publisher struct {
	bus     *bus.Client
	locales map[string]string
	log     zerolog.Logger
	now     func() time.Time
}

// NewPublisher wires a publisher onto the shared bus client. localeMap maps
// vendor language codes to platform locales for translated events.
func NewPublisher(busClient *bus.Client, localeMap map[string]string, log zerolog.Logger) *Publisher {
	return &Publisher{
		bus:     busClient,
		locales: localeMap,
		log:     log.With().Str("component", "publisher").Logger(),
		now:     time.Now,
	}
}

// ResolveLocale maps a vendor language code onto the platform locale the
// words should be filed under. Events in the speaker's own language keep
// the speaker's full locale; translated languages go through the configured
// map; an unmapped language falls back to the bare code.
func (p *Publisher) ResolveLocale(language, userLocale string) string {
	if language == "" {
		return userLocale
	}
	if strings.EqualFold(language, languageOf(userLocale)) {
		return userLocale
	}
	if mapped, ok := p.locales[strings.ToLower(language)]; ok {
		return mapped
	}
	p.log.Warn().
		Str("language", language).
		Str("userLocale", userLocale).
		Msg("no locale mapping for language, using code as-is")
	return language
}

// languageOf strips a locale like "en-US" down to its language part.
func languageOf(locale string) string {
	lang, _, _ := strings.Cut(locale, "-")
	return strings.ToLower(lang)
}

// PublishTranscript sends one normalized, filter-approved event to the
// platform. The event must already be in seconds.
func (p *Publisher) PublishTranscript(ctx context.Context, meetingID string, ev transcript.Event, userLocale string) error {
	locale := p.ResolveLocale(ev.Language, userLocale)

	msg, err := NewUpdateTranscript(meetingID, ev, locale, p.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := p.bus.Publish(ctx, ChannelToPlatform, data); err != nil {
		return err
	}

	p.log.Debug().
		Str("meetingId", meetingID).
		Str("userId", ev.UserID).
		Str("locale", locale).
		Bool("result", ev.Final).
		Msg("published transcript update")
	return nil
}
