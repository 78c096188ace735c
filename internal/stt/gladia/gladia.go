// Package gladia implements stt.Provider against the Gladia live v2 API.
// A session is created with an HTTP POST carrying the streaming options,
// then audio flows over the returned websocket as binary frames while
// transcript messages come back as JSON.
package gladia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/scribelabs/scribe-core/internal/config"
	"github.com/scribelabs/scribe-core/internal/logging"
	"github.com/scribelabs/scribe-core/internal/stt"
	"github.com/scribelabs/scribe-core/internal/transcript"
)

// Provider opens live sessions using the options captured at startup.
type Provider struct {
	cfg    config.STTConfig
	http   *http.Client
	dialer *websocket.Dialer
	log    zerolog.Logger
}

func NewProvider(cfg config.STTConfig) *Provider {
	return &Provider{
		cfg:    cfg,
		http:   &http.Client{Timeout: 15 * time.Second},
		dialer: websocket.DefaultDialer,
		log:    logging.WithComponent("gladia"),
	}
}

// SanitizeLanguage reduces a platform locale to the ISO 639-1 code the
// vendor expects ("en-US" becomes "en").
func SanitizeLanguage(locale string) string {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return strings.ToLower(locale)
}

type sessionRequest struct {
	Encoding                          string              `json:"encoding"`
	SampleRate                        int                 `json:"sample_rate"`
	BitDepth                          int                 `json:"bit_depth"`
	Channels                          int                 `json:"channels"`
	Model                             string              `json:"model,omitempty"`
	Region                            string              `json:"region,omitempty"`
	Endpointing                       float64             `json:"endpointing,omitempty"`
	MaximumDurationWithoutEndpointing float64             `json:"maximum_duration_without_endpointing,omitempty"`
	LanguageConfig                    languageConfig      `json:"language_config"`
	PreProcessing                     *preProcessing      `json:"pre_processing,omitempty"`
	RealtimeProcessing                *realtimeProcessing `json:"realtime_processing,omitempty"`
}

type languageConfig struct {
	Languages     []string `json:"languages"`
	CodeSwitching bool     `json:"code_switching"`
}

type preProcessing struct {
	AudioEnhancer   bool    `json:"audio_enhancer"`
	SpeechThreshold float64 `json:"speech_threshold,omitempty"`
}

type realtimeProcessing struct {
	CustomVocabulary       bool                    `json:"custom_vocabulary,omitempty"`
	CustomVocabularyConfig *customVocabularyConfig `json:"custom_vocabulary_config,omitempty"`
	CustomSpelling         bool                    `json:"custom_spelling,omitempty"`
	CustomSpellingConfig   *customSpellingConfig   `json:"custom_spelling_config,omitempty"`
	Translation            bool                    `json:"translation,omitempty"`
	TranslationConfig      *translationConfig      `json:"translation_config,omitempty"`
}

type customVocabularyConfig struct {
	Vocabulary json.RawMessage `json:"vocabulary"`
}

type customSpellingConfig struct {
	SpellingDictionary json.RawMessage `json:"spelling_dictionary"`
}

type translationConfig struct {
	TargetLanguages         []string `json:"target_languages"`
	Model                   string   `json:"model,omitempty"`
	MatchOriginalUtterances bool     `json:"match_original_utterances"`
}

type sessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// buildSessionRequest maps the startup options and the participant's
// language onto the vendor's session payload. Translation targets are
// every language in the locale map except the session language itself.
func buildSessionRequest(cfg config.STTConfig, language string) sessionRequest {
	req := sessionRequest{
		Encoding:                          cfg.Encoding,
		SampleRate:                        cfg.SampleRate,
		BitDepth:                          cfg.BitDepth,
		Channels:                          cfg.Channels,
		Model:                             cfg.Model,
		Region:                            cfg.Region,
		Endpointing:                       cfg.Endpointing,
		MaximumDurationWithoutEndpointing: cfg.MaxDurationWithoutEndpointing,
		LanguageConfig: languageConfig{
			Languages:     []string{language},
			CodeSwitching: false,
		},
	}

	if cfg.AudioEnhancer || cfg.SpeechThreshold > 0 {
		req.PreProcessing = &preProcessing{
			AudioEnhancer:   cfg.AudioEnhancer,
			SpeechThreshold: cfg.SpeechThreshold,
		}
	}

	rt := &realtimeProcessing{}
	used := false
	if cfg.CustomVocabulary != "" {
		rt.CustomVocabulary = true
		rt.CustomVocabularyConfig = &customVocabularyConfig{Vocabulary: json.RawMessage(cfg.CustomVocabulary)}
		used = true
	}
	if cfg.CustomSpelling != "" {
		rt.CustomSpelling = true
		rt.CustomSpellingConfig = &customSpellingConfig{SpellingDictionary: json.RawMessage(cfg.CustomSpelling)}
		used = true
	}
	if cfg.Translation {
		var targets []string
		for code := range cfg.LocaleMap() {
			if code != language {
				targets = append(targets, code)
			}
		}
		sort.Strings(targets)
		rt.Translation = true
		rt.TranslationConfig = &translationConfig{
			TargetLanguages:         targets,
			Model:                   cfg.TranslationModel,
			MatchOriginalUtterances: cfg.TranslationMatchOriginal,
		}
		used = true
	}
	if used {
		req.RealtimeProcessing = rt
	}
	return req
}

// NewStream creates a vendor session and dials its websocket.
func (p *Provider) NewStream(ctx context.Context, params stt.StreamParams) (stt.Stream, error) {
	payload := buildSessionRequest(p.cfg, params.Language)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gladia: encode session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v2/live", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gladia: build session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Gladia-Key", p.cfg.APIKey)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gladia: session init: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gladia: session init returned status %s", resp.Status)
	}
	var session sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("gladia: decode session response: %w", err)
	}
	if session.URL == "" {
		return nil, fmt.Errorf("gladia: session response missing websocket url")
	}

	conn, _, err := p.dialer.DialContext(ctx, session.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("gladia: dial session socket: %w", err)
	}

	s := &stream{
		conn:      conn,
		sessionID: session.ID,
		userID:    params.UserID,
		events:    make(chan transcript.Event, 32),
		done:      make(chan struct{}),
		log: p.log.With().
			Str("sessionId", session.ID).
			Str("userId", params.UserID).
			Str("trackId", params.TrackID).
			Logger(),
	}
	go s.readLoop()
	return s, nil
}

type stream struct {
	conn      *websocket.Conn
	sessionID string
	userID    string
	events    chan transcript.Event
	done      chan struct{}
	log       zerolog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	closed   bool
	err      error
	stopOnce sync.Once
}

func (s *stream) SendAudio(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return stt.ErrStreamClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return fmt.Errorf("gladia: write audio: %w", err)
	}
	return nil
}

func (s *stream) Events() <-chan transcript.Event {
	return s.events
}

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tells the vendor to flush the session, then tears the socket down.
// The reader goroutine exits on the socket close and closes Events.
func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.done) })

	s.writeMu.Lock()
	_ = s.conn.WriteJSON(map[string]string{"type": "stop_recording"})
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}

func (s *stream) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

type wsMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Data      wsData `json:"data"`
}

type wsData struct {
	ID                  string       `json:"id"`
	IsFinal             bool         `json:"is_final"`
	Utterance           wsUtterance  `json:"utterance"`
	TranslatedUtterance *wsUtterance `json:"translated_utterance"`
	TargetLanguage      string       `json:"target_language"`
}

type wsUtterance struct {
	Text       string   `json:"text"`
	Language   string   `json:"language"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Confidence *float64 `json:"confidence"`
	Channel    int      `json:"channel"`
}

func (s *stream) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed && websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.setErr(fmt.Errorf("gladia: session socket: %w", err))
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn().Err(err).Msg("undecodable vendor message")
			continue
		}

		switch msg.Type {
		case "transcript":
			ev, ok := s.eventFrom(msg, false)
			if !ok {
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		case "translation":
			ev, ok := s.eventFrom(msg, true)
			if !ok {
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		case "error":
			s.setErr(fmt.Errorf("gladia: vendor error: %s", msg.Message))
			return
		default:
			// speech_start, speech_end, audio_chunk acks and the like
		}
	}
}

func (s *stream) eventFrom(msg wsMessage, translated bool) (transcript.Event, bool) {
	utt := msg.Data.Utterance
	language := utt.Language
	if translated {
		if msg.Data.TranslatedUtterance != nil {
			utt = *msg.Data.TranslatedUtterance
		}
		if msg.Data.TargetLanguage != "" {
			language = msg.Data.TargetLanguage
		} else if utt.Language != "" {
			language = utt.Language
		}
	}
	if strings.TrimSpace(utt.Text) == "" {
		return transcript.Event{}, false
	}
	return transcript.Event{
		ID:         msg.Data.ID,
		SessionID:  s.sessionID,
		UserID:     s.userID,
		Language:   language,
		Text:       utt.Text,
		Start:      utt.Start,
		End:        utt.End,
		Confidence: utt.Confidence,
		Final:      msg.Data.IsFinal,
		Translated: translated,
	}, true
}
