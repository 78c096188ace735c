package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Error describes a configuration value that was rejected during Load.
// Key names the environment variable (or config file key) at fault.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s %s", e.Key, e.Reason)
}

func newError(key, reason string) *Error {
	return &Error{Key: key, Reason: reason}
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type LiveKitConfig struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
}

// Addr returns the host:port address for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AgentConfig holds worker-side behavior that is not a vendor option.
type AgentConfig struct {
	Identity    string `yaml:"identity"`
	RoomEcho    bool   `yaml:"room_echo"`
	AudioTapDir string `yaml:"audio_tap_dir"`
}

type ArchiveConfig struct {
	Path          string `yaml:"path"`
	Ephemeral     bool   `yaml:"ephemeral"`
	RetentionDays int    `yaml:"retention_days"`
}

// STTConfig carries every vendor streaming option the worker exposes.
// Each field is reachable through the vendor's documented environment
// variable; values are read once at startup and never re-read.
type STTConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	// ConfidenceThreshold is the shared confidence floor. The interim and
	// final thresholds inherit it unless set explicitly (-1 inherits).
	ConfidenceThreshold  float64 `yaml:"confidence_threshold"`
	MinConfidenceInterim float64 `yaml:"min_confidence_interim"`
	MinConfidenceFinal   float64 `yaml:"min_confidence_final"`

	Model      string `yaml:"model"`
	Region     string `yaml:"region"`
	Encoding   string `yaml:"encoding"`
	SampleRate int    `yaml:"sample_rate"`
	BitDepth   int    `yaml:"bit_depth"`
	Channels   int    `yaml:"channels"`

	Endpointing                   float64 `yaml:"endpointing"`
	MaxDurationWithoutEndpointing float64 `yaml:"max_duration_without_endpointing"`

	AudioEnhancer   bool    `yaml:"audio_enhancer"`
	SpeechThreshold float64 `yaml:"speech_threshold"`
	EnergyFilter    bool    `yaml:"energy_filter"`

	// Defaults for users that never sent explicit speech options.
	PartialUtterances  bool    `yaml:"partial_utterances"`
	MinUtteranceLength float64 `yaml:"min_utterance_length"`

	// Units the vendor uses for utterance start/end on interim and final
	// events. Everything downstream of the normalizer works in seconds.
	InterimTimeUnit string `yaml:"interim_time_unit"`
	FinalTimeUnit   string `yaml:"final_time_unit"`

	Translation              bool   `yaml:"translation"`
	TranslationModel         string `yaml:"translation_model"`
	TranslationMatchOriginal bool   `yaml:"translation_match_original"`
	TranslationLangMap       string `yaml:"translation_lang_map"`

	CustomVocabulary string `yaml:"custom_vocabulary"`
	CustomSpelling   string `yaml:"custom_spelling"`
}

// InterimThreshold resolves the confidence floor applied to interim events.
func (s STTConfig) InterimThreshold() float64 {
	if s.MinConfidenceInterim >= 0 {
		return s.MinConfidenceInterim
	}
	return s.ConfidenceThreshold
}

// FinalThreshold resolves the confidence floor applied to final events.
func (s STTConfig) FinalThreshold() float64 {
	if s.MinConfidenceFinal >= 0 {
		return s.MinConfidenceFinal
	}
	return s.ConfidenceThreshold
}

// LocaleMap parses the translation language map into vendor code ->
// platform locale pairs. Load guarantees the raw value parses.
func (s STTConfig) LocaleMap() map[string]string {
	m := make(map[string]string)
	for _, pair := range strings.Split(s.TranslationLangMap, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		m[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return m
}

type Config struct {
	AgentName   string          `yaml:"agent_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Log         LogConfig       `yaml:"log"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	LiveKit     LiveKitConfig   `yaml:"livekit"`
	Redis       RedisConfig     `yaml:"redis"`
	STT         STTConfig       `yaml:"stt"`
	Agent       AgentConfig     `yaml:"agent"`
	Archive     ArchiveConfig   `yaml:"archive"`
}

func Default() Config {
	return Config{
		AgentName:   "scribe-worker",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Redis: RedisConfig{
			Host: "127.0.0.1",
			Port: 6379,
		},
		STT: STTConfig{
			BaseURL:                       "https://api.gladia.io",
			ConfidenceThreshold:           0.1,
			MinConfidenceInterim:          -1,
			MinConfidenceFinal:            -1,
			Model:                         "solaria-1",
			Encoding:                      "wav/pcm",
			SampleRate:                    16000,
			BitDepth:                      16,
			Channels:                      1,
			Endpointing:                   0.01,
			MaxDurationWithoutEndpointing: 10,
			AudioEnhancer:                 true,
			SpeechThreshold:               0.7,
			PartialUtterances:             true,
			MinUtteranceLength:            0,
			InterimTimeUnit:               "ms",
			FinalTimeUnit:                 "s",
			TranslationModel:              "base",
			TranslationMatchOriginal:      true,
			TranslationLangMap:            "de:de-DE,en:en-US,es:es-ES,fr:fr-FR,hi:hi-IN,it:it-IT,ja:ja-JP,pt:pt-BR,ru:ru-RU,zh:zh-CN",
		},
		Agent: AgentConfig{
			Identity: "scribe",
			RoomEcho: true,
		},
		Archive: ArchiveConfig{
			Path:          "./data/scribe-transcripts.db",
			Ephemeral:     true,
			RetentionDays: 30,
		},
	}
}

// Load builds the worker configuration: defaults, then the optional YAML
// file, then environment overrides, then validation. It either returns a
// fully validated Config or an error; malformed environment values are
// rejected, never silently skipped.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	overrideString(&cfg.AgentName, "SCRIBE_AGENT_NAME")
	overrideString(&cfg.Environment, "SCRIBE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SCRIBE_HTTP_BIND")
	overrideString(&cfg.Log.Level, "SCRIBE_LOG_LEVEL")
	overrideString(&cfg.Log.Format, "SCRIBE_LOG_FORMAT")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SCRIBE_TELEMETRY_OTLP_ENDPOINT")
	overrideString(&cfg.Agent.Identity, "SCRIBE_AGENT_IDENTITY")
	overrideString(&cfg.Agent.AudioTapDir, "SCRIBE_AUDIO_TAP_DIR")
	overrideString(&cfg.Archive.Path, "SCRIBE_ARCHIVE_PATH")

	overrideString(&cfg.LiveKit.URL, "LIVEKIT_URL")
	overrideString(&cfg.LiveKit.APIKey, "LIVEKIT_API_KEY")
	overrideString(&cfg.LiveKit.APISecret, "LIVEKIT_API_SECRET")

	overrideString(&cfg.Redis.Host, "REDIS_HOST")
	overrideSecret(&cfg.Redis.Password, "REDIS_PASSWORD")

	overrideString(&cfg.STT.APIKey, "GLADIA_API_KEY")
	overrideString(&cfg.STT.BaseURL, "GLADIA_BASE_URL")
	overrideString(&cfg.STT.Model, "GLADIA_MODEL")
	overrideString(&cfg.STT.Region, "GLADIA_REGION")
	overrideString(&cfg.STT.Encoding, "GLADIA_ENCODING")
	overrideString(&cfg.STT.InterimTimeUnit, "GLADIA_INTERIM_TIME_UNIT")
	overrideString(&cfg.STT.FinalTimeUnit, "GLADIA_FINAL_TIME_UNIT")
	overrideString(&cfg.STT.TranslationModel, "GLADIA_TRANSLATION_MODEL")
	overrideString(&cfg.STT.TranslationLangMap, "GLADIA_TRANSLATION_LANG_MAP")
	overrideString(&cfg.STT.CustomVocabulary, "GLADIA_CUSTOM_VOCABULARY")
	overrideString(&cfg.STT.CustomSpelling, "GLADIA_CUSTOM_SPELLING")

	for _, o := range []struct {
		target *int
		key    string
	}{
		{&cfg.HTTP.Port, "SCRIBE_HTTP_PORT"},
		{&cfg.Archive.RetentionDays, "SCRIBE_ARCHIVE_RETENTION_DAYS"},
		{&cfg.Redis.Port, "REDIS_PORT"},
		{&cfg.STT.SampleRate, "GLADIA_SAMPLE_RATE"},
		{&cfg.STT.BitDepth, "GLADIA_BIT_DEPTH"},
		{&cfg.STT.Channels, "GLADIA_CHANNELS"},
	} {
		if err := overrideInt(o.target, o.key); err != nil {
			return err
		}
	}

	for _, o := range []struct {
		target *bool
		key    string
	}{
		{&cfg.Telemetry.OTLPInsecure, "SCRIBE_TELEMETRY_OTLP_INSECURE"},
		{&cfg.Agent.RoomEcho, "SCRIBE_ROOM_ECHO"},
		{&cfg.Archive.Ephemeral, "SCRIBE_ARCHIVE_EPHEMERAL"},
		{&cfg.STT.AudioEnhancer, "GLADIA_AUDIO_ENHANCER"},
		{&cfg.STT.EnergyFilter, "GLADIA_ENERGY_FILTER"},
		{&cfg.STT.PartialUtterances, "GLADIA_PARTIAL_UTTERANCES"},
		{&cfg.STT.Translation, "GLADIA_TRANSLATION"},
		{&cfg.STT.TranslationMatchOriginal, "GLADIA_TRANSLATION_MATCH_ORIGINAL"},
	} {
		if err := overrideBool(o.target, o.key); err != nil {
			return err
		}
	}

	// GLADIA_MIN_CONFIDENCE is the historical name for the shared floor;
	// GLADIA_CONFIDENCE_THRESHOLD wins when both are set.
	for _, o := range []struct {
		target *float64
		key    string
	}{
		{&cfg.STT.ConfidenceThreshold, "GLADIA_MIN_CONFIDENCE"},
		{&cfg.STT.ConfidenceThreshold, "GLADIA_CONFIDENCE_THRESHOLD"},
		{&cfg.STT.MinConfidenceInterim, "GLADIA_MIN_CONFIDENCE_INTERIM"},
		{&cfg.STT.MinConfidenceFinal, "GLADIA_MIN_CONFIDENCE_FINAL"},
		{&cfg.STT.Endpointing, "GLADIA_ENDPOINTING"},
		{&cfg.STT.MaxDurationWithoutEndpointing, "GLADIA_MAX_DURATION_WITHOUT_ENDPOINTING"},
		{&cfg.STT.SpeechThreshold, "GLADIA_SPEECH_THRESHOLD"},
		{&cfg.STT.MinUtteranceLength, "GLADIA_MIN_UTTERANCE_LENGTH"},
	} {
		if err := overrideFloat(o.target, o.key); err != nil {
			return err
		}
	}
	return nil
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

// overrideSecret keeps empty-string values, which are meaningful for
// passwords (explicitly no auth).
func overrideSecret(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		*target = value
	}
}

func overrideInt(target *int, envKey string) error {
	value, ok := os.LookupEnv(envKey)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return newError(envKey, fmt.Sprintf("must be an integer, got %q", value))
	}
	*target = parsed
	return nil
}

func overrideBool(target *bool, envKey string) error {
	value, ok := os.LookupEnv(envKey)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return newError(envKey, fmt.Sprintf("must be a boolean, got %q", value))
	}
	*target = parsed
	return nil
}

func overrideFloat(target *float64, envKey string) error {
	value, ok := os.LookupEnv(envKey)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return newError(envKey, fmt.Sprintf("must be a number, got %q", value))
	}
	*target = parsed
	return nil
}

func validate(cfg Config) error {
	if cfg.AgentName == "" {
		return newError("SCRIBE_AGENT_NAME", "must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return newError("SCRIBE_HTTP_PORT", "must be between 1 and 65535")
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return newError("SCRIBE_LOG_FORMAT", "must be one of json|console")
	}

	if cfg.LiveKit.URL == "" {
		return newError("LIVEKIT_URL", "must be set")
	}
	if !hasAnyPrefix(cfg.LiveKit.URL, "ws://", "wss://", "http://", "https://") {
		return newError("LIVEKIT_URL", fmt.Sprintf("must be a ws(s):// or http(s):// URL, got %q", cfg.LiveKit.URL))
	}
	if cfg.LiveKit.APIKey == "" {
		return newError("LIVEKIT_API_KEY", "must be set")
	}
	if cfg.LiveKit.APISecret == "" {
		return newError("LIVEKIT_API_SECRET", "must be set")
	}

	if cfg.Redis.Host == "" {
		return newError("REDIS_HOST", "must not be empty")
	}
	if cfg.Redis.Port <= 0 || cfg.Redis.Port > 65535 {
		return newError("REDIS_PORT", "must be between 1 and 65535")
	}

	if err := validateSTT(cfg.STT); err != nil {
		return err
	}

	if !cfg.Archive.Ephemeral && cfg.Archive.Path == "" {
		return newError("SCRIBE_ARCHIVE_PATH", "must not be empty when the archive is persistent")
	}
	if cfg.Archive.RetentionDays < 0 {
		return newError("SCRIBE_ARCHIVE_RETENTION_DAYS", "must be >= 0")
	}
	return nil
}

func validateSTT(stt STTConfig) error {
	if stt.APIKey == "" {
		return newError("GLADIA_API_KEY", "must be set")
	}
	if !hasAnyPrefix(stt.BaseURL, "http://", "https://") {
		return newError("GLADIA_BASE_URL", fmt.Sprintf("must be an http(s) URL, got %q", stt.BaseURL))
	}

	if err := checkUnitInterval("GLADIA_CONFIDENCE_THRESHOLD", stt.ConfidenceThreshold); err != nil {
		return err
	}
	if stt.MinConfidenceInterim != -1 {
		if err := checkUnitInterval("GLADIA_MIN_CONFIDENCE_INTERIM", stt.MinConfidenceInterim); err != nil {
			return err
		}
	}
	if stt.MinConfidenceFinal != -1 {
		if err := checkUnitInterval("GLADIA_MIN_CONFIDENCE_FINAL", stt.MinConfidenceFinal); err != nil {
			return err
		}
	}
	if err := checkUnitInterval("GLADIA_SPEECH_THRESHOLD", stt.SpeechThreshold); err != nil {
		return err
	}

	switch stt.Encoding {
	case "wav/pcm", "wav/alaw", "wav/ulaw":
	default:
		return newError("GLADIA_ENCODING", "must be one of wav/pcm|wav/alaw|wav/ulaw")
	}
	if stt.SampleRate <= 0 {
		return newError("GLADIA_SAMPLE_RATE", "must be positive")
	}
	switch stt.BitDepth {
	case 8, 16, 24, 32:
	default:
		return newError("GLADIA_BIT_DEPTH", "must be one of 8|16|24|32")
	}
	if stt.Channels <= 0 {
		return newError("GLADIA_CHANNELS", "must be positive")
	}
	switch stt.Region {
	case "", "us-west", "eu-west":
	default:
		return newError("GLADIA_REGION", "must be one of us-west|eu-west or empty")
	}
	if stt.Endpointing <= 0 {
		return newError("GLADIA_ENDPOINTING", "must be positive seconds")
	}
	if stt.MaxDurationWithoutEndpointing <= 0 {
		return newError("GLADIA_MAX_DURATION_WITHOUT_ENDPOINTING", "must be positive seconds")
	}
	if stt.MinUtteranceLength < 0 {
		return newError("GLADIA_MIN_UTTERANCE_LENGTH", "must be >= 0 seconds")
	}

	if err := checkTimeUnit("GLADIA_INTERIM_TIME_UNIT", stt.InterimTimeUnit); err != nil {
		return err
	}
	if err := checkTimeUnit("GLADIA_FINAL_TIME_UNIT", stt.FinalTimeUnit); err != nil {
		return err
	}

	for _, pair := range strings.Split(stt.TranslationLangMap, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if !strings.Contains(pair, ":") {
			return newError("GLADIA_TRANSLATION_LANG_MAP", fmt.Sprintf("entry %q must look like lang:locale", pair))
		}
	}

	if stt.CustomVocabulary != "" {
		var terms []any
		if err := json.Unmarshal([]byte(stt.CustomVocabulary), &terms); err != nil {
			return newError("GLADIA_CUSTOM_VOCABULARY", fmt.Sprintf("must be a JSON array: %v", err))
		}
	}
	if stt.CustomSpelling != "" {
		var spelling map[string]any
		if err := json.Unmarshal([]byte(stt.CustomSpelling), &spelling); err != nil {
			return newError("GLADIA_CUSTOM_SPELLING", fmt.Sprintf("must be a JSON object: %v", err))
		}
	}
	return nil
}

func checkUnitInterval(key string, v float64) error {
	if v < 0 || v > 1 {
		return newError(key, fmt.Sprintf("must be between 0 and 1, got %q", strconv.FormatFloat(v, 'g', -1, 64)))
	}
	return nil
}

func checkTimeUnit(key, unit string) error {
	switch unit {
	case "ms", "s":
		return nil
	default:
		return newError(key, fmt.Sprintf("must be ms or s, got %q", unit))
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

var secretKeyMarkers = []string{"api_key", "password", "secret", "token"}

// Redacted returns the configuration as a nested map with secret-bearing
// values masked, suitable for the startup log line.
func (c Config) Redacted() map[string]any {
	data, err := yaml.Marshal(c)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	redactMap(m)
	return m
}

func redactMap(m map[string]any) {
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			redactMap(nested)
			continue
		}
		if s, ok := v.(string); ok && s != "" && isSecretKey(k) {
			m[k] = "***REDACTED***"
		}
	}
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, marker := range secretKeyMarkers {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}
