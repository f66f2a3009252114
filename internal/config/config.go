package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/parleylabs/parley-core/internal/language"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName  string             `yaml:"runtime_name"`
	Environment  string             `yaml:"environment"`
	HTTP         HTTPConfig         `yaml:"http"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Bus          BusConfig          `yaml:"bus"`
	Capture      CaptureConfig      `yaml:"capture"`
	Translate    TranslateConfig    `yaml:"translate"`
	LLM          LLMConfig          `yaml:"llm"`
	TTS          TTSConfig          `yaml:"tts"`
	Playback     PlaybackConfig     `yaml:"playback"`
	Conversation ConversationConfig `yaml:"conversation"`
	History      HistoryConfig      `yaml:"history"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type CaptureConfig struct {
	Mode          string `yaml:"mode"`       // mic, mock
	Recognizer    string `yaml:"recognizer"` // google, deepgram, exec, mock
	Command       string `yaml:"command"`
	Endpoint      string `yaml:"endpoint"`
	SampleRate    int    `yaml:"sample_rate"`
	WaitTimeoutMS int    `yaml:"wait_timeout_ms"`
	PhraseLimitMS int    `yaml:"phrase_limit_ms"`
	CalibrationMS int    `yaml:"calibration_ms"`
	SilenceMS     int    `yaml:"silence_ms"`
	APIKey        string `yaml:"-"`
}

type TranslateConfig struct {
	Mode      string `yaml:"mode"` // google, mock
	Endpoint  string `yaml:"endpoint"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type LLMConfig struct {
	Mode        string  `yaml:"mode"` // gemini, openai, ollama, exec, mock
	Model       string  `yaml:"model"`
	Endpoint    string  `yaml:"endpoint"`
	Command     string  `yaml:"command"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutMS   int     `yaml:"timeout_ms"`
	APIKey      string  `yaml:"-"`
}

type TTSConfig struct {
	Mode      string `yaml:"mode"` // google, elevenlabs, exec, mock
	Endpoint  string `yaml:"endpoint"`
	Voice     string `yaml:"voice"`
	Command   string `yaml:"command"`
	TimeoutMS int    `yaml:"timeout_ms"`
	APIKey    string `yaml:"-"`
}

type PlaybackConfig struct {
	Mode    string `yaml:"mode"` // oto, exec, mock
	Command string `yaml:"command"`
}

type ConversationConfig struct {
	InputLanguage  string `yaml:"input_language"`
	OutputLanguage string `yaml:"output_language"`
	TurnPauseMS    int    `yaml:"turn_pause_ms"`
	AutoStart      bool   `yaml:"auto_start"`
}

type HistoryConfig struct {
	Path             string `yaml:"path"`
	RetentionMode    string `yaml:"retention_mode"`
	RetentionDays    int    `yaml:"retention_days"`
	MaxConversations int    `yaml:"max_conversations"`
	VacuumOnStart    bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "parley-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Capture: CaptureConfig{
			Mode:          "mock",
			Recognizer:    "mock",
			SampleRate:    16000,
			WaitTimeoutMS: 2000,
			PhraseLimitMS: 5000,
			CalibrationMS: 500,
			SilenceMS:     800,
		},
		Translate: TranslateConfig{
			Mode:      "google",
			TimeoutMS: 10000,
		},
		LLM: LLMConfig{
			Mode:        "mock",
			Model:       "gemini-1.5-flash",
			MaxTokens:   256,
			Temperature: 0.7,
			TimeoutMS:   30000,
		},
		TTS: TTSConfig{
			Mode:      "mock",
			TimeoutMS: 15000,
		},
		Playback: PlaybackConfig{
			Mode:    "mock",
			Command: "ffplay -nodisp -autoexit -loglevel error",
		},
		Conversation: ConversationConfig{
			InputLanguage:  "English",
			OutputLanguage: "English",
			TurnPauseMS:    500,
		},
		History: HistoryConfig{
			Path:             "./data/parley-history.db",
			RetentionMode:    "session",
			RetentionDays:    30,
			MaxConversations: 10000,
		},
	}
}

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

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "PARLEY_RUNTIME_NAME")
	overrideString(&cfg.Environment, "PARLEY_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PARLEY_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PARLEY_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PARLEY_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PARLEY_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PARLEY_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "PARLEY_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PARLEY_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "PARLEY_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PARLEY_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PARLEY_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PARLEY_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "PARLEY_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "PARLEY_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Capture.Mode, "PARLEY_CAPTURE_MODE")
	overrideString(&cfg.Capture.Recognizer, "PARLEY_CAPTURE_RECOGNIZER")
	overrideString(&cfg.Capture.Command, "PARLEY_CAPTURE_COMMAND")
	overrideString(&cfg.Capture.Endpoint, "PARLEY_CAPTURE_ENDPOINT")
	overrideInt(&cfg.Capture.SampleRate, "PARLEY_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.WaitTimeoutMS, "PARLEY_CAPTURE_WAIT_TIMEOUT_MS")
	overrideInt(&cfg.Capture.PhraseLimitMS, "PARLEY_CAPTURE_PHRASE_LIMIT_MS")
	overrideInt(&cfg.Capture.CalibrationMS, "PARLEY_CAPTURE_CALIBRATION_MS")
	overrideInt(&cfg.Capture.SilenceMS, "PARLEY_CAPTURE_SILENCE_MS")
	overrideString(&cfg.Translate.Mode, "PARLEY_TRANSLATE_MODE")
	overrideString(&cfg.Translate.Endpoint, "PARLEY_TRANSLATE_ENDPOINT")
	overrideInt(&cfg.Translate.TimeoutMS, "PARLEY_TRANSLATE_TIMEOUT_MS")
	overrideString(&cfg.LLM.Mode, "PARLEY_LLM_MODE")
	overrideString(&cfg.LLM.Model, "PARLEY_LLM_MODEL")
	overrideString(&cfg.LLM.Endpoint, "PARLEY_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "PARLEY_LLM_COMMAND")
	overrideInt(&cfg.LLM.MaxTokens, "PARLEY_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "PARLEY_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.TimeoutMS, "PARLEY_LLM_TIMEOUT_MS")
	overrideString(&cfg.TTS.Mode, "PARLEY_TTS_MODE")
	overrideString(&cfg.TTS.Endpoint, "PARLEY_TTS_ENDPOINT")
	overrideString(&cfg.TTS.Voice, "PARLEY_TTS_VOICE")
	overrideString(&cfg.TTS.Command, "PARLEY_TTS_COMMAND")
	overrideInt(&cfg.TTS.TimeoutMS, "PARLEY_TTS_TIMEOUT_MS")
	overrideString(&cfg.Playback.Mode, "PARLEY_PLAYBACK_MODE")
	overrideString(&cfg.Playback.Command, "PARLEY_PLAYBACK_COMMAND")
	overrideString(&cfg.Conversation.InputLanguage, "PARLEY_CONVERSATION_INPUT_LANGUAGE")
	overrideString(&cfg.Conversation.OutputLanguage, "PARLEY_CONVERSATION_OUTPUT_LANGUAGE")
	overrideInt(&cfg.Conversation.TurnPauseMS, "PARLEY_CONVERSATION_TURN_PAUSE_MS")
	overrideBool(&cfg.Conversation.AutoStart, "PARLEY_CONVERSATION_AUTO_START")
	overrideString(&cfg.History.Path, "PARLEY_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "PARLEY_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.RetentionDays, "PARLEY_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxConversations, "PARLEY_HISTORY_MAX_CONVERSATIONS")
	overrideBool(&cfg.History.VacuumOnStart, "PARLEY_HISTORY_VACUUM_ON_START")
}

// loadSecrets pulls provider credentials from their canonical environment
// variables. Credentials are never read from the YAML file.
func loadSecrets(cfg *Config) {
	switch cfg.LLM.Mode {
	case "gemini":
		cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	case "openai":
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	switch cfg.Capture.Recognizer {
	case "google":
		cfg.Capture.APIKey = os.Getenv("GOOGLE_API_KEY")
	case "deepgram":
		cfg.Capture.APIKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if cfg.TTS.Mode == "elevenlabs" {
		cfg.TTS.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	}
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Capture.Mode {
	case "mic", "mock":
	default:
		return errors.New("capture.mode must be one of mic|mock")
	}
	switch cfg.Capture.Recognizer {
	case "google", "deepgram", "exec", "mock":
	default:
		return errors.New("capture.recognizer must be one of google|deepgram|exec|mock")
	}
	if cfg.Capture.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if cfg.Capture.WaitTimeoutMS <= 0 {
		return errors.New("capture.wait_timeout_ms must be positive")
	}
	if cfg.Capture.PhraseLimitMS <= 0 {
		return errors.New("capture.phrase_limit_ms must be positive")
	}
	if cfg.Capture.CalibrationMS < 0 {
		return errors.New("capture.calibration_ms must be >= 0")
	}
	if cfg.Capture.SilenceMS < 0 {
		return errors.New("capture.silence_ms must be >= 0")
	}
	if cfg.Capture.Recognizer == "exec" && cfg.Capture.Command == "" {
		return errors.New("capture.command must be set when recognizer=exec")
	}
	if cfg.Capture.Recognizer == "google" && cfg.Capture.APIKey == "" {
		return errors.New("GOOGLE_API_KEY must be set when capture.recognizer=google")
	}
	if cfg.Capture.Recognizer == "deepgram" && cfg.Capture.APIKey == "" {
		return errors.New("DEEPGRAM_API_KEY must be set when capture.recognizer=deepgram")
	}
	switch cfg.Translate.Mode {
	case "google", "mock":
	default:
		return errors.New("translate.mode must be one of google|mock")
	}
	switch cfg.LLM.Mode {
	case "gemini", "openai", "ollama", "exec", "mock":
	default:
		return errors.New("llm.mode must be one of gemini|openai|ollama|exec|mock")
	}
	if cfg.LLM.Mode == "gemini" && cfg.LLM.APIKey == "" {
		return errors.New("GEMINI_API_KEY must be set when llm.mode=gemini")
	}
	if cfg.LLM.Mode == "openai" && cfg.LLM.APIKey == "" {
		return errors.New("OPENAI_API_KEY must be set when llm.mode=openai")
	}
	if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
		return errors.New("llm.command must be set when mode=exec")
	}
	if cfg.LLM.Model == "" {
		return errors.New("llm.model must not be empty")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	switch cfg.TTS.Mode {
	case "google", "elevenlabs", "exec", "mock":
	default:
		return errors.New("tts.mode must be one of google|elevenlabs|exec|mock")
	}
	if cfg.TTS.Mode == "elevenlabs" {
		if cfg.TTS.APIKey == "" {
			return errors.New("ELEVENLABS_API_KEY must be set when tts.mode=elevenlabs")
		}
		if cfg.TTS.Voice == "" {
			return errors.New("tts.voice must be set when tts.mode=elevenlabs")
		}
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	switch cfg.Playback.Mode {
	case "oto", "exec", "mock":
	default:
		return errors.New("playback.mode must be one of oto|exec|mock")
	}
	if cfg.Playback.Mode == "exec" && cfg.Playback.Command == "" {
		return errors.New("playback.command must be set when mode=exec")
	}
	if _, err := language.Lookup(cfg.Conversation.InputLanguage); err != nil {
		return fmt.Errorf("conversation.input_language: %w", err)
	}
	if _, err := language.Lookup(cfg.Conversation.OutputLanguage); err != nil {
		return fmt.Errorf("conversation.output_language: %w", err)
	}
	if cfg.Conversation.TurnPauseMS < 0 {
		return errors.New("conversation.turn_pause_ms must be >= 0")
	}
	if cfg.History.Path == "" {
		return errors.New("history.path must not be empty")
	}
	switch cfg.History.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("history.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	return nil
}
