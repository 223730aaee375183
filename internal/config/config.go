package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/satriahrh/interview-coach/domain/entities"
)

// DotEnvPath is the optional dotenv file loaded before environment overrides
var DotEnvPath = ".env"

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`

	// AuthSecret enables bearer token checks on the control API when set
	AuthSecret string `yaml:"auth_secret"`
}

type BackendConfig struct {
	BaseURL         string `yaml:"base_url"`
	TokenTimeoutMS  int    `yaml:"token_timeout_ms"`
	ReportTimeoutMS int    `yaml:"report_timeout_ms"`
}

type LiveConfig struct {
	Mode           string `yaml:"mode"` // gemini, mock
	Model          string `yaml:"model"`
	APIVersion     string `yaml:"api_version"`
	EndFunction    string `yaml:"end_function"`
	MockReplyAfter int    `yaml:"mock_reply_after"`
	MockEndAfterMS int    `yaml:"mock_end_after_ms"`
}

type AudioConfig struct {
	PCMSampleRate    int `yaml:"pcm_sample_rate"`
	OutputSampleRate int `yaml:"output_sample_rate"`
	MicSampleRate    int `yaml:"mic_sample_rate"`
	BufferSize       int `yaml:"buffer_size"`
	QueueMaxLength   int `yaml:"queue_max_length"`
	QueueTTLMS       int `yaml:"queue_ttl_ms"`
	PlaybackLeadMS   int `yaml:"playback_lead_ms"`
}

type SessionConfig struct {
	ShutdownDelayMS   int `yaml:"shutdown_delay_ms"`
	PlayerStopDelayMS int `yaml:"player_stop_delay_ms"`
}

type VADConfig struct {
	Threshold  float64 `yaml:"threshold"`
	DebounceMS int     `yaml:"debounce_ms"`
	HangoverMS int     `yaml:"hangover_ms"`
}

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// InterviewConfig seeds the interview context for headless runs
type InterviewConfig struct {
	ResumeFile     string `yaml:"resume_file"`
	JobDescription string `yaml:"job_description"`
	ReportID       string `yaml:"report_id"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Backend   BackendConfig   `yaml:"backend"`
	Live      LiveConfig      `yaml:"live"`
	Audio     AudioConfig     `yaml:"audio"`
	Session   SessionConfig   `yaml:"session"`
	VAD       VADConfig       `yaml:"vad"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Interview InterviewConfig `yaml:"interview"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Backend: BackendConfig{
			BaseURL:         "http://localhost:8000",
			TokenTimeoutMS:  15000,
			ReportTimeoutMS: 300000,
		},
		Live: LiveConfig{
			Mode:           "gemini",
			Model:          "gemini-2.5-flash-native-audio-preview-12-2025",
			APIVersion:     "v1alpha",
			EndFunction:    "end_interview",
			MockReplyAfter: 25,
		},
		Audio: AudioConfig{
			PCMSampleRate:    16000,
			OutputSampleRate: 24000,
			MicSampleRate:    48000,
			BufferSize:       4096,
			QueueMaxLength:   100,
			QueueTTLMS:       5000,
			PlaybackLeadMS:   20,
		},
		Session: SessionConfig{
			ShutdownDelayMS:   2000,
			PlayerStopDelayMS: 500,
		},
		VAD: VADConfig{
			Threshold:  0.02,
			DebounceMS: 60,
			HangoverMS: 800,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
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

	// dotenv never overrides variables already set in the process
	if err := godotenv.Load(DotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load dotenv file: %w", err)
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.HTTP.Bind, "INTERVIEW_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "INTERVIEW_HTTP_PORT")
	overrideInt(&cfg.HTTP.Port, "PORT")
	overrideString(&cfg.HTTP.AuthSecret, "INTERVIEW_HTTP_AUTH_SECRET")
	overrideString(&cfg.Backend.BaseURL, "INTERVIEW_BACKEND_BASE_URL")
	overrideInt(&cfg.Backend.TokenTimeoutMS, "INTERVIEW_BACKEND_TOKEN_TIMEOUT_MS")
	overrideInt(&cfg.Backend.ReportTimeoutMS, "INTERVIEW_BACKEND_REPORT_TIMEOUT_MS")
	overrideString(&cfg.Live.Mode, "INTERVIEW_LIVE_MODE")
	overrideString(&cfg.Live.Model, "INTERVIEW_LIVE_MODEL")
	overrideString(&cfg.Live.APIVersion, "INTERVIEW_LIVE_API_VERSION")
	overrideString(&cfg.Live.EndFunction, "INTERVIEW_LIVE_END_FUNCTION")
	overrideInt(&cfg.Live.MockReplyAfter, "INTERVIEW_LIVE_MOCK_REPLY_AFTER")
	overrideInt(&cfg.Live.MockEndAfterMS, "INTERVIEW_LIVE_MOCK_END_AFTER_MS")
	overrideInt(&cfg.Audio.PCMSampleRate, "INTERVIEW_AUDIO_PCM_SAMPLE_RATE")
	overrideInt(&cfg.Audio.OutputSampleRate, "INTERVIEW_AUDIO_OUTPUT_SAMPLE_RATE")
	overrideInt(&cfg.Audio.MicSampleRate, "INTERVIEW_AUDIO_MIC_SAMPLE_RATE")
	overrideInt(&cfg.Audio.BufferSize, "INTERVIEW_AUDIO_BUFFER_SIZE")
	overrideInt(&cfg.Audio.QueueMaxLength, "INTERVIEW_AUDIO_QUEUE_MAX_LENGTH")
	overrideInt(&cfg.Audio.QueueTTLMS, "INTERVIEW_AUDIO_QUEUE_TTL_MS")
	overrideInt(&cfg.Audio.PlaybackLeadMS, "INTERVIEW_AUDIO_PLAYBACK_LEAD_MS")
	overrideInt(&cfg.Session.ShutdownDelayMS, "INTERVIEW_SESSION_SHUTDOWN_DELAY_MS")
	overrideInt(&cfg.Session.PlayerStopDelayMS, "INTERVIEW_SESSION_PLAYER_STOP_DELAY_MS")
	overrideFloat(&cfg.VAD.Threshold, "INTERVIEW_VAD_THRESHOLD")
	overrideInt(&cfg.VAD.DebounceMS, "INTERVIEW_VAD_DEBOUNCE_MS")
	overrideInt(&cfg.VAD.HangoverMS, "INTERVIEW_VAD_HANGOVER_MS")
	overrideString(&cfg.Telemetry.LogLevel, "INTERVIEW_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogLevel, "LOG_LEVEL")
	overrideBool(&cfg.Telemetry.MetricsEnabled, "INTERVIEW_METRICS_ENABLED")
	overrideString(&cfg.Interview.ResumeFile, "INTERVIEW_RESUME_FILE")
	overrideString(&cfg.Interview.JobDescription, "INTERVIEW_JOB_DESCRIPTION")
	overrideString(&cfg.Interview.ReportID, "INTERVIEW_REPORT_ID")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url must not be empty")
	}
	if c.Backend.TokenTimeoutMS <= 0 || c.Backend.ReportTimeoutMS <= 0 {
		return errors.New("backend timeouts must be positive")
	}
	switch c.Live.Mode {
	case "gemini", "mock":
	default:
		return errors.New("live.mode must be one of gemini|mock")
	}
	if c.Live.EndFunction == "" {
		return errors.New("live.end_function must not be empty")
	}
	if c.Audio.PCMSampleRate <= 0 || c.Audio.OutputSampleRate <= 0 || c.Audio.MicSampleRate <= 0 {
		return errors.New("audio sample rates must be positive")
	}
	if c.Audio.BufferSize <= 0 {
		return errors.New("audio.buffer_size must be positive")
	}
	if c.Audio.QueueMaxLength <= 0 || c.Audio.QueueTTLMS <= 0 {
		return errors.New("audio queue length and ttl must be positive")
	}
	if c.Audio.PlaybackLeadMS < 0 {
		return errors.New("audio.playback_lead_ms must be >= 0")
	}
	if c.Session.ShutdownDelayMS <= 0 || c.Session.PlayerStopDelayMS <= 0 {
		return errors.New("session delays must be positive")
	}
	if c.VAD.Threshold <= 0 || c.VAD.Threshold > 1 {
		return errors.New("vad.threshold must be within (0, 1]")
	}
	if c.VAD.DebounceMS < 0 || c.VAD.HangoverMS < 0 {
		return errors.New("vad debounce and hangover must be >= 0")
	}
	return nil
}

// Addr is the listen address for the HTTP server
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Bind, c.HTTP.Port)
}

func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// InterviewContext reads the configured resume file and builds the interview context.
// An unset resume file yields an empty, not-ready interview.
func (c Config) InterviewContext() (entities.Interview, error) {
	interview := entities.Interview{
		JobDescription: c.Interview.JobDescription,
		ReportID:       c.Interview.ReportID,
	}
	if c.Interview.ResumeFile == "" {
		return interview, nil
	}

	data, err := os.ReadFile(c.Interview.ResumeFile)
	if err != nil {
		return interview, fmt.Errorf("failed to read resume file: %w", err)
	}
	interview.ResumeText = string(data)
	if err := interview.Validate(); err != nil {
		return interview, err
	}
	return interview, nil
}
