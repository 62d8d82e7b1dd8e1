// Package config handles listener configuration
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
)

// Engine names.
const (
	EngineScorer = "scorer"
	EngineVosk   = "vosk"
	EngineGoogle = "google"
)

// Source names.
const (
	SourceDevice  = "device"
	SourceCommand = "command"
	SourceStdin   = "stdin"
)

// Protocol names.
const (
	ProtocolJSON  = "json"
	ProtocolToken = "token"
)

// Sample formats.
const (
	FormatF32 = "f32"
	FormatS16 = "s16"
)

// Config is read once at startup and never mutated afterwards.
// Durations are expressed in seconds.
type Config struct {
	WakePhrases []string `yaml:"wake_phrases"`
	ModelID     string   `yaml:"model_id"`

	SampleRate      int     `yaml:"sample_rate"`
	SampleFormat    string  `yaml:"sample_format"`
	ChunkSize       int     `yaml:"chunk_size"`
	QueueCapacity   int     `yaml:"queue_capacity"`
	QueuePopTimeout float64 `yaml:"queue_pop_timeout"`

	Engine         string  `yaml:"engine"`
	ScorerAddr     string  `yaml:"scorer_addr"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	VoskURL        string  `yaml:"vosk_url"`
	GoogleLanguage string  `yaml:"google_language"`

	MinConfidence           float64 `yaml:"min_confidence"`
	MinWordDuration         float64 `yaml:"min_word_duration"`
	WakeConfirmationCount   int     `yaml:"wake_confirmation_count"`
	WakeConfirmationWindow  float64 `yaml:"wake_confirmation_window"`
	WakeCooldown            float64 `yaml:"wake_cooldown"`
	HighConfidenceThreshold float64 `yaml:"high_confidence_threshold"`

	AmplifyEnabled        bool    `yaml:"amplify_enabled"`
	AmplifyGain           float64 `yaml:"amplify_gain"`
	NoiseReductionEnabled bool    `yaml:"noise_reduction_enabled"`
	ConditionMinInterval  float64 `yaml:"condition_min_interval"`

	HeartbeatInterval        float64 `yaml:"heartbeat_interval"`
	ConfidenceReportInterval float64 `yaml:"confidence_report_interval"`
	ConfidenceBufferSize     int     `yaml:"confidence_buffer_size"`

	Protocol             string   `yaml:"protocol"`
	Source               string   `yaml:"source"`
	SourceCommand        string   `yaml:"source_command"`
	AudioDevice          string   `yaml:"audio_device"`
	ExcludedAudioDevices []string `yaml:"excluded_audio_devices"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		WakePhrases:              []string{"apollo"},
		ModelID:                  "apollo",
		SampleRate:               16000,
		SampleFormat:             FormatF32,
		ChunkSize:                1280,
		QueueCapacity:            5,
		QueuePopTimeout:          0.1,
		Engine:                   EngineScorer,
		ScorerAddr:               "localhost:50051",
		ScoreThreshold:           0.1,
		VoskURL:                  "ws://localhost:2700",
		GoogleLanguage:           "en-US",
		MinConfidence:            0.1,
		MinWordDuration:          0.15,
		WakeConfirmationCount:    1,
		WakeConfirmationWindow:   2.0,
		WakeCooldown:             2.0,
		HighConfidenceThreshold:  0.9,
		AmplifyGain:              2.0,
		ConditionMinInterval:     0.05,
		HeartbeatInterval:        30,
		ConfidenceReportInterval: 1,
		ConfidenceBufferSize:     100,
		Protocol:                 ProtocolJSON,
		Source:                   SourceDevice,
		SourceCommand:            "arecord -q -f S16_LE -r 16000 -c 1 -t raw",
		ExcludedAudioDevices:     []string{"iphone", "teams"},
		LogLevel:                 "info",
	}
}

// Load builds the configuration from defaults, an optional YAML file, an optional .env file
// and the process environment, in that order of increasing precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// .env is optional; a missing file is not an error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, apperrors.Wrap(err, apperrors.ConfigInvalid, "failed to read .env")
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ConfigInvalid, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return apperrors.Wrapf(err, apperrors.ConfigInvalid, "failed to parse config file %s", path)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.WakePhrases = getEnvList("WAKE_PHRASES", c.WakePhrases)
	c.ModelID = getEnv("MODEL_ID", c.ModelID)
	c.SampleRate = getEnvInt("SAMPLE_RATE", c.SampleRate)
	c.SampleFormat = getEnv("SAMPLE_FORMAT", c.SampleFormat)
	c.ChunkSize = getEnvInt("CHUNK_SIZE", c.ChunkSize)
	c.QueueCapacity = getEnvInt("QUEUE_CAPACITY", c.QueueCapacity)
	c.QueuePopTimeout = getEnvFloat("QUEUE_POP_TIMEOUT", c.QueuePopTimeout)
	c.Engine = getEnv("ENGINE", c.Engine)
	c.ScorerAddr = getEnv("SCORER_ADDR", c.ScorerAddr)
	c.ScoreThreshold = getEnvFloat("SCORE_THRESHOLD", c.ScoreThreshold)
	c.VoskURL = getEnv("VOSK_URL", c.VoskURL)
	c.GoogleLanguage = getEnv("GOOGLE_LANGUAGE", c.GoogleLanguage)
	c.MinConfidence = getEnvFloat("MIN_CONFIDENCE", c.MinConfidence)
	c.MinWordDuration = getEnvFloat("MIN_WORD_DURATION", c.MinWordDuration)
	c.WakeConfirmationCount = getEnvInt("WAKE_CONFIRMATION_COUNT", c.WakeConfirmationCount)
	c.WakeConfirmationWindow = getEnvFloat("WAKE_CONFIRMATION_WINDOW", c.WakeConfirmationWindow)
	c.WakeCooldown = getEnvFloat("WAKE_COOLDOWN", c.WakeCooldown)
	c.HighConfidenceThreshold = getEnvFloat("HIGH_CONFIDENCE_THRESHOLD", c.HighConfidenceThreshold)
	c.AmplifyEnabled = getEnvBool("AMPLIFY_ENABLED", c.AmplifyEnabled)
	c.AmplifyGain = getEnvFloat("AMPLIFY_GAIN", c.AmplifyGain)
	c.NoiseReductionEnabled = getEnvBool("NOISE_REDUCTION_ENABLED", c.NoiseReductionEnabled)
	c.ConditionMinInterval = getEnvFloat("CONDITION_MIN_INTERVAL", c.ConditionMinInterval)
	c.HeartbeatInterval = getEnvFloat("HEARTBEAT_INTERVAL", c.HeartbeatInterval)
	c.ConfidenceReportInterval = getEnvFloat("CONFIDENCE_REPORT_INTERVAL", c.ConfidenceReportInterval)
	c.ConfidenceBufferSize = getEnvInt("CONFIDENCE_BUFFER_SIZE", c.ConfidenceBufferSize)
	c.Protocol = getEnv("PROTOCOL", c.Protocol)
	c.Source = getEnv("SOURCE", c.Source)
	c.SourceCommand = getEnv("SOURCE_COMMAND", c.SourceCommand)
	c.AudioDevice = getEnv("AUDIO_DEVICE", c.AudioDevice)
	c.ExcludedAudioDevices = getEnvList("EXCLUDED_AUDIO_DEVICES", c.ExcludedAudioDevices)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(len(c.WakePhrases) > 0, "at least one wake phrase is required")
	check(c.SampleRate > 0, "sample_rate must be positive, got %d", c.SampleRate)
	check(c.ChunkSize > 0, "chunk_size must be positive, got %d", c.ChunkSize)
	check(c.QueueCapacity > 0, "queue_capacity must be positive, got %d", c.QueueCapacity)
	check(c.QueuePopTimeout > 0, "queue_pop_timeout must be positive")
	check(c.WakeConfirmationCount >= 1, "wake_confirmation_count must be at least 1")
	check(c.WakeConfirmationWindow >= 0, "wake_confirmation_window must not be negative")
	check(c.WakeCooldown >= 0, "wake_cooldown must not be negative")
	check(inUnit(c.MinConfidence), "min_confidence must be within [0,1]")
	check(inUnit(c.ScoreThreshold), "score_threshold must be within [0,1]")
	check(inUnit(c.HighConfidenceThreshold), "high_confidence_threshold must be within [0,1]")
	check(c.MinWordDuration >= 0, "min_word_duration must not be negative")
	check(c.AmplifyGain > 0, "amplify_gain must be positive")
	check(c.ConfidenceBufferSize > 0, "confidence_buffer_size must be positive")
	check(oneOf(c.SampleFormat, FormatF32, FormatS16), "unknown sample_format %q", c.SampleFormat)
	check(oneOf(c.Engine, EngineScorer, EngineVosk, EngineGoogle), "unknown engine %q", c.Engine)
	check(oneOf(c.Source, SourceDevice, SourceCommand, SourceStdin), "unknown source %q", c.Source)
	check(oneOf(c.Protocol, ProtocolJSON, ProtocolToken), "unknown protocol %q", c.Protocol)
	check(c.Source != SourceCommand || strings.TrimSpace(c.SourceCommand) != "", "source_command is required for the command source")

	if len(problems) > 0 {
		return apperrors.New(apperrors.ConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Seconds converts a seconds value from the config into a time.Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
