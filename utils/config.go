package utils

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds the service settings. Values come from the environment
// (after .env is loaded) and fall back to the defaults below.
type Config struct {
	Port          string
	RedisHost     string
	RedisPassword string
	LogLevel      string

	OpenAIAPIKey   string
	OpenAIModel    string
	DeepgramAPIKey string
	PineconeAPIKey string
	PineconeIndex  string

	// CaptureSource is "client" (frames pushed over the websocket) or
	// "camera" (local ffmpeg capture).
	CaptureSource  string
	CameraDevice   int
	// CameraInterval is how often the local camera is captured.
	CameraInterval time.Duration

	WordDuration        time.Duration
	RestPadding         time.Duration
	ConfidenceThreshold float64
	SampleInterval      time.Duration
	FrameInterval       time.Duration
	HeartbeatInterval   time.Duration
	ChatHistoryTTL      time.Duration
	FallbackReply       string
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("REDIS_HOST", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("CAPTURE_SOURCE", "client")
	v.SetDefault("CAMERA_DEVICE", 0)
	v.SetDefault("CAMERA_INTERVAL", 500*time.Millisecond)
	v.SetDefault("WORD_DURATION", 500*time.Millisecond)
	v.SetDefault("REST_PADDING", 500*time.Millisecond)
	v.SetDefault("CONFIDENCE_THRESHOLD", DefaultConfidenceThreshold)
	v.SetDefault("SAMPLE_INTERVAL", 100*time.Millisecond)
	v.SetDefault("FRAME_INTERVAL", DefaultFrameInterval)
	v.SetDefault("HEARTBEAT_INTERVAL", 30*time.Second)
	v.SetDefault("CHAT_HISTORY_TTL", 24*time.Hour)
	v.SetDefault("FALLBACK_REPLY", "Sorry, I could not come up with a reply right now.")
}

func LoadConfig() *Config {
	v := viper.New()
	setConfigDefaults(v)
	v.AutomaticEnv()
	return configFromViper(v)
}

func configFromViper(v *viper.Viper) *Config {
	return &Config{
		Port:                v.GetString("PORT"),
		RedisHost:           v.GetString("REDIS_HOST"),
		RedisPassword:       v.GetString("REDIS_PASSWORD"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		OpenAIAPIKey:        v.GetString("OPENAI_API_KEY"),
		OpenAIModel:         v.GetString("OPENAI_MODEL"),
		DeepgramAPIKey:      v.GetString("DEEPGRAM_API_KEY"),
		PineconeAPIKey:      v.GetString("PINECONE_API_KEY"),
		PineconeIndex:       v.GetString("PINECONE_INDEX"),
		CaptureSource:       v.GetString("CAPTURE_SOURCE"),
		CameraDevice:        v.GetInt("CAMERA_DEVICE"),
		CameraInterval:      v.GetDuration("CAMERA_INTERVAL"),
		WordDuration:        v.GetDuration("WORD_DURATION"),
		RestPadding:         v.GetDuration("REST_PADDING"),
		ConfidenceThreshold: v.GetFloat64("CONFIDENCE_THRESHOLD"),
		SampleInterval:      v.GetDuration("SAMPLE_INTERVAL"),
		FrameInterval:       v.GetDuration("FRAME_INTERVAL"),
		HeartbeatInterval:   v.GetDuration("HEARTBEAT_INTERVAL"),
		ChatHistoryTTL:      v.GetDuration("CHAT_HISTORY_TTL"),
		FallbackReply:       v.GetString("FALLBACK_REPLY"),
	}
}

func (c *Config) SynthesizerConfig() SynthesizerConfig {
	sc := DefaultSynthesizerConfig()
	if c.WordDuration > 0 {
		sc.WordDuration = c.WordDuration
	}
	if c.RestPadding > 0 {
		sc.RestPadding = c.RestPadding
	}
	return sc
}

func (c *Config) GestureQueueConfig() GestureQueueConfig {
	qc := DefaultGestureQueueConfig()
	if c.ConfidenceThreshold > 0 {
		qc.ConfidenceThreshold = c.ConfidenceThreshold
	}
	return qc
}
