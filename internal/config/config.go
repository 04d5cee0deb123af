package config

import (
	"time"

	"github.com/edumint/edumint-backend/internal/logger"
	"github.com/edumint/edumint-backend/internal/utils"
)

// Config is built once at process start and passed into every component
// constructor. No component reads ambient environment state after startup.
type Config struct {
	Environment string
	HTTPPort    string

	// Gemini backend
	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiTextModel  string
	GeminiCodeModel  string
	GeminiTTSModel   string
	GeminiMaxRetries int
	GeminiTimeout    time.Duration

	// Document store
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresName     string
	StoreMaxRetries  int
	StoreRetryDelay  time.Duration

	// Blob store
	AudioBucketName string
	AudioCDNDomain  string

	// Redis (optional read-through cache; empty addr disables it)
	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	// Curriculum
	CurriculumCSVPath string

	// Audio pipeline
	TTSEnabled        bool
	TeacherVoice      string
	StudentVoice      string
	AudioWorkDir      string
	FFmpegPath        string
	AudioMP3Bitrate   string
	GenerationTimeout time.Duration
}

func Load(log *logger.Logger) Config {
	cfg := Config{
		Environment: utils.GetEnv("ENVIRONMENT", "development", log),
		HTTPPort:    utils.GetEnv("HTTP_PORT", "8080", log),

		GeminiAPIKey:     utils.GetEnv("GEMINI_API_KEY", "", log),
		GeminiBaseURL:    utils.GetEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com", log),
		GeminiTextModel:  utils.GetEnv("GEMINI_TEXT_MODEL", "gemini-2.0-flash-001", log),
		GeminiCodeModel:  utils.GetEnv("GEMINI_CODE_MODEL", "gemini-2.5-pro-preview-06-05", log),
		GeminiTTSModel:   utils.GetEnv("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts", log),
		GeminiMaxRetries: utils.GetEnvAsInt("GEMINI_MAX_RETRIES", 3, log),
		GeminiTimeout:    time.Duration(utils.GetEnvAsInt("GEMINI_TIMEOUT_SECONDS", 120, log)) * time.Second,

		PostgresHost:     utils.GetEnv("POSTGRES_HOST", "localhost", log),
		PostgresPort:     utils.GetEnv("POSTGRES_PORT", "5432", log),
		PostgresUser:     utils.GetEnv("POSTGRES_USER", "postgres", log),
		PostgresPassword: utils.GetEnv("POSTGRES_PASSWORD", "", log),
		PostgresName:     utils.GetEnv("POSTGRES_NAME", "edumint", log),
		StoreMaxRetries:  utils.GetEnvAsInt("STORE_MAX_RETRY_ATTEMPTS", 3, log),
		StoreRetryDelay:  time.Duration(utils.GetEnvAsInt("STORE_RETRY_DELAY_MS", 1000, log)) * time.Millisecond,

		AudioBucketName: utils.GetEnv("AUDIO_GCS_BUCKET_NAME", "", log),
		AudioCDNDomain:  utils.GetEnv("AUDIO_CDN_DOMAIN", "", log),

		RedisAddr:     utils.GetEnv("REDIS_ADDR", "", log),
		RedisPassword: utils.GetEnv("REDIS_PASSWORD", "", log),
		CacheTTL:      time.Duration(utils.GetEnvAsInt("CACHE_TTL_SECONDS", 300, log)) * time.Second,

		CurriculumCSVPath: utils.GetEnv("CURRICULUM_CSV_PATH", "", log),

		TTSEnabled:        utils.GetEnvAsBool("ENABLE_TTS", false, log),
		TeacherVoice:      utils.GetEnv("DEFAULT_TEACHER_VOICE", "Zephyr", log),
		StudentVoice:      utils.GetEnv("DEFAULT_STUDENT_VOICE", "Puck", log),
		AudioWorkDir:      utils.GetEnv("AUDIO_WORK_DIR", "/tmp/edumint-audio", log),
		FFmpegPath:        utils.GetEnv("FFMPEG_PATH", "ffmpeg", log),
		AudioMP3Bitrate:   utils.GetEnv("AUDIO_MP3_BITRATE", "128k", log),
		GenerationTimeout: time.Duration(utils.GetEnvAsInt("GENERATION_TIMEOUT_SECONDS", 300, log)) * time.Second,
	}
	return cfg
}

func (c Config) IsProduction() bool { return c.Environment == "production" }

// TTSActive reports whether the audio phase should actually call the TTS
// backend. The toggle and the credential both have to be present.
func (c Config) TTSActive() bool { return c.TTSEnabled && c.GeminiAPIKey != "" }
