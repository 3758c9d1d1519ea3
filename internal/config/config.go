package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every value the pipeline needs, read once at process
// startup into an immutable value and threaded through every component
// by constructor injection. There is no hot reload: a changed env var
// or config file takes effect only on the next process start.
type Config struct {
	// Database / storage
	DatabasePath string
	UploadDir    string
	ClipsDir     string

	// Remote services
	ASRURL        string
	MultimodalURL string
	ASRModel      string
	MultimodalModel string

	// Clustering thresholds (spec.md §4.5)
	ConfidenceThreshold     float64
	ClusteringProximitySeconds float64
	CorrectionWindowSeconds float64

	// Worker
	PollInterval time.Duration

	// Orphan recovery (spec.md §9 open question)
	StaleProcessingAfter time.Duration
	SweepOnStart         bool

	// Drop-folder auto-ingest (SPEC_FULL.md §3 addition)
	DropzoneEnabled bool
	DropzoneDir     string
	DropzoneUserID  string

	// Admin HTTP surface (SPEC_FULL.md §6 addition)
	AdminHost string
	AdminPort string

	// Audio slicer
	FFmpegPath string

	// Webhook URL every job notification is posted to; empty disables
	// notifications
	DefaultWebhookURL string
}

// Load reads configuration from the environment, an optional .env
// file, and an optional config.yaml, in that descending priority
// (env wins, then .env, then config.yaml, then built-in defaults),
// following the teacher's env-first posture but layering viper on top
// for the config-file case.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: failed to read config.yaml: %v", err)
		}
	}

	return &Config{
		DatabasePath: v.GetString("database_path"),
		UploadDir:    v.GetString("upload_dir"),
		ClipsDir:     v.GetString("clips_dir"),

		ASRURL:          v.GetString("asr_url"),
		MultimodalURL:   v.GetString("multimodal_url"),
		ASRModel:        v.GetString("asr_model"),
		MultimodalModel: v.GetString("multimodal_model"),

		ConfidenceThreshold:        v.GetFloat64("confidence_threshold"),
		ClusteringProximitySeconds: v.GetFloat64("clustering_proximity_seconds"),
		CorrectionWindowSeconds:    v.GetFloat64("correction_window_seconds"),

		PollInterval: time.Duration(v.GetInt("worker_poll_interval_ms")) * time.Millisecond,

		StaleProcessingAfter: time.Duration(v.GetInt("stale_processing_after_minutes")) * time.Minute,
		SweepOnStart:         v.GetBool("sweep_stale_on_start"),

		DropzoneEnabled: v.GetBool("dropzone_enabled"),
		DropzoneDir:     v.GetString("dropzone_dir"),
		DropzoneUserID:  v.GetString("dropzone_user_id"),

		AdminHost: v.GetString("admin_host"),
		AdminPort: v.GetString("admin_port"),

		FFmpegPath: v.GetString("ffmpeg_path"),

		DefaultWebhookURL: v.GetString("webhook_url"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_path", "data/secondpass.db")
	v.SetDefault("upload_dir", "data/uploads")
	v.SetDefault("clips_dir", "data/clips")

	v.SetDefault("asr_url", "http://localhost:9000")
	v.SetDefault("multimodal_url", "http://localhost:9001")
	v.SetDefault("asr_model", "whisper-1")
	v.SetDefault("multimodal_model", "gpt-4o-audio")

	v.SetDefault("confidence_threshold", 0.60)
	v.SetDefault("clustering_proximity_seconds", 5.0)
	v.SetDefault("correction_window_seconds", 20.0)

	v.SetDefault("worker_poll_interval_ms", 3000)

	v.SetDefault("stale_processing_after_minutes", 30)
	v.SetDefault("sweep_stale_on_start", false)

	v.SetDefault("dropzone_enabled", false)
	v.SetDefault("dropzone_dir", "data/dropzone")
	v.SetDefault("dropzone_user_id", "")

	v.SetDefault("admin_host", "localhost")
	v.SetDefault("admin_port", "8090")

	v.SetDefault("ffmpeg_path", "ffmpeg")

	v.SetDefault("webhook_url", "")
}

// Addr returns the admin HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.AdminHost, c.AdminPort)
}
