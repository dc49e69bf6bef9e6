package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port               int
	UploadDirectory    string
	ResultDirectory    string
	AssetsDirectory    string
	IndexFile          string
	MaxRequestBodySize int64 // in bytes
	LogDirectory       string
	JPEGQuality        int
	HTTPTimeout        time.Duration // 0 = no limit
	ShutdownTimeout    time.Duration
	HistoryDatabase    string // empty = history disabled

	Roboflow RoboflowConfig
	NMS      NMSConfig
	Blob     BlobConfig
}

type RoboflowConfig struct {
	APIKey       string
	APIURL       string
	InferenceURL string
	Workspace    string // empty = the account default workspace
	Project      string
	Version      int
	Confidence   int // 0-100
	Overlap      int // 0-100
}

type NMSConfig struct {
	Enabled       bool
	IoUThreshold  float64
	ClassAgnostic bool
}

type BlobConfig struct {
	Backend  string // "vercel" or "s3"
	Endpoint string
	Token    string
	S3       S3Config
}

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
}

// Load reads an optional .env file, then the process environment, on top of defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AllowEmptyEnv(true) // HISTORY_DB= disables history
	v.AutomaticEnv()

	cfg := &Config{
		Port:               v.GetInt("PORT"),
		UploadDirectory:    v.GetString("UPLOAD_DIR"),
		ResultDirectory:    v.GetString("RESULT_DIR"),
		AssetsDirectory:    v.GetString("ASSETS_DIR"),
		IndexFile:          v.GetString("INDEX_FILE"),
		MaxRequestBodySize: v.GetInt64("MAX_CONTENT_LENGTH"),
		LogDirectory:       v.GetString("LOG_DIR"),
		JPEGQuality:        v.GetInt("JPEG_QUALITY"),
		HTTPTimeout:        v.GetDuration("HTTP_TIMEOUT"),
		ShutdownTimeout:    v.GetDuration("SHUTDOWN_TIMEOUT"),
		HistoryDatabase:    v.GetString("HISTORY_DB"),
		Roboflow: RoboflowConfig{
			APIKey:       v.GetString("ROBOFLOW_API_KEY"),
			APIURL:       v.GetString("ROBOFLOW_API_URL"),
			InferenceURL: v.GetString("ROBOFLOW_INFERENCE_URL"),
			Workspace:    v.GetString("ROBOFLOW_WORKSPACE"),
			Project:      v.GetString("ROBOFLOW_PROJECT"),
			Version:      v.GetInt("ROBOFLOW_VERSION"),
			Confidence:   v.GetInt("CONFIDENCE"),
			Overlap:      v.GetInt("OVERLAP"),
		},
		NMS: NMSConfig{
			Enabled:       v.GetBool("NMS_ENABLED"),
			IoUThreshold:  v.GetFloat64("NMS_IOU_THRESHOLD"),
			ClassAgnostic: v.GetBool("NMS_CLASS_AGNOSTIC"),
		},
		Blob: BlobConfig{
			Backend:  v.GetString("BLOB_BACKEND"),
			Endpoint: v.GetString("BLOB_ENDPOINT"),
			Token:    v.GetString("BLOB_TOKEN"),
			S3: S3Config{
				Endpoint:        v.GetString("S3_ENDPOINT"),
				Region:          v.GetString("S3_REGION"),
				Bucket:          v.GetString("S3_BUCKET"),
				AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
				SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
				PublicURL:       v.GetString("S3_PUBLIC_URL"),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 5001)
	v.SetDefault("UPLOAD_DIR", "static/uploads")
	v.SetDefault("RESULT_DIR", "static/results")
	v.SetDefault("ASSETS_DIR", "assets")
	v.SetDefault("INDEX_FILE", "index.html")
	v.SetDefault("MAX_CONTENT_LENGTH", 10*1024*1024) // 10MB
	v.SetDefault("LOG_DIR", "logs")
	v.SetDefault("JPEG_QUALITY", 75)
	v.SetDefault("HTTP_TIMEOUT", 60*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("HISTORY_DB", "data/history.db")

	v.SetDefault("ROBOFLOW_API_KEY", "")
	v.SetDefault("ROBOFLOW_API_URL", "https://api.roboflow.com")
	v.SetDefault("ROBOFLOW_INFERENCE_URL", "https://detect.roboflow.com")
	v.SetDefault("ROBOFLOW_WORKSPACE", "")
	v.SetDefault("ROBOFLOW_PROJECT", "aquaponic_polygan_disease_test")
	v.SetDefault("ROBOFLOW_VERSION", 5)
	v.SetDefault("CONFIDENCE", 40)
	v.SetDefault("OVERLAP", 30)

	v.SetDefault("NMS_ENABLED", false)
	v.SetDefault("NMS_IOU_THRESHOLD", 0.5)
	v.SetDefault("NMS_CLASS_AGNOSTIC", false)

	v.SetDefault("BLOB_BACKEND", "vercel")
	v.SetDefault("BLOB_ENDPOINT", "https://api.vercel.com/v1/storage/files")
	v.SetDefault("BLOB_TOKEN", "")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_BUCKET", "annotated")
	v.SetDefault("S3_ACCESS_KEY_ID", "")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "")
	v.SetDefault("S3_PUBLIC_URL", "")
}

// Validate rejects values the services cannot work with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("invalid MAX_CONTENT_LENGTH: %d", c.MaxRequestBodySize)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("invalid JPEG_QUALITY: %d", c.JPEGQuality)
	}
	if c.Roboflow.Confidence < 0 || c.Roboflow.Confidence > 100 {
		return fmt.Errorf("invalid CONFIDENCE: %d (expected 0-100)", c.Roboflow.Confidence)
	}
	if c.Roboflow.Overlap < 0 || c.Roboflow.Overlap > 100 {
		return fmt.Errorf("invalid OVERLAP: %d (expected 0-100)", c.Roboflow.Overlap)
	}
	if c.Roboflow.Project == "" || c.Roboflow.Version <= 0 {
		return fmt.Errorf("ROBOFLOW_PROJECT and ROBOFLOW_VERSION are required")
	}
	if c.NMS.IoUThreshold <= 0 || c.NMS.IoUThreshold > 1 {
		return fmt.Errorf("invalid NMS_IOU_THRESHOLD: %v", c.NMS.IoUThreshold)
	}
	switch c.Blob.Backend {
	case "vercel":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 blob backend")
		}
	default:
		return fmt.Errorf("unknown BLOB_BACKEND: %q", c.Blob.Backend)
	}
	return nil
}
