package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Thumbnail upload providers.
const (
	UploaderNone       = ""
	UploaderCloudinary = "cloudinary"
	UploaderS3         = "s3"
)

// Client holds the configuration of the judging CLI.
type Client struct {
	StoreURL           string
	StoreToken         string
	CachePath          string
	PollInterval       time.Duration
	RequestTimeout     time.Duration
	TombstoneRetention time.Duration
	LogFile            string
	LogLevel           string
	EventFile          string

	Phrase            string
	PreferredRole     string
	JudgeName         string
	UserID            string
	Email             string
	DisplayName       string
	OrganizerPassword string
	JudgePassword     string
	ViewPassword      string

	Uploader   string
	Cloudinary CloudinaryConfig
	S3         S3Config

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
}

// CloudinaryConfig holds Cloudinary credentials.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// S3Config holds S3-compatible bucket settings.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
	PathStyle       bool
}

// NewClientViper returns a viper instance with the client defaults and the
// JUDGE_ environment prefix. Callers may bind flags before LoadClient.
func NewClientViper() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("JUDGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	v.SetDefault("store.url", "http://localhost:8080/store")
	v.SetDefault("cache.path", defaultCachePath())
	v.SetDefault("poll.interval", "5s")
	v.SetDefault("request.timeout", "10s")
	v.SetDefault("tombstone.retention", "168h")
	v.SetDefault("log.level", "info")
	v.SetDefault("cloudinary.folder", "judging")
	v.SetDefault("s3.region", "auto")
	v.SetDefault("openai.model", "gpt-4o-mini")

	return v
}

// LoadClient reads the client configuration from v.
func LoadClient(v *viper.Viper) (Client, error) {
	durations := map[string]time.Duration{}
	for _, key := range []string{"poll.interval", "request.timeout", "tombstone.retention"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Client{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Client{}, fmt.Errorf("%s must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Client{
		StoreURL:           strings.TrimRight(v.GetString("store.url"), "/"),
		StoreToken:         v.GetString("store.token"),
		CachePath:          v.GetString("cache.path"),
		PollInterval:       durations["poll.interval"],
		RequestTimeout:     durations["request.timeout"],
		TombstoneRetention: durations["tombstone.retention"],
		LogFile:            v.GetString("log.file"),
		LogLevel:           strings.ToLower(v.GetString("log.level")),
		EventFile:          v.GetString("event.file"),

		Phrase:            v.GetString("phrase"),
		PreferredRole:     v.GetString("role"),
		JudgeName:         v.GetString("judge.name"),
		UserID:            v.GetString("user.id"),
		Email:             v.GetString("user.email"),
		DisplayName:       v.GetString("user.name"),
		OrganizerPassword: v.GetString("organizer.password"),
		JudgePassword:     v.GetString("judge.password"),
		ViewPassword:      v.GetString("view.password"),

		Uploader: strings.ToLower(v.GetString("uploader")),
		Cloudinary: CloudinaryConfig{
			CloudName: v.GetString("cloudinary.cloud_name"),
			APIKey:    v.GetString("cloudinary.api_key"),
			APISecret: v.GetString("cloudinary.api_secret"),
			Folder:    v.GetString("cloudinary.folder"),
		},
		S3: S3Config{
			Endpoint:        v.GetString("s3.endpoint"),
			Region:          v.GetString("s3.region"),
			Bucket:          v.GetString("s3.bucket"),
			AccessKeyID:     v.GetString("s3.access_key_id"),
			SecretAccessKey: v.GetString("s3.secret_access_key"),
			PublicBaseURL:   v.GetString("s3.public_base_url"),
			PathStyle:       v.GetBool("s3.path_style"),
		},

		OpenAIAPIKey:  v.GetString("openai.api_key"),
		OpenAIModel:   v.GetString("openai.model"),
		OpenAIBaseURL: v.GetString("openai.base_url"),
	}

	if cfg.StoreURL == "" {
		return Client{}, fmt.Errorf("store url must be provided")
	}
	if cfg.CachePath == "" {
		return Client{}, fmt.Errorf("cache path must be provided")
	}
	switch cfg.Uploader {
	case UploaderNone, UploaderCloudinary, UploaderS3:
	default:
		return Client{}, fmt.Errorf("unknown uploader %q", cfg.Uploader)
	}

	return cfg, nil
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "judgectl", "cache.db")
}
