package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JUDGING_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JUDGING_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendRedis, cfg.StoreBackend)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 1<<20, cfg.BodyLimit)
	require.Equal(t, time.Minute, cfg.RateWindow)
	require.Equal(t, "judging", cfg.ChannelBase)
}

func TestLoadPostgresRequiresDatabaseURL(t *testing.T) {
	t.Setenv("JUDGING_STORE_BACKEND", "postgres")
	t.Setenv("JUDGING_JWT_SECRET", "secret")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("JUDGING_DATABASE_URL", "postgres://localhost/judging")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendPostgres, cfg.StoreBackend)
}

func TestLoadRejectsMissingSecretAndBadBackend(t *testing.T) {
	t.Setenv("JUDGING_REDIS_URL", "redis://localhost:6379/0")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("JUDGING_JWT_SECRET", "secret")
	t.Setenv("JUDGING_STORE_BACKEND", "memcached")
	_, err = Load()
	require.Error(t, err)
}

func TestHTTPAddressKeepsColon(t *testing.T) {
	require.Equal(t, ":9090", Config{AppPort: ":9090"}.HTTPAddress())
}

func TestLoadClientDefaults(t *testing.T) {
	v := NewClientViper()
	v.Set("cache.path", t.TempDir()+"/cache.db")

	cfg, err := LoadClient(v)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/store", cfg.StoreURL)
	require.Equal(t, 5*time.Second, cfg.PollInterval)
	require.Equal(t, 10*time.Second, cfg.RequestTimeout)
	require.Equal(t, 7*24*time.Hour, cfg.TombstoneRetention)
	require.Equal(t, UploaderNone, cfg.Uploader)
}

func TestLoadClientReadsEnvironment(t *testing.T) {
	t.Setenv("JUDGE_STORE_URL", "https://store.example.com/store/")
	t.Setenv("JUDGE_PHRASE", "Spring Hackathon")
	t.Setenv("JUDGE_POLL_INTERVAL", "2s")
	t.Setenv("JUDGE_UPLOADER", "S3")
	t.Setenv("JUDGE_S3_BUCKET", "media")
	t.Setenv("JUDGE_JUDGE_PASSWORD", "panel")
	t.Setenv("JUDGE_OPENAI_BASE_URL", "http://localhost:4000/v1")

	cfg, err := LoadClient(NewClientViper())
	require.NoError(t, err)
	require.Equal(t, "https://store.example.com/store", cfg.StoreURL)
	require.Equal(t, "Spring Hackathon", cfg.Phrase)
	require.Equal(t, 2*time.Second, cfg.PollInterval)
	require.Equal(t, UploaderS3, cfg.Uploader)
	require.Equal(t, "media", cfg.S3.Bucket)
	require.Equal(t, "panel", cfg.JudgePassword)
	require.Equal(t, "http://localhost:4000/v1", cfg.OpenAIBaseURL)
}

func TestLoadClientRejectsBadValues(t *testing.T) {
	v := NewClientViper()
	v.Set("poll.interval", "soon")
	_, err := LoadClient(v)
	require.Error(t, err)

	v = NewClientViper()
	v.Set("uploader", "ftp")
	_, err = LoadClient(v)
	require.Error(t, err)
}
