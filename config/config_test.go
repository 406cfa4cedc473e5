package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMySQL, cfg.StoreDriver)
	assert.Equal(t, 50, cfg.Sync.SuggestionQuota)
	assert.Equal(t, 20, cfg.Sync.MessageWindow)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.yaml")
	content := `
storeDriver: memory
sync:
  suggestionQuota: 10
  suggestionPageSize: 5
  messageWindow: 7
  historyPageSize: 7
  presenceTTL: 45s
server:
  addr: ":9999"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 10, cfg.Sync.SuggestionQuota)
	assert.Equal(t, 5, cfg.Sync.SuggestionPageSize)
	assert.Equal(t, 45*time.Second, cfg.Sync.PresenceTTL)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	// 未出现在文件中的字段保持默认
	assert.Equal(t, DefaultRedisConfig().Addr, cfg.Redis.Addr)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("SYNC_STORE_DRIVER", "MEMORY")
	t.Setenv("SYNC_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StoreDriver = "mongo"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Sync.SuggestionQuota = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Server.JWTSecret = ""
	assert.Error(t, cfg.Validate())
}
