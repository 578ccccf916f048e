package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.Set("database.url", "postgres://localhost/vstep")
	v.Set("ledger.rpc_url", "https://rpc.example")
	v.Set("ledger.contract_address", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	v.Set("ledger.private_key", "0xabc123")
	v.Set("content.pinata_jwt", "jwt")
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg := FromViper(validViper())
	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint64(10), cfg.Watcher.CatchUpWindow)
	assert.Equal(t, 5*time.Minute, cfg.Watcher.CatchUpInterval)
	assert.Equal(t, 5, cfg.Settlement.PurchaseSize)
	assert.Equal(t, ContentPinata, cfg.Content.Backend)
	assert.Equal(t, "abc123", cfg.Ledger.PrivateKey)
	assert.Equal(t, "https://rpc.example", cfg.Ledger.WSURL)
	assert.Equal(t, "", cfg.RedisAddr())
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.True(t, cfg.IsDevelopment())
}

func TestFromViper_AllowedOriginsFromEnv(t *testing.T) {
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://app.example https://admin.example")
	v := validViper()
	bindEnv(v)

	cfg := FromViper(v)
	assert.Equal(t, []string{"https://app.example", "https://admin.example"}, cfg.HTTP.AllowedOrigins)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("content.backend", "ftp")
	v.Set("settlement.purchase_size", 0)

	err := FromViper(v).Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"DATABASE_URL", "LEDGER_RPC_URL", "LEDGER_PRIVATE_KEY", "CONTENT_BACKEND", "SETTLEMENT_PURCHASE_SIZE"} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_MinioBackend(t *testing.T) {
	v := validViper()
	v.Set("content.backend", "minio")
	assert.Error(t, FromViper(v).Validate())

	v.Set("content.minio_endpoint", "localhost:9000")
	assert.NoError(t, FromViper(v).Validate())
}

func TestRedisAddr(t *testing.T) {
	v := validViper()
	v.Set("redis.host", "cache")
	assert.Equal(t, "cache:6379", FromViper(v).RedisAddr())
}
