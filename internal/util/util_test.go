package util

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_DefaultsAndOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := writeEnvFile(t, strings.Join([]string{
		"HTTP_SERVER_PORT=6000",
		"SCHEDULER_BACKEND=local",
		"DELIVERY_TIMEOUT=2s",
	}, "\n"))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 6000, config.HTTPServerPort)
	assert.Equal(t, 5000, config.LineServerPort)
	assert.Equal(t, 5, config.LinePortAttempts)
	assert.Equal(t, 2*time.Second, config.DeliveryTimeout)
	assert.Equal(t, "AuctionService", config.DirectoryBindingName)
	assert.False(t, config.IsProduction())
}

func TestLoadConfig_RedisBackendRequiresAddress(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := LoadConfig(writeEnvFile(t, "SCHEDULER_BACKEND=redis\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_SERVER_ADDRESS")
}

func TestLoadConfig_UnknownBackend(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := LoadConfig(writeEnvFile(t, "SCHEDULER_BACKEND=kafka\n"))
	require.Error(t, err)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "510.00 €", FormatMoney(decimal.RequireFromString("510")))
	assert.Equal(t, "1,234.50 €", FormatMoney(decimal.RequireFromString("1234.5")))
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "510.00", FormatPrice(decimal.RequireFromString("510")))
	assert.Equal(t, "2.50", FormatPrice(decimal.RequireFromString("2.5")))
}

func TestTruncateContent(t *testing.T) {
	assert.Equal(t, "short", TruncateContent("short", 10))
	assert.Equal(t, "abc...", TruncateContent("abcdef", 3))
}

func TestGenerateRoundID(t *testing.T) {
	first := GenerateRoundID("Smart Watch")
	second := GenerateRoundID("Smart Watch")

	assert.True(t, strings.HasPrefix(first, "smart-watch-"))
	assert.Len(t, first, len("smart-watch-")+8)
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(GenerateRoundID("!!!"), "round-"))
}

func TestListenTCP_FallsBackToNextPort(t *testing.T) {
	taken, err := ListenTCP("127.0.0.1", 0, 1)
	require.NoError(t, err)
	defer taken.Close()

	port := taken.Addr().(*net.TCPAddr).Port

	listener, err := ListenTCP("127.0.0.1", port, 5)
	if err != nil {
		t.Skipf("ports after %d are busy: %v", port, err)
	}
	defer listener.Close()

	got := listener.Addr().(*net.TCPAddr).Port
	assert.Greater(t, got, port)
	assert.LessOrEqual(t, got, port+4)
}

func TestListenTCP_GivesUp(t *testing.T) {
	taken, err := ListenTCP("127.0.0.1", 0, 1)
	require.NoError(t, err)
	defer taken.Close()

	port := taken.Addr().(*net.TCPAddr).Port

	_, err = ListenTCP("127.0.0.1", port, 1)
	require.Error(t, err)
}
