package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
app:
  primary_exchange: venuea
  symbol: GCBUSDT
exchanges:
  venuea:
    variant: a
    base_url: https://venuea.example/api
  venueb:
    variant: b
    base_url: https://venueb.example/api
system:
  log_level: INFO
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "GCBUSDT", cfg.App.Symbol)
	require.Equal(t, 5_000_000_000, int(cfg.Supervisor.ShutdownDeadline))
	require.Contains(t, cfg.Supervisor.TickIntervals, "stabilizer")
}

func TestLoadRejectsMissingBaseURL(t *testing.T) {
	path := writeTemp(t, `
app:
  symbol: GCBUSDT
exchanges:
  venuea:
    variant: a
system:
  log_level: INFO
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	require.NoError(t, os.Setenv("TEST_SYMBOL", "GCBUSDT"))
	defer os.Unsetenv("TEST_SYMBOL")

	path := writeTemp(t, `
app:
  symbol: ${TEST_SYMBOL}
exchanges:
  venuea:
    variant: a
    base_url: https://venuea.example/api
system:
  log_level: INFO
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "GCBUSDT", cfg.App.Symbol)
}
