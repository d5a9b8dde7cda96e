package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "poold.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
auth:
  hmac_secret: "s3cret"
feeder:
  enabled: true
  base: SOIL
  quote: H2O
  interval: 10s
  sources:
    - name: manual
      type: manual
      price: "1.25"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, 10*time.Second, cfg.Feeder.Interval.Duration)
	require.Equal(t, 2*time.Minute, cfg.Feeder.MaxAge.Duration)
	require.Equal(t, 1, cfg.Feeder.MinFeeds)
	require.Equal(t, "assetpool.events", cfg.Notify.NATSSubject)
	require.Equal(t, "poold", cfg.Auth.Issuer)
	require.Equal(t, "1.25", cfg.Feeder.Sources[0].Price)
}

func TestLoadRequiresSecret(t *testing.T) {
	path := writeConfig(t, "listen: \":9000\"\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "hmac secret")
}

func TestSecretPrefersEnvironment(t *testing.T) {
	t.Setenv("POOLD_TEST_SECRET", "from-env")
	auth := AuthConfig{HMACSecret: "inline", HMACSecretEnv: "POOLD_TEST_SECRET"}
	require.Equal(t, "from-env", auth.Secret())
	auth.HMACSecretEnv = "POOLD_UNSET_SECRET"
	require.Equal(t, "inline", auth.Secret())
}

func TestLoadRejectsUnknownFieldsAndBadFeeder(t *testing.T) {
	_, err := Load(writeConfig(t, "auth:\n  disabled: true\nbogus: 1\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, `
auth:
  disabled: true
feeder:
  enabled: true
  base: SOIL
  quote: H2O
  min_feeds: 2
  sources:
    - name: manual
      type: manual
      price: "1"
`))
	require.ErrorContains(t, err, "min_feeds")
}

func TestDurationRejectsNonScalar(t *testing.T) {
	_, err := Load(writeConfig(t, "auth:\n  disabled: true\n  clock_skew: [1, 2]\n"))
	require.Error(t, err)
}
