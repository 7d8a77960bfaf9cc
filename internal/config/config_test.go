package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
Title = "GoVPN-Admin"

[Webserver]
Port = 8080
URL = "http://localhost:8080"

[Gateway]
BaseURL = "https://192.168.1.1"
Username = "admin"
Password = "secret"

[Secret]
EncryptionKey = "test-passphrase"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "main.toml"), []byte(content), 0o600)
	require.NoError(t, err)

	return dir + string(filepath.Separator)
}

func TestReadConfig(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := ReadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "GoVPN-Admin", cfg.Title)
	assert.Equal(t, 8080, cfg.Webserver.Port)
	assert.Equal(t, "https://192.168.1.1", cfg.Gateway.BaseURL)
	assert.Equal(t, "test-passphrase", cfg.Secret.EncryptionKey)
}

func TestReadConfigDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := ReadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Webserver.ShutDownTime)
	assert.Equal(t, "*/5 * * * *", cfg.Schedule.Reconcile)
	assert.Equal(t, "0 * * * *", cfg.Schedule.DirectorySync)
	assert.Equal(t, "30 0 * * *", cfg.Schedule.Expiry)
	assert.NotZero(t, cfg.Schedule.StaleAfter)
	assert.Equal(t, 30, cfg.VPN.DefaultExpiryDays)
}

func TestReadConfigValidation(t *testing.T) {
	testCases := []struct {
		name        string
		config      string
		expectedErr error
	}{
		{
			name: "missing webserver port",
			config: `
[Webserver]
URL = "http://localhost"
[Gateway]
BaseURL = "https://192.168.1.1"
[Secret]
EncryptionKey = "k"
`,
			expectedErr: ErrWebServerPortCanNotBeZero,
		},
		{
			name: "missing webserver url",
			config: `
[Webserver]
Port = 8080
[Gateway]
BaseURL = "https://192.168.1.1"
[Secret]
EncryptionKey = "k"
`,
			expectedErr: ErrEmptyURL,
		},
		{
			name: "missing gateway base url",
			config: `
[Webserver]
Port = 8080
URL = "http://localhost"
[Secret]
EncryptionKey = "k"
`,
			expectedErr: ErrGatewayBaseURLEmpty,
		},
		{
			name: "missing encryption key",
			config: `
[Webserver]
Port = 8080
URL = "http://localhost"
[Gateway]
BaseURL = "https://192.168.1.1"
`,
			expectedErr: ErrEncryptionKeyEmpty,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.config)

			_, err := ReadConfig(path)
			require.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestReadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	t.Setenv("GO_VPN_ADMIN_CONFIG_JSON", `{"Title": "Overridden", "Webserver": {"Port": 9090}}`)

	cfg, err := ReadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "Overridden", cfg.Title)
	assert.Equal(t, 9090, cfg.Webserver.Port)
	// Everything not overridden keeps the file value.
	assert.Equal(t, "https://192.168.1.1", cfg.Gateway.BaseURL)
}

func TestDumpConfigRoundTrip(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := ReadConfig(path)
	require.NoError(t, err)

	tomlDump, err := DumpConfig(cfg)
	require.NoError(t, err)
	assert.Contains(t, tomlDump, `Title = "GoVPN-Admin"`)

	jsonDump, err := DumpConfigJSON(cfg)
	require.NoError(t, err)
	assert.Contains(t, jsonDump, `"Title": "GoVPN-Admin"`)
}
