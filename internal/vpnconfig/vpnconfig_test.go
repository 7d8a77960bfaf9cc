package vpnconfig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	r, err := NewRenderer(Config{
		ServerHost: "vpn.example.com",
		ServerPort: 1195,
		Protocol:   "tcp",
	})
	require.NoError(t, err)

	out, err := r.Render("alice", "pw123")
	require.NoError(t, err)

	profile := string(out)
	assert.Contains(t, profile, "remote vpn.example.com 1195")
	assert.Contains(t, profile, "proto tcp")
	assert.Contains(t, profile, "<auth-user-pass>\nalice\npw123\n</auth-user-pass>")
	assert.NotContains(t, profile, "<ca>", "no CA configured")
}

func TestRenderDefaults(t *testing.T) {
	r, err := NewRenderer(Config{ServerHost: "vpn.example.com"})
	require.NoError(t, err)

	out, err := r.Render("bob", "pw456")
	require.NoError(t, err)

	profile := string(out)
	assert.Contains(t, profile, "proto udp")
	assert.Contains(t, profile, "remote vpn.example.com 1194")
}

func TestRenderWithCACert(t *testing.T) {
	ca := "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----"

	r, err := NewRenderer(Config{ServerHost: "vpn.example.com", CACert: ca})
	require.NoError(t, err)

	out, err := r.Render("carol", "pw789")
	require.NoError(t, err)

	profile := string(out)
	assert.Contains(t, profile, "<ca>\n"+ca+"\n</ca>")
	assert.True(t, strings.HasPrefix(profile, "client\n"))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "alice.ovpn", Filename("alice"))
}
