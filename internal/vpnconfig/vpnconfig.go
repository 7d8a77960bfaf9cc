// Package vpnconfig renders downloadable OpenVPN client configurations for
// provisioned accounts.
package vpnconfig

import (
	"bytes"
	"fmt"
	"text/template"
)

// Config holds the VPN server settings embedded in generated client files.
type Config struct {
	// ServerHost is the VPN server hostname presented to clients.
	ServerHost string
	// ServerPort is the VPN server port.
	ServerPort int
	// Protocol is udp or tcp.
	Protocol string
	// CACert is the CA certificate body, inlined into the profile.
	CACert string
}

// clientTemplate is the .ovpn profile. Credentials are inlined so the user
// gets a single self-contained file.
const clientTemplate = `client
dev tun
proto {{.Protocol}}
remote {{.ServerHost}} {{.ServerPort}}
resolv-retry infinite
nobind
persist-key
persist-tun
auth-user-pass
auth-nocache
remote-cert-tls server
verb 3
<auth-user-pass>
{{.Username}}
{{.Password}}
</auth-user-pass>
{{- if .CACert}}
<ca>
{{.CACert}}
</ca>
{{- end}}
`

// Renderer produces client configuration files.
type Renderer struct {
	cfg  Config
	tmpl *template.Template
}

// NewRenderer parses the profile template against the given server settings.
func NewRenderer(cfg Config) (*Renderer, error) {
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}

	if cfg.ServerPort == 0 {
		cfg.ServerPort = 1194
	}

	tmpl, err := template.New("ovpn").Parse(clientTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client template: %w", err)
	}

	return &Renderer{cfg: cfg, tmpl: tmpl}, nil
}

// Render produces the profile for the given credentials.
func (r *Renderer) Render(username, password string) ([]byte, error) {
	data := struct {
		Config
		Username string
		Password string
	}{
		Config:   r.cfg,
		Username: username,
		Password: password,
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render client config: %w", err)
	}

	return buf.Bytes(), nil
}

// Filename returns the download filename for an account.
func Filename(username string) string {
	return username + ".ovpn"
}
