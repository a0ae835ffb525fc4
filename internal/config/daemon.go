package config

import (
	"io"

	"gopkg.in/yaml.v3"
)

// DaemonConfig is the daemon's own process configuration — listen
// addresses, log level, which kernel backend to use — a conventional YAML
// document, distinct from the `ipsec.conf` conn/config-setup dialect
// Write/ParseConn above handle. Grounded on the pack's yaml.v3-tagged
// struct style (e.g. the nasnet-panel backend's GatewayConfig).
type DaemonConfig struct {
	Listen        []string `yaml:"listen"`
	NatTPort      int      `yaml:"natt_port"`
	LogLevel      string   `yaml:"log_level"`
	KernelBackend string   `yaml:"kernel_backend"` // "xfrm" or "mock"
	AdminSocket   string   `yaml:"admin_socket"`
	SecretsFile   string   `yaml:"secrets_file"`
}

// DefaultDaemonConfig mirrors the common case: listen on UDP/500 on every
// IPv4 address, record 4500 as the NAT-T port (the daemon opens only the
// Listen addresses), log at info level, and use the mock kernel backend
// until an operator opts into `xfrm` on a Linux host with CAP_NET_ADMIN.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		Listen:        []string{"0.0.0.0:500"},
		NatTPort:      4500,
		LogLevel:      "info",
		KernelBackend: "mock",
		AdminSocket:   "/var/run/pluto-iked.sock",
	}
}

// LoadDaemonConfig decodes a DaemonConfig from YAML, starting from
// DefaultDaemonConfig so a partial document only overrides what it names.
func LoadDaemonConfig(r io.Reader) (*DaemonConfig, error) {
	cfg := DefaultDaemonConfig()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, err
	}
	return cfg, nil
}
