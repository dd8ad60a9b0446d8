// Package config loads and validates the depot configuration file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ProtocolIMAP is the only mailbox protocol currently implemented. Gateways
// declaring any other protocol are reported and skipped at build time.
const ProtocolIMAP = "imap"

// DefaultMimeTypes is applied when a gateway does not list its own
// permitted attachment types.
var DefaultMimeTypes = []string{"application/pdf"}

// Endpoint is one mail server connection in the configuration file.
// Credential fields may reference environment variables with ${VAR} syntax
// so secrets can stay out of the file itself.
type Endpoint struct {
	Host     string `yaml:"host"`
	Port     uint16 `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// GatewayConfig describes one mailbox-polling worker.
type GatewayConfig struct {
	Protocol      string   `yaml:"protocol"`
	AdminAddress  string   `yaml:"admin_address"`
	InputAddress  string   `yaml:"input_address"`
	KillswitchKey string   `yaml:"killswitch_key"`
	Incoming      Endpoint `yaml:"incoming"`
	Outgoing      Endpoint `yaml:"outgoing"`

	// AllowedSenders restricts who may issue commands. Empty accepts any
	// sender.
	AllowedSenders []string `yaml:"allowed_senders"`
	// AllowedMimeTypes restricts which attachment types are staged. Empty
	// falls back to DefaultMimeTypes.
	AllowedMimeTypes []string `yaml:"allowed_mime_types"`
}

// DepotConfig describes one depot and the gateways serving it.
type DepotConfig struct {
	Company            string          `yaml:"company"`
	Name               string          `yaml:"name"`
	OrganisationalUnit string          `yaml:"organisational_unit"`
	Line               string          `yaml:"line"`
	Gateways           []GatewayConfig `yaml:"gateways"`

	// SpoolDir receives accepted payload files. Empty disables spooling;
	// post commands are then left in the mailbox for a capable consumer.
	SpoolDir string `yaml:"spool_dir"`
}

// Config is the root of the configuration file.
type Config struct {
	Depots []DepotConfig `yaml:"depots"`
}

// Load reads, env-expands and validates a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing config file")
	}

	cfg.expandEnv()
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) expandEnv() {
	for i := range c.Depots {
		for j := range c.Depots[i].Gateways {
			g := &c.Depots[i].Gateways[j]
			g.Incoming.Username = os.ExpandEnv(g.Incoming.Username)
			g.Incoming.Password = os.ExpandEnv(g.Incoming.Password)
			g.Outgoing.Username = os.ExpandEnv(g.Outgoing.Username)
			g.Outgoing.Password = os.ExpandEnv(g.Outgoing.Password)
		}
	}
}

// Validate checks the structural requirements the gateway layer cannot
// express on its own: every depot named and uniquely so, and every gateway
// complete.
func Validate(cfg Config) error {
	if len(cfg.Depots) == 0 {
		return errors.New("config must define at least one depot")
	}

	seen := make(map[string]bool, len(cfg.Depots))
	for i, d := range cfg.Depots {
		if strings.TrimSpace(d.Name) == "" {
			return errors.Errorf("depot %d must have a name", i+1)
		}
		if seen[d.Name] {
			return errors.Errorf("depot name %q is declared twice", d.Name)
		}
		seen[d.Name] = true

		if len(d.Gateways) == 0 {
			return errors.Errorf("depot %q must define at least one gateway", d.Name)
		}
		for j, g := range d.Gateways {
			if err := g.validate(); err != nil {
				return errors.Wrapf(err, "depot %q gateway %d", d.Name, j+1)
			}
		}
	}
	return nil
}

func (g *GatewayConfig) validate() error {
	switch {
	case strings.TrimSpace(g.Protocol) == "":
		return errors.New("protocol is required")
	case strings.TrimSpace(g.InputAddress) == "":
		return errors.New("input_address is required")
	case strings.TrimSpace(g.AdminAddress) == "":
		return errors.New("admin_address is required")
	case strings.TrimSpace(g.KillswitchKey) == "":
		return errors.New("killswitch_key is required")
	}
	if err := g.Incoming.validate(); err != nil {
		return errors.Wrap(err, "incoming")
	}
	if err := g.Outgoing.validate(); err != nil {
		return errors.Wrap(err, "outgoing")
	}
	return nil
}

func (e *Endpoint) validate() error {
	switch {
	case strings.TrimSpace(e.Host) == "":
		return errors.New("host is required")
	case strings.TrimSpace(e.Username) == "":
		return errors.New("username is required")
	case strings.TrimSpace(e.Password) == "":
		return errors.New("password is required")
	}
	return nil
}

// Summary returns a concise config overview for validation runs.
// Credentials are never included.
func Summary(cfg Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Config summary\n- depots: %d\n", len(cfg.Depots))
	for _, d := range cfg.Depots {
		fmt.Fprintf(&b, "- %s / %s (%s, %s): %d gateway(s)\n",
			d.Company, d.Name, d.OrganisationalUnit, d.Line, len(d.Gateways))
		for _, g := range d.Gateways {
			fmt.Fprintf(&b, "  - %s %s via %s:%d\n",
				g.Protocol, g.InputAddress, g.Incoming.Host, g.Incoming.Port)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
