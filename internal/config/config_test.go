package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfig = `
depots:
  - company: "Lineworks"
    name: "Northgate"
    organisational_unit: "Operations"
    line: "Line 4"
    spool_dir: "/var/spool/depotmail/northgate"
    gateways:
      - protocol: imap
        admin_address: "admin@example.com"
        input_address: "northgate@example.com"
        killswitch_key: "open-sesame"
        incoming:
          host: "imap.example.com"
          port: 993
          username: "northgate@example.com"
          password: "${DEPOTMAIL_NORTHGATE_IMAP_PASS}"
        outgoing:
          host: "smtp.example.com"
          port: 587
          username: "northgate@example.com"
          password: "${DEPOTMAIL_NORTHGATE_SMTP_PASS}"
        allowed_senders:
          - "driver@example.com"
`

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempFile(t, "not: [valid_yaml")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid YAML")
	}
}

func TestValidateMissingDepots(t *testing.T) {
	path := writeTempFile(t, `
depots: []
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for missing depots")
	}
}

func TestValidateDuplicateDepotNames(t *testing.T) {
	entry := strings.TrimPrefix(validConfig, "\ndepots:")
	path := writeTempFile(t, "\ndepots:"+entry+entry)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error for duplicate depot names")
	}
	if !strings.Contains(err.Error(), "declared twice") {
		t.Fatalf("expected duplicate name error, got: %v", err)
	}
}

func TestValidateIncompleteGateway(t *testing.T) {
	path := writeTempFile(t, strings.Replace(validConfig,
		`killswitch_key: "open-sesame"`, `killswitch_key: ""`, 1))

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error for missing killswitch key")
	}
	if !strings.Contains(err.Error(), "killswitch_key") {
		t.Fatalf("expected killswitch_key error, got: %v", err)
	}
}

func TestLoadExpandsCredentialEnvVars(t *testing.T) {
	t.Setenv("DEPOTMAIL_NORTHGATE_IMAP_PASS", "imap-secret")
	t.Setenv("DEPOTMAIL_NORTHGATE_SMTP_PASS", "smtp-secret")

	path := writeTempFile(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got error: %v", err)
	}

	g := cfg.Depots[0].Gateways[0]
	if g.Incoming.Password != "imap-secret" {
		t.Fatalf("expected incoming password to be expanded, got %q", g.Incoming.Password)
	}
	if g.Outgoing.Password != "smtp-secret" {
		t.Fatalf("expected outgoing password to be expanded, got %q", g.Outgoing.Password)
	}
}

func TestHappyPath(t *testing.T) {
	t.Setenv("DEPOTMAIL_NORTHGATE_IMAP_PASS", "imap-secret")
	t.Setenv("DEPOTMAIL_NORTHGATE_SMTP_PASS", "smtp-secret")

	path := writeTempFile(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got error: %v", err)
	}

	if len(cfg.Depots) != 1 {
		t.Fatalf("expected one depot, got %d", len(cfg.Depots))
	}
	d := cfg.Depots[0]
	if d.Name != "Northgate" || d.Line != "Line 4" {
		t.Fatalf("unexpected depot identity: %+v", d)
	}
	if d.SpoolDir != "/var/spool/depotmail/northgate" {
		t.Fatalf("unexpected spool dir: %q", d.SpoolDir)
	}

	summary := Summary(cfg)
	if !strings.Contains(summary, "Northgate") {
		t.Fatalf("expected summary to name the depot, got: %s", summary)
	}
	if strings.Contains(summary, "secret") {
		t.Fatalf("summary must not leak credentials: %s", summary)
	}
}

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}
