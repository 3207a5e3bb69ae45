package config

import (
	"os"
	"strings"
	"testing"
)

const validYAML = `
app:
  control_token: hunter2-hunter2
openstack:
  auth_url: https://keystone.example.org:5000/v3
  username: svc-openwake
  password: secret
  project_name: gpu-lab
  user_domain_name: Default
targets:
  - id: chatbox
    label: Chat workstation
    instance_name: chatbox-vm
    url_scheme: https
    port: 443
    healthcheck_path: healthz
    launch_path: chat
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}

	if cfg.App.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.App.Port)
	}
	if cfg.App.PollIntervalSeconds != 10 {
		t.Errorf("expected default poll interval 10, got %d", cfg.App.PollIntervalSeconds)
	}
	if cfg.App.HTTPProbeAttempts != 12 {
		t.Errorf("expected default probe attempts 12, got %d", cfg.App.HTTPProbeAttempts)
	}
	if !cfg.App.ShelveFailsOnError() {
		t.Error("expected shelve ERROR handling to default to fatal")
	}

	tgt := cfg.Targets[0]
	if tgt.HealthcheckPath != "/healthz" {
		t.Errorf("expected normalized healthcheck path /healthz, got %s", tgt.HealthcheckPath)
	}
	if tgt.LaunchPath != "/chat" {
		t.Errorf("expected normalized launch path /chat, got %s", tgt.LaunchPath)
	}
	if !tgt.TLSVerified() {
		t.Error("expected TLS verification to default to true")
	}
}

func TestParseProbeOverrides(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}
	tgt := cfg.Targets[0]
	if got := tgt.ProbeAttempts(cfg.App); got != 12 {
		t.Errorf("expected fallback probe attempts 12, got %d", got)
	}

	tgt.HTTPProbeAttempts = 3
	if got := tgt.ProbeAttempts(cfg.App); got != 3 {
		t.Errorf("expected override probe attempts 3, got %d", got)
	}
}

func TestParseDuplicateTargetIDs(t *testing.T) {
	dup := strings.Replace(validYAML, "targets:", `targets:
  - id: chatbox
    label: Duplicate
    instance_name: other-vm
`, 1)
	if _, err := Parse([]byte(dup)); err == nil {
		t.Fatal("expected error for duplicate target ids")
	}
}

func TestParseDuplicateInstanceNames(t *testing.T) {
	dup := strings.Replace(validYAML, "targets:", `targets:
  - id: second
    label: Second
    instance_name: chatbox-vm
`, 1)
	if _, err := Parse([]byte(dup)); err == nil {
		t.Fatal("expected error for duplicate instance names")
	}
}

func TestParseCredentialSets(t *testing.T) {
	const targets = `
targets:
  - id: chatbox
    label: Chat workstation
    instance_name: chatbox-vm
`
	tests := []struct {
		name      string
		openstack string
		wantErr   bool
	}{
		{
			name: "basic triple",
			openstack: `
openstack:
  auth_url: https://keystone.example.org:5000/v3
  username: svc-openwake
  password: secret
  project_name: gpu-lab
`,
		},
		{
			name: "application credentials",
			openstack: `
openstack:
  auth_url: https://keystone.example.org:5000/v3
  application_credential_id: abc123
  application_credential_secret: shh
`,
		},
		{
			name: "incomplete triple",
			openstack: `
openstack:
  auth_url: https://keystone.example.org:5000/v3
  username: svc-openwake
  password: secret
`,
			wantErr: true,
		},
		{
			name: "both sets",
			openstack: `
openstack:
  auth_url: https://keystone.example.org:5000/v3
  username: svc-openwake
  password: secret
  project_name: gpu-lab
  application_credential_id: abc123
  application_credential_secret: shh
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.openstack + targets))
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseNoTargets(t *testing.T) {
	yaml := `
openstack:
  auth_url: https://keystone.example.org:5000/v3
  application_credential_id: abc
  application_credential_secret: shh
targets: []
`
	if _, err := Parse([]byte(yaml)); err == nil {
		t.Fatal("expected error for empty target list")
	}
}

func TestActivityDefaultsToFirstTarget(t *testing.T) {
	yaml := validYAML + `
activity:
  log_path: /var/log/caddy/access.log
  upstream_label: chatbox-upstream
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}
	if cfg.Activity.TargetID != "chatbox" {
		t.Errorf("expected activity target to default to chatbox, got %s", cfg.Activity.TargetID)
	}
	if cfg.Activity.IdleTimeoutMinutes != 30 {
		t.Errorf("expected default idle timeout 30m, got %d", cfg.Activity.IdleTimeoutMinutes)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := f.WriteString(validYAML); err != nil {
		t.Fatalf("write config: %v", err)
	}
	f.Close()

	t.Setenv("OPENWAKE_PORT", "9999")
	t.Setenv("OPENWAKE_CONTROL_TOKEN", "override-token")

	cfg, err := Load(f.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.App.Port != 9999 {
		t.Errorf("expected port 9999 from env, got %d", cfg.App.Port)
	}
	if cfg.App.ControlToken != "override-token" {
		t.Errorf("expected control token from env, got %s", cfg.App.ControlToken)
	}
}

func TestLoadInvalidPortEnv(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := f.WriteString(validYAML); err != nil {
		t.Fatalf("write config: %v", err)
	}
	f.Close()

	t.Setenv("OPENWAKE_PORT", "not-a-number")
	if _, err := Load(f.Name()); err == nil {
		t.Fatal("expected error for invalid OPENWAKE_PORT")
	}
}
