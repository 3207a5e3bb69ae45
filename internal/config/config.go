// Package config provides YAML-based configuration loading for OpenWake.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is used when OPENWAKE_CONFIG is not set.
	DefaultPath = "config.yaml"
	// ConfigEnvVar selects the config file path.
	ConfigEnvVar = "OPENWAKE_CONFIG"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Config is the top-level OpenWake configuration.
type Config struct {
	App       App       `yaml:"app"`
	OpenStack OpenStack `yaml:"openstack"`
	Targets   []Target  `yaml:"targets"`
	Activity  *Activity `yaml:"activity"`
	Events    Events    `yaml:"events"`
}

// App holds application-level settings and probe defaults.
type App struct {
	Title                   string  `yaml:"title"`
	Port                    int     `yaml:"port"`
	ControlToken            string  `yaml:"control_token"`
	PollIntervalSeconds     int     `yaml:"poll_interval_seconds"`
	HTTPProbeTimeoutSeconds float64 `yaml:"http_probe_timeout_seconds"`
	HTTPProbeAttempts       int     `yaml:"http_probe_attempts"`

	// FailShelveOnError makes the shelve workflow fail when the provider
	// reports ERROR during polling instead of polling forever.
	FailShelveOnError *bool `yaml:"fail_shelve_on_error"`
}

// PollInterval returns the status polling interval.
func (a App) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalSeconds) * time.Second
}

// ProbeTimeout returns the per-attempt HTTP probe timeout.
func (a App) ProbeTimeout() time.Duration {
	return time.Duration(a.HTTPProbeTimeoutSeconds * float64(time.Second))
}

// ShelveFailsOnError reports whether shelve polling treats ERROR as fatal.
func (a App) ShelveFailsOnError() bool {
	return a.FailShelveOnError == nil || *a.FailShelveOnError
}

// OpenStack holds credential and connection details for the provider.
// Exactly one of the username/password/project triple or the
// application-credential pair must be fully present.
type OpenStack struct {
	AuthURL                     string `yaml:"auth_url"`
	Region                      string `yaml:"region"`
	Username                    string `yaml:"username"`
	Password                    string `yaml:"password"`
	ProjectName                 string `yaml:"project_name"`
	UserDomainName              string `yaml:"user_domain_name"`
	ProjectDomainName           string `yaml:"project_domain_name"`
	ApplicationCredentialID     string `yaml:"application_credential_id"`
	ApplicationCredentialSecret string `yaml:"application_credential_secret"`
}

// HasBasicCredentials reports whether the username/password/project triple is complete.
func (o OpenStack) HasBasicCredentials() bool {
	return o.Username != "" && o.Password != "" && o.ProjectName != ""
}

// HasApplicationCredentials reports whether the application-credential pair is complete.
func (o OpenStack) HasApplicationCredentials() bool {
	return o.ApplicationCredentialID != "" && o.ApplicationCredentialSecret != ""
}

// Target defines one controllable instance with a UI action and identity.
type Target struct {
	ID                       string   `yaml:"id"`
	Label                    string   `yaml:"label"`
	InstanceName             string   `yaml:"instance_name"`
	Description              string   `yaml:"description"`
	PreferredNetworks        []string `yaml:"preferred_networks"`
	URLScheme                string   `yaml:"url_scheme"`
	Port                     int      `yaml:"port"`
	HealthcheckPath          string   `yaml:"healthcheck_path"`
	LaunchPath               string   `yaml:"launch_path"`
	HTTPProbeAttempts        int      `yaml:"http_probe_attempts"`
	HTTPProbeIntervalSeconds int      `yaml:"http_probe_interval_seconds"`
	VerifyTLS                *bool    `yaml:"verify_tls"`
}

// TLSVerified reports whether probe TLS verification is enabled (default true).
func (t Target) TLSVerified() bool {
	return t.VerifyTLS == nil || *t.VerifyTLS
}

// ProbeAttempts returns the per-target probe attempt count, falling back to the app default.
func (t Target) ProbeAttempts(app App) int {
	if t.HTTPProbeAttempts > 0 {
		return t.HTTPProbeAttempts
	}
	return app.HTTPProbeAttempts
}

// ProbeInterval returns the per-target probe interval, falling back to the poll interval.
func (t Target) ProbeInterval(app App) time.Duration {
	if t.HTTPProbeIntervalSeconds > 0 {
		return time.Duration(t.HTTPProbeIntervalSeconds) * time.Second
	}
	return app.PollInterval()
}

// Activity configures the reverse-proxy idle monitor. Nil disables it.
type Activity struct {
	LogPath             string `yaml:"log_path"`
	UpstreamLabel       string `yaml:"upstream_label"`
	TargetID            string `yaml:"target_id"`
	IdleTimeoutMinutes  int    `yaml:"idle_timeout_minutes"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
}

// IdleTimeout returns the configured idle timeout.
func (a Activity) IdleTimeout() time.Duration {
	return time.Duration(a.IdleTimeoutMinutes) * time.Minute
}

// PollInterval returns the monitor's loop interval.
func (a Activity) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalSeconds) * time.Second
}

// Events configures the audit event recorder.
type Events struct {
	LocalPath string `yaml:"local_path"`
	S3        *S3    `yaml:"s3"`
}

// S3 configures the optional remote audit sink (S3-compatible object storage).
type S3 struct {
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	Prefix          string `yaml:"prefix"`
}

// Load reads the YAML config from path, or from OPENWAKE_CONFIG / config.yaml
// when path is empty, and applies env overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(ConfigEnvVar)
	}
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TargetByID returns the target with the given id.
func (c *Config) TargetByID(id string) (Target, bool) {
	for _, t := range c.Targets {
		if t.ID == id {
			return t, true
		}
	}
	return Target{}, false
}

func (c *Config) applyDefaults() {
	if c.App.Title == "" {
		c.App.Title = "OpenWake"
	}
	if c.App.Port == 0 {
		c.App.Port = 8080
	}
	if c.App.PollIntervalSeconds == 0 {
		c.App.PollIntervalSeconds = 10
	}
	if c.App.HTTPProbeTimeoutSeconds == 0 {
		c.App.HTTPProbeTimeoutSeconds = 5
	}
	if c.App.HTTPProbeAttempts == 0 {
		c.App.HTTPProbeAttempts = 12
	}
	for i := range c.Targets {
		t := &c.Targets[i]
		if t.URLScheme == "" {
			t.URLScheme = "http"
		}
		t.HealthcheckPath = normalizePath(t.HealthcheckPath)
		if t.LaunchPath != "" {
			t.LaunchPath = normalizePath(t.LaunchPath)
		}
	}
	if c.Activity != nil {
		if c.Activity.TargetID == "" && len(c.Targets) > 0 {
			c.Activity.TargetID = c.Targets[0].ID
		}
		if c.Activity.IdleTimeoutMinutes == 0 {
			c.Activity.IdleTimeoutMinutes = 30
		}
		if c.Activity.PollIntervalSeconds == 0 {
			c.Activity.PollIntervalSeconds = 30
		}
	}
	if c.Events.LocalPath == "" {
		c.Events.LocalPath = "openwake-events.jsonl"
	}
}

func (c *Config) applyEnv() error {
	if portStr := os.Getenv("OPENWAKE_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("config: invalid OPENWAKE_PORT %q: %w", portStr, err)
		}
		c.App.Port = port
	}
	if token := os.Getenv("OPENWAKE_CONTROL_TOKEN"); token != "" {
		c.App.ControlToken = token
	}
	return nil
}

func (c *Config) validate() error {
	var errs []string

	if c.OpenStack.AuthURL == "" {
		errs = append(errs, "openstack.auth_url is required")
	}
	basic := c.OpenStack.HasBasicCredentials()
	appCred := c.OpenStack.HasApplicationCredentials()
	switch {
	case basic && appCred:
		errs = append(errs, "openstack: set either username/password/project_name or application credentials, not both")
	case !basic && !appCred:
		errs = append(errs, "openstack: either username/password/project_name or application_credential_id/application_credential_secret must be fully set")
	}

	if len(c.Targets) == 0 {
		errs = append(errs, "at least one target is required")
	}
	seenIDs := make(map[string]bool)
	seenInstances := make(map[string]bool)
	for i, t := range c.Targets {
		if t.ID == "" {
			errs = append(errs, fmt.Sprintf("targets[%d].id is required", i))
		} else if !idPattern.MatchString(t.ID) {
			errs = append(errs, fmt.Sprintf("targets[%d].id %q contains invalid characters", i, t.ID))
		} else if seenIDs[t.ID] {
			errs = append(errs, fmt.Sprintf("targets[%d].id %q is not unique", i, t.ID))
		}
		seenIDs[t.ID] = true

		if t.Label == "" {
			errs = append(errs, fmt.Sprintf("targets[%d].label is required", i))
		}
		if t.InstanceName == "" {
			errs = append(errs, fmt.Sprintf("targets[%d].instance_name is required", i))
		} else if seenInstances[t.InstanceName] {
			errs = append(errs, fmt.Sprintf("targets[%d].instance_name %q is not unique", i, t.InstanceName))
		}
		seenInstances[t.InstanceName] = true

		if t.Port < 0 || t.Port > 65535 {
			errs = append(errs, fmt.Sprintf("targets[%d].port %d is out of range", i, t.Port))
		}
	}

	if c.Activity != nil {
		if c.Activity.LogPath == "" {
			errs = append(errs, "activity.log_path is required when activity is configured")
		}
		if c.Activity.UpstreamLabel == "" {
			errs = append(errs, "activity.upstream_label is required when activity is configured")
		}
		if c.Activity.TargetID != "" && !seenIDs[c.Activity.TargetID] {
			errs = append(errs, fmt.Sprintf("activity.target_id %q does not match any target", c.Activity.TargetID))
		}
	}

	if c.Events.S3 != nil && c.Events.S3.Bucket == "" {
		errs = append(errs, "events.s3.bucket is required when events.s3 is configured")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}
