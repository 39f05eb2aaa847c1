// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

// Package config provides the explicit pipeline configuration structure.
// All parameters that the original pipelines threaded through ambient
// environment variables live here and are passed to components directly.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// GateMode controls how scanner findings affect the pipeline outcome.
type GateMode string

const (
	// GatePermissive logs findings and lets the run continue.
	GatePermissive GateMode = "permissive"
	// GateEnforcing fails the run on any finding.
	GateEnforcing GateMode = "enforcing"
)

// Config is the full pipeline configuration.
type Config struct {
	// Cluster identifies the target cluster.
	Cluster ClusterConfig `yaml:"cluster"`
	// Registry configures the image registry.
	Registry RegistryConfig `yaml:"registry"`
	// Rollout configures the deployment rollout.
	Rollout RolloutConfig `yaml:"rollout"`
	// Expose configures service exposure negotiation.
	Expose ExposeConfig `yaml:"expose"`
	// Scan configures scanner invocation and gating.
	Scan ScanConfig `yaml:"scan"`
	// Provision configures the optional infrastructure reconciliation step.
	Provision ProvisionConfig `yaml:"provision"`
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// ClusterConfig identifies the target cluster.
type ClusterConfig struct {
	// Name is the managed cluster name.
	Name string `yaml:"name"`
	// Region is the cloud region the cluster runs in.
	Region string `yaml:"region"`
	// Kubeconfig is the path to the kubeconfig file. Empty means the
	// default loading rules (in-cluster, then $KUBECONFIG, then ~/.kube).
	Kubeconfig string `yaml:"kubeconfig,omitempty"`
	// Namespace is the namespace the workload lives in.
	Namespace string `yaml:"namespace" default:"default"`
}

// RegistryConfig configures the image registry.
type RegistryConfig struct {
	// Host is the registry hostname, e.g. 123456789.dkr.ecr.eu-west-1.amazonaws.com.
	Host string `yaml:"host"`
	// Repository is the image repository within the registry.
	Repository string `yaml:"repository"`
	// UsernameEnv and PasswordEnv name the environment variables holding
	// the registry credentials. The variables are only read while the
	// login/push step runs.
	UsernameEnv string `yaml:"usernameEnv" default:"REGISTRY_USERNAME"`
	// PasswordEnv names the password variable.
	PasswordEnv string `yaml:"passwordEnv" default:"REGISTRY_PASSWORD"`
	// LoginRetries is the number of retries after a failed login attempt.
	LoginRetries uint64 `yaml:"loginRetries" default:"2"`
	// LoginBackoff is the fixed delay between login attempts.
	LoginBackoff Duration `yaml:"loginBackoff" default:"5s"`
}

// RolloutConfig configures the deployment rollout.
type RolloutConfig struct {
	// Deployment is the deployment name.
	Deployment string `yaml:"deployment"`
	// Container is the container within the deployment whose image is advanced.
	Container string `yaml:"container"`
	// Timeout bounds the wait for the rollout to converge.
	Timeout Duration `yaml:"timeout" default:"5m"`
	// PollInterval is the delay between rollout status polls.
	PollInterval Duration `yaml:"pollInterval" default:"5s"`
	// BundleDir is the directory diagnostic bundles are written to.
	BundleDir string `yaml:"bundleDir" default:"diagnostics"`
}

// ExposeConfig configures service exposure negotiation.
type ExposeConfig struct {
	// Service is the name of the service object the manifests declare.
	Service string `yaml:"service"`
	// ClassicManifest is the path to the classic load-balancer manifest.
	// A missing file skips the tier.
	ClassicManifest string `yaml:"classicManifest"`
	// NetworkManifest is the path to the network load-balancer fallback
	// manifest. A missing file skips the tier.
	NetworkManifest string `yaml:"networkManifest"`
	// PollInterval is the delay between hostname polls.
	PollInterval Duration `yaml:"pollInterval" default:"15s"`
	// TierDeadline bounds the hostname wait per tier.
	TierDeadline Duration `yaml:"tierDeadline" default:"6m"`
	// Required promotes a no-hostname outcome to a fatal pipeline error.
	Required bool `yaml:"required"`
}

// ScanConfig configures scanner invocation and gating.
type ScanConfig struct {
	// Gate selects the severity policy applied to findings.
	Gate GateMode `yaml:"gate" default:"permissive"`
	// ImageScanners are run against the built image before push.
	ImageScanners []ScannerConfig `yaml:"imageScanners,omitempty"`
	// ManifestScanners are run against the manifests before apply.
	ManifestScanners []ScannerConfig `yaml:"manifestScanners,omitempty"`
	// DAST is run against the exposed hostname after a successful rollout.
	DAST *ScannerConfig `yaml:"dast,omitempty"`
}

// ScannerConfig describes one external scanner invocation.
type ScannerConfig struct {
	// Name is a friendly name used in logs.
	Name string `yaml:"name"`
	// Command is the executable to run.
	Command string `yaml:"command"`
	// Args are passed verbatim, except that the placeholder {{target}} is
	// replaced with the stage target (image reference, manifest path or
	// hostname).
	Args []string `yaml:"args,omitempty"`
	// Timeout bounds the scanner run.
	Timeout Duration `yaml:"timeout" default:"10m"`
}

// ProvisionConfig configures the optional infrastructure step.
type ProvisionConfig struct {
	// Enabled runs terraform before the rollout core.
	Enabled bool `yaml:"enabled"`
	// WorkDir is the terraform working directory.
	WorkDir string `yaml:"workDir,omitempty"`
	// Backend configures remote state, if any.
	Backend *BackendConfig `yaml:"backend,omitempty"`
}

// BackendConfig configures S3-style remote terraform state.
type BackendConfig struct {
	// Bucket is the state bucket name.
	Bucket string `yaml:"bucket"`
	// Key is the state object key.
	Key string `yaml:"key"`
	// Region is the bucket region.
	Region string `yaml:"region"`
	// LockTable is the lock table name.
	LockTable string `yaml:"lockTable,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level" default:"info"`
	// Format is the log encoding (json, console).
	Format string `yaml:"format" default:"json"`
	// Development enables development mode.
	Development bool `yaml:"development"`
}

// Duration wraps time.Duration for YAML marshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(duration)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// SetDefault implements the defaults setter hook so `default` tags on
// Duration fields are honored.
func (d *Duration) SetDefault(val string) error {
	if *d != 0 || val == "" {
		return nil
	}
	duration, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("invalid default duration %q: %w", val, err)
	}
	*d = Duration(duration)
	return nil
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML data and applies defaults.
func Parse(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := defaults.Set(config); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	return config, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Cluster.Name == "" {
		return fmt.Errorf("cluster.name is required")
	}
	if c.Registry.Host == "" {
		return fmt.Errorf("registry.host is required")
	}
	if c.Registry.Repository == "" {
		return fmt.Errorf("registry.repository is required")
	}
	if c.Rollout.Deployment == "" {
		return fmt.Errorf("rollout.deployment is required")
	}
	if c.Rollout.Container == "" {
		return fmt.Errorf("rollout.container is required")
	}
	if c.Rollout.Timeout.Duration() < time.Second {
		return fmt.Errorf("rollout.timeout must be at least 1s")
	}
	if c.Expose.PollInterval.Duration() <= 0 {
		return fmt.Errorf("expose.pollInterval must be positive")
	}
	if c.Expose.TierDeadline.Duration() < c.Expose.PollInterval.Duration() {
		return fmt.Errorf("expose.tierDeadline must not be shorter than expose.pollInterval")
	}
	switch c.Scan.Gate {
	case GatePermissive, GateEnforcing:
	default:
		return fmt.Errorf("scan.gate must be %q or %q", GatePermissive, GateEnforcing)
	}
	scanners := append(append([]ScannerConfig{}, c.Scan.ImageScanners...), c.Scan.ManifestScanners...)
	if c.Scan.DAST != nil {
		scanners = append(scanners, *c.Scan.DAST)
	}
	for i, s := range scanners {
		if s.Command == "" {
			return fmt.Errorf("scanners[%d].command is required", i)
		}
	}
	if c.Provision.Enabled && c.Provision.WorkDir == "" {
		return fmt.Errorf("provision.workDir is required when provisioning is enabled")
	}
	return nil
}
