package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/cuemby/greenfleet/pkg/resource"
	"github.com/cuemby/greenfleet/pkg/types"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when a field is left empty
const (
	DefaultNamespace      = "greenfleet"
	DefaultAPITimeout     = 30 * time.Second
	DefaultParamStorePath = "/var/lib/greenfleet/params.db"
	DefaultHealthCheck    = "EC2"
	DefaultGracePeriod    = 300 * time.Second
)

// ErrTargetNotFound is returned by Config.Target for an undeclared target
var ErrTargetNotFound = fmt.Errorf("target not declared: %w", errdefs.ErrNotFound)

// Config is one environment's configuration file
type Config struct {
	Namespace   string            `yaml:"namespace"`
	Environment string            `yaml:"environment"`
	FleetAPI    FleetAPI          `yaml:"fleet_api"`
	ParamStore  ParamStore        `yaml:"param_store"`
	Waits       Waits             `yaml:"waits"`
	Targets     map[string]Target `yaml:"targets"`
}

// FleetAPI locates the fleet manager
type FleetAPI struct {
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ParamStore locates the parameter database
type ParamStore struct {
	Path string `yaml:"path"`
}

// Waits overrides the convergence timings; zero keeps the default
type Waits struct {
	ReadyInterval time.Duration `yaml:"ready_interval"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout"`
	DrainInterval time.Duration `yaml:"drain_interval"`
	DrainTimeout  time.Duration `yaml:"drain_timeout"`
}

// Target is the declared shape of one deploy target
type Target struct {
	LaunchSpec LaunchSpec `yaml:"launch_spec"`
	Fleet      Fleet      `yaml:"fleet"`
}

type LaunchSpec struct {
	InstanceType       string   `yaml:"instance_type"`
	KeyPair            string   `yaml:"key_pair"`
	SecurityGroupIDs   []string `yaml:"security_group_ids"`
	InstanceProfileARN string   `yaml:"instance_profile_arn"`
}

type Fleet struct {
	MinCapacity       int             `yaml:"min_capacity"`
	MaxCapacity       int             `yaml:"max_capacity"`
	DesiredCapacity   int             `yaml:"desired_capacity"`
	SubnetIDs         []string        `yaml:"subnet_ids"`
	AvailabilityZones []string        `yaml:"availability_zones"`
	TargetGroupARNs   []string        `yaml:"target_group_arns"`
	HealthCheck       HealthCheck     `yaml:"health_check"`
	Policies          []ScalingPolicy `yaml:"scaling_policies"`
}

type HealthCheck struct {
	Type        string        `yaml:"type"`
	GracePeriod time.Duration `yaml:"grace_period"`
}

type ScalingPolicy struct {
	Name                    string        `yaml:"name"`
	AdjustmentType          string        `yaml:"adjustment_type"`
	ScalingAdjustment       int           `yaml:"scaling_adjustment"`
	Cooldown                time.Duration `yaml:"cooldown"`
	MinAdjustmentMagnitude  int           `yaml:"min_adjustment_magnitude"`
	EstimatedInstanceWarmup time.Duration `yaml:"estimated_instance_warmup"`
}

// Load reads, defaults and validates the file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Parse decodes a configuration document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.FleetAPI.Timeout == 0 {
		c.FleetAPI.Timeout = DefaultAPITimeout
	}
	if c.ParamStore.Path == "" {
		c.ParamStore.Path = DefaultParamStorePath
	}
	for name, t := range c.Targets {
		if t.Fleet.HealthCheck.Type == "" {
			t.Fleet.HealthCheck.Type = DefaultHealthCheck
		}
		if t.Fleet.HealthCheck.GracePeriod == 0 {
			t.Fleet.HealthCheck.GracePeriod = DefaultGracePeriod
		}
		c.Targets[name] = t
	}
}

// Validate checks the whole file and reports every problem at once
func (c *Config) Validate() error {
	var errs []error
	if c.Environment == "" {
		errs = append(errs, errors.New("environment is required"))
	}
	if c.FleetAPI.Endpoint == "" {
		errs = append(errs, errors.New("fleet_api.endpoint is required"))
	}
	if len(c.Targets) == 0 {
		errs = append(errs, errors.New("at least one target is required"))
	}

	for _, name := range c.TargetNames() {
		t := c.Targets[name]
		if strings.ContainsAny(name, "/,") {
			errs = append(errs, fmt.Errorf("target %q: name must not contain '/' or ','", name))
		}
		if t.LaunchSpec.InstanceType == "" {
			errs = append(errs, fmt.Errorf("target %s: launch_spec.instance_type is required", name))
		}
		if err := t.FleetConfig().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("target %s: fleet: %w", name, err))
		}
		for i, p := range t.Fleet.Policies {
			if p.Name == "" || p.AdjustmentType == "" {
				errs = append(errs, fmt.Errorf("target %s: scaling policy %d: name and adjustment_type are required", name, i))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w: %w", errdefs.ErrInvalidArgument, err)
	}
	return nil
}

// TargetNames returns the declared targets in name order
func (c *Config) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Target returns one target's declaration
func (c *Config) Target(name string) (Target, error) {
	t, ok := c.Targets[name]
	if !ok {
		return Target{}, fmt.Errorf("%s in environment %s: %w", name, c.Environment, ErrTargetNotFound)
	}
	return t, nil
}

// FleetOptions returns the production fleet timings with any overrides applied
func (c *Config) FleetOptions() resource.FleetOptions {
	opts := resource.DefaultFleetOptions()
	if c.Waits.ReadyInterval > 0 {
		opts.ReadyInterval = c.Waits.ReadyInterval
	}
	if c.Waits.ReadyTimeout > 0 {
		opts.ReadyTimeout = c.Waits.ReadyTimeout
	}
	if c.Waits.DrainInterval > 0 {
		opts.DrainInterval = c.Waits.DrainInterval
	}
	if c.Waits.DrainTimeout > 0 {
		opts.DrainTimeout = c.Waits.DrainTimeout
	}
	return opts
}

// FleetConfig converts the declaration to the controller's fleet settings
func (t Target) FleetConfig() types.FleetConfig {
	cfg := types.FleetConfig{
		MinCapacity:       t.Fleet.MinCapacity,
		MaxCapacity:       t.Fleet.MaxCapacity,
		DesiredCapacity:   t.Fleet.DesiredCapacity,
		SubnetIDs:         t.Fleet.SubnetIDs,
		AvailabilityZones: t.Fleet.AvailabilityZones,
		TargetGroupARNs:   t.Fleet.TargetGroupARNs,
		HealthCheck: types.HealthCheck{
			Type:        t.Fleet.HealthCheck.Type,
			GracePeriod: t.Fleet.HealthCheck.GracePeriod,
		},
	}
	for _, p := range t.Fleet.Policies {
		cfg.Policies = append(cfg.Policies, types.ScalingPolicy{
			Name:                    p.Name,
			AdjustmentType:          p.AdjustmentType,
			ScalingAdjustment:       p.ScalingAdjustment,
			Cooldown:                p.Cooldown,
			MinAdjustmentMagnitude:  p.MinAdjustmentMagnitude,
			EstimatedInstanceWarmup: p.EstimatedInstanceWarmup,
		})
	}
	return cfg
}

// LaunchSpecData converts the declaration to launch spec data for imageID
func (t Target) LaunchSpecData(imageID string) types.LaunchSpecData {
	return types.LaunchSpecData{
		ImageID:            imageID,
		InstanceType:       t.LaunchSpec.InstanceType,
		KeyPair:            t.LaunchSpec.KeyPair,
		SecurityGroupIDs:   t.LaunchSpec.SecurityGroupIDs,
		InstanceProfileARN: t.LaunchSpec.InstanceProfileARN,
	}
}
