package main

import (
	"fmt"
	"path/filepath"

	"github.com/cuemby/greenfleet/pkg/config"
	"github.com/cuemby/greenfleet/pkg/fleetapi"
	"github.com/cuemby/greenfleet/pkg/paramstore"
	"github.com/cuemby/greenfleet/pkg/resource"
	"github.com/cuemby/greenfleet/pkg/target"
	"github.com/spf13/cobra"
	"k8s.io/utils/clock"
)

// environment is everything a command needs for one --env
type environment struct {
	cfg   *config.Config
	store *paramstore.BoltStore
	api   *fleetapi.Client
	clock clock.Clock
}

func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	env, _ := cmd.Flags().GetString("env")
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = filepath.Join("config", env+".yaml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cfg.Environment != env {
		return nil, fmt.Errorf("%s configures environment %q, not %q", path, cfg.Environment, env)
	}

	store, err := paramstore.NewBoltStore(cfg.ParamStore.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parameter store: %v", err)
	}

	api := fleetapi.NewClient(fleetapi.ClientConfig{
		Endpoint:  cfg.FleetAPI.Endpoint,
		Token:     cfg.FleetAPI.Token,
		Timeout:   cfg.FleetAPI.Timeout,
		UserAgent: "greenfleet/" + Version,
	})

	return &environment{cfg: cfg, store: store, api: api, clock: clock.RealClock{}}, nil
}

func (e *environment) Close() {
	_ = e.api.Close()
	_ = e.store.Close()
}

// params binds the parameter record of the --target flag
func (e *environment) params(cmd *cobra.Command) (*target.Params, error) {
	name, _ := cmd.Flags().GetString("target")
	if name == "" {
		return nil, fmt.Errorf("--target is required")
	}
	if _, err := e.cfg.Target(name); err != nil {
		return nil, err
	}

	scope := target.Scope{Namespace: e.cfg.Namespace, Environment: e.cfg.Environment, Target: name}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return target.NewParams(e.store, scope), nil
}

func (e *environment) fleets() *resource.FleetClient {
	return resource.NewFleetClient(e.api, e.clock, e.cfg.FleetOptions())
}

func (e *environment) launchSpecs() *resource.LaunchSpecClient {
	return resource.NewLaunchSpecClient(e.api, e.clock, resource.DefaultRetryPolicy)
}
