package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/greenfleet/pkg/deploy"
	"github.com/cuemby/greenfleet/pkg/events"
	"github.com/cuemby/greenfleet/pkg/lock"
	"github.com/cuemby/greenfleet/pkg/log"
	"github.com/cuemby/greenfleet/pkg/metrics"
	"github.com/spf13/cobra"
)

// exitCancelled matches the shell convention for SIGINT
const exitCancelled = 130

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Replace a target's fleet with one running a new image",
	Long: `Deploy the most recently built image of a target.

A new launch spec and fleet are created next to the current fleet. Once
every new member is healthy and in service the old fleet is drained and
deleted, and the new fleet becomes current. Interrupting the deploy before
that point rolls back everything it created.

Examples:
  # Deploy the latest image of web in prod
  greenfleet deploy --env prod --target web

  # Deploy a specific image and dump metrics for node-exporter
  greenfleet deploy --env prod --target web --image-id img-0abc --metrics-file /var/lib/node_exporter/greenfleet.prom`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().String("image-id", "", "Image to deploy (default: most recently recorded)")
	deployCmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file when done")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	imageID, _ := cmd.Flags().GetString("image-id")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	params, err := env.params(cmd)
	if err != nil {
		return err
	}
	t, err := env.cfg.Target(params.Scope().Target)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker := events.NewBroker()
	sub := broker.Subscribe()
	broker.Start()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range sub {
			printEvent(ev)
		}
	}()

	deployer := deploy.NewDeployer(deploy.Registry{
		Fleets:      env.fleets(),
		LaunchSpecs: env.launchSpecs(),
		Lock:        lock.New(env.store, params.LockPath()),
		Target:      params,
		Clock:       env.clock,
	}, deploy.WithEvents(broker))

	fmt.Printf("Deploying %s\n", params.Scope())
	res, runErr := deployer.Run(ctx, deploy.Request{
		ImageID:    imageID,
		LaunchSpec: t.LaunchSpecData(""),
		Fleet:      t.FleetConfig(),
	})

	broker.Stop()
	broker.Unsubscribe(sub)
	<-printed
	printResult(res)

	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile); err != nil {
			log.Errorf("Failed to write metrics file", err)
		}
	}

	if runErr != nil {
		if res.Outcome == deploy.OutcomeCancelled || errors.Is(runErr, deploy.ErrCancelled) {
			return &exitError{code: exitCancelled, err: runErr}
		}
		return runErr
	}
	return nil
}

func printEvent(ev *events.Event) {
	ts := ev.Timestamp.Format(time.TimeOnly)
	switch ev.Type {
	case events.EventStateChanged:
		fmt.Printf("%s  → %s\n", ts, ev.Metadata["to"])
	case events.EventResourceCreated:
		fmt.Printf("%s    created %s\n", ts, ev.Message)
	case events.EventResourceDestroyed:
		fmt.Printf("%s    destroyed %s\n", ts, ev.Message)
	case events.EventResourceOrphaned:
		fmt.Printf("%s    orphaned %s\n", ts, ev.Message)
	}
}

func printResult(res *deploy.Result) {
	fmt.Println()
	fmt.Printf("Outcome:      %s\n", res.Outcome)
	fmt.Printf("  Duration:   %s\n", res.Duration.Round(time.Second))
	if res.ImageID != "" {
		fmt.Printf("  Image:      %s\n", res.ImageID)
	}
	if res.FirstDeploy {
		fmt.Println("  Blue fleet: none (first deploy)")
	} else if res.BlueFleet != "" {
		fmt.Printf("  Blue fleet: %s (%s)\n", res.BlueFleet, res.BlueLaunchSpec)
	}
	if res.GreenFleet != "" {
		fmt.Printf("  Green fleet: %s (%s)\n", res.GreenFleet, res.GreenLaunchSpec)
	}
	for _, e := range res.RolledBack {
		fmt.Printf("  Rolled back: %s\n", e)
	}
	for _, e := range res.Orphaned {
		fmt.Printf("  Orphaned:   %s (remove by hand)\n", e)
	}

	if res.Outcome == deploy.OutcomeSucceeded {
		fmt.Printf("✓ %s is now current\n", res.GreenFleet)
	}
}
