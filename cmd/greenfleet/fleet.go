package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/greenfleet/pkg/resource"
	"github.com/cuemby/greenfleet/pkg/types"
	"github.com/spf13/cobra"
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Inspect and clean up fleets",
}

var fleetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the target's current fleet",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		params, err := env.params(cmd)
		if err != nil {
			return err
		}

		name, ok, err := params.CurrentFleet(cmd.Context())
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("%s has not been deployed yet\n", params.Scope())
			return nil
		}

		f, err := env.fleets().Read(cmd.Context(), name)
		if errors.Is(err, resource.ErrNotFound) {
			return fmt.Errorf("current fleet %s does not exist", name)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Fleet: %s\n", f.Name)
		fmt.Printf("  Capacity:    min=%d desired=%d max=%d\n", f.MinCapacity, f.DesiredCapacity, f.MaxCapacity)
		fmt.Printf("  Ready:       %d/%d\n", f.ReadyCount(), f.DesiredCapacity)
		fmt.Printf("  Members:     %s\n", types.FormatSummary(f.LifecycleSummary()))
		if f.LaunchSpec.Name != "" {
			fmt.Printf("  Launch spec: %s\n", f.LaunchSpec.Name)
			if ls, err := env.launchSpecs().Read(cmd.Context(), f.LaunchSpec.Name, f.LaunchSpec.Version); err == nil {
				fmt.Printf("  Image:       %s (%s)\n", ls.Data.ImageID, ls.Data.InstanceType)
			}
		}
		for _, m := range f.Members {
			fmt.Printf("    %s  %-12s %s\n", m.ID, m.LifecycleState, m.HealthStatus)
		}
		return nil
	},
}

var fleetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the target's fleets, including orphans",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		params, err := env.params(cmd)
		if err != nil {
			return err
		}
		current, _, err := params.CurrentFleet(cmd.Context())
		if err != nil {
			return err
		}

		fleets, err := env.fleets().List(cmd.Context())
		if err != nil {
			return err
		}

		scope := params.Scope()
		prefix := fmt.Sprintf("ASG-%s-%s-", scope.Target, scope.Environment)
		found := 0
		for _, f := range fleets {
			if !strings.HasPrefix(f.Name, prefix) {
				continue
			}
			found++
			marker := " "
			if f.Name == current {
				marker = "*"
			}
			fmt.Printf("%s %-32s %d/%d ready  %s\n", marker, f.Name, f.ReadyCount(), f.DesiredCapacity, f.LaunchSpec.Name)
		}
		if found == 0 {
			fmt.Printf("No fleets for %s\n", scope)
		}
		return nil
	},
}

var fleetDestroyCmd = &cobra.Command{
	Use:   "destroy FLEET",
	Short: "Drain and delete an orphaned fleet and its launch spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		params, err := env.params(cmd)
		if err != nil {
			return err
		}
		current, _, err := params.CurrentFleet(cmd.Context())
		if err != nil {
			return err
		}
		if args[0] == current {
			return fmt.Errorf("%s is the current fleet of %s", current, params.Scope())
		}

		fleets := env.fleets()
		f, err := fleets.Read(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := fleets.Destroy(cmd.Context(), f.Name); err != nil {
			return err
		}
		fmt.Printf("✓ Fleet destroyed: %s\n", f.Name)

		if f.LaunchSpec.Name == "" {
			return nil
		}
		if err := env.launchSpecs().Destroy(cmd.Context(), f.LaunchSpec.Name); err != nil {
			if errors.Is(err, resource.ErrInUse) {
				fmt.Printf("Launch spec %s is still in use, kept\n", f.LaunchSpec.Name)
				return nil
			}
			return err
		}
		fmt.Printf("✓ Launch spec destroyed: %s\n", f.LaunchSpec.Name)
		return nil
	},
}

func init() {
	fleetCmd.AddCommand(fleetStatusCmd)
	fleetCmd.AddCommand(fleetListCmd)
	fleetCmd.AddCommand(fleetDestroyCmd)
}
