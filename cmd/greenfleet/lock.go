package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/greenfleet/pkg/lock"
	"github.com/cuemby/greenfleet/pkg/paramstore"
	"github.com/spf13/cobra"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect or clear a target's deploy lock",
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who holds the deploy lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, env, err := targetLock(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		info, err := l.Read(cmd.Context())
		if errors.Is(err, paramstore.ErrNotFound) {
			fmt.Printf("%s: unlocked\n", l.Path())
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read lock: %v", err)
		}

		fmt.Printf("%s: locked\n", l.Path())
		fmt.Printf("  Token: %s\n", info.Token)
		if info.Owner != "" {
			fmt.Printf("  Owner: %s\n", info.Owner)
			fmt.Printf("  Since: %s (%s ago)\n", info.Acquired.Format(time.RFC3339), time.Since(info.Acquired).Round(time.Second))
		}
		return nil
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Remove a stale deploy lock",
	Long: `Remove the deploy lock regardless of who holds it.

Only use this after confirming no deploy is running for the target; a
running deploy whose lock is removed no longer excludes other deploys.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("refusing to release without --force")
		}

		l, env, err := targetLock(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := l.ReleaseForce(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("✓ Lock released: %s\n", l.Path())
		return nil
	},
}

func init() {
	lockReleaseCmd.Flags().Bool("force", false, "Confirm removal of another process's lock")

	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockReleaseCmd)
}

func targetLock(cmd *cobra.Command) (*lock.Lock, *environment, error) {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return nil, nil, err
	}
	params, err := env.params(cmd)
	if err != nil {
		env.Close()
		return nil, nil, err
	}
	return lock.New(env.store, params.LockPath()), env, nil
}
