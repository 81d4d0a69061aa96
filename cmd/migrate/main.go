package main

import (
	"fmt"
	"os"
	"strconv"

	"claim-service/config"
	"claim-service/internal/store"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := cobra.Command{
		Use:          "migrate",
		Short:        "Manage the claim service database schema",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		upCommand(),
		downCommand(),
		versionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println("[ERROR]", err)
		os.Exit(1)
	}
}

func withMigrator(fn func(mg *store.Migrator) error) error {
	conf, err := config.Load()
	if err != nil {
		return err
	}

	mg, err := store.NewMigrator(conf.Database.URL)
	if err != nil {
		return err
	}
	defer mg.Close()

	return fn(mg)
}

func upCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(mg *store.Migrator) error {
				if err := mg.Up(); err != nil {
					return err
				}
				fmt.Println("migrated up")
				return nil
			})
		},
	}
}

func downCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "down [n]",
		Short: "Roll back n migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 1
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v <= 0 {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				n = v
			}

			return withMigrator(func(mg *store.Migrator) error {
				if err := mg.Down(n); err != nil {
					return err
				}
				fmt.Println("rolled back", n, "migration(s)")
				return nil
			})
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(mg *store.Migrator) error {
				version, dirty, ok, err := mg.Version()
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("no migrations applied")
					return nil
				}
				fmt.Printf("version=%d dirty=%t\n", version, dirty)
				return nil
			})
		},
	}
}
