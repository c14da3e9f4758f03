package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"schiene.dev/railplan"
	"schiene.dev/railplan/config"
	"schiene.dev/railplan/storage"
)

var rootCmd = &cobra.Command{
	Use:          "railplan",
	Short:        "Rail journey planning tool",
	Long:         "Plans multi-leg rail journeys from a static timetable",
	SilenceUsage: true,
}

var (
	configPath string
	verbose    bool

	cfg config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}

		cfg = config.Default()
		if configPath != "" {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
		}
		return nil
	}

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(routesCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(intermediatesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func openStorage() (storage.Storage, error) {
	switch cfg.Store.Driver {
	case "", "sqlite":
		if cfg.Store.DSN != "" {
			return storage.NewSQLiteStorage(storage.SQLiteConfig{Path: cfg.Store.DSN})
		}
		return storage.NewSQLiteStorage()
	case "postgres":
		return storage.NewPSQLStorage(cfg.Store.DSN, false)
	case "memory":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func loadPlanner() (*railplan.Planner, error) {
	s, err := openStorage()
	if err != nil {
		return nil, err
	}
	return railplan.NewPlanner(cfg, s)
}
