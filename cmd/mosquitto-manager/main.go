package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/config"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mosquitto-manager",
	Short: "Mosquitto Manager - configuration and monitoring for a Mosquitto broker",
	Long: `Mosquitto Manager owns the configuration of a co-located Mosquitto
broker. It stores listeners, users and access profiles in one document,
renders mosquitto.conf, password and ACL files from it, restarts the broker
and reports connected clients and broker metrics.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Mosquitto Manager version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file (default: $"+config.EnvConfigFile+")")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Mosquitto Manager version %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Built: %s\n", BuildTime)
	},
}

// loadConfig reads the configuration named by the persistent flags and
// initializes logging from it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stderr,
	})
	return cfg, nil
}
