package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/infrastructure/monitoring"
	"github.com/turtacn/aegis/pkg/logger"
)

var (
	configFile   string
	outputFormat string
	logLevel     string
)

// rootCmd represents the base command when the `aegisctl` binary is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "aegisctl",
	Short: "Offline tooling for the aegis authentication decision service.",
	Long: `aegisctl runs the risk engine and decision machine locally against recorded
sessions and profiles, and verifies signatures on exported audit events.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file supplying weights and thresholds (defaults when empty)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "output format: json, yaml or text")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for diagnostics written to stderr")
}

// Execute is the main entry point for the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the console zap logger; stdout is kept for command output.
func newLogger() (logger.Logger, error) {
	return monitoring.NewZapLogger(config.LogConfig{Level: logLevel, Format: "console", OutputPath: "stderr"})
}

// loadConfig reads the config file when given; otherwise defaults apply.
// Normalisation warnings go to log.
func loadConfig(log logger.Logger) (*config.Config, error) {
	if configFile == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(configFile, log)
}

func readJSONFile(path string, out interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func render(w io.Writer, v interface{}, text func(io.Writer)) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "text":
		text(w)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
}
