package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kozaktomas/face-labeler/internal/config"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
	runID      = uuid.NewString()
)

var rootCmd = &cobra.Command{
	Use:   "face-labeler",
	Short: "Assign face crops to named identities",
	Long: `Face Labeler walks a pool of cropped face images and sorts each one into
a per-identity directory. Embeddings of already labeled images suggest the
likely identity; confident matches can be accepted automatically and a human
confirms or corrects the rest.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML or TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig builds the configuration from env, the optional config file and
// the log level flag, and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	slog.SetDefault(newLogger(cfg.Log.Level))
	return cfg, nil
}

// newLogger returns a text logger on stderr tagged with the run ID.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	return slog.New(h).With("run_id", runID)
}
