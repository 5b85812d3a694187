// Package main provides the cimut binary: the control panel server plus
// one-shot verify, mutate and find commands against an agent gateway.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Set by -ldflags at build time.
//
//nolint:gochecknoglobals // build metadata
var (
	version   = "dev"
	buildTime = "unknown"
)

const appName = "cimut"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	envFile    string
	gatewayURL string
	logLevel   string
	logFormat  string
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "CIMut control panel",
		Long: `cimut drives fault injection on remote agents through the CIMut gateway.

It provides:
- serve: the web control panel and its JSON/WebSocket API
- verify: read one line of a file on an agent
- mutate: verify a line, then replace it
- find: ask the gateway to choose a fault target for a scenario`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return applyGlobalFlags(cmd.ErrOrStderr(), flags)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Environment file loaded before reading CIMUT_* variables")
	cmd.PersistentFlags().StringVar(&flags.gatewayURL, "gateway", "", "Agent gateway base URL (overrides CIMUT_GATEWAY_URL)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides CIMUT_LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format (json, text); overrides CIMUT_LOG_FORMAT")

	cmd.AddCommand(
		serveCmd(),
		verifyCmd(),
		mutateCmd(),
		findCmd(),
		versionCmd(),
	)

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, version, buildTime)
		},
	}
}

// applyGlobalFlags loads the env file, lets flags override CIMUT_*
// variables, and installs the global logger on w.
func applyGlobalFlags(w io.Writer, flags globalFlags) error {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", flags.envFile, err)
		}
	}

	overrides := map[string]string{
		"CIMUT_GATEWAY_URL": flags.gatewayURL,
		"CIMUT_LOG_LEVEL":   flags.logLevel,
		"CIMUT_LOG_FORMAT":  flags.logFormat,
	}
	for key, val := range overrides {
		if val == "" {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}

	setupLogging(w, os.Getenv("CIMUT_LOG_LEVEL"), os.Getenv("CIMUT_LOG_FORMAT"))
	return nil
}

// setupLogging initializes the global zerolog logger. Unknown levels fall
// back to info.
func setupLogging(w io.Writer, level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	}
}
