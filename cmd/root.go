// Package cmd provides the brokeradmin command line: the HTTP server and offline
// administration commands that operate on the same storage.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"brokeradmin/bootstrap"
	"brokeradmin/core"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	outputJSON bool
	outputYAML bool
	configDir  string
	noColor    bool
	quiet      bool
	verbose    bool
)

const (
	maxPayloadFileSize = 1 * 1024 * 1024 // settings payloads are small
	defaultTimeout     = 2 * time.Minute
)

// NewRootCmd creates the brokeradmin command with all subcommands. Without a
// subcommand it runs the server.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "brokeradmin",
		Short: "Admin control plane for the MQTT broker",
		Long: `Admin control plane for the MQTT broker.

Without a subcommand the HTTP API is served. The admins, settings, security and token
commands work directly on the configured storage and do not need a running server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
		RunE: runServe,
	}

	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&outputYAML, "yaml", false, "Output in YAML format")
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "Directory containing config.yaml")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log service activity")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAdminsCmd())
	rootCmd.AddCommand(newSettingsCmd())
	rootCmd.AddCommand(newSecurityCmd())
	rootCmd.AddCommand(newTokenCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx, configPaths()...)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()
	return nil
}

func configPaths() []string {
	if configDir == "" {
		return nil
	}
	return []string{configDir}
}

// openApp is replaced in tests.
var openApp = func(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := bootstrap.InitConfig(configPaths()...)
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if verbose {
		logger, _, err = bootstrap.InitLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
	}
	return bootstrap.NewAppWithConfig(ctx, cfg, logger)
}

// initApp opens the storage and services without serving HTTP.
func initApp(ctx context.Context) (*bootstrap.App, func(), error) {
	app, err := openApp(ctx)
	if err != nil {
		return nil, nil, err
	}
	return app, app.Close, nil
}

// render writes data as JSON or YAML when requested. It reports false when the
// caller should print its human-readable form instead.
func render(w io.Writer, data interface{}) (bool, error) {
	switch {
	case outputJSON:
		return true, outputAsJSON(w, data)
	case outputYAML:
		return true, outputAsYAML(w, data)
	default:
		return false, nil
	}
}

// outputAsJSON outputs data as indented JSON.
func outputAsJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// outputAsYAML converts data through its JSON form so field names match the API.
func outputAsYAML(w io.Writer, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("failed to convert output: %w", err)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// validateFilePath rejects paths that escape the working directory, including
// URL-encoded traversal.
func validateFilePath(filename string) error {
	decoded, err := url.QueryUnescape(filename)
	if err != nil {
		decoded = filename
	}

	if strings.Contains(decoded, "..") || strings.Contains(filename, "..") {
		return fmt.Errorf("path traversal detected: '..' not allowed in file path")
	}

	absPath, err := filepath.Abs(filepath.Clean(decoded))
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	if !strings.HasPrefix(absPath, workDir) {
		return fmt.Errorf("path escapes current directory")
	}

	return nil
}

// readPayload reads a JSON or YAML settings payload from filename, or from stdin when
// filename is "-".
func readPayload(cmd *cobra.Command, filename string) (core.SettingsPayload, error) {
	var src io.Reader
	if filename == "-" {
		src = cmd.InOrStdin()
	} else {
		if err := validateFilePath(filename); err != nil {
			return nil, fmt.Errorf("invalid file path: %w", err)
		}
		info, err := os.Stat(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		if info.Size() > maxPayloadFileSize {
			return nil, fmt.Errorf("file too large: %d bytes (max %d bytes)", info.Size(), maxPayloadFileSize)
		}
		f, err := os.Open(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		defer f.Close()
		src = f
	}

	data, err := io.ReadAll(io.LimitReader(src, maxPayloadFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	if len(data) > maxPayloadFileSize {
		return nil, fmt.Errorf("payload exceeds %d bytes", maxPayloadFileSize)
	}

	// YAML is a superset of JSON, so one decoder handles both.
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("payload is empty")
	}
	return core.PayloadFrom(raw)
}

// describeError unwraps a broker error into its client-facing message.
func describeError(action string, err error) error {
	var be *core.BrokerError
	if errors.As(err, &be) {
		return fmt.Errorf("%s: %s (%s)", action, be.Message, be.Code)
	}
	return fmt.Errorf("%s: %w", action, err)
}
