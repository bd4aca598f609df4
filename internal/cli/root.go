// Package cli implements the framectl operator commands.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/shopframes/internal/app"
	"github.com/ashureev/shopframes/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DBPath  string

	// Open builds the application. Tests replace it.
	Open func(opts *RootOptions, logs io.Writer) (*app.App, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for framectl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Open: openApp}

	cmd := &cobra.Command{
		Use:   "framectl",
		Short: "framectl - operate the shopframes Frame server",
		Long:  "Render Frame documents, seed the catalog and sweep expired wizard sessions.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database path (defaults to DB_PATH)")

	cmd.AddCommand(NewRenderCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openApp loads configuration from the environment. framectl never accepts
// interactions, so interaction trust is not configured.
func openApp(opts *RootOptions, logs io.Writer) (*app.App, error) {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}
	cfg.Trust.Mode = config.TrustTrusted

	return app.New(cfg, newLogger(opts, logs))
}

func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
