// Command strata indexes documents into a parent/child chunk store and
// answers retrieval queries against it.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nevindra/strata/internal/config"
)

// globals holds the persistent flags and what PersistentPreRunE derives from them.
type globals struct {
	configPath string
	envFile    string
	verbose    bool
	format     string

	cfg    config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "strata",
		Short: "Hierarchical chunk indexing and retrieval",
		Long: `strata splits documents into coarse parent chunks and fine child chunks,
embeds the children for similarity search and answers queries with the
parents the best children belong to.

Configuration is read from strata.toml (or --config), then STRATA_*
environment variables. A .env file in the working directory is loaded first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", os.Getenv("STRATA_CONFIG"), "Path to the TOML config file")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "Dotenv file loaded before the config")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log at debug level")
	root.PersistentFlags().StringVar(&g.format, "format", "text", "Output format: text or json")

	root.AddCommand(
		newIndexCmd(g),
		newQueryCmd(g),
		newListCmd(g),
		newSourcesCmd(g),
		newDeleteCmd(g),
		newGetCmd(g),
	)
	return root
}

// load reads .env, the config file and the environment, and builds the logger.
func (g *globals) load(stderr io.Writer) error {
	if g.envFile != "" {
		// Load .env for API keys
		_ = godotenv.Load(g.envFile)
	}
	if g.format != "text" && g.format != "json" {
		return fmt.Errorf("unknown --format %q (want text or json)", g.format)
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	g.cfg = cfg

	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	g.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	return nil
}
