package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/smendola/conciser/internal/config"
	"github.com/smendola/conciser/internal/faults"
	"github.com/smendola/conciser/internal/logger"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:          "conciser",
		Short:        "Condense long videos into short narrated summaries",
		SilenceUsage: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.PersistentFlags().String("config", "conciser.yaml", "Config file")

	root.AddCommand(newRunCmd(), newWatchCmd())

	if err := root.Execute(); err != nil {
		// Vendor-reported terminal failures print verbatim so the user
		// sees the real reason (quota, restricted video, bad key).
		if msg, ok := faults.UserMessage(err); ok {
			fmt.Fprintf(os.Stderr, "error (%s): %s\n", faults.StageOf(err), msg)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// newLogger builds the leveled logger, teeing to the configured log
// file when one is set.
func newLogger(cfg *config.Config) (logger.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closer := func() {}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = func() { f.Close() }
	}
	return logger.New(w, cfg.Logging.Level), closer, nil
}
