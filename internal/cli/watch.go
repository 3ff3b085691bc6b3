package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smendola/conciser/internal/jobid"
	"github.com/smendola/conciser/internal/pipeline"
	"github.com/smendola/conciser/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Process job files dropped into a directory",
		Long: `Watches a directory for .txt files whose first line is a video URL
and condenses each one with the flags given here. Files are renamed
.done or .failed once processed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return watch(cmd, dir)
		},
	}
	addJobFlags(cmd)
	return cmd
}

func watch(cmd *cobra.Command, dir string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	if dir == "" {
		dir = cfg.Watch.InputDir
	}
	if dir == "" {
		dir = "inbox"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Flag-borne job settings apply to every dropped file.
	template := jobFromFlags(cmd, "")
	if err := checkCredentials(cfg, template); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, closeDeps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDeps()

	opts := pipelineOpts(cfg, log, cmd.OutOrStdout())
	handler := func(ctx context.Context, locator string) error {
		job := template
		job.Locator = locator
		res, err := pipeline.Run(ctx, job, deps, opts)
		if err != nil {
			return err
		}
		log.Infof("output: %s", res.OutputPath)
		return nil
	}

	// Two drops of the same video must not share an artifact
	// directory concurrently, so jobs serialize on their job id.
	byJobID := func(locator string) string {
		id, _ := jobid.Derive(locator)
		return id
	}
	w, err := watcher.New(dir, handler, byJobID, log, cfg.Watch.MaxConcurrent)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
