package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aatumaykin/shuttlewatch/internal/app/builders"
	"github.com/aatumaykin/shuttlewatch/internal/browser"
	"github.com/aatumaykin/shuttlewatch/internal/commands"
	"github.com/aatumaykin/shuttlewatch/internal/job"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/aatumaykin/shuttlewatch/internal/notify"
	"github.com/aatumaykin/shuttlewatch/internal/poller"
	"github.com/spf13/cobra"
)

// checkCmd runs one search cycle for a trip without storing a job.
var checkCmd = &cobra.Command{
	Use:   "check <origin> <DD> <MMM> <YYYY> <HH:MM> <passengers>",
	Short: "Run a single availability check",
	Long: `Open a browser session, search once for the given trip and print what a
watcher would have sent. Nothing is stored and no Telegram message is sent.`,
	Example: "  shuttlewatch check jb 05 Mar 2026 08:45 2",
	Args:    cobra.MinimumNArgs(6),
	RunE:    runCheck,
}

// dryRunJobs keeps the checked job active and discards its state changes.
type dryRunJobs struct{}

func (dryRunJobs) IsActive(string) bool             { return true }
func (dryRunJobs) MarkCompleted(string) error       { return nil }
func (dryRunJobs) RecordNotified(string, int) error { return nil }

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := validConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	cat, err := builders.LoadCatalogue(cfg)
	if err != nil {
		return err
	}
	j, err := commands.ParseWatchArgs(cat, args)
	if err != nil {
		return err
	}
	j.ID = job.NewID()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	launcher, runtime, err := builders.BuildLauncher(cfg, browser.NewProfiles(), nil, log)
	if err != nil {
		return err
	}
	if runtime != nil {
		defer runtime.Close()
	}

	sess, err := launcher.Open(ctx, "check")
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("failed to close browser session", logger.Field{Key: "error", Value: err.Error()})
		}
	}()

	rec := &notify.Recorder{}
	p := poller.New(builders.PollerConfig(cfg), "check", j, dryRunJobs{}, rec, log)
	outcome, err := p.RunOnce(ctx, sess)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, j.Summary())
	fmt.Fprintf(out, "Outcome: %s\n", outcome)
	for _, text := range rec.Texts() {
		fmt.Fprintf(out, "\n%s\n", text)
	}
	return nil
}
