package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/aatumaykin/shuttlewatch/internal/app/builders"
	"github.com/aatumaykin/shuttlewatch/internal/commands"
	"github.com/aatumaykin/shuttlewatch/internal/config"
	"github.com/aatumaykin/shuttlewatch/internal/ipc"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/aatumaykin/shuttlewatch/internal/store"
)

var (
	jobsOwner   string
	jobsShowAll bool
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and edit stored jobs",
	Long: `Inspect and edit the job file directly. Editing is refused while
"shuttlewatch serve" runs; use the Telegram commands then.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsAddCmd = &cobra.Command{
	Use:     "add <owner> <origin> <DD> <MMM> <YYYY> <HH:MM> <passengers>",
	Short:   "Add a job",
	Example: "  shuttlewatch jobs add 123456789 woodlands 05 Mar 2026 09:45 2",
	Args:    cobra.MinimumNArgs(7),
	RunE:    runJobsAdd,
}

var jobsStopCmd = &cobra.Command{
	Use:   "stop <owner>",
	Short: "Complete every active job of an owner",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStop,
}

var jobsRemoveCmd = &cobra.Command{
	Use:   "remove <owner> <index>",
	Short: "Remove an active job by its position in the list",
	Args:  cobra.ExactArgs(2),
	RunE:  runJobsRemove,
}

// openStoreForWrite refuses to edit the file under a running watcher, which
// would overwrite the change on its next save. The PID file is checked before
// the job file is loaded, since loading may rewrite it.
func openStoreForWrite() (*config.Config, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if pid := ipc.Running(cfg.Storage.Dir()); pid != 0 {
		return nil, nil, fmt.Errorf("shuttlewatch serve is running (pid %d); stop it or use the Telegram commands", pid)
	}
	log, err := logger.New(logger.Config{Level: "warn", Format: "text", Output: "stderr"})
	if err != nil {
		return nil, nil, err
	}
	return cfg, store.Load(cfg.Storage.Path, log), nil
}

// runJobsList only decodes the job file; it never moves or rewrites it, so it
// is safe next to a running watcher.
func runJobsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	snap, err := store.ReadFile(cfg.Storage.Path)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderJobs(snap, jobsOwner, jobsShowAll))
	return nil
}

func runJobsAdd(cmd *cobra.Command, args []string) error {
	cfg, s, err := openStoreForWrite()
	if err != nil {
		return err
	}
	cat, err := builders.LoadCatalogue(cfg)
	if err != nil {
		return err
	}
	j, err := commands.ParseWatchArgs(cat, args[1:])
	if err != nil {
		return err
	}
	stored, err := s.Append(args[0], j)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("added"), stored.Summary())
	fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("id "+stored.ID))
	return nil
}

func runJobsStop(cmd *cobra.Command, args []string) error {
	_, s, err := openStoreForWrite()
	if err != nil {
		return err
	}
	n, err := s.MarkAllCompleted(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d job(s) of %s\n", okStyle.Render("stopped"), n, args[0])
	return nil
}

func runJobsRemove(cmd *cobra.Command, args []string) error {
	_, s, err := openStoreForWrite()
	if err != nil {
		return err
	}
	position, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid index %q", args[1])
	}
	removed, err := s.RemoveActive(args[0], position)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("removed"), removed.Summary())
	return nil
}

// renderJobs draws a table of jobs. The # column is the position /remove
// expects; completed jobs are shown only with all.
func renderJobs(snap store.Snapshot, owner string, all bool) string {
	owners := slices.Sorted(maps.Keys(snap))
	if owner != "" {
		owners = []string{owner}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("OWNER", "#", "ROUTE", "DATE", "TIME", "PAX", "STATUS", "LAST SEATS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	rows := 0
	for _, o := range owners {
		position := 0
		for _, j := range snap[o] {
			index, status := "-", "completed"
			if !j.Completed {
				position++
				index, status = strconv.Itoa(position), "watching"
			} else if !all {
				continue
			}
			last := "-"
			if j.LastNotified != nil {
				last = strconv.Itoa(*j.LastNotified)
			}
			t.Row(o, index, j.Origin+" ➝ "+j.Destination, j.OnwardDate(), j.Time,
				strconv.Itoa(j.Passengers), status, last)
			rows++
		}
	}

	if rows == 0 {
		return mutedStyle.Render("No jobs found.")
	}
	var b strings.Builder
	b.WriteString(t.String())
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%d job(s)", rows)))
	return b.String()
}

func init() {
	jobsListCmd.Flags().StringVarP(&jobsOwner, "owner", "o", "", "Only show jobs of this owner")
	jobsListCmd.Flags().BoolVarP(&jobsShowAll, "all", "a", false, "Include completed jobs")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsAddCmd)
	jobsCmd.AddCommand(jobsStopCmd)
	jobsCmd.AddCommand(jobsRemoveCmd)
}
