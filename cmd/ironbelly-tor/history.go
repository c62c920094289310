package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/i1skn/ironbelly-sub000/internal/journal"
	"github.com/i1skn/ironbelly-sub000/internal/report"
)

// defaultHistoryLimit is how many transitions history prints by default.
const defaultHistoryLimit = 50

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded Tor state transitions",
		Long: `History prints the state transitions that "ironbelly-tor run" recorded in
the journal, with a summary of each run.

Examples:
  # Last 50 transitions and every run
  ironbelly-tor history

  # All transitions of one run (a prefix of the run ID is enough)
  ironbelly-tor history --run 5f0c4a9e

  # Markdown tables for an issue report
  ironbelly-tor history --markdown --limit 200`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of transitions to show (0 for all)")
	cmd.Flags().Int("runs", 10,
		"Maximum number of run summaries to show (0 for all)")
	cmd.Flags().String("run", "",
		"Only show transitions of the run with this ID or ID prefix")
	cmd.Flags().String("journal-dir", "",
		"Directory of the state journal (default: XDG state directory)")
	addFormatFlags(cmd)

	return cmd
}

// historyOptions are the parsed history flags.
type historyOptions struct {
	limit int
	runs  int
	run   string
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cmd)

	var opts historyOptions
	if opts.limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return err
	}
	if opts.runs, err = cmd.Flags().GetInt("runs"); err != nil {
		return err
	}
	if opts.run, err = cmd.Flags().GetString("run"); err != nil {
		return err
	}

	w, err := newReportWriter(cmd, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	if cfg.JournalDir == "" {
		return errors.New("no journal directory configured")
	}
	j, err := journal.Open(cfg.JournalDir, journal.Options{CreateIfNotExists: false, EnableWAL: true})
	if errors.Is(err, journal.ErrNotFound) {
		logger.Info("no journal yet", "dir", cfg.JournalDir)
		_, werr := w.WriteHistory(&report.History{GeneratedAt: time.Now()})
		return werr
	}
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer j.Close()

	h, err := loadHistory(cmd.Context(), j, opts)
	if err != nil {
		return err
	}
	if _, err := w.WriteHistory(h); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// loadHistory reads run summaries and transitions from the journal.
func loadHistory(ctx context.Context, j *journal.Journal, opts historyOptions) (*report.History, error) {
	h := &report.History{GeneratedAt: time.Now()}

	runs, err := j.Runs(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}

	if opts.run == "" {
		if opts.runs > 0 && len(runs) > opts.runs {
			runs = runs[:opts.runs]
		}
		h.Runs = runs
		h.Transitions, err = j.Recent(ctx, opts.limit)
		if err != nil {
			return nil, fmt.Errorf("failed to read transitions: %w", err)
		}
		return h, nil
	}

	run, err := matchRun(runs, opts.run)
	if err != nil {
		return nil, err
	}
	h.Runs = []journal.RunSummary{run}
	h.Transitions, err = j.ForRun(ctx, run.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to read transitions: %w", err)
	}
	if opts.limit > 0 && len(h.Transitions) > opts.limit {
		h.Transitions = h.Transitions[len(h.Transitions)-opts.limit:]
	}
	return h, nil
}

// matchRun finds the run whose ID starts with prefix. The prefix must
// identify exactly one run.
func matchRun(runs []journal.RunSummary, prefix string) (journal.RunSummary, error) {
	var found []journal.RunSummary
	for _, r := range runs {
		if r.RunID == prefix {
			return r, nil
		}
		if strings.HasPrefix(r.RunID, prefix) {
			found = append(found, r)
		}
	}
	switch len(found) {
	case 0:
		return journal.RunSummary{}, fmt.Errorf("no run matches %q", prefix)
	case 1:
		return found[0], nil
	default:
		return journal.RunSummary{}, fmt.Errorf("run ID prefix %q is ambiguous (%d runs)", prefix, len(found))
	}
}
