package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
)

// HistoryCmd lists recent generate/publish attempts from the journal.
type HistoryCmd struct {
	Limit int `short:"n" help:"Maximum number of attempts to show (0 = all)" default:"20"`
}

func (h *HistoryCmd) Run(_ *Global, c *CLI) error {
	ctx := context.Background()
	a, err := newApp(ctx, c, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Journal.Path == "" {
		fmt.Println("No journal configured (set journal.path in the configuration file).")
		return nil
	}

	attempts, err := a.journal.Recent(ctx, h.Limit)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if len(attempts) == 0 {
		fmt.Println("No attempts recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tKIND\tRESULT\tFILES\tMESSAGE")
	for _, at := range attempts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			at.StartedAt.Format("2006-01-02 15:04:05"), at.Kind, at.Result, at.Files, at.Message)
	}
	return w.Flush()
}
