package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/pagepub/internal/journal"
)

// StatusCmd reports credential, repository and attempt state in one place.
type StatusCmd struct{}

func (s *StatusCmd) Run(_ *Global, c *CLI) error {
	ctx := context.Background()
	a, err := newApp(ctx, c, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	a.refreshRemote(ctx)

	fmt.Printf("Credentials valid:   %v\n", a.orch.IsCredentialValid())
	fmt.Printf("Repository:          %s", a.orch.RepositoryName())
	if a.orch.IsDefaultRepository() {
		fmt.Print(" (default)")
	}
	fmt.Println()
	fmt.Printf("Repository missing:  %v\n", a.orch.IsRepositoryMissing())
	fmt.Printf("Local repo status:   %s\n", a.orch.LocalRepoStatus())
	fmt.Printf("Output directory:    %s\n", a.orch.OutputDir())

	// Progress state dies with each process; the journal carries history
	// across runs.
	attempts, err := a.journal.Recent(ctx, 0)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	gen, pub := latestByKind(attempts)
	if gen != nil {
		fmt.Printf("Last generate:       %s (%s, %s)\n", gen.Result, gen.Message, gen.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	if pub != nil {
		fmt.Printf("Last publish:        %s (%s, %s)\n", pub.Result, pub.Message, pub.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// latestByKind picks the most recent generate and publish attempts out of a
// newest-first list, as returned by Journal.Recent.
func latestByKind(attempts []journal.Attempt) (gen, pub *journal.Attempt) {
	for i := range attempts {
		a := &attempts[i]
		if gen == nil && a.Kind == journal.KindGenerate {
			gen = a
		}
		if pub == nil && a.Kind == journal.KindPublish {
			pub = a
		}
		if gen != nil && pub != nil {
			break
		}
	}
	return gen, pub
}
