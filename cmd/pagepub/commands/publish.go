package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
)

// PublishCmd implements the 'publish' command: generate first (unless told
// otherwise), then push the result to the remote hosting repository.
type PublishCmd struct {
	CreateRepo   bool `name:"create-repo" help:"Create the remote repository if it does not exist"`
	SkipGenerate bool `name:"skip-generate" help:"Publish the output of the previous generate without regenerating"`
}

func (p *PublishCmd) Run(_ *Global, c *CLI) error {
	// Ctrl-C terminates the in-flight attempt instead of killing the process
	// mid-push.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if !p.SkipGenerate {
		if err := a.orch.GenerateSite(ctx); err != nil {
			return err
		}
		if progress := a.orch.GeneratingProgress(); progress.Result == "fail" {
			return fmt.Errorf("site generation failed: %s", progress.Message)
		}
	}

	a.refreshRemote(ctx)

	done := make(chan error, 1)
	go func() { done <- a.orch.Publish(ctx, p.CreateRepo) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		a.orch.StopPublishing()
		err = <-done
	}
	if err != nil {
		return err
	}

	progress := a.orch.PublishingProgress()
	fmt.Printf("Publish %s", progress.Result)
	if progress.Message != "" {
		fmt.Printf(": %s", progress.Message)
	}
	fmt.Println()
	if progress.Result == "fail" {
		return fmt.Errorf("publish failed")
	}
	return nil
}
