package commands

import (
	"context"
	"fmt"
)

// GenerateCmd implements the 'generate' command.
type GenerateCmd struct{}

func (g *GenerateCmd) Run(_ *Global, c *CLI) error {
	ctx := context.Background()
	a, err := newApp(ctx, c, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orch.GenerateSite(ctx); err != nil {
		return err
	}

	progress := a.orch.GeneratingProgress()
	fmt.Printf("Generate %s: %s\n", progress.Result, progress.Message)
	fmt.Printf("Output directory: %s\n", a.orch.OutputDir())
	if progress.Result == "fail" {
		return fmt.Errorf("site generation failed: %s", progress.Message)
	}
	return nil
}
