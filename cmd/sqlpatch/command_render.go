package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/shibukawa/sqlpatch"
)

// RenderCmd represents the render command
type RenderCmd struct {
	SQLFile  string   `arg:"" help:"SQL file to search" type:"existingfile"`
	Select   []string `help:"Selector expression, e.g. statement:0/subquery:foo" short:"s" required:""`
	SafeMode *bool    `help:"Search the comment- and string-blanked SQL"`
}

// Run executes the render command
func (cmd *RenderCmd) Run(ctx *Context) error {
	config, err := sqlpatch.LoadConfig(ctx.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer config.Apply()()

	selectors := make([]sqlpatch.Selector, len(cmd.Select))
	for i, expr := range cmd.Select {
		if selectors[i], err = parseSelector(expr); err != nil {
			return err
		}
	}

	if ctx.Verbose {
		color.Blue("Rendering %s", cmd.SQLFile)
		for _, sel := range selectors {
			color.Blue("  selector: %s", sel)
		}
	}

	contents, err := os.ReadFile(cmd.SQLFile)
	if err != nil {
		return fmt.Errorf("failed to read SQL file: %w", err)
	}

	rendered, err := sqlpatch.RenderWith(string(contents), sqlpatch.Options{SafeMode: cmd.SafeMode}, selectors...)
	if err != nil {
		return err
	}

	fmt.Println(rendered)
	return nil
}
