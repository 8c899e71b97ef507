package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/shibukawa/sqlpatch"
)

// PatchCmd represents the patch command
type PatchCmd struct {
	SQLFile string   `arg:"" help:"SQL file to rewrite" type:"existingfile"`
	Select  []string `help:"Selector expression, paired with --fixture by position" short:"s" required:""`
	Fixture []string `help:"Row-set fixture YAML, paired with --select by position" short:"f" required:""`
	Output  string   `help:"Write the patched SQL to a file instead of stdout" short:"o"`

	SafeMode       *bool `help:"Search the comment- and string-blanked SQL"`
	ReplaceAliases *bool `help:"Rewrite qualified references to renamed patch aliases"`
}

// Run executes the patch command
func (cmd *PatchCmd) Run(ctx *Context) error {
	config, err := sqlpatch.LoadConfig(ctx.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer config.Apply()()

	patches, err := cmd.buildPatches()
	if err != nil {
		return err
	}

	contents, err := os.ReadFile(cmd.SQLFile)
	if err != nil {
		return fmt.Errorf("failed to read SQL file: %w", err)
	}

	opts := sqlpatch.Options{SafeMode: cmd.SafeMode, ReplaceNewPatchAliases: cmd.ReplaceAliases}
	patched, err := sqlpatch.ApplyWith(string(contents), opts, patches...)
	if err != nil {
		return err
	}

	if cmd.Output == "" {
		fmt.Println(patched)
		return nil
	}
	if err := os.WriteFile(cmd.Output, []byte(patched), 0o644); err != nil {
		return fmt.Errorf("failed to write patched SQL: %w", err)
	}
	if !ctx.Quiet {
		color.Green("Patched %s with %d patch(es) into %s", cmd.SQLFile, len(patches), cmd.Output)
	}
	return nil
}

func (cmd *PatchCmd) buildPatches() ([]*sqlpatch.Patch, error) {
	if len(cmd.Select) != len(cmd.Fixture) {
		return nil, fmt.Errorf("%w: got %d selectors and %d fixtures",
			ErrFixtureCount, len(cmd.Select), len(cmd.Fixture))
	}

	patches := make([]*sqlpatch.Patch, len(cmd.Select))
	for i, expr := range cmd.Select {
		sel, err := parseSelector(expr)
		if err != nil {
			return nil, err
		}
		data, err := sqlpatch.LoadFixture(cmd.Fixture[i])
		if err != nil {
			return nil, err
		}
		patches[i] = sqlpatch.NewPatch(sel, data)
	}
	return patches, nil
}
