package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loupe-search/loupe/configs"
	"github.com/loupe-search/loupe/internal/config"
	"github.com/loupe-search/loupe/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a .loupe.yaml configuration template",
		Long: `Write a commented .loupe.yaml template to the current directory.
The template documents every setting with its default; edit it to
point source.path at your document database.`,
		Example: `  # Scaffold a config in the current directory
  loupe init

  # Overwrite an existing config
  loupe init --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing .loupe.yaml")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	path := config.ProjectFileName
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	out.Successf("wrote %s", path)
	out.Statusf("", "edit source.path to point at your document database, then run `loupe index`")
	return nil
}
