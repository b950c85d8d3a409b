// Package cli implements qactl, the operator tool for the answer service.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"programme-qa/internal/infra/config"
	"programme-qa/internal/usecase/guard"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	PatternsFile string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "qactl",
		Short:         "Operate the programme Q&A service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.PatternsFile, "patterns", "", "guard pattern YAML (default: built-in tables)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewAskCommand())
	cmd.AddCommand(NewIngestCommand())

	return cmd
}

func (o *RootOptions) tables() (*guard.Tables, error) {
	path := o.PatternsFile
	if path == "" {
		path = config.Load().Guard.PatternsFile
	}
	if path == "" {
		return guard.Default(), nil
	}
	t, err := guard.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	return t, nil
}
