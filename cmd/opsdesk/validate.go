package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pitabwire/opsdesk/internal/config"
	"github.com/pitabwire/opsdesk/internal/definition"
	"github.com/pitabwire/opsdesk/model"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate configuration and screen definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			defs, err := loadDefinitions(cfg.Definitions)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			screens := 0
			for _, d := range defs {
				screens += len(d.Screens)
			}
			fmt.Fprintf(out, "ok: %d definition files, %d screens\n", len(defs), screens)
			return nil
		},
	}
}

// validationError reports every definition problem found in one load.
type validationError struct {
	errs []definition.VError
}

func (e *validationError) Error() string {
	msg := fmt.Sprintf("%d definition errors", len(e.errs))
	for _, ve := range e.errs {
		msg += "\n  " + ve.Error()
	}
	return msg
}

// loadDefinitions loads and validates every definition file.
func loadDefinitions(cfg config.DefinitionsConfig) ([]model.DomainDefinition, error) {
	defs, err := definition.NewLoader().LoadAll(cfg.Directories)
	if err != nil {
		return nil, fmt.Errorf("loading definitions: %w", err)
	}
	if verrs := definition.NewValidator().Validate(defs); len(verrs) > 0 {
		return nil, &validationError{errs: verrs}
	}
	return defs, nil
}
