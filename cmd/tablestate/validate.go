package main

import (
	"github.com/spf13/cobra"
)

func validateCmd(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check tablestate.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.loadConfig()
			if err != nil {
				return err
			}
			success("%s is valid", cfg.Path())
			for _, name := range cfg.TableNames() {
				tc, _ := cfg.Table(name)
				info("%s: %d columns", name, len(tc.Columns))
			}
			return nil
		},
	}
}
