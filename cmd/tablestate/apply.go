package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	tserrors "github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/errors"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/server"
)

func applyCmd(f *globalFlags) *cobra.Command {
	var (
		tf              = &tableFlags{}
		slice           string
		value           string
		resetPagination bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Change one state slice and print the result",
		Long: `Resolve a table, apply one change and print the new state together
with the query string to navigate to. Local writes go to the configured
backend.

Slices: pagination, sorting, columnFilters, columnVisibility,
globalFilter, rowSelection.

Examples:
  tablestate apply -t orders --slice globalFilter --value '"acme"'
  tablestate apply -t orders -q 'orders.pageIndex=4' --reset-pagination`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if slice == "" && !resetPagination {
				return tserrors.New("TS140").WithDetail("one of --slice or --reset-pagination is required")
			}
			if value != "" && !json.Valid([]byte(value)) {
				return tserrors.New("TS108").WithDetail("--value is not valid JSON")
			}

			cfg, err := f.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			backend, closeBackend, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeBackend()

			table, buckets, err := openTable(ctx, f, cfg, tf, backend)
			if err != nil {
				return err
			}

			if slice != "" {
				if err := server.ApplySlice(ctx, table, slice, json.RawMessage(value)); err != nil {
					return err
				}
			}
			if resetPagination {
				if err := table.ResetPagination(ctx); err != nil {
					return err
				}
			}
			buckets.URL.Flush()
			return printSnapshot(snapshotOf(tf.table, table, buckets))
		},
	}
	tf.register(cmd)
	cmd.Flags().StringVar(&slice, "slice", "", "State slice to change")
	cmd.Flags().StringVar(&value, "value", "", "New slice value as JSON")
	cmd.Flags().BoolVar(&resetPagination, "reset-pagination", false, "Move to the first page")

	return cmd
}
