package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/config"
	tserrors "github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/errors"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/tablestate"
)

func initCmd(f *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter tablestate.json",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if config.Exists(dir) && !force {
				return tserrors.New("TS140").
					WithDetail(filepath.Join(dir, config.ConfigFileName) + " already exists").
					WithSuggestion("Use --force to overwrite it.")
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}

			cfg := starterConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}
			path := filepath.Join(dir, config.ConfigFileName)
			if err := cfg.SaveTo(path); err != nil {
				return err
			}
			success("Created %s", path)
			info("tablestate resolve --config %s --table orders", dir)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing tablestate.json")

	return cmd
}

// starterConfig declares one example table.
func starterConfig() *config.Config {
	cfg := config.New()
	cfg.Name = "tablestate"
	cfg.Tables["orders"] = config.TableConfig{
		Persistence: tablestate.Persistence{
			URLNamespace:    "orders",
			LocalStorageKey: "orders-table",
			Pagination: tablestate.PaginationConfig{
				AllowedPageSizes: []int{10, 25, 50},
			},
		},
		Columns: []tablestate.Column{
			{ID: "customer", Header: "Customer", Filter: &tablestate.FilterMeta{
				Variant:            tablestate.VariantText,
				PersistenceStorage: tablestate.StorageURL,
			}},
			{ID: "status", Header: "Status", Filter: &tablestate.FilterMeta{
				Variant:            tablestate.VariantMultiSelect,
				PersistenceStorage: tablestate.StorageURL,
				Options: []tablestate.FilterOption{
					{Value: "open", Label: "Open"},
					{Value: "shipped", Label: "Shipped"},
					{Value: "cancelled", Label: "Cancelled"},
				},
			}},
			{ID: "total", Header: "Total", Filter: &tablestate.FilterMeta{
				Variant:            tablestate.VariantNumberRange,
				PersistenceStorage: tablestate.StorageLocal,
			}},
		},
	}
	return cfg
}
