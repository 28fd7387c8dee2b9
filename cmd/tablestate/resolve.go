package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/config"
	tserrors "github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/errors"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/localbucket"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/server"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/tablestate"
)

// tableFlags select one table instance from the shell.
type tableFlags struct {
	table  string
	query  string
	client string
}

func (tf *tableFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&tf.table, "table", "t", "", "Table name declared in tablestate.json")
	cmd.Flags().StringVarP(&tf.query, "query", "q", "", "URL query string to hydrate the URL bucket from")
	cmd.Flags().StringVar(&tf.client, "client", "", "Client id scoping the local blob, as used by serve")
	cmd.MarkFlagRequired("table")
}

// openTable resolves a table from the URL query and the local backend.
func openTable(ctx context.Context, f *globalFlags, cfg *config.Config, tf *tableFlags, backend localbucket.Backend) (*tablestate.Table, *tablestate.Buckets, error) {
	tc, err := cfg.Table(tf.table)
	if err != nil {
		return nil, nil, err
	}
	query, err := url.ParseQuery(tf.query)
	if err != nil {
		return nil, nil, tserrors.New("TS140").WithDetail("--query: " + err.Error())
	}

	persistence := tc.Persistence
	if tf.client != "" {
		key := persistence.LocalStorageKey
		if key == "" {
			key = tablestate.DefaultLocalStorageKey
		}
		persistence.LocalStorageKey = tf.client + "/" + key
	}

	logger := f.logger()
	buckets, err := tablestate.OpenBuckets(ctx, tablestate.BucketsConfig{
		Persistence: persistence,
		Backend:     backend,
		Query:       query,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, tserrors.New("TS111").Wrap(err)
	}

	table, err := tablestate.New(ctx, buckets.Facade, tc.Columns,
		append(tc.Options(), tablestate.WithLogger(logger))...)
	if err != nil {
		return nil, nil, err
	}
	return table, buckets, nil
}

func snapshotOf(name string, t *tablestate.Table, b *tablestate.Buckets) server.Snapshot {
	return server.Snapshot{
		Table:                             name,
		State:                             t.State(),
		Query:                             b.URL.Encode(),
		PendingFilters:                    t.PendingFilters(),
		HasFinishedProcessingAsyncFilters: t.HasFinishedProcessingAsyncFilters(),
	}
}

func printSnapshot(snap server.Snapshot) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return nil
}

func resolveCmd(f *globalFlags) *cobra.Command {
	tf := &tableFlags{}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the resolved state of a table",
		Long: `Resolve the initial state of a table from a URL query string and the
configured local backend, and print it as JSON.

Explicit initial values missing from the buckets are written back, as
on first mount.

Examples:
  tablestate resolve --table orders
  tablestate resolve -t orders -q 'orders.pageIndex=2&orders.sorting=[{"id":"name","desc":true}]'`,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			return printSnapshot(snapshotOf(tf.table, table, buckets))
		},
	}
	tf.register(cmd)

	return cmd
}
