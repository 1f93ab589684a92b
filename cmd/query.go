package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/orai-bridge/relayer/internal/store"
)

// queryCmd groups read-only commands against the relayer store
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Inspect the relayer store",
}

var queryProcessedCmd = &cobra.Command{
	Use:   "processed",
	Short: "List every transfer the relayer has paid out",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, db.Close()) }()

		records, err := db.ListAll(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TX HASH\tMSG INDEX\tPROCESSED AT")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%d\t%s\n", r.TxHash, r.MsgIndex, r.ProcessedAt.UTC().Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var queryOffsetCmd = &cobra.Command{
	Use:   "offset",
	Short: "Print the last source chain height the relayer checkpointed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, db.Close()) }()

		offset, err := db.GetOffset(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), offset)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.AddCommand(queryProcessedCmd, queryOffsetCmd)
}

func openStore() (store.Store, error) {
	db, err := store.Open(store.Config{
		Driver: viper.GetString("db.driver"),
		DSN:    viper.GetString("db.dsn"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return db, nil
}
