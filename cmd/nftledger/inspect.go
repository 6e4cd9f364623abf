package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"nftledger/storage"
)

func inspectCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "inspect [prefix]",
		Short: "Dump raw ledger keys and values under a key prefix",
		Long: "Dump raw ledger keys and values under a key prefix, for example\n" +
			"'mnr:c:' or 'log:rec:'. Values are printed as 0x-hex.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := "mnr:"
			if len(args) == 1 {
				prefix = args[0]
			}
			db, err := storage.NewLevelDB(current.cfg.DataDir)
			if err != nil {
				return fmt.Errorf("opening ledger store: %w", err)
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			shown := 0
			err = db.Iterate([]byte(prefix), func(key, value []byte) bool {
				fmt.Fprintf(out, "%s\t%s\n", printableKey(key), hexutil.Encode(value))
				shown++
				return limit <= 0 || shown < limit
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d entries\n", shown)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum entries to print, 0 for all")
	return cmd
}

// printableKey renders the textual key prefix as-is and any binary suffix as hex.
func printableKey(key []byte) string {
	for i, b := range key {
		if b < 0x20 || b > 0x7e {
			return string(key[:i]) + hexutil.Encode(key[i:])
		}
	}
	return string(key)
}
