package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emberchat/ember/internal/msgbus"
	"github.com/emberchat/ember/internal/remote"
	"github.com/emberchat/ember/internal/store"
	"github.com/emberchat/ember/internal/window"
)

var (
	backfillStart int64
	backfillEnd   int64
	backfillLimit int
)

func init() {
	rootCmd.AddCommand(backfillCmd)

	backfillCmd.Flags().Int64Var(&backfillStart, "start", 1, "oldest message id to fetch")
	backfillCmd.Flags().Int64Var(&backfillEnd, "end", 0, "newest message id to fetch (0 = newest on server)")
	backfillCmd.Flags().IntVarP(&backfillLimit, "limit", "n", 1000, "maximum messages to fetch")
}

// backfillCmd pulls a span of server history into the local store, filling
// gaps left by missed realtime sessions.
var backfillCmd = &cobra.Command{
	Use:   "backfill <peer>",
	Short: "Fetch a span of server history into the local store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		peer, err := parsePeer(args[0])
		if err != nil {
			return err
		}
		if backfillStart < 1 {
			return fmt.Errorf("--start must be at least 1")
		}

		cfg := GetConfig()
		if cfg.Server.URL == "" {
			return fmt.Errorf("backfill requires server.url (or EMBER_SERVER_URL)")
		}

		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		client, err := remote.Dial(ctx, remote.Config{
			URL:         cfg.Server.URL,
			Token:       cfg.Server.Token,
			DialTimeout: cfg.Server.DialTimeout,
		})
		if err != nil {
			return err
		}
		defer client.Close()

		end := backfillEnd
		if end <= 0 {
			end = window.MaxMessageID
		}
		gap := window.NewGapRange(backfillStart, end)

		repo := store.NewMessageRepository(db)
		gateway := remote.NewGateway(client, repo, msgbus.NewInMemoryBus())
		saved, err := gateway.Backfill(ctx, peer, gap, backfillLimit)
		if err != nil {
			return err
		}

		fmt.Printf("backfilled %d messages into %s\n", saved, peer)
		return nil
	},
}
