package cli

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/emberchat/ember/internal/models"
	"github.com/emberchat/ember/internal/store"
)

var (
	seedCount int
	seedDays  int
)

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntVarP(&seedCount, "count", "n", 200, "number of messages to generate")
	seedCmd.Flags().IntVar(&seedDays, "days", 7, "spread messages across the last N days")
}

var seedLines = []string{
	"hey, are you around?",
	"yes, what's up",
	"did you see the build failure on main?",
	"looking at it now",
	"false alarm, flaky test",
	"ok good",
	"lunch at 12?",
	"sure",
	"running a few minutes late",
	"no problem",
	"can you review my branch when you have a minute",
	"done, left two comments",
	"thanks!",
}

// seedCmd fills the local store with synthetic history, useful for trying
// the UI without a server.
var seedCmd = &cobra.Command{
	Use:   "seed <peer>",
	Short: "Generate synthetic local history for a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		peer, err := parsePeer(args[0])
		if err != nil {
			return err
		}
		if seedCount < 1 {
			return fmt.Errorf("--count must be at least 1")
		}
		if seedDays < 1 {
			return fmt.Errorf("--days must be at least 1")
		}

		cfg := GetConfig()
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := store.NewMessageRepository(db)
		ctx := cmd.Context()

		nextID, err := repo.CountForPeer(ctx, peer)
		if err != nil {
			return err
		}
		nextID++

		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		msgs := seedMessages(peer, nextID, seedCount, seedDays, rng)

		if err := repo.Save(ctx, msgs...); err != nil {
			return err
		}

		fmt.Printf("seeded %d messages into %s\n", len(msgs), peer)
		return nil
	},
}

func seedMessages(peer models.Peer, nextID int64, count, days int, rng *rand.Rand) []models.Message {
	start := time.Now().AddDate(0, 0, -days)
	step := time.Duration(days) * 24 * time.Hour / time.Duration(count)

	msgs := make([]models.Message, 0, count)
	for i := 0; i < count; i++ {
		id := nextID + int64(i)
		jitter := time.Duration(rng.Intn(60)) * time.Second
		msgs = append(msgs, models.Message{
			Peer:      peer,
			MessageID: id,
			GlobalID:  100000 + id,
			RandomID:  uuid.NewString(),
			FromID:    peer.ID,
			Date:      start.Add(time.Duration(i)*step + jitter),
			Out:       i%3 == 0,
			Text:      seedLines[i%len(seedLines)],
			Status:    models.MessageStatusSent,
		})
	}
	return msgs
}
