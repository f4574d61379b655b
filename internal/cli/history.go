package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/emberchat/ember/internal/dates"
	"github.com/emberchat/ember/internal/models"
	"github.com/emberchat/ember/internal/store"
)

var (
	historySince string
	historyUntil string
	historyLimit int
	historyJSON  bool
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historySince, "since", "", "start of range (e.g. \"yesterday\", \"2h ago\", \"2026-01-15\")")
	historyCmd.Flags().StringVar(&historyUntil, "until", "", "end of range (same formats as --since)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum messages to print")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print messages as JSON lines")
}

var historyCmd = &cobra.Command{
	Use:   "history <peer>",
	Short: "Print local conversation history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		peer, err := parsePeer(args[0])
		if err != nil {
			return err
		}
		if historyLimit < 1 {
			return fmt.Errorf("--limit must be at least 1")
		}

		now := time.Now()
		query := store.MessageQuery{
			Order: store.OrderDesc,
			Limit: historyLimit,
		}
		if historySince != "" {
			since, err := dates.ParseRelativeTime(historySince, now)
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			query.AfterTS = &since
		}
		if historyUntil != "" {
			until, err := dates.ParseRelativeTime(historyUntil, now)
			if err != nil {
				return fmt.Errorf("invalid --until: %w", err)
			}
			query.BeforeTS = &until
		}

		cfg := GetConfig()
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := store.NewMessageRepository(db)
		msgs, err := repo.Query(cmd.Context(), peer, query)
		if err != nil {
			return err
		}

		// Query is newest-first; print oldest-first like a transcript.
		for i := len(msgs) - 1; i >= 0; i-- {
			if err := printMessage(&msgs[i]); err != nil {
				return err
			}
		}
		return nil
	},
}

func printMessage(msg *models.Message) error {
	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(msg)
	}

	sender := fmt.Sprintf("user %d", msg.FromID)
	if msg.Out {
		sender = "you"
	}
	suffix := ""
	if msg.Edited() {
		suffix = " (edited)"
	}
	_, err := fmt.Printf("%s  %-10s %s%s\n", msg.Date.Local().Format("2006-01-02 15:04"), sender, msg.Text, suffix)
	return err
}
