package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/emberchat/ember/internal/chattui"
	"github.com/emberchat/ember/internal/config"
	"github.com/emberchat/ember/internal/logging"
	"github.com/emberchat/ember/internal/models"
	"github.com/emberchat/ember/internal/msgbus"
	"github.com/emberchat/ember/internal/remote"
	"github.com/emberchat/ember/internal/store"
	"github.com/emberchat/ember/internal/window"
)

var (
	chatName    string
	chatTheme   string
	chatOffline bool
)

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&chatName, "name", "", "display name for the conversation")
	chatCmd.Flags().StringVar(&chatTheme, "theme", "", "color theme (default, dark, high-contrast)")
	chatCmd.Flags().BoolVar(&chatOffline, "offline", false, "skip the realtime connection, local history only")
}

var chatCmd = &cobra.Command{
	Use:   "chat <peer>",
	Short: "Open a conversation",
	Long:  "Open a conversation in the terminal UI. Peer is user:<id>, chat:<id>, or a bare user id.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		peer, err := parsePeer(args[0])
		if err != nil {
			return err
		}
		if !hasTTY() {
			return fmt.Errorf("chat requires an interactive terminal")
		}

		cfg := GetConfig()
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := store.NewMessageRepository(db)
		bus := msgbus.NewInMemoryBus()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if !chatOffline && cfg.Server.URL != "" {
			client, err := remote.Dial(ctx, remote.Config{
				URL:         cfg.Server.URL,
				Token:       cfg.Server.Token,
				DialTimeout: cfg.Server.DialTimeout,
			})
			if err != nil {
				// Offline is a degraded mode, not a failure.
				logging.Warn().Err(err).Msg("realtime connection unavailable, running offline")
			} else {
				defer client.Close()
				gateway := remote.NewGateway(client, repo, bus)
				go gateway.Run(ctx, client.Updates())
			}
		}

		ctrl, err := window.NewController(window.Config{
			Peer:            peer,
			InitialLimit:    cfg.Window.InitialLimit,
			BatchLimit:      cfg.Window.BatchLimit,
			GrownBatchLimit: cfg.Window.GrownBatchLimit,
			GrowThreshold:   cfg.Window.GrowThreshold,
			AroundBudget:    cfg.Window.AroundBudget,
		}, repo, bus)
		if err != nil {
			return err
		}

		rememberConversation(cfg, peer, chatName)

		theme := chatTheme
		if theme == "" {
			theme = cfg.TUI.Theme
		}
		return chattui.Run(chattui.Config{
			Controller:     ctrl,
			PeerName:       chatName,
			Theme:          theme,
			ShowTimestamps: cfg.TUI.ShowTimestamps,
			CompactMode:    cfg.TUI.CompactMode,
		})
	},
}

func rememberConversation(cfg *config.Config, peer models.Peer, name string) {
	ctxStore := config.NewContextStore(filepath.Join(cfg.Global.ConfigDir, "context.yaml"))
	cliCtx, err := ctxStore.Load()
	if err != nil {
		logging.Warn().Err(err).Msg("failed to load CLI context")
		return
	}
	cliCtx.SetPeer(peer, name)
	if err := ctxStore.Save(cliCtx); err != nil {
		logging.Warn().Err(err).Msg("failed to save CLI context")
	}
}
