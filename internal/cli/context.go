package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/emberchat/ember/internal/config"
)

func init() {
	rootCmd.AddCommand(contextCmd)
	contextCmd.AddCommand(contextClearCmd)
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Show the last opened conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		cliCtx, err := contextStore().Load()
		if err != nil {
			return err
		}
		fmt.Println(cliCtx.String())
		return nil
	},
}

var contextClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the last opened conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return contextStore().Clear()
	},
}

func contextStore() *config.ContextStore {
	return config.NewContextStore(filepath.Join(GetConfig().Global.ConfigDir, "context.yaml"))
}
