package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pocketumami/pocketumami/pkg/instance"
)

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Remove the active instance and its credentials",
	RunE:  withApp(runDisconnect),
}

func init() {
	rootCmd.AddCommand(disconnectCmd)
}

func runDisconnect(a *app, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	inst, err := a.instances.Current(ctx)
	if errors.Is(err, instance.ErrNoInstance) {
		fmt.Println("No instance connected.")
		return nil
	}
	if err != nil {
		return err
	}

	a.sessions.Invalidate(ctx)
	if err := a.cache.ClearInstance(ctx, inst.ID); err != nil {
		return err
	}
	if err := a.instances.Delete(ctx, inst.ID); err != nil {
		return err
	}

	fmt.Printf("Disconnected from %s\n", inst.Host)
	return nil
}
