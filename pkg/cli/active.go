package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var activeCmd = &cobra.Command{
	Use:   "active <website-id>",
	Short: "Show current active visitors for a website",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runActive),
}

func init() {
	rootCmd.AddCommand(activeCmd)
}

func runActive(a *app, cmd *cobra.Command, args []string) error {
	count, fromCache, err := a.data.ActiveVisitors(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Println(count)
	if fromCache {
		fmt.Fprintln(os.Stderr, "(cached)")
	}
	return nil
}
