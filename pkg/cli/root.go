package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "pocketumami",
	Short: "Pocket-sized client for Umami analytics",
	Long: `pocketumami connects to a self-hosted Umami server or Umami Cloud and
brings your analytics to the terminal and a small local dashboard.

Start with 'pocketumami connect' to link an instance.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (YAML)")
}

// withApp builds the app for a command and tears it down afterwards.
func withApp(fn func(*app, *cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfgPath)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(a, cmd, args)
	}
}
