package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached query results",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached query result",
	RunE:  withApp(runCacheClear),
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheClear(a *app, cmd *cobra.Command, args []string) error {
	if err := a.cache.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Cache cleared.")
	return nil
}
