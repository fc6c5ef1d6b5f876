package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var websitesCmd = &cobra.Command{
	Use:   "websites",
	Short: "List websites tracked by the active instance",
	RunE:  withApp(runWebsites),
}

func init() {
	rootCmd.AddCommand(websitesCmd)
}

func runWebsites(a *app, cmd *cobra.Command, args []string) error {
	sites, fromCache, err := a.data.Websites(cmd.Context())
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		fmt.Println("No websites found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDOMAIN")
	for _, site := range sites {
		fmt.Fprintf(w, "%s\t%s\t%s\n", site.ID, site.Name, site.Domain)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if fromCache {
		fmt.Fprintln(os.Stderr, "(cached)")
	}
	return nil
}
