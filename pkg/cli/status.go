package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/pocketumami/pocketumami/pkg/instance"
	"github.com/pocketumami/pocketumami/pkg/session"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active instance and session state",
	RunE:  withApp(runStatus),
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
}

type statusReport struct {
	Connected bool   `json:"connected"`
	Name      string `json:"name,omitempty"`
	Host      string `json:"host,omitempty"`
	SetupType string `json:"setupType,omitempty"`
	Username  string `json:"username,omitempty"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

func runStatus(a *app, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	report := statusReport{}

	inst, err := a.instances.Current(ctx)
	switch {
	case errors.Is(err, instance.ErrNoInstance):
	case err != nil:
		return err
	default:
		report.Connected = true
		report.Name = inst.Name
		report.Host = inst.Host
		report.SetupType = string(inst.SetupType)
		report.Username = inst.Username

		if _, err := a.sessions.EnsureSession(ctx, true); err != nil {
			report.Error = err.Error()
			report.ErrorCode = string(session.CodeOf(err))
		} else {
			report.Reachable = true
		}
	}

	if statusJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	if !report.Connected {
		fmt.Println("Not connected. Run 'pocketumami connect' to link an instance.")
		return nil
	}

	fmt.Printf("Instance:  %s (%s)\n", report.Name, report.SetupType)
	fmt.Printf("Host:      %s\n", report.Host)
	if report.Username != "" {
		fmt.Printf("User:      %s\n", report.Username)
	}
	if report.Reachable {
		fmt.Println("Session:   ok")
	} else {
		fmt.Printf("Session:   failed (%s): %s\n", report.ErrorCode, report.Error)
	}
	return nil
}
