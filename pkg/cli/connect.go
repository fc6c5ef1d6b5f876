package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pocketumami/pocketumami/pkg/instance"
)

var connectFlags struct {
	name     string
	username string
	password string
	cloud    bool
	apiKey   string
}

var connectCmd = &cobra.Command{
	Use:   "connect <host>",
	Short: "Link an Umami instance",
	Long: `Links a self-hosted Umami server (username/password) or Umami Cloud
(--cloud with an API key) and makes it the active instance. Credentials are
verified before anything is saved.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runConnect),
}

func init() {
	rootCmd.AddCommand(connectCmd)
	connectCmd.Flags().StringVar(&connectFlags.name, "name", "", "display name for the instance")
	connectCmd.Flags().StringVarP(&connectFlags.username, "username", "u", "", "admin username (self-hosted)")
	connectCmd.Flags().StringVarP(&connectFlags.password, "password", "p", "", "password (self-hosted; prompted when omitted)")
	connectCmd.Flags().BoolVar(&connectFlags.cloud, "cloud", false, "connect to Umami Cloud with an API key")
	connectCmd.Flags().StringVar(&connectFlags.apiKey, "api-key", "", "API key (cloud; prompted when omitted)")
}

func runConnect(a *app, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	host, err := instance.NormalizeHost(args[0])
	if err != nil {
		return err
	}

	inst := &instance.Instance{
		Name:      connectFlags.name,
		Host:      host,
		SetupType: instance.SetupSelfHosted,
		Username:  connectFlags.username,
	}
	sec := instance.Secrets{Password: connectFlags.password, APIKey: connectFlags.apiKey}

	if connectFlags.cloud {
		inst.SetupType = instance.SetupCloud
		if sec.APIKey == "" {
			value, err := promptSecret("API key: ")
			if err != nil {
				return err
			}
			sec.APIKey = value
		}
	} else {
		if inst.Username == "" {
			return fmt.Errorf("--username is required for self-hosted instances")
		}
		if sec.Password == "" {
			value, err := promptSecret("Password: ")
			if err != nil {
				return err
			}
			sec.Password = value
		}
	}
	if inst.Name == "" {
		inst.Name = host
	}

	if err := a.instances.Create(ctx, inst); err != nil {
		return err
	}
	if err := a.instances.SetSecrets(ctx, inst.ID, sec); err != nil {
		return err
	}

	// Prove the credentials before declaring success; roll back otherwise.
	// Self-hosted session resolution already hits the server; a cloud session
	// is assembled offline, so the API key is proven with a /me call.
	if _, err := a.sessions.EnsureSession(ctx, true); err != nil {
		return a.rollbackConnect(ctx, inst.ID, err)
	}
	if connectFlags.cloud {
		if _, err := a.api.Me(ctx); err != nil {
			return a.rollbackConnect(ctx, inst.ID, err)
		}
	}

	fmt.Printf("Connected to %s\n", host)
	return nil
}

func (a *app) rollbackConnect(ctx context.Context, instanceID string, cause error) error {
	if err := a.instances.Delete(ctx, instanceID); err != nil {
		a.log.Warn("failed to remove unverified instance", zap.Error(err))
	}
	return cause
}

func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	value := strings.TrimSpace(line)
	if value == "" {
		return "", fmt.Errorf("empty input")
	}
	return value, nil
}
