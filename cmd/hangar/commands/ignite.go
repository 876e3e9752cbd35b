package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hangarhq/hangar/pkg/ignition"
)

func newIgniteCommand() *cobra.Command {
	var (
		requestFile string
		requestedBy string
	)

	cmd := &cobra.Command{
		Use:   "ignite",
		Short: "Provision a complete workspace runtime",
		Long: `Ignite runs the full provisioning sequence for one workspace: data
partition, encrypted credentials, compute droplet, agent handshake and
workflow deployment. On any failure everything already created is rolled
back in reverse order.

The request file is JSON:

  {
    "workspace_id": "ws-42",
    "workspace_slug": "acme-corp",
    "workspace_name": "Acme Corp",
    "region": "nyc3",
    "droplet_size": "s-1vcpu-2gb",
    "credentials": [
      {"type": "gmailOAuth2", "name": "Gmail", "data": {...},
       "template_placeholder": "YOUR_CREDENTIAL_GMAIL_ID"}
    ],
    "variables": {"WORKSPACE_DOMAIN": "acme.example.com"}
  }`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			data, err := os.ReadFile(requestFile)
			if err != nil {
				return fmt.Errorf("reading request file: %w", err)
			}
			var igniteCfg ignition.Config
			if err := json.Unmarshal(data, &igniteCfg); err != nil {
				return fmt.Errorf("parsing request file: %w", err)
			}
			if requestedBy != "" {
				igniteCfg.RequestedBy = requestedBy
			}

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			orch, err := rt.buildOrchestrator()
			if err != nil {
				return err
			}

			result, err := orch.Ignite(ctx, &igniteCfg)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd, result)
			}

			if result.Success {
				cmd.Printf("Workspace %s ignited in %dms\n", result.WorkspaceID, result.DurationMS)
				cmd.Printf("  partition: %s\n", result.PartitionName)
				cmd.Printf("  droplet:   %s (%s)\n", result.DropletID, result.DropletIP)
				cmd.Printf("  workflows: %d deployed\n", len(result.WorkflowIDs))
				return nil
			}

			cmd.Printf("Ignition for workspace %s failed: %s\n", result.WorkspaceID, result.Error)
			if result.RollbackPerformed {
				cmd.Println("All partially created resources were rolled back.")
			}
			return fmt.Errorf("ignition failed")
		},
	}

	cmd.Flags().StringVarP(&requestFile, "file", "f", "", "ignition request file (JSON)")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "actor recorded on the ignition")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(encoded))
	return nil
}
