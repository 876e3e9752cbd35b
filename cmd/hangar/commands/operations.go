package commands

import (
	"github.com/spf13/cobra"
)

func newOperationsCommand() *cobra.Command {
	var (
		workspaceID string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "operations",
		Short: "Show the operation audit log for a workspace",
		Long: `Operations prints the append-only audit log of one workspace's
ignition: every step start, completion and failure, and every compensating
action, in the order they happened.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			ops, err := rt.store.ListOperations(ctx, workspaceID, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd, ops)
			}

			if len(ops) == 0 {
				cmd.Printf("No operations recorded for workspace %s.\n", workspaceID)
				return nil
			}
			for _, op := range ops {
				line := op.Timestamp.Format("2006-01-02 15:04:05") + "  " + op.Name + "  " + string(op.Status)
				if msg, ok := op.Result["error"].(string); ok && msg != "" {
					line += "  " + msg
				}
				cmd.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace-id", "w", "", "workspace whose log to show")
	cmd.Flags().IntVar(&limit, "limit", 200, "maximum entries to print")
	_ = cmd.MarkFlagRequired("workspace-id")

	return cmd
}
