package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hangarhq/hangar/pkg/ignition"
)

func newStatusCommand() *cobra.Command {
	var workspaceID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the ignition state of a workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if workspaceID == "" {
				states, err := rt.store.ListIgnitions(ctx, 50, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd, states)
				}
				if len(states) == 0 {
					cmd.Println("No ignitions recorded.")
					return nil
				}
				for _, st := range states {
					cmd.Printf("%-20s %-8s step %d/%d  %s\n",
						st.WorkspaceID, st.Status, st.CurrentStep, st.TotalSteps,
						st.UpdatedAt.Format("2006-01-02 15:04:05"))
				}
				return nil
			}

			st, err := rt.store.GetIgnition(ctx, workspaceID)
			if err != nil {
				if errors.Is(err, ignition.ErrNotFound) {
					return fmt.Errorf("no ignition recorded for workspace %s", workspaceID)
				}
				return err
			}

			if jsonOutput {
				return printJSON(cmd, st)
			}

			cmd.Printf("Workspace:  %s\n", st.WorkspaceID)
			cmd.Printf("Status:     %s (step %d/%d)\n", st.Status, st.CurrentStep, st.TotalSteps)
			if st.PartitionName != "" {
				cmd.Printf("Partition:  %s\n", st.PartitionName)
			}
			if st.DropletID != "" {
				cmd.Printf("Droplet:    %s (%s)\n", st.DropletID, st.DropletIP)
			}
			if len(st.WorkflowIDs) > 0 {
				cmd.Printf("Workflows:  %v\n", st.WorkflowIDs)
			}
			if st.Status == ignition.StatusFailed {
				cmd.Printf("Failed at:  %s\n", st.FailedStep)
				cmd.Printf("Error:      %s\n", st.Error)
			}
			cmd.Printf("Started:    %s\n", st.StartedAt.Format("2006-01-02 15:04:05"))
			cmd.Printf("Updated:    %s\n", st.UpdatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace-id", "w", "", "workspace to show (omit to list all)")

	return cmd
}
