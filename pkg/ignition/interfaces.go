package ignition

import (
	"context"
	"encoding/json"
)

// PartitionManager creates and drops isolated per-tenant data partitions.
type PartitionManager interface {
	// Create provisions a partition for the workspace, deriving its name
	// deterministically from the slug, and returns the partition name.
	Create(ctx context.Context, workspaceID, slug string) (string, error)

	// Drop removes a partition. Dropping a partition that does not exist
	// (or was already dropped) is not an error.
	Drop(ctx context.Context, partitionName string, force bool) error
}

// CredentialVault encrypts and persists tenant secrets scoped to a
// workspace, returning opaque credential identifiers.
type CredentialVault interface {
	// Store encrypts and persists a credential under the workspace's
	// derived key and returns its id.
	Store(ctx context.Context, workspaceID string, cred CredentialSpec) (string, error)

	// Delete removes a stored credential. Deleting an id that no longer
	// exists is not an error.
	Delete(ctx context.Context, id string) error
}

// ProvisionRequest describes the compute node to create for a workspace.
type ProvisionRequest struct {
	WorkspaceID   string
	WorkspaceSlug string
	Region        Region
	Size          DropletSize
}

// ProvisionResult is the outcome of a successful provision call.
type ProvisionResult struct {
	DropletID string
	IPAddress string
}

// ComputeProvisioner creates and terminates dedicated compute nodes.
type ComputeProvisioner interface {
	// Provision creates a node in the requested region/size, tagged with
	// the workspace id, and returns its id and public address.
	Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error)

	// Terminate destroys a node. Terminating a node that no longer exists
	// is not an error.
	Terminate(ctx context.Context, dropletID string) error
}

// Command is a single instruction sent to the remote agent on a node.
type Command struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CommandResult is the agent's response to a Command.
type CommandResult struct {
	Success bool            `json:"success"`
	Output  json.RawMessage `json:"output,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// AgentClient talks to the remote agent running on a provisioned node.
type AgentClient interface {
	SendCommand(ctx context.Context, ip string, cmd Command) (*CommandResult, error)
}

// WorkflowTemplate is one automation workflow definition to deploy.
type WorkflowTemplate struct {
	Name string
	JSON []byte
}

// WorkflowDeployment is the input to a single workflow deploy call.
type WorkflowDeployment struct {
	Name string
	JSON []byte

	// CredentialMap maps template placeholder tokens to stored credential
	// ids collected during the store-credentials step.
	CredentialMap map[string]string

	// VariableMap maps template tokens to per-workspace values.
	VariableMap map[string]string
}

// WorkflowDeployer pushes workflow definitions to a node's agent,
// substituting credential references and configuration variables.
type WorkflowDeployer interface {
	// Templates returns the workflow templates to deploy, in order.
	Templates() []WorkflowTemplate

	// Deploy pushes one workflow to the node and returns its id.
	Deploy(ctx context.Context, ip string, dep WorkflowDeployment) (string, error)
}

// StateStore is the durable persistence consumed by the orchestrator.
// GetIgnition returns ErrNotFound when no record exists for the workspace.
type StateStore interface {
	SaveIgnition(ctx context.Context, state *State) error
	GetIgnition(ctx context.Context, workspaceID string) (*State, error)
	AppendOperation(ctx context.Context, op *Operation) error
}
