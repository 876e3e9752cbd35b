package ignition

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// TotalSteps is the fixed number of steps in an ignition saga.
const TotalSteps = 6

// Region identifies a datacenter region a workspace droplet can run in.
type Region string

// Supported droplet regions.
const (
	RegionNYC1 Region = "nyc1"
	RegionNYC3 Region = "nyc3"
	RegionSFO3 Region = "sfo3"
	RegionAMS3 Region = "ams3"
	RegionLON1 Region = "lon1"
	RegionFRA1 Region = "fra1"
	RegionSGP1 Region = "sgp1"
	RegionSYD1 Region = "syd1"
)

var validRegions = map[Region]bool{
	RegionNYC1: true, RegionNYC3: true, RegionSFO3: true, RegionAMS3: true,
	RegionLON1: true, RegionFRA1: true, RegionSGP1: true, RegionSYD1: true,
}

// IsValid returns true if the region is a supported region.
func (r Region) IsValid() bool {
	return validRegions[r]
}

// DropletSize identifies the compute tier of a workspace droplet.
type DropletSize string

// Supported droplet size tiers.
const (
	SizeSmall  DropletSize = "s-1vcpu-1gb"
	SizeBasic  DropletSize = "s-1vcpu-2gb"
	SizeMedium DropletSize = "s-2vcpu-4gb"
	SizeLarge  DropletSize = "s-4vcpu-8gb"
)

var validSizes = map[DropletSize]bool{
	SizeSmall: true, SizeBasic: true, SizeMedium: true, SizeLarge: true,
}

// IsValid returns true if the size is a supported tier.
func (s DropletSize) IsValid() bool {
	return validSizes[s]
}

// CredentialSpec describes one tenant secret to be stored in the vault
// during ignition. PlaceholderToken, when set, is the literal token inside
// workflow templates that gets replaced with the stored credential's id.
type CredentialSpec struct {
	// Type is the credential type (e.g. "gmailOAuth2", "postgres").
	Type string `json:"type" validate:"required"`

	// Name is the human-readable credential name.
	Name string `json:"name" validate:"required"`

	// Data is the opaque credential payload, encrypted by the vault.
	Data json.RawMessage `json:"data" validate:"required"`

	// PlaceholderToken is the template token this credential's id is
	// substituted for (e.g. "YOUR_CREDENTIAL_GMAIL_ID"). Optional.
	PlaceholderToken string `json:"template_placeholder,omitempty"`
}

// Config is the immutable input to one ignition.
type Config struct {
	// WorkspaceID is the unique workspace identifier.
	WorkspaceID string `json:"workspace_id" validate:"required"`

	// WorkspaceSlug is the short human-readable identifier the data
	// partition name is derived from.
	WorkspaceSlug string `json:"workspace_slug" validate:"required"`

	// WorkspaceName is the display name.
	WorkspaceName string `json:"workspace_name"`

	// Region is the target droplet region.
	Region Region `json:"region" validate:"required"`

	// DropletSize is the compute size tier.
	DropletSize DropletSize `json:"droplet_size" validate:"required"`

	// RequestedBy identifies the actor that requested the ignition.
	RequestedBy string `json:"requested_by"`

	// Credentials are the tenant secrets to store, in order.
	Credentials []CredentialSpec `json:"credentials,omitempty"`

	// Variables maps template tokens to their per-workspace values.
	Variables map[string]string `json:"variables,omitempty"`
}

var validate = validator.New()

// Validate performs structural validation of the config. It runs before any
// side effect: a failure here means no state record is created and no
// collaborator is called.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return NewPermanentError("invalid ignition config", err).WithCode(ErrCodeValidation)
	}
	if !c.Region.IsValid() {
		return NewPermanentError(fmt.Sprintf("unknown region %q", c.Region), nil).
			WithCode(ErrCodeValidation)
	}
	if !c.DropletSize.IsValid() {
		return NewPermanentError(fmt.Sprintf("unknown droplet size %q", c.DropletSize), nil).
			WithCode(ErrCodeValidation)
	}
	seen := make(map[string]string, len(c.Credentials))
	for _, cred := range c.Credentials {
		if cred.PlaceholderToken == "" {
			continue
		}
		if prev, ok := seen[cred.PlaceholderToken]; ok {
			return NewPermanentError(
				fmt.Sprintf("credentials %q and %q share placeholder token %q",
					prev, cred.Name, cred.PlaceholderToken), nil).
				WithCode(ErrCodeValidation)
		}
		seen[cred.PlaceholderToken] = cred.Name
	}
	return nil
}

// Status is the lifecycle status of an ignition record.
type Status string

const (
	// StatusPending means the saga is in flight.
	StatusPending Status = "pending"

	// StatusActive means the workspace ignited successfully. Terminal.
	StatusActive Status = "active"

	// StatusFailed means the saga failed and was compensated. Terminal;
	// a fresh ignition attempt is permitted.
	StatusFailed Status = "failed"
)

// IsTerminal returns true once the record can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusActive || s == StatusFailed
}

// State is the durable per-workspace ignition record. The orchestrator is
// its sole writer during a saga and persists it after every step so outside
// monitors can observe progress.
type State struct {
	WorkspaceID   string    `json:"workspace_id"`
	Status        Status    `json:"status"`
	CurrentStep   int       `json:"current_step"`
	TotalSteps    int       `json:"total_steps"`
	PartitionName string    `json:"partition_name,omitempty"`
	DropletID     string    `json:"droplet_id,omitempty"`
	DropletIP     string    `json:"droplet_ip,omitempty"`
	WorkflowIDs   []string  `json:"workflow_ids,omitempty"`
	CredentialIDs []string  `json:"credential_ids,omitempty"`
	Error         string    `json:"error,omitempty"`
	FailedStep    string    `json:"failed_step,omitempty"`
	RequestedBy   string    `json:"requested_by"`
	Region        string    `json:"region"`
	DropletSize   string    `json:"droplet_size"`
	StartedAt     time.Time `json:"started_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OperationStatus is the status recorded in an operation log entry.
type OperationStatus string

const (
	OperationStarted   OperationStatus = "started"
	OperationCompleted OperationStatus = "completed"
	OperationFailed    OperationStatus = "failed"
)

// Operation is one append-only audit log entry. Entries are written before
// and after every step (and every undo) and are never read back into
// control flow.
type Operation struct {
	WorkspaceID string          `json:"workspace_id"`
	Name        string          `json:"operation"`
	Status      OperationStatus `json:"status"`
	Result      map[string]any  `json:"result,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Result is the outcome of one Ignite call. Callers always receive a
// complete Result for collaborator failures; partial fields (a partition
// name without a droplet id, say) are preserved on failure so operators can
// see how far the saga got without consulting the operation log.
type Result struct {
	Success           bool     `json:"success"`
	WorkspaceID       string   `json:"workspace_id"`
	PartitionName     string   `json:"partition_name,omitempty"`
	DropletID         string   `json:"droplet_id,omitempty"`
	DropletIP         string   `json:"droplet_ip,omitempty"`
	WorkflowIDs       []string `json:"workflow_ids,omitempty"`
	DurationMS        int64    `json:"duration_ms"`
	Error             string   `json:"error,omitempty"`
	RollbackPerformed bool     `json:"rollback_performed"`
}
