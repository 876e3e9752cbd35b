package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hangarhq/hangar/pkg/ignition"
	"github.com/hangarhq/hangar/pkg/telemetry"
)

// credentialTokenPrefix marks credential placeholders inside templates.
// Every placeholder must be resolved before a workflow ships to a node.
const credentialTokenPrefix = "YOUR_CREDENTIAL_"

// Deployer substitutes per-workspace values into workflow templates and
// pushes them to the agent on a workspace node. It implements
// ignition.WorkflowDeployer.
type Deployer struct {
	templates []ignition.WorkflowTemplate
	agent     ignition.AgentClient
	log       *telemetry.Logger
}

// NewDeployer creates a deployer over a fixed template set.
func NewDeployer(templates []ignition.WorkflowTemplate, agentClient ignition.AgentClient, logger *telemetry.Logger) (*Deployer, error) {
	if agentClient == nil {
		return nil, fmt.Errorf("agent client is required")
	}
	if logger == nil {
		logger = telemetry.Default()
	}
	return &Deployer{
		templates: templates,
		agent:     agentClient,
		log:       logger.NewComponentLogger("workflows"),
	}, nil
}

// Templates returns the workflow templates in deployment order.
func (d *Deployer) Templates() []ignition.WorkflowTemplate {
	return d.templates
}

// deployPayload is the agent command payload for a workflow deployment.
type deployPayload struct {
	Name     string          `json:"name"`
	Workflow json.RawMessage `json:"workflow"`
}

// deployOutput is the agent's answer to a successful deployment.
type deployOutput struct {
	WorkflowID string `json:"workflow_id"`
}

// Deploy renders one workflow and pushes it to the node's agent, returning
// the id the runtime assigned to the workflow.
func (d *Deployer) Deploy(ctx context.Context, ip string, dep ignition.WorkflowDeployment) (string, error) {
	rendered, err := render(dep)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(deployPayload{Name: dep.Name, Workflow: rendered})
	if err != nil {
		return "", ignition.NewPermanentError(
			fmt.Sprintf("encoding workflow %q", dep.Name), err)
	}

	res, err := d.agent.SendCommand(ctx, ip, ignition.Command{
		Action:  "deploy_workflow",
		Payload: payload,
	})
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", ignition.NewPermanentError(
			fmt.Sprintf("workflow %q rejected", dep.Name),
			fmt.Errorf("%s", res.Error))
	}

	var out deployOutput
	if err := json.Unmarshal(res.Output, &out); err != nil {
		return "", ignition.NewPermanentError(
			fmt.Sprintf("decoding deploy result for workflow %q", dep.Name), err)
	}
	if out.WorkflowID == "" {
		return "", ignition.NewPermanentError(
			fmt.Sprintf("agent returned no workflow id for %q", dep.Name), nil)
	}

	d.log.Infof("Deployed workflow %q as %s", dep.Name, out.WorkflowID)
	return out.WorkflowID, nil
}

// render substitutes credential and variable tokens into the template and
// verifies the result is still valid JSON with no unresolved credential
// placeholders.
func render(dep ignition.WorkflowDeployment) (json.RawMessage, error) {
	rendered := string(dep.JSON)
	for token, credentialID := range dep.CredentialMap {
		rendered = strings.ReplaceAll(rendered, token, credentialID)
	}
	for token, value := range dep.VariableMap {
		rendered = strings.ReplaceAll(rendered, token, value)
	}

	if idx := strings.Index(rendered, credentialTokenPrefix); idx >= 0 {
		return nil, ignition.NewPermanentError(
			fmt.Sprintf("workflow %q has unresolved credential placeholder %s",
				dep.Name, tokenAt(rendered, idx)), nil)
	}

	if !json.Valid([]byte(rendered)) {
		return nil, ignition.NewPermanentError(
			fmt.Sprintf("workflow %q is not valid JSON after substitution", dep.Name), nil)
	}
	return json.RawMessage(rendered), nil
}

// tokenAt extracts the placeholder token starting at idx for the error
// message.
func tokenAt(s string, idx int) string {
	end := idx
	for end < len(s) {
		c := s[end]
		if c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' {
			end++
			continue
		}
		break
	}
	return s[idx:end]
}
