package workflows

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangarhq/hangar/pkg/ignition"
)

type scriptedAgent struct {
	commands []ignition.Command
	result   *ignition.CommandResult
	err      error
}

func (a *scriptedAgent) SendCommand(_ context.Context, _ string, cmd ignition.Command) (*ignition.CommandResult, error) {
	a.commands = append(a.commands, cmd)
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}

func okAgent() *scriptedAgent {
	return &scriptedAgent{
		result: &ignition.CommandResult{
			Success: true,
			Output:  json.RawMessage(`{"workflow_id":"wf-9"}`),
		},
	}
}

func testDeployment() ignition.WorkflowDeployment {
	return ignition.WorkflowDeployment{
		Name: "inbound",
		JSON: []byte(`{"name":"inbound","credentials":{"id":"YOUR_CREDENTIAL_GMAIL_ID"},"domain":"WORKSPACE_DOMAIN"}`),
		CredentialMap: map[string]string{
			"YOUR_CREDENTIAL_GMAIL_ID": "cred-1",
		},
		VariableMap: map[string]string{
			"WORKSPACE_DOMAIN": "acme.example.com",
		},
	}
}

func TestDeploySubstitutesTokens(t *testing.T) {
	agent := okAgent()
	d, err := NewDeployer(nil, agent, nil)
	require.NoError(t, err)

	id, err := d.Deploy(context.Background(), "10.0.0.5", testDeployment())
	require.NoError(t, err)
	assert.Equal(t, "wf-9", id)

	require.Len(t, agent.commands, 1)
	cmd := agent.commands[0]
	assert.Equal(t, "deploy_workflow", cmd.Action)

	var payload deployPayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &payload))
	assert.Equal(t, "inbound", payload.Name)
	assert.JSONEq(t,
		`{"name":"inbound","credentials":{"id":"cred-1"},"domain":"acme.example.com"}`,
		string(payload.Workflow))
}

func TestDeployRejectsUnresolvedCredentialPlaceholder(t *testing.T) {
	agent := okAgent()
	d, err := NewDeployer(nil, agent, nil)
	require.NoError(t, err)

	dep := testDeployment()
	dep.CredentialMap = nil

	_, err = d.Deploy(context.Background(), "10.0.0.5", dep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YOUR_CREDENTIAL_GMAIL_ID")
	assert.Empty(t, agent.commands)
}

func TestDeployRejectsInvalidJSONAfterSubstitution(t *testing.T) {
	agent := okAgent()
	d, err := NewDeployer(nil, agent, nil)
	require.NoError(t, err)

	dep := testDeployment()
	// A substitution value that breaks the JSON structure must be caught
	// before anything is sent to the node.
	dep.VariableMap["WORKSPACE_DOMAIN"] = `acme"`

	_, err = d.Deploy(context.Background(), "10.0.0.5", dep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
	assert.Empty(t, agent.commands)
}

func TestDeployAgentRejection(t *testing.T) {
	agent := &scriptedAgent{
		result: &ignition.CommandResult{Success: false, Error: "duplicate workflow name"},
	}
	d, err := NewDeployer(nil, agent, nil)
	require.NoError(t, err)

	_, err = d.Deploy(context.Background(), "10.0.0.5", testDeployment())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate workflow name")
}

func TestDeployMissingWorkflowID(t *testing.T) {
	agent := &scriptedAgent{
		result: &ignition.CommandResult{Success: true, Output: json.RawMessage(`{}`)},
	}
	d, err := NewDeployer(nil, agent, nil)
	require.NoError(t, err)

	_, err = d.Deploy(context.Background(), "10.0.0.5", testDeployment())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no workflow id")
}

func TestLoadTemplatesSortedByName(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"20-digest.json":  `{"name":"digest"}`,
		"10-inbound.json": `{"name":"inbound"}`,
		"notes.txt":       "ignored",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	templates, err := LoadTemplates(dir)
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "10-inbound", templates[0].Name)
	assert.Equal(t, "20-digest", templates[1].Name)
}

func TestLoadTemplatesMissingDir(t *testing.T) {
	_, err := LoadTemplates(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
