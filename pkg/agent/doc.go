// Package agent is the HTTP client for the workspace agent that runs on
// every provisioned droplet. The agent exposes a single JSON command
// endpoint; the orchestrator uses it for the post-provision health
// handshake and the workflow deployer uses it to push workflow
// definitions.
package agent
