// Package ignition implements the workspace ignition saga: the ordered
// provisioning of an isolated per-tenant runtime consisting of a data
// partition, encrypted credentials, a dedicated compute droplet, a remote
// agent handshake and a set of deployed automation workflows.
//
// The Orchestrator is the only writer of ignition state. It persists the
// state record after every step, so an outside observer can watch progress,
// and on any step failure it runs the compensating actions of all completed
// steps in strict reverse order before reporting the failure. Undo actions
// are idempotent: compensating a resource that was never created, or was
// already cleaned up, succeeds silently.
//
// Collaborators (partition manager, credential vault, compute provisioner,
// agent client, workflow deployer, state store) are injected as interfaces;
// production implementations live in the partition, vault, compute, agent,
// workflows and stores packages.
package ignition
