package ignition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hangarhq/hangar/pkg/telemetry"
)

// Collaborators are the external systems the orchestrator sequences. Every
// call to any of them is treated as potentially slow and potentially
// failing; the orchestrator never assumes a second call will succeed merely
// because a prior one did.
type Collaborators struct {
	Store      StateStore
	Partitions PartitionManager
	Vault      CredentialVault
	Compute    ComputeProvisioner
	Agent      AgentClient
	Deployer   WorkflowDeployer
}

// Options tune orchestrator behavior. The zero value is usable in tests:
// no handshake delay, no per-step retries.
type Options struct {
	// HandshakeAttempts is the poll budget for the agent handshake step.
	// Defaults to 30 when zero or negative.
	HandshakeAttempts int

	// HandshakeDelay is the pause between handshake polls. Zero means no
	// pause (tests rely on this for determinism); production deployments
	// use tens of seconds to allow droplet boot time.
	HandshakeDelay time.Duration

	// MaxStepRetries is the number of extra attempts for a step whose
	// failure is classified transient or throttled. Zero rolls back on
	// the first reported failure.
	MaxStepRetries int

	// RetryBaseDelay is the starting backoff between step retries.
	RetryBaseDelay time.Duration

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
}

// Orchestrator coordinates the workspace ignition saga: six sequential
// steps, durable state persisted after each, and strict reverse-order
// compensation when a step fails. It holds no mutable process-wide state
// beyond the injected collaborator handles, so ignitions for different
// workspaces may run concurrently.
type Orchestrator struct {
	store      StateStore
	partitions PartitionManager
	vault      CredentialVault
	compute    ComputeProvisioner
	agent      AgentClient
	deployer   WorkflowDeployer

	log     *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer

	handshakeAttempts int
	handshakeDelay    time.Duration
	retry             retryPolicy
}

// New creates an orchestrator. All collaborators are required.
func New(c Collaborators, opts Options) (*Orchestrator, error) {
	switch {
	case c.Store == nil:
		return nil, fmt.Errorf("state store is required")
	case c.Partitions == nil:
		return nil, fmt.Errorf("partition manager is required")
	case c.Vault == nil:
		return nil, fmt.Errorf("credential vault is required")
	case c.Compute == nil:
		return nil, fmt.Errorf("compute provisioner is required")
	case c.Agent == nil:
		return nil, fmt.Errorf("agent client is required")
	case c.Deployer == nil:
		return nil, fmt.Errorf("workflow deployer is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = telemetry.Default()
	}

	attempts := opts.HandshakeAttempts
	if attempts <= 0 {
		attempts = 30
	}

	retry := defaultRetryPolicy()
	if opts.MaxStepRetries > 0 {
		retry.maxRetries = opts.MaxStepRetries
	}
	if opts.RetryBaseDelay > 0 {
		retry.baseDelay = opts.RetryBaseDelay
	}

	return &Orchestrator{
		store:             c.Store,
		partitions:        c.Partitions,
		vault:             c.Vault,
		compute:           c.Compute,
		agent:             c.Agent,
		deployer:          c.Deployer,
		log:               logger.NewComponentLogger("ignition"),
		metrics:           opts.Metrics,
		tracer:            opts.Tracer,
		handshakeAttempts: attempts,
		handshakeDelay:    opts.HandshakeDelay,
		retry:             retry,
	}, nil
}

// Ignite provisions a fully isolated workspace runtime as one logical
// operation: data partition, vault credentials, compute node, agent
// handshake, workflow deployment, finalization.
//
// Collaborator failures never escape this method; they are converted into
// the failure branch of the Result after compensation runs. Only config
// validation failures and state-store failures return a non-nil error,
// since no meaningful Result can be built for those.
func (o *Orchestrator) Ignite(ctx context.Context, cfg *Config) (*Result, error) {
	start := time.Now()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.log.WithWorkspaceID(cfg.WorkspaceID)

	existing, err := o.store.GetIgnition(ctx, cfg.WorkspaceID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, NewPermanentError("loading ignition state", err).
			WithCode(ErrCodeStateStore).WithWorkspace(cfg.WorkspaceID)
	}
	if existing != nil {
		switch existing.Status {
		case StatusActive:
			logger.Info("workspace already active, returning existing result")
			return resultFromState(existing, time.Since(start)), nil
		case StatusPending:
			return nil, NewConflictError("an ignition for this workspace is already in progress", nil).
				WithCode(ErrCodeInProgress).WithWorkspace(cfg.WorkspaceID)
		case StatusFailed:
			// A failed attempt was already compensated; start a fresh
			// sequence from step 0 rather than resuming mid-saga.
			logger.Info("previous ignition attempt failed, starting fresh sequence")
		}
	}

	now := time.Now()
	st := &State{
		WorkspaceID: cfg.WorkspaceID,
		Status:      StatusPending,
		CurrentStep: 0,
		TotalSteps:  TotalSteps,
		RequestedBy: cfg.RequestedBy,
		Region:      string(cfg.Region),
		DropletSize: string(cfg.DropletSize),
		StartedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.store.SaveIgnition(ctx, st); err != nil {
		return nil, NewPermanentError("creating ignition state", err).
			WithCode(ErrCodeStateStore).WithWorkspace(cfg.WorkspaceID)
	}

	if o.metrics != nil {
		o.metrics.RecordIgnitionStarted(cfg.RequestedBy)
	}
	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.StartIgnitionSpan(ctx, cfg.WorkspaceID)
		defer span.End()
	}

	logger.Infof("Starting ignition for workspace %s (%s, %s)",
		cfg.WorkspaceSlug, cfg.Region, cfg.DropletSize)

	credMap := make(map[string]string, len(cfg.Credentials))
	steps := o.buildSteps(cfg, st, credMap)

	res := runSaga(ctx, steps, sagaHooks{
		exec:      o.execStep(st, logger),
		afterStep: o.persistProgress(st, logger),
		onFailure: o.persistFailure(st, logger),
		onUndo:    o.observeUndo(ctx, st, logger),
	})

	duration := time.Since(start)

	if res.Err != nil {
		if o.metrics != nil {
			o.metrics.RecordIgnitionCompleted("failed", duration)
			if res.RollbackPerformed {
				o.metrics.RecordRollback()
			}
		}
		logger.WithError(res.Err).
			WithField("failed_step", res.FailedStep).
			Error("Ignition failed")

		result := resultFromState(st, duration)
		result.Success = false
		result.Error = rootMessage(res.Err)
		result.RollbackPerformed = res.RollbackPerformed
		return result, nil
	}

	if o.metrics != nil {
		o.metrics.RecordIgnitionCompleted("active", duration)
	}
	logger.Infof("Ignition completed in %s", duration.Round(time.Millisecond))

	return resultFromState(st, duration), nil
}

// buildSteps assembles the ordered step descriptors for one saga. The
// closures capture the state record and mutate it as side effects land, so
// undo actions always see exactly what their forward action recorded.
func (o *Orchestrator) buildSteps(cfg *Config, st *State, credMap map[string]string) []step {
	return []step{
		{
			name: "create_partition",
			do: func(ctx context.Context) error {
				name, err := o.partitions.Create(ctx, cfg.WorkspaceID, cfg.WorkspaceSlug)
				if err != nil {
					return o.classify(err, "create partition failed", ErrCodePartitionFailed)
				}
				st.PartitionName = name
				return nil
			},
			undo: func(ctx context.Context) error {
				if st.PartitionName == "" {
					return nil
				}
				return o.partitions.Drop(ctx, st.PartitionName, true)
			},
		},
		{
			name: "store_credentials",
			do: func(ctx context.Context) error {
				for _, cred := range cfg.Credentials {
					id, err := o.vault.Store(ctx, cfg.WorkspaceID, cred)
					if err != nil {
						return o.classify(err,
							fmt.Sprintf("storing credential %q failed", cred.Name),
							ErrCodeVaultFailed)
					}
					st.CredentialIDs = append(st.CredentialIDs, id)
					if cred.PlaceholderToken != "" {
						credMap[cred.PlaceholderToken] = id
					}
				}
				return nil
			},
			undo: func(ctx context.Context) error {
				var errs []error
				for _, id := range st.CredentialIDs {
					if err := o.vault.Delete(ctx, id); err != nil {
						errs = append(errs, err)
					}
				}
				return errors.Join(errs...)
			},
		},
		{
			name: "provision_droplet",
			do: func(ctx context.Context) error {
				pr, err := o.compute.Provision(ctx, ProvisionRequest{
					WorkspaceID:   cfg.WorkspaceID,
					WorkspaceSlug: cfg.WorkspaceSlug,
					Region:        cfg.Region,
					Size:          cfg.DropletSize,
				})
				if err != nil {
					return o.classify(err, "droplet provisioning failed", ErrCodeProvisionFailed)
				}
				st.DropletID = pr.DropletID
				st.DropletIP = pr.IPAddress
				return nil
			},
			undo: func(ctx context.Context) error {
				if st.DropletID == "" {
					return nil
				}
				return o.compute.Terminate(ctx, st.DropletID)
			},
		},
		{
			name: "agent_handshake",
			do: func(ctx context.Context) error {
				return o.handshake(ctx, st.DropletIP)
			},
			// The handshake creates nothing; the droplet undo covers it.
			undo: nil,
		},
		{
			name: "deploy_workflows",
			do: func(ctx context.Context) error {
				for _, tpl := range o.deployer.Templates() {
					id, err := o.deployer.Deploy(ctx, st.DropletIP, WorkflowDeployment{
						Name:          tpl.Name,
						JSON:          tpl.JSON,
						CredentialMap: credMap,
						VariableMap:   cfg.Variables,
					})
					if err != nil {
						return o.classify(err,
							fmt.Sprintf("deploying workflow %q failed", tpl.Name),
							ErrCodeDeployFailed)
					}
					st.WorkflowIDs = append(st.WorkflowIDs, id)
				}
				return nil
			},
			// Deployed workflows live inside the droplet; terminating it
			// removes them.
			undo: nil,
		},
		{
			name: "finalize",
			do: func(ctx context.Context) error {
				st.Status = StatusActive
				st.CurrentStep = TotalSteps
				st.UpdatedAt = time.Now()
				if err := o.store.SaveIgnition(ctx, st); err != nil {
					st.Status = StatusPending
					return o.classify(err, "persisting active state failed", ErrCodeFinalizeFailed)
				}
				return nil
			},
			undo: nil,
		},
	}
}

// execStep wraps a step's forward action with audit logging, metrics,
// tracing and the per-step retry policy.
func (o *Orchestrator) execStep(st *State, logger *telemetry.Logger) func(ctx context.Context, s step) error {
	return func(ctx context.Context, s step) error {
		o.logOperation(ctx, st.WorkspaceID, s.name, OperationStarted, nil)

		if o.tracer != nil {
			var span trace.Span
			ctx, span = o.tracer.StartStepSpan(ctx, s.name)
			defer span.End()
		}

		stepStart := time.Now()
		err := o.retry.execute(ctx, s.do)
		stepDuration := time.Since(stepStart)

		if err != nil {
			o.logOperation(ctx, st.WorkspaceID, s.name, OperationFailed,
				map[string]any{"error": err.Error()})
			if o.metrics != nil {
				o.metrics.RecordStep(s.name, "failed", stepDuration)
			}
			logger.WithError(err).WithStep(s.name).Error("Step failed")
			return err
		}

		o.logOperation(ctx, st.WorkspaceID, s.name, OperationCompleted, nil)
		if o.metrics != nil {
			o.metrics.RecordStep(s.name, "completed", stepDuration)
		}
		logger.WithStep(s.name).Debug("Step completed")
		return nil
	}
}

// persistProgress saves the state record after each successful step.
// Persistence failures here are logged but do not abort the saga: the
// collaborator side effect already happened, and aborting would strand it.
func (o *Orchestrator) persistProgress(st *State, logger *telemetry.Logger) func(ctx context.Context, index int) {
	return func(ctx context.Context, index int) {
		if st.CurrentStep < index+1 {
			st.CurrentStep = index + 1
		}
		st.UpdatedAt = time.Now()
		if err := o.store.SaveIgnition(ctx, st); err != nil {
			logger.WithError(err).Warn("Persisting ignition progress failed")
		}
	}
}

// persistFailure records the failed status and the failure reason before
// any compensating action runs, so the primary error survives even if
// compensation is interrupted.
func (o *Orchestrator) persistFailure(st *State, logger *telemetry.Logger) func(ctx context.Context, s step, index int, err error) {
	return func(ctx context.Context, s step, index int, err error) {
		st.Status = StatusFailed
		st.Error = rootMessage(err)
		st.FailedStep = s.name
		st.UpdatedAt = time.Now()
		if saveErr := o.store.SaveIgnition(ctx, st); saveErr != nil {
			logger.WithError(saveErr).Error("Persisting failed ignition state failed")
		}
	}
}

// observeUndo audits each compensating action. Undo failures are recorded
// against the operation log and logged, but never overwrite the primary
// failure or block the remaining undo steps.
func (o *Orchestrator) observeUndo(ctx context.Context, st *State, logger *telemetry.Logger) func(s step, err error) {
	return func(s step, err error) {
		opName := s.name + "_undo"
		if err != nil {
			o.logOperation(ctx, st.WorkspaceID, opName, OperationFailed,
				map[string]any{"error": err.Error()})
			if o.metrics != nil {
				o.metrics.RecordUndoFailure(s.name)
			}
			logger.WithError(err).WithStep(s.name).Warn("Compensating action failed")
			return
		}
		o.logOperation(ctx, st.WorkspaceID, opName, OperationCompleted, nil)
		logger.WithStep(s.name).Debug("Compensating action completed")
	}
}

// handshake polls the agent on the new droplet until it reports healthy or
// the attempt budget is exhausted. The poll delay is configurable so a
// never-healthy node cannot block the saga indefinitely.
func (o *Orchestrator) handshake(ctx context.Context, ip string) error {
	var lastErr error
	for attempt := 0; attempt < o.handshakeAttempts; attempt++ {
		if attempt > 0 && o.handshakeDelay > 0 {
			select {
			case <-time.After(o.handshakeDelay):
			case <-ctx.Done():
				return NewPermanentError("handshake cancelled", ctx.Err()).
					WithCode(ErrCodeHandshakeTimeout)
			}
		}

		res, err := o.agent.SendCommand(ctx, ip, Command{Action: "health"})
		if err == nil && res != nil && res.Success {
			return nil
		}
		if err != nil {
			lastErr = err
		} else if res != nil && res.Error != "" {
			lastErr = errors.New(res.Error)
		}
	}
	return NewPermanentError(
		fmt.Sprintf("agent on %s not healthy after %d attempts", ip, o.handshakeAttempts),
		lastErr).WithCode(ErrCodeHandshakeTimeout)
}

// classify passes through already-classified errors and wraps everything
// else as permanent, so unclassified collaborator failures roll back
// immediately instead of being retried.
func (o *Orchestrator) classify(err error, message, code string) error {
	var ie *IgnitionError
	if errors.As(err, &ie) {
		if ie.Code == "" {
			ie.Code = code
		}
		return err
	}
	return NewPermanentError(message, err).WithCode(code)
}

// logOperation appends an audit entry. The log is write-only from the
// orchestrator's perspective; append failures are non-fatal.
func (o *Orchestrator) logOperation(ctx context.Context, workspaceID, name string, status OperationStatus, result map[string]any) {
	op := &Operation{
		WorkspaceID: workspaceID,
		Name:        name,
		Status:      status,
		Result:      result,
		Timestamp:   time.Now(),
	}
	if err := o.store.AppendOperation(ctx, op); err != nil {
		o.log.WithError(err).Warn("Appending operation log entry failed")
	}
}

// resultFromState reconstructs a Result from a state record. Used both for
// the normal return path and for the idempotent short-circuit when a
// workspace is already active.
func resultFromState(st *State, elapsed time.Duration) *Result {
	return &Result{
		Success:       st.Status == StatusActive,
		WorkspaceID:   st.WorkspaceID,
		PartitionName: st.PartitionName,
		DropletID:     st.DropletID,
		DropletIP:     st.DropletIP,
		WorkflowIDs:   append([]string(nil), st.WorkflowIDs...),
		DurationMS:    elapsed.Milliseconds(),
	}
}

// rootMessage extracts the collaborator's own message from a classified
// error chain, so the Result surfaces "why ignition failed" in the
// collaborator's words rather than the orchestrator's wrapping.
func rootMessage(err error) string {
	var ie *IgnitionError
	if errors.As(err, &ie) && ie.Err != nil {
		return ie.Err.Error()
	}
	return err.Error()
}
