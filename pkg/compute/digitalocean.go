package compute

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/digitalocean/godo"

	"github.com/hangarhq/hangar/pkg/ignition"
	"github.com/hangarhq/hangar/pkg/telemetry"
)

// Config configures the DigitalOcean provisioner.
type Config struct {
	// Token is the DigitalOcean API token.
	Token string

	// Image is the droplet image slug, e.g. "docker-20-04".
	Image string

	// SSHKeyFingerprints are the account SSH keys injected into droplets.
	SSHKeyFingerprints []string

	// UserData is the cloud-init script run on first boot. It installs and
	// starts the workspace agent.
	UserData string

	// WaitAttempts is the poll budget while waiting for a new droplet to
	// become active with a public address. Defaults to 60.
	WaitAttempts int

	// WaitDelay is the pause between polls. Defaults to 5s; tests use 0.
	WaitDelay time.Duration
}

// Provisioner creates and terminates workspace droplets through the
// DigitalOcean API. It implements ignition.ComputeProvisioner.
type Provisioner struct {
	client *godo.Client
	cfg    Config
	log    *telemetry.Logger
}

// NewProvisioner creates a provisioner using the API token from cfg.
func NewProvisioner(cfg Config, logger *telemetry.Logger) (*Provisioner, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("api token is required")
	}
	return NewProvisionerWithClient(godo.NewFromToken(cfg.Token), cfg, logger)
}

// NewProvisionerWithClient creates a provisioner around an existing godo
// client. Used by tests to point at a stub API server.
func NewProvisionerWithClient(client *godo.Client, cfg Config, logger *telemetry.Logger) (*Provisioner, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if cfg.Image == "" {
		return nil, fmt.Errorf("droplet image is required")
	}
	if cfg.WaitAttempts <= 0 {
		cfg.WaitAttempts = 60
	}
	if cfg.WaitDelay == 0 {
		cfg.WaitDelay = 5 * time.Second
	}
	if logger == nil {
		logger = telemetry.Default()
	}
	return &Provisioner{
		client: client,
		cfg:    cfg,
		log:    logger.NewComponentLogger("compute"),
	}, nil
}

// Provision creates a droplet for the workspace and waits until it is
// active with a public IPv4 address.
func (p *Provisioner) Provision(ctx context.Context, req ignition.ProvisionRequest) (*ignition.ProvisionResult, error) {
	createReq := &godo.DropletCreateRequest{
		Name:   "ws-" + req.WorkspaceSlug,
		Region: string(req.Region),
		Size:   string(req.Size),
		Image:  godo.DropletCreateImage{Slug: p.cfg.Image},
		Tags:   []string{"hangar", "workspace:" + req.WorkspaceID},
	}
	if p.cfg.UserData != "" {
		createReq.UserData = p.cfg.UserData
	}
	for _, fp := range p.cfg.SSHKeyFingerprints {
		createReq.SSHKeys = append(createReq.SSHKeys, godo.DropletCreateSSHKey{Fingerprint: fp})
	}

	droplet, _, err := p.client.Droplets.Create(ctx, createReq)
	if err != nil {
		return nil, classifyAPIError("creating droplet", err)
	}

	p.log.WithWorkspaceID(req.WorkspaceID).
		Infof("Created droplet %d, waiting for it to become active", droplet.ID)

	ip, err := p.waitForActive(ctx, droplet.ID)
	if err != nil {
		return nil, err
	}

	return &ignition.ProvisionResult{
		DropletID: strconv.Itoa(droplet.ID),
		IPAddress: ip,
	}, nil
}

// waitForActive polls the droplet until it reports active and has a public
// IPv4 address.
func (p *Provisioner) waitForActive(ctx context.Context, dropletID int) (string, error) {
	var lastStatus string
	for attempt := 0; attempt < p.cfg.WaitAttempts; attempt++ {
		if attempt > 0 && p.cfg.WaitDelay > 0 {
			select {
			case <-time.After(p.cfg.WaitDelay):
			case <-ctx.Done():
				return "", ignition.NewPermanentError("droplet wait cancelled", ctx.Err())
			}
		}

		droplet, _, err := p.client.Droplets.Get(ctx, dropletID)
		if err != nil {
			// A read blip during the wait loop is worth polling through.
			lastStatus = "unreachable"
			continue
		}
		lastStatus = droplet.Status
		if droplet.Status != "active" {
			continue
		}
		ip, err := droplet.PublicIPv4()
		if err == nil && ip != "" {
			return ip, nil
		}
	}
	return "", ignition.NewTransientError(
		fmt.Sprintf("droplet %d not active after %d checks (last status %q)",
			dropletID, p.cfg.WaitAttempts, lastStatus), nil)
}

// Terminate destroys a droplet. A droplet that no longer exists counts as
// terminated, so compensating actions can run repeatedly.
func (p *Provisioner) Terminate(ctx context.Context, dropletID string) error {
	id, err := strconv.Atoi(dropletID)
	if err != nil {
		return ignition.NewPermanentError(
			fmt.Sprintf("invalid droplet id %q", dropletID), err)
	}

	_, err = p.client.Droplets.Delete(ctx, id)
	if err != nil {
		var apiErr *godo.ErrorResponse
		if errors.As(err, &apiErr) && apiErr.Response != nil &&
			apiErr.Response.StatusCode == http.StatusNotFound {
			return nil
		}
		return classifyAPIError(fmt.Sprintf("deleting droplet %d", id), err)
	}

	p.log.Infof("Terminated droplet %d", id)
	return nil
}

// classifyAPIError maps DigitalOcean API failures onto error classes:
// rate limiting is throttled, server-side failures are transient,
// everything else is permanent.
func classifyAPIError(message string, err error) error {
	var apiErr *godo.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		switch {
		case apiErr.Response.StatusCode == http.StatusTooManyRequests:
			return ignition.NewThrottledError(message, err)
		case apiErr.Response.StatusCode >= 500:
			return ignition.NewTransientError(message, err)
		default:
			return ignition.NewPermanentError(message, err)
		}
	}
	// Network-level failures never reached the API.
	return ignition.NewTransientError(message, err)
}
