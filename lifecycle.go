package offlinecache

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// State is the lifecycle state of a worker version.
type State string

const (
	StateInstalling State = "installing"
	StateWaiting    State = "waiting"
	StateActive     State = "active"
	StateSuperseded State = "superseded"
)

// Controller drives a worker through its install and activate transitions
// and tracks the clients the worker governs. It holds no state across
// process restarts beyond what is in the store itself; the current
// version comes from the worker's build-time constant.
type Controller struct {
	worker *Worker

	mu      sync.Mutex
	state   State
	clients []*http.Client
}

func NewController(w *Worker) *Controller {
	return &Controller{
		worker: w,
		state:  StateInstalling,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Register adds a client governed by this controller. Clients registered
// after activation are claimed immediately.
func (c *Controller) Register(client *http.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients = append(c.clients, client)
	if c.state == StateActive {
		client.Transport = c.worker
	}
}

// Install preloads the current version's store. On failure the install
// transition aborts: stores are left untouched, no clients are claimed,
// and any previously active version keeps serving.
func (c *Controller) Install(ctx context.Context) error {
	if c.worker.store == nil {
		return fmt.Errorf("install %s: no store available", c.worker.version)
	}
	c.setState(StateInstalling)
	if err := c.worker.store.Preload(ctx, c.worker.version, c.worker.preload); err != nil {
		return fmt.Errorf("install %s: %w", c.worker.version, err)
	}
	c.worker.log.Info().Msg("Install complete, ready to activate")
	c.setState(StateWaiting)
	return nil
}

// Activate garbage-collects every store version other than the current
// one, then claims all registered clients so they are governed by this
// worker without requiring a reload.
func (c *Controller) Activate(ctx context.Context) error {
	if c.worker.store == nil {
		return fmt.Errorf("activate %s: no store available", c.worker.version)
	}
	if err := c.worker.store.DeleteAllExcept(c.worker.version); err != nil {
		return fmt.Errorf("activate %s: %w", c.worker.version, err)
	}
	c.mu.Lock()
	c.state = StateActive
	for _, client := range c.clients {
		client.Transport = c.worker
	}
	c.mu.Unlock()
	c.worker.log.Info().Int("clients", len(c.clients)).Msg("Activated")
	return nil
}

// Run performs the full aggressive takeover: install the current version
// and activate it immediately instead of waiting for open clients to
// close. An open client may briefly see a mix of old and new captures
// until its next request.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Install(ctx); err != nil {
		return err
	}
	return c.Activate(ctx)
}

// Supersede marks this worker as replaced by a newer version. Its claimed
// clients keep working until the newer worker claims them.
func (c *Controller) Supersede() {
	c.setState(StateSuperseded)
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
