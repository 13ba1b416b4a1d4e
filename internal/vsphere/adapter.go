package vsphere

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// OpTimeout is the hard ceiling on any single vSphere operation.
	OpTimeout = 30 * time.Second

	retryAttempts = 3
	retryBaseWait = 250 * time.Millisecond
)

// Stats receives the outcome of every vSphere operation after the retry
// policy has run; the daemon wires a Prometheus implementation, tests use
// the default no-op. Results are "ok", "not_found", or "unavailable".
type Stats interface {
	Op(name, result string)
}

type nopStats struct{}

func (nopStats) Op(string, string) {}

// Adapter wraps a Backend with the bridge's failure policy: a hard
// per-operation timeout, bounded retry with exponential backoff, and one
// in-flight mutation per VM. Transient failures come back as
// ErrUpstreamUnavailable so every caller applies its protocol-appropriate
// soft-success fallback in one place.
type Adapter struct {
	backend Backend
	log     *logrus.Entry
	stats   Stats

	mu    sync.Mutex
	vmMus map[string]*sync.Mutex
}

// NewAdapter wraps backend.
func NewAdapter(backend Backend, log *logrus.Entry) *Adapter {
	return &Adapter{
		backend: backend,
		log:     log,
		stats:   nopStats{},
		vmMus:   make(map[string]*sync.Mutex),
	}
}

// WithStats attaches an operation-outcome recorder.
func (a *Adapter) WithStats(stats Stats) *Adapter {
	if stats != nil {
		a.stats = stats
	}
	return a
}

func (a *Adapter) vmLock(name string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	mu, ok := a.vmMus[name]
	if !ok {
		mu = &sync.Mutex{}
		a.vmMus[name] = mu
	}
	return mu
}

// call runs op with the retry/timeout policy. mutate serializes against
// other mutations of the same VM.
func (a *Adapter) call(ctx context.Context, name, opName string, mutate bool, op func(context.Context) error) error {
	if mutate {
		mu := a.vmLock(name)
		mu.Lock()
		defer mu.Unlock()
	}

	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			wait := retryBaseWait << (attempt - 1)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				a.stats.Op(opName, "unavailable")
				return fmt.Errorf("%w: %s %s: %v", ErrUpstreamUnavailable, opName, name, ctx.Err())
			}
		}

		opCtx, cancel := context.WithTimeout(ctx, OpTimeout)
		err = op(opCtx)
		cancel()

		if err == nil {
			a.stats.Op(opName, "ok")
			return nil
		}
		if errors.Is(err, ErrVMNotFound) {
			a.stats.Op(opName, "not_found")
			return err
		}
		if ctx.Err() != nil {
			break
		}
		a.log.WithError(err).WithFields(logrus.Fields{
			"vm": name, "op": opName, "attempt": attempt + 1,
		}).Warn("vsphere operation failed")
	}
	a.stats.Op(opName, "unavailable")
	return fmt.Errorf("%w: %s %s: %v", ErrUpstreamUnavailable, opName, name, err)
}

func (a *Adapter) PowerOn(ctx context.Context, name string) error {
	return a.call(ctx, name, "power_on", true, func(ctx context.Context) error {
		return a.backend.PowerOn(ctx, name)
	})
}

func (a *Adapter) PowerOff(ctx context.Context, name string, force bool) error {
	return a.call(ctx, name, "power_off", true, func(ctx context.Context) error {
		return a.backend.PowerOff(ctx, name, force)
	})
}

func (a *Adapter) Reset(ctx context.Context, name string) error {
	return a.call(ctx, name, "reset", true, func(ctx context.Context) error {
		return a.backend.Reset(ctx, name)
	})
}

func (a *Adapter) ShutdownGuest(ctx context.Context, name string) error {
	return a.call(ctx, name, "shutdown_guest", true, func(ctx context.Context) error {
		return a.backend.ShutdownGuest(ctx, name)
	})
}

func (a *Adapter) RebootGuest(ctx context.Context, name string) error {
	return a.call(ctx, name, "reboot_guest", true, func(ctx context.Context) error {
		return a.backend.RebootGuest(ctx, name)
	})
}

func (a *Adapter) PowerState(ctx context.Context, name string) (PowerState, error) {
	state := PowerUnknown
	err := a.call(ctx, name, "power_state", false, func(ctx context.Context) error {
		var err error
		state, err = a.backend.PowerState(ctx, name)
		return err
	})
	return state, err
}

func (a *Adapter) SetBootOrder(ctx context.Context, name string, devices []BootDevice) error {
	return a.call(ctx, name, "set_boot_order", true, func(ctx context.Context) error {
		return a.backend.SetBootOrder(ctx, name, devices)
	})
}

func (a *Adapter) MountISO(ctx context.Context, name, datastore, isoPath string) error {
	return a.call(ctx, name, "mount_iso", true, func(ctx context.Context) error {
		return a.backend.MountISO(ctx, name, datastore, isoPath)
	})
}

func (a *Adapter) UnmountISO(ctx context.Context, name string) error {
	return a.call(ctx, name, "unmount_iso", true, func(ctx context.Context) error {
		return a.backend.UnmountISO(ctx, name)
	})
}

func (a *Adapter) Inventory(ctx context.Context, name string) (*Inventory, error) {
	var inv *Inventory
	err := a.call(ctx, name, "inventory", false, func(ctx context.Context) error {
		var err error
		inv, err = a.backend.Inventory(ctx, name)
		return err
	})
	return inv, err
}

// Close shuts the underlying session down; not retried.
func (a *Adapter) Close(ctx context.Context) error {
	return a.backend.Close(ctx)
}
