package vsphere

import (
	"context"
	"strings"

	"github.com/vmware/govmomi/fault"
	vimtypes "github.com/vmware/govmomi/vim25/types"
)

// PowerOn powers the VM on. Success when the VM is already on.
func (c *Client) PowerOn(ctx context.Context, name string) error {
	vm, err := c.vm(ctx, name)
	if err != nil {
		return err
	}
	task, err := vm.PowerOn(ctx)
	if err != nil {
		return err
	}
	return ignoreInvalidPowerState(task.Wait(ctx))
}

// PowerOff powers the VM off. force selects the hard PowerOff API; without
// force a guest shutdown is requested first and only escalates when the
// guest tools are unavailable.
func (c *Client) PowerOff(ctx context.Context, name string, force bool) error {
	vm, err := c.vm(ctx, name)
	if err != nil {
		return err
	}
	if !force {
		if err := vm.ShutdownGuest(ctx); err == nil {
			return nil
		}
		// Tools not running or guest shutdown refused; fall through to hard off.
	}
	task, err := vm.PowerOff(ctx)
	if err != nil {
		return err
	}
	return ignoreInvalidPowerState(task.Wait(ctx))
}

// Reset issues a hard reset.
func (c *Client) Reset(ctx context.Context, name string) error {
	vm, err := c.vm(ctx, name)
	if err != nil {
		return err
	}
	task, err := vm.Reset(ctx)
	if err != nil {
		return err
	}
	return ignoreInvalidPowerState(task.Wait(ctx))
}

// ShutdownGuest asks guest tools for an orderly shutdown.
func (c *Client) ShutdownGuest(ctx context.Context, name string) error {
	vm, err := c.vm(ctx, name)
	if err != nil {
		return err
	}
	return ignoreInvalidPowerState(vm.ShutdownGuest(ctx))
}

// RebootGuest asks guest tools for an orderly reboot.
func (c *Client) RebootGuest(ctx context.Context, name string) error {
	vm, err := c.vm(ctx, name)
	if err != nil {
		return err
	}
	return ignoreInvalidPowerState(vm.RebootGuest(ctx))
}

// PowerState reads the current runtime power state.
func (c *Client) PowerState(ctx context.Context, name string) (PowerState, error) {
	vm, err := c.vm(ctx, name)
	if err != nil {
		return PowerUnknown, err
	}
	state, err := vm.PowerState(ctx)
	if err != nil {
		return PowerUnknown, err
	}
	switch state {
	case vimtypes.VirtualMachinePowerStatePoweredOn:
		return PowerOn, nil
	case vimtypes.VirtualMachinePowerStatePoweredOff, vimtypes.VirtualMachinePowerStateSuspended:
		return PowerOff, nil
	default:
		return PowerUnknown, nil
	}
}

// ignoreInvalidPowerState keeps power ops idempotent: vCenter faults a
// PowerOn on a running VM with InvalidPowerState, which the bridge treats
// as success.
func ignoreInvalidPowerState(err error) error {
	if err == nil {
		return nil
	}
	if fault.Is(err, &vimtypes.InvalidPowerState{}) {
		return nil
	}
	if strings.Contains(err.Error(), "InvalidPowerState") {
		return nil
	}
	return err
}
