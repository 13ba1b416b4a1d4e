package vsphere

import (
	"context"
	"fmt"

	"github.com/vmware/govmomi/object"
	vimtypes "github.com/vmware/govmomi/vim25/types"
)

// MountISO attaches an ISO on a datastore to the VM's IDE CD-ROM, creating
// the device if the VM has none. Re-mounting the same image is a no-op at
// the vSphere level (the backing is simply rewritten).
func (c *Client) MountISO(ctx context.Context, name, datastore, isoPath string) error {
	vm, err := c.vm(ctx, name)
	if err != nil {
		return err
	}
	devices, err := vm.Device(ctx)
	if err != nil {
		return err
	}

	iso := (&object.DatastorePath{Datastore: datastore, Path: isoPath}).String()

	cd, err := devices.FindCdrom("")
	if err != nil {
		// No CD-ROM device yet; hang one off the first IDE controller.
		ide, err := devices.FindIDEController("")
		if err != nil {
			return fmt.Errorf("no IDE controller on %s: %w", name, err)
		}
		cd, err = devices.CreateCdrom(ide)
		if err != nil {
			return err
		}
		return vm.AddDevice(ctx, devices.InsertIso(cd, iso))
	}
	return vm.EditDevice(ctx, devices.InsertIso(cd, iso))
}

// UnmountISO detaches any ISO from the VM's CD-ROM. Success when the VM has
// no CD-ROM or nothing is mounted.
func (c *Client) UnmountISO(ctx context.Context, name string) error {
	vm, err := c.vm(ctx, name)
	if err != nil {
		return err
	}
	devices, err := vm.Device(ctx)
	if err != nil {
		return err
	}
	cd, err := devices.FindCdrom("")
	if err != nil {
		return nil
	}
	if _, ok := cd.Backing.(*vimtypes.VirtualCdromIsoBackingInfo); !ok {
		return nil
	}
	return vm.EditDevice(ctx, devices.EjectIso(cd))
}
