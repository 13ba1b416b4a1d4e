package vsphere

import (
	"context"

	vimtypes "github.com/vmware/govmomi/vim25/types"
)

// SetBootOrder reconfigures the VM boot order. Disk and Network entries
// bind to the first matching device; Cd entries apply to all CD-ROMs.
func (c *Client) SetBootOrder(ctx context.Context, name string, order []BootDevice) error {
	vm, err := c.vm(ctx, name)
	if err != nil {
		return err
	}
	devices, err := vm.Device(ctx)
	if err != nil {
		return err
	}

	var bootOrder []vimtypes.BaseVirtualMachineBootOptionsBootableDevice
	for _, dev := range order {
		switch dev {
		case BootCdrom:
			bootOrder = append(bootOrder, &vimtypes.VirtualMachineBootOptionsBootableCdromDevice{})
		case BootDisk:
			for _, d := range devices {
				if disk, ok := d.(*vimtypes.VirtualDisk); ok {
					bootOrder = append(bootOrder, &vimtypes.VirtualMachineBootOptionsBootableDiskDevice{
						DeviceKey: disk.Key,
					})
					break
				}
			}
		case BootNetwork:
			for _, d := range devices {
				if nic, ok := d.(vimtypes.BaseVirtualEthernetCard); ok {
					bootOrder = append(bootOrder, &vimtypes.VirtualMachineBootOptionsBootableEthernetDevice{
						DeviceKey: nic.GetVirtualEthernetCard().Key,
					})
					break
				}
			}
		}
	}

	task, err := vm.Reconfigure(ctx, vimtypes.VirtualMachineConfigSpec{
		BootOptions: &vimtypes.VirtualMachineBootOptions{BootOrder: bootOrder},
	})
	if err != nil {
		return err
	}
	return task.Wait(ctx)
}
