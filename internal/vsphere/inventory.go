package vsphere

import (
	"context"

	vimtypes "github.com/vmware/govmomi/vim25/types"
)

// Inventory reads a hardware snapshot from the property collector.
func (c *Client) Inventory(ctx context.Context, name string) (*Inventory, error) {
	vm, err := c.vm(ctx, name)
	if err != nil {
		return nil, err
	}
	mvm, err := c.properties(ctx, vm, []string{"config", "summary"})
	if err != nil {
		return nil, err
	}

	inv := &Inventory{}
	if mvm.Config != nil {
		inv.NumCPU = mvm.Config.Hardware.NumCPU
		inv.MemoryMB = mvm.Config.Hardware.MemoryMB
		inv.GuestOS = mvm.Config.GuestFullName

		for _, dev := range mvm.Config.Hardware.Device {
			switch d := dev.(type) {
			case *vimtypes.VirtualDisk:
				label := ""
				if info := d.DeviceInfo.GetDescription(); info != nil {
					label = info.Label
				}
				capacity := d.CapacityInBytes
				if capacity == 0 {
					capacity = d.CapacityInKB * 1024
				}
				inv.Disks = append(inv.Disks, Disk{Label: label, CapacityBytes: capacity})
			default:
				if card, ok := dev.(vimtypes.BaseVirtualEthernetCard); ok {
					nic := card.GetVirtualEthernetCard()
					label := ""
					if info := nic.DeviceInfo.GetDescription(); info != nil {
						label = info.Label
					}
					connected := false
					if nic.Connectable != nil {
						connected = nic.Connectable.Connected
					}
					inv.NICs = append(inv.NICs, NIC{
						Name:      label,
						MAC:       nic.MacAddress,
						Connected: connected,
					})
				}
			}
		}
	}
	if inv.GuestOS == "" && mvm.Summary.Config.GuestFullName != "" {
		inv.GuestOS = mvm.Summary.Config.GuestFullName
	}
	return inv, nil
}
