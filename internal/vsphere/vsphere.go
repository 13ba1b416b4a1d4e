// Package vsphere provides the narrow operation surface the bridge needs
// against a vCenter: power, boot order, CD-ROM media, and read-only
// inventory, addressed by VM inventory name.
//
// Backend is the raw operation set; the govmomi implementation lives in
// client.go and a deterministic in-memory implementation for tests lives in
// fake.go. Adapter wraps a Backend with the retry, timeout, and per-VM
// serialization policy the protocol handlers rely on.
package vsphere

import (
	"context"
)

// PowerState is the bridge's view of a VM power state.
type PowerState string

const (
	PowerOn      PowerState = "On"
	PowerOff     PowerState = "Off"
	PowerUnknown PowerState = "Unknown"
)

// BootDevice is a device class in a VM boot order.
type BootDevice string

const (
	BootDisk    BootDevice = "Disk"
	BootCdrom   BootDevice = "Cd"
	BootNetwork BootDevice = "Network"
)

// ISORef names an ISO image on a datastore.
type ISORef struct {
	Datastore string
	Path      string
}

// NIC is one virtual ethernet card from the VM inventory.
type NIC struct {
	Name      string
	MAC       string
	Connected bool
}

// Disk is one virtual disk from the VM inventory.
type Disk struct {
	Label         string
	CapacityBytes int64
}

// Inventory is a point-in-time snapshot of a VM's hardware summary.
type Inventory struct {
	NumCPU   int32
	MemoryMB int32
	GuestOS  string
	NICs     []NIC
	Disks    []Disk
}

// Backend is the raw vCenter operation set. All operations are idempotent
// with respect to observable state: powering on an already-on VM succeeds,
// unmounting with nothing mounted succeeds.
type Backend interface {
	PowerOn(ctx context.Context, name string) error
	PowerOff(ctx context.Context, name string, force bool) error
	Reset(ctx context.Context, name string) error
	ShutdownGuest(ctx context.Context, name string) error
	RebootGuest(ctx context.Context, name string) error
	PowerState(ctx context.Context, name string) (PowerState, error)
	SetBootOrder(ctx context.Context, name string, devices []BootDevice) error
	MountISO(ctx context.Context, name, datastore, isoPath string) error
	UnmountISO(ctx context.Context, name string) error
	Inventory(ctx context.Context, name string) (*Inventory, error)
	Close(ctx context.Context) error
}
