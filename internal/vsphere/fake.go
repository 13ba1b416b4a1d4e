// ABOUTME: This file provides a deterministic in-memory vSphere backend for
// tests. It implements Backend and simulates power, boot order, and media
// state per VM, with optional fault injection for outage scenarios.
package vsphere

import (
	"context"
	"fmt"
	"sync"
)

// FakeBackend implements Backend with in-memory state. Safe for concurrent
// use.
type FakeBackend struct {
	mu   sync.Mutex
	vms  map[string]*fakeVM
	fail error // when set, every operation returns this error

	// Call counters for assertions.
	Calls map[string]int
}

type fakeVM struct {
	name      string
	power     PowerState
	bootOrder []BootDevice
	iso       string // "[datastore] path", empty when ejected
	inventory Inventory
}

// NewFakeBackend returns a FakeBackend with no VMs.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		vms:   make(map[string]*fakeVM),
		Calls: make(map[string]int),
	}
}

// AddVM seeds a powered-off VM with a small plausible inventory.
func (b *FakeBackend) AddVM(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.vms[name]; ok {
		return
	}
	b.vms[name] = &fakeVM{
		name:  name,
		power: PowerOff,
		inventory: Inventory{
			NumCPU:   4,
			MemoryMB: 8192,
			GuestOS:  "Red Hat Enterprise Linux 9 (64-bit)",
			NICs: []NIC{
				{Name: "Network adapter 1", MAC: "00:50:56:9a:00:01", Connected: true},
			},
			Disks: []Disk{
				{Label: "Hard disk 1", CapacityBytes: 64 << 30},
			},
		},
	}
}

// SetFailure makes every subsequent operation fail with err; pass nil to
// restore normal behaviour. Used to simulate a vCenter outage.
func (b *FakeBackend) SetFailure(err error) {
	b.mu.Lock()
	b.fail = err
	b.mu.Unlock()
}

// PowerStateOf reports the fake's current power state for assertions.
func (b *FakeBackend) PowerStateOf(name string) PowerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if vm, ok := b.vms[name]; ok {
		return vm.power
	}
	return PowerUnknown
}

// MountedISO reports the currently attached ISO path, empty when ejected.
func (b *FakeBackend) MountedISO(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if vm, ok := b.vms[name]; ok {
		return vm.iso
	}
	return ""
}

// BootOrderOf reports the configured boot order.
func (b *FakeBackend) BootOrderOf(name string) []BootDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	if vm, ok := b.vms[name]; ok {
		return append([]BootDevice(nil), vm.bootOrder...)
	}
	return nil
}

func (b *FakeBackend) get(name, op string) (*fakeVM, error) {
	b.Calls[op]++
	if b.fail != nil {
		return nil, b.fail
	}
	vm, ok := b.vms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVMNotFound, name)
	}
	return vm, nil
}

func (b *FakeBackend) PowerOn(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.get(name, "power_on")
	if err != nil {
		return err
	}
	vm.power = PowerOn
	return nil
}

func (b *FakeBackend) PowerOff(_ context.Context, name string, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.get(name, "power_off")
	if err != nil {
		return err
	}
	vm.power = PowerOff
	return nil
}

func (b *FakeBackend) Reset(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.get(name, "reset")
	if err != nil {
		return err
	}
	vm.power = PowerOn
	return nil
}

func (b *FakeBackend) ShutdownGuest(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.get(name, "shutdown_guest")
	if err != nil {
		return err
	}
	vm.power = PowerOff
	return nil
}

func (b *FakeBackend) RebootGuest(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.get(name, "reboot_guest")
	if err != nil {
		return err
	}
	vm.power = PowerOn
	return nil
}

func (b *FakeBackend) PowerState(_ context.Context, name string) (PowerState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.get(name, "power_state")
	if err != nil {
		return PowerUnknown, err
	}
	return vm.power, nil
}

func (b *FakeBackend) SetBootOrder(_ context.Context, name string, devices []BootDevice) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.get(name, "set_boot_order")
	if err != nil {
		return err
	}
	vm.bootOrder = append([]BootDevice(nil), devices...)
	return nil
}

func (b *FakeBackend) MountISO(_ context.Context, name, datastore, isoPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.get(name, "mount_iso")
	if err != nil {
		return err
	}
	vm.iso = fmt.Sprintf("[%s] %s", datastore, isoPath)
	return nil
}

func (b *FakeBackend) UnmountISO(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.get(name, "unmount_iso")
	if err != nil {
		return err
	}
	vm.iso = ""
	return nil
}

func (b *FakeBackend) Inventory(_ context.Context, name string) (*Inventory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.get(name, "inventory")
	if err != nil {
		return nil, err
	}
	inv := vm.inventory
	inv.NICs = append([]NIC(nil), vm.inventory.NICs...)
	inv.Disks = append([]Disk(nil), vm.inventory.Disks...)
	return &inv, nil
}

func (b *FakeBackend) Close(context.Context) error { return nil }
