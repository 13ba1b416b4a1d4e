// Package state holds the in-memory runtime state shared by the IPMI and
// Redfish listeners: cached per-VM power/boot/media state, the synthetic
// event log, and the asynchronous task registry. Nothing here is persisted;
// a restart regenerates everything deterministically.
package state

import (
	"sync"

	"github.com/vbridge/vbridge/internal/vsphere"
)

// BootTarget is a Redfish boot source override target. The IPMI boot flag
// selectors map onto the same set.
type BootTarget string

const (
	BootNone       BootTarget = "None"
	BootPxe        BootTarget = "Pxe"
	BootCd         BootTarget = "Cd"
	BootHdd        BootTarget = "Hdd"
	BootUsb        BootTarget = "Usb"
	BootFloppy     BootTarget = "Floppy"
	BootBiosSetup  BootTarget = "BiosSetup"
	BootUefiShell  BootTarget = "UefiShell"
	BootUefiHttp   BootTarget = "UefiHttp"
	BootUefiTarget BootTarget = "UefiTarget"
	BootDiags      BootTarget = "Diags"
	BootUtilities  BootTarget = "Utilities"
)

// ValidBootTarget reports whether t is a recognized override target.
func ValidBootTarget(t BootTarget) bool {
	switch t {
	case BootNone, BootPxe, BootCd, BootHdd, BootUsb, BootFloppy,
		BootBiosSetup, BootUefiShell, BootUefiHttp, BootUefiTarget,
		BootDiags, BootUtilities:
		return true
	}
	return false
}

// OverrideEnabled is the boot override persistence setting.
type OverrideEnabled string

const (
	OverrideDisabled   OverrideEnabled = "Disabled"
	OverrideOnce       OverrideEnabled = "Once"
	OverrideContinuous OverrideEnabled = "Continuous"
)

// BootOverride is the cached boot source override.
type BootOverride struct {
	Target  BootTarget
	Enabled OverrideEnabled
	Mode    string // "UEFI" or "Legacy"
}

// MediaDevice names a virtual media slot.
type MediaDevice string

const (
	MediaCD     MediaDevice = "CD"
	MediaFloppy MediaDevice = "Floppy"
)

// VirtualMedia is the cached state of one media slot.
type VirtualMedia struct {
	ImageURI       string
	Inserted       bool
	WriteProtected bool
}

// Volume is a simulated RAID volume created through the Redfish Storage
// resource. Volumes exist only in the cache.
type Volume struct {
	ID            string
	Name          string
	RAIDType      string
	CapacityBytes int64
}

// VM is the cached state of one managed VM. All access is through methods;
// the zero value is not usable, construct through NewVM.
type VM struct {
	name string

	mu           sync.Mutex
	power        vsphere.PowerState
	boot         BootOverride
	media        map[MediaDevice]VirtualMedia
	biosAttrs    map[string]any
	pendingBios  map[string]any
	secureBoot   bool
	assetTag     string
	volumes      []Volume
	volumeSeq    int
	etagRevision uint64
}

// DefaultBiosAttributes are the synthetic BIOS settings reported before any
// PATCH. Stable constants so inspection results are reproducible.
func DefaultBiosAttributes() map[string]any {
	return map[string]any{
		"BootMode":          "Uefi",
		"SecureBoot":        "Disabled",
		"Hyperthreading":    "Enabled",
		"SriovGlobalEnable": "Disabled",
		"BootOrderPolicy":   "RetryIndefinitely",
		"ProcVirtualization": "Enabled",
	}
}

// NewVM returns a VM cache entry with deterministic defaults: power Unknown
// until the first vSphere read, no boot override, both media slots empty.
func NewVM(name string) *VM {
	return &VM{
		name:  name,
		power: vsphere.PowerUnknown,
		boot:  BootOverride{Target: BootNone, Enabled: OverrideDisabled, Mode: "UEFI"},
		media: map[MediaDevice]VirtualMedia{
			MediaCD:     {},
			MediaFloppy: {},
		},
		biosAttrs: DefaultBiosAttributes(),
	}
}

// Name returns the VM's stable identity (its vSphere inventory name).
func (v *VM) Name() string { return v.name }

// PowerState returns the cached power state.
func (v *VM) PowerState() vsphere.PowerState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.power
}

// SetPowerState records a freshly observed power state. A transition to On
// consumes a one-shot boot override.
func (v *VM) SetPowerState(s vsphere.PowerState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	wasOff := v.power != vsphere.PowerOn
	v.power = s
	if s == vsphere.PowerOn && wasOff && v.boot.Enabled == OverrideOnce {
		v.boot.Enabled = OverrideDisabled
		v.boot.Target = BootNone
		v.etagRevision++
	}
}

// ConsumeBootOnce clears a one-shot override. Called on restart-style
// power operations where the VM never passes through Off in the cache.
func (v *VM) ConsumeBootOnce() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.boot.Enabled == OverrideOnce {
		v.boot.Enabled = OverrideDisabled
		v.boot.Target = BootNone
		v.etagRevision++
	}
}

// BootOverride returns the cached override.
func (v *VM) BootOverride() BootOverride {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.boot
}

// SetBootOverride replaces the cached override.
func (v *VM) SetBootOverride(b BootOverride) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.boot = b
	v.etagRevision++
}

// Media returns the cached state of one media slot.
func (v *VM) Media(dev MediaDevice) VirtualMedia {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.media[dev]
}

// SetMedia replaces the cached state of one media slot. Inserted with an
// empty image is rejected by callers before reaching here.
func (v *VM) SetMedia(dev MediaDevice, m VirtualMedia) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.media[dev] = m
	v.etagRevision++
}

// BiosAttributes returns a copy of the current BIOS attribute map.
func (v *VM) BiosAttributes() map[string]any {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]any, len(v.biosAttrs))
	for k, val := range v.biosAttrs {
		out[k] = val
	}
	return out
}

// MergeBiosAttributes merges a PATCH payload into the attribute map.
func (v *VM) MergeBiosAttributes(attrs map[string]any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k, val := range attrs {
		v.biosAttrs[k] = val
	}
	v.etagRevision++
}

// ResetBios restores the default attribute map.
func (v *VM) ResetBios() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.biosAttrs = DefaultBiosAttributes()
	v.etagRevision++
}

// SecureBootEnabled returns the cached secure boot flag.
func (v *VM) SecureBootEnabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.secureBoot
}

// SetSecureBoot updates the cached secure boot flag.
func (v *VM) SetSecureBoot(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secureBoot = enabled
	v.etagRevision++
}

// AssetTag returns the cached asset tag.
func (v *VM) AssetTag() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.assetTag
}

// SetAssetTag updates the cached asset tag.
func (v *VM) SetAssetTag(tag string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.assetTag = tag
	v.etagRevision++
}

// Volumes returns a copy of the simulated volume list.
func (v *VM) Volumes() []Volume {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Volume(nil), v.volumes...)
}

// NextVolumeID reserves an identifier for a volume about to be created.
func (v *VM) NextVolumeID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.volumeSeq++
	return volumeID(v.volumeSeq)
}

// AddVolume appends a volume; called when its creation task completes.
func (v *VM) AddVolume(vol Volume) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.volumes = append(v.volumes, vol)
	v.etagRevision++
}

// RemoveVolume deletes a volume by ID; called when its deletion task
// completes. Removing a missing volume is a no-op.
func (v *VM) RemoveVolume(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, vol := range v.volumes {
		if vol.ID == id {
			v.volumes = append(v.volumes[:i], v.volumes[i+1:]...)
			v.etagRevision++
			return
		}
	}
}

// HasVolume reports whether a volume with id exists.
func (v *VM) HasVolume(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, vol := range v.volumes {
		if vol.ID == id {
			return true
		}
	}
	return false
}

// ETag returns a weak entity tag derived from the mutation counter.
func (v *VM) ETag() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return etagFor(v.etagRevision)
}

// Registry is the set of managed VMs, built once at startup and read-only
// afterwards.
type Registry struct {
	vms  map[string]*VM
	list []string
}

// NewRegistry builds the registry from the configured VM names.
func NewRegistry(names []string) *Registry {
	r := &Registry{vms: make(map[string]*VM, len(names))}
	for _, name := range names {
		if _, dup := r.vms[name]; dup {
			continue
		}
		r.vms[name] = NewVM(name)
		r.list = append(r.list, name)
	}
	return r
}

// Get returns the cache entry for name, or nil.
func (r *Registry) Get(name string) *VM {
	return r.vms[name]
}

// Names returns the VM names in configuration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.list...)
}
