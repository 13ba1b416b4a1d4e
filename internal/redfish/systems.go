package redfish

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vbridge/vbridge/internal/state"
	"github.com/vbridge/vbridge/internal/vsphere"
)

var bootTargets = []string{
	"None", "Pxe", "Cd", "Hdd", "Usb", "Floppy", "BiosSetup",
	"UefiShell", "UefiHttp", "UefiTarget", "Diags", "Utilities",
}

var resetTypes = []string{
	"On", "ForceOff", "GracefulShutdown", "GracefulRestart",
	"ForceRestart", "PushPowerButton", "PowerCycle",
}

func (s *Server) getSystemsCollection(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#ComputerSystemCollection.ComputerSystemCollection",
		OdataID:      "/redfish/v1/Systems",
		OdataType:    "#ComputerSystemCollection.ComputerSystemCollection",
		Name:         "Computer System Collection",
		MembersCount: 1,
		Members:      []Link{{OdataID: s.systemPath()}},
	})
}

func (s *Server) getSystem(w http.ResponseWriter, r *http.Request) {
	vm := s.vmFromPath(w, chi.URLParam(r, "systemID"))
	if vm == nil {
		return
	}

	power := s.refreshPower(r.Context())
	inv := s.inventory(r.Context())
	boot := vm.BootOverride()

	sys := ComputerSystem{
		OdataContext: "/redfish/v1/$metadata#ComputerSystem.ComputerSystem",
		OdataID:      s.systemPath(),
		OdataType:    "#ComputerSystem.v1_13_0.ComputerSystem",
		ID:           s.vmName,
		Name:         s.vmName,
		SystemType:   "Physical",
		AssetTag:     vm.AssetTag(),
		Manufacturer: "VMware",
		Model:        "VMware Virtual Platform",
		SerialNumber: "VMware-" + padVMHex(s.vmName),
		UUID:         "42384634-2938-2342-8820-" + padVMHex(s.vmName),
		PowerState:   power,
		Status:       statusOK(),
		Boot: Boot{
			BootSourceOverrideTarget:  string(boot.Target),
			BootSourceOverrideEnabled: string(boot.Enabled),
			BootSourceOverrideMode:    boot.Mode,
			AllowableValues:           bootTargets,
		},
		BiosVersion: "P89 v1.66",
		ProcessorSummary: ProcessorSummary{
			Count:  int(inv.NumCPU),
			Model:  "Intel(R) Xeon(R) CPU",
			Status: statusOK(),
		},
		MemorySummary: MemorySummary{
			TotalSystemMemoryGiB: float64(inv.MemoryMB) / 1024.0,
			Status:               statusOK(),
		},
		Processors:         Link{OdataID: s.systemPath() + "/Processors"},
		Memory:             Link{OdataID: s.systemPath() + "/Memory"},
		EthernetInterfaces: Link{OdataID: s.systemPath() + "/EthernetInterfaces"},
		Storage:            Link{OdataID: s.systemPath() + "/Storage"},
		Bios:               Link{OdataID: s.systemPath() + "/Bios"},
		SecureBoot:         Link{OdataID: s.systemPath() + "/SecureBoot"},
		LogServices:        Link{OdataID: s.managerPath() + "/LogServices"},
	}
	sys.Actions.Reset.Target = s.systemPath() + "/Actions/ComputerSystem.Reset"
	sys.Actions.Reset.AllowableValues = resetTypes
	sys.Links.ManagedBy = []Link{{OdataID: s.managerPath()}}
	sys.Links.Chassis = []Link{{OdataID: s.chassisPath()}}

	w.Header().Set("ETag", vm.ETag())
	s.writeJSON(w, http.StatusOK, sys)
}

// patchSystem accepts Boot override and AssetTag changes. Setting the boot
// target to Cd mounts the configured default ISO; Hdd and None eject it.
func (s *Server) patchSystem(w http.ResponseWriter, r *http.Request) {
	vm := s.vmFromPath(w, chi.URLParam(r, "systemID"))
	if vm == nil {
		return
	}

	var body struct {
		AssetTag *string `json:"AssetTag"`
		Boot     *struct {
			BootSourceOverrideTarget  *string `json:"BootSourceOverrideTarget"`
			BootSourceOverrideEnabled *string `json:"BootSourceOverrideEnabled"`
			BootSourceOverrideMode    *string `json:"BootSourceOverrideMode"`
		} `json:"Boot"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	if body.AssetTag != nil {
		vm.SetAssetTag(*body.AssetTag)
	}

	if body.Boot != nil {
		boot := vm.BootOverride()
		if t := body.Boot.BootSourceOverrideTarget; t != nil {
			target := state.BootTarget(*t)
			if !state.ValidBootTarget(target) {
				s.writeError(w, http.StatusBadRequest, "Base.1.0.PropertyValueNotInList",
					"Unsupported BootSourceOverrideTarget "+*t)
				return
			}
			boot.Target = target
		}
		if e := body.Boot.BootSourceOverrideEnabled; e != nil {
			switch state.OverrideEnabled(*e) {
			case state.OverrideDisabled, state.OverrideOnce, state.OverrideContinuous:
				boot.Enabled = state.OverrideEnabled(*e)
			default:
				s.writeError(w, http.StatusBadRequest, "Base.1.0.PropertyValueNotInList",
					"Unsupported BootSourceOverrideEnabled "+*e)
				return
			}
		}
		if m := body.Boot.BootSourceOverrideMode; m != nil {
			boot.Mode = *m
		}
		vm.SetBootOverride(boot)
		s.applyBootTarget(boot.Target)
	}

	w.Header().Set("ETag", vm.ETag())
	w.WriteHeader(http.StatusNoContent)
}

// applyBootTarget pushes the override to vSphere in the background: boot
// order for Pxe, Cd and Hdd, plus default ISO mount for Cd and eject for
// Hdd/None. Other targets change no boot order.
func (s *Server) applyBootTarget(target state.BootTarget) {
	var order []vsphere.BootDevice
	switch target {
	case state.BootPxe:
		order = []vsphere.BootDevice{vsphere.BootNetwork, vsphere.BootDisk, vsphere.BootCdrom}
	case state.BootCd:
		order = []vsphere.BootDevice{vsphere.BootCdrom, vsphere.BootDisk, vsphere.BootNetwork}
	case state.BootHdd:
		order = []vsphere.BootDevice{vsphere.BootDisk, vsphere.BootCdrom, vsphere.BootNetwork}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if order != nil {
			if err := s.adapter.SetBootOrder(ctx, s.vmName, order); err != nil {
				s.log.WithError(err).WithField("target", target).Warn("boot order change deferred")
			}
		}
		switch target {
		case state.BootCd:
			if s.defaultISO == nil {
				return
			}
			if err := s.adapter.MountISO(ctx, s.vmName, s.defaultISO.Datastore, s.defaultISO.Path); err != nil {
				s.log.WithError(err).Warn("default iso mount deferred")
				return
			}
			s.vm.SetMedia(state.MediaCD, state.VirtualMedia{
				ImageURI: "[" + s.defaultISO.Datastore + "] " + s.defaultISO.Path,
				Inserted: true,
			})
		case state.BootHdd, state.BootNone:
			if err := s.adapter.UnmountISO(ctx, s.vmName); err != nil {
				s.log.WithError(err).Warn("iso eject deferred")
				return
			}
			s.vm.SetMedia(state.MediaCD, state.VirtualMedia{})
		}
	}()
}

// postSystemReset maps ResetType onto the vSphere power operations. The
// operation itself runs through a task so a vCenter outage still yields an
// OK task with a warning; the response is immediate.
func (s *Server) postSystemReset(w http.ResponseWriter, r *http.Request) {
	vm := s.vmFromPath(w, chi.URLParam(r, "systemID"))
	if vm == nil {
		return
	}
	var body struct {
		ResetType string `json:"ResetType"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	var (
		op         func(ctx context.Context) error
		optimistic vsphere.PowerState
	)
	switch body.ResetType {
	case "On":
		op = func(ctx context.Context) error { return s.adapter.PowerOn(ctx, s.vmName) }
		optimistic = vsphere.PowerOn
	case "ForceOff":
		op = func(ctx context.Context) error { return s.adapter.PowerOff(ctx, s.vmName, true) }
		optimistic = vsphere.PowerOff
	case "GracefulShutdown":
		op = func(ctx context.Context) error { return s.adapter.ShutdownGuest(ctx, s.vmName) }
		optimistic = vsphere.PowerOff
	case "GracefulRestart":
		op = func(ctx context.Context) error { return s.adapter.RebootGuest(ctx, s.vmName) }
		optimistic = vsphere.PowerOn
	case "ForceRestart":
		op = func(ctx context.Context) error { return s.adapter.Reset(ctx, s.vmName) }
		optimistic = vsphere.PowerOn
	case "PushPowerButton":
		if vm.PowerState() == vsphere.PowerOn {
			op = func(ctx context.Context) error { return s.adapter.PowerOff(ctx, s.vmName, true) }
			optimistic = vsphere.PowerOff
		} else {
			op = func(ctx context.Context) error { return s.adapter.PowerOn(ctx, s.vmName) }
			optimistic = vsphere.PowerOn
		}
	case "PowerCycle":
		op = func(ctx context.Context) error {
			if err := s.adapter.PowerOff(ctx, s.vmName, true); err != nil {
				return err
			}
			return s.adapter.PowerOn(ctx, s.vmName)
		}
		optimistic = vsphere.PowerOn
	default:
		s.writeError(w, http.StatusBadRequest, "Base.1.0.ActionParameterNotSupported",
			"Unsupported ResetType "+body.ResetType)
		return
	}

	vm.SetPowerState(optimistic)
	if optimistic == vsphere.PowerOn {
		// Any transition that boots the system consumes a one-shot override.
		vm.ConsumeBootOnce()
	}
	s.tasks.Create(state.TaskOptions{
		Name:      "Reset Task",
		TargetURI: s.systemPath(),
		Rate:      state.RateGeneric,
		Action:    op,
	})
	s.events.Append(state.SeverityOK, "System reset requested: "+body.ResetType, "Redfish", time.Now().UTC())
	s.subs.notify("Alert", "System reset requested: "+body.ResetType, s.systemPath())

	w.WriteHeader(http.StatusNoContent)
}
