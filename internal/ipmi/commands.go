package ipmi

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/vbridge/vbridge/internal/state"
	"github.com/vbridge/vbridge/internal/vsphere"
)

// Network function codes.
const (
	netFnChassis = 0x00
	netFnSensor  = 0x04
	netFnApp     = 0x06
	netFnStorage = 0x0A
	netFnGroup   = 0x2C
)

// Command numbers for the supported subset.
const (
	cmdGetDeviceID         = 0x01
	cmdGetChannelAuthCaps  = 0x38
	cmdSetSessionPrivilege = 0x3B
	cmdCloseSession        = 0x3C

	cmdGetChassisStatus   = 0x01
	cmdChassisControl     = 0x02
	cmdSetSystemBootOpts  = 0x08
	cmdGetSystemBootOpts  = 0x09

	cmdGetDeviceSDRInfo = 0x20
	cmdReserveDeviceSDR = 0x22
	cmdGetDeviceSDR     = 0x23
	cmdGetSensorReading = 0x2D

	cmdGetSELInfo  = 0x40
	cmdReserveSEL  = 0x42
	cmdGetSELEntry = 0x43

	cmdGetDCMICapabilities = 0x01
)

// Completion codes.
const (
	ccOK               = 0x00
	ccInvalidCommand   = 0xC1
	ccRequestDataLen   = 0xC7
	ccInvalidDataField = 0xCC
)

// dcmiGroupExtension prefixes every DCMI request and response.
const dcmiGroupExtension = 0xDC

// Chassis control sub-commands.
const (
	chassisControlPowerDown  = 0x00
	chassisControlPowerUp    = 0x01
	chassisControlPowerCycle = 0x02
	chassisControlHardReset  = 0x03
	chassisControlSoftOff    = 0x05
)

// powerReadTimeout bounds the synchronous chassis-status refresh so a
// vCenter outage cannot stall the UDP receive loop.
const powerReadTimeout = 3 * time.Second

type cmdKey struct {
	netFn byte
	cmd   byte
}

type cmdHandler func(s *Server, sess *session, data []byte) (byte, []byte)

// commandTable maps (NetFn, Cmd) to handlers. Unknown commands complete
// with 0xC1.
var commandTable = map[cmdKey]cmdHandler{
	{netFnApp, cmdGetDeviceID}:         handleGetDeviceID,
	{netFnApp, cmdGetChannelAuthCaps}:  handleGetChannelAuthCaps,
	{netFnApp, cmdSetSessionPrivilege}: handleSetSessionPrivilege,
	{netFnApp, cmdCloseSession}:        handleCloseSession,

	{netFnChassis, cmdGetChassisStatus}:  handleGetChassisStatus,
	{netFnChassis, cmdChassisControl}:    handleChassisControl,
	{netFnChassis, cmdSetSystemBootOpts}: handleSetSystemBootOptions,
	{netFnChassis, cmdGetSystemBootOpts}: handleGetSystemBootOptions,

	{netFnSensor, cmdGetDeviceSDRInfo}: handleGetDeviceSDRInfo,
	{netFnSensor, cmdReserveDeviceSDR}: handleReserveDeviceSDR,
	{netFnSensor, cmdGetDeviceSDR}:     handleNoRecord,
	{netFnSensor, cmdGetSensorReading}: handleNoRecord,

	{netFnStorage, cmdGetSELInfo}:  handleGetSELInfo,
	{netFnStorage, cmdReserveSEL}:  handleReserveSEL,
	{netFnStorage, cmdGetSELEntry}: handleGetSELEntry,

	{netFnGroup, cmdGetDCMICapabilities}: handleGetDCMICapabilities,
}

func dispatch(s *Server, sess *session, netFn, cmd byte, data []byte) (byte, []byte) {
	h, ok := commandTable[cmdKey{netFn, cmd}]
	if !ok {
		return ccInvalidCommand, nil
	}
	return h(s, sess, data)
}

// handleGetDeviceID reports a fixed IPMI 2.0 BMC identity. The firmware
// revision matches the 2.88 version string the Redfish manager reports.
func handleGetDeviceID(s *Server, _ *session, _ []byte) (byte, []byte) {
	return ccOK, []byte{
		0x20,             // device ID
		0x01,             // device revision
		0x02,             // firmware major
		0x88,             // firmware minor (BCD)
		0x02,             // IPMI 2.0
		0x84,             // device support: chassis, SEL
		0x00, 0x00, 0x00, // manufacturer ID
		0x00, 0x00, // product ID
		0x00, 0x00, 0x00, 0x00, // aux firmware revision
	}
}

// handleGetChannelAuthCaps advertises RAKP-HMAC-SHA1 over IPMI 2.0 only;
// no 1.5 authentication types are offered.
func handleGetChannelAuthCaps(s *Server, _ *session, data []byte) (byte, []byte) {
	if len(data) < 2 {
		return ccRequestDataLen, nil
	}
	return ccOK, []byte{
		0x01,       // channel number
		0x80,       // IPMI 2.0 extended data, no 1.5 auth types
		0x04,       // per-message authentication enabled
		0x02,       // IPMI 2.0 connections supported
		0x00, 0x00, 0x00, // OEM ID
		0x00, // OEM aux
	}
}

func handleSetSessionPrivilege(_ *Server, sess *session, data []byte) (byte, []byte) {
	if len(data) < 1 {
		return ccRequestDataLen, nil
	}
	requested := data[0] & 0x0F
	if requested == 0 {
		// No change, report current.
		if sess != nil {
			return ccOK, []byte{sess.privilege}
		}
		return ccOK, []byte{privAdministrator}
	}
	if requested > privAdministrator {
		requested = privAdministrator
	}
	if sess != nil {
		sess.privilege = requested
	}
	return ccOK, []byte{requested}
}

func handleCloseSession(_ *Server, sess *session, data []byte) (byte, []byte) {
	if len(data) < 4 {
		return ccRequestDataLen, nil
	}
	if sess == nil {
		return ccInvalidDataField, nil
	}
	if id := binary.LittleEndian.Uint32(data[:4]); id != sess.managedSessionID {
		return ccInvalidDataField, nil
	}
	// Removal happens after the response is wrapped; see server.go.
	sess.closePending = true
	return ccOK, nil
}

// handleGetChassisStatus maps the cached power state onto bit 0 of the
// current-power-state byte. The cache is refreshed synchronously under a
// short timeout; an unreachable vCenter falls back to the last observation.
func handleGetChassisStatus(s *Server, _ *session, _ []byte) (byte, []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), powerReadTimeout)
	defer cancel()
	if ps, err := s.adapter.PowerState(ctx, s.vmName); err == nil {
		s.vm.SetPowerState(ps)
	}

	var powerByte byte
	if s.vm.PowerState() == vsphere.PowerOn {
		powerByte |= 0x01
	}
	return ccOK, []byte{
		powerByte,
		0x00, // last power event
		0x00, // misc chassis state
	}
}

// handleChassisControl maps the control sub-command onto the matching
// vSphere power operation. The operation runs in the background and the
// cache is updated optimistically so the orchestrator's follow-up status
// poll converges quickly; upstream failures log and leave an event entry
// but never surface as an IPMI error.
func handleChassisControl(s *Server, _ *session, data []byte) (byte, []byte) {
	if len(data) < 1 {
		return ccRequestDataLen, nil
	}
	switch data[0] & 0x0F {
	case chassisControlPowerDown:
		s.runPowerOp("power down", vsphere.PowerOff, func(ctx context.Context) error {
			return s.adapter.PowerOff(ctx, s.vmName, true)
		})
	case chassisControlPowerUp:
		s.runPowerOp("power up", vsphere.PowerOn, func(ctx context.Context) error {
			return s.adapter.PowerOn(ctx, s.vmName)
		})
	case chassisControlPowerCycle:
		s.runPowerOp("power cycle", vsphere.PowerOn, func(ctx context.Context) error {
			if err := s.adapter.PowerOff(ctx, s.vmName, true); err != nil {
				return err
			}
			return s.adapter.PowerOn(ctx, s.vmName)
		})
	case chassisControlHardReset:
		s.runPowerOp("hard reset", vsphere.PowerOn, func(ctx context.Context) error {
			return s.adapter.Reset(ctx, s.vmName)
		})
	case chassisControlSoftOff:
		s.runPowerOp("soft off", vsphere.PowerOff, func(ctx context.Context) error {
			return s.adapter.ShutdownGuest(ctx, s.vmName)
		})
	default:
		return ccInvalidDataField, nil
	}
	return ccOK, nil
}

// Boot flag selector values from boot option parameter 5.
const (
	bootSelectorNone      = 0x00
	bootSelectorPxe       = 0x01
	bootSelectorHdd       = 0x02
	bootSelectorCd        = 0x05
	bootSelectorBiosSetup = 0x06
	bootSelectorFloppy    = 0x0F
)

func selectorToTarget(sel byte) (state.BootTarget, bool) {
	switch sel {
	case bootSelectorNone:
		return state.BootNone, true
	case bootSelectorPxe:
		return state.BootPxe, true
	case bootSelectorHdd:
		return state.BootHdd, true
	case bootSelectorCd:
		return state.BootCd, true
	case bootSelectorBiosSetup:
		return state.BootBiosSetup, true
	case bootSelectorFloppy:
		return state.BootFloppy, true
	default:
		return state.BootNone, false
	}
}

func targetToSelector(t state.BootTarget) byte {
	switch t {
	case state.BootPxe:
		return bootSelectorPxe
	case state.BootHdd:
		return bootSelectorHdd
	case state.BootCd:
		return bootSelectorCd
	case state.BootBiosSetup:
		return bootSelectorBiosSetup
	case state.BootFloppy:
		return bootSelectorFloppy
	default:
		return bootSelectorNone
	}
}

// handleSetSystemBootOptions decodes parameter 5 (boot flags) into the
// cached boot override and schedules the matching vSphere boot-order (and,
// for CD, default ISO mount) change. Other writable parameters are accepted
// and ignored the way a tolerant BMC treats boot-info acknowledgements.
func handleSetSystemBootOptions(s *Server, _ *session, data []byte) (byte, []byte) {
	if len(data) < 1 {
		return ccRequestDataLen, nil
	}
	param := data[0] & 0x7F
	if param != 0x05 {
		return ccOK, nil
	}
	if len(data) < 6 {
		return ccRequestDataLen, nil
	}

	data1, data2 := data[1], data[2]
	target, ok := selectorToTarget((data2 >> 2) & 0x0F)
	if !ok {
		return ccInvalidDataField, nil
	}

	enabled := state.OverrideDisabled
	if data1&0x80 != 0 {
		if data1&0x40 != 0 {
			enabled = state.OverrideContinuous
		} else {
			enabled = state.OverrideOnce
		}
	}
	mode := "Legacy"
	if data1&0x20 != 0 {
		mode = "UEFI"
	}

	s.vm.SetBootOverride(state.BootOverride{Target: target, Enabled: enabled, Mode: mode})
	s.applyBootTarget(target)
	return ccOK, nil
}

// handleGetSystemBootOptions returns the cached override as parameter 5;
// other parameters read back as zeroes.
func handleGetSystemBootOptions(s *Server, _ *session, data []byte) (byte, []byte) {
	if len(data) < 1 {
		return ccRequestDataLen, nil
	}
	param := data[0] & 0x7F
	if param != 0x05 {
		return ccOK, []byte{0x01, param, 0x00}
	}

	boot := s.vm.BootOverride()
	var data1 byte
	if boot.Enabled != state.OverrideDisabled {
		data1 |= 0x80
	}
	if boot.Enabled == state.OverrideContinuous {
		data1 |= 0x40
	}
	if boot.Mode == "UEFI" {
		data1 |= 0x20
	}
	data2 := targetToSelector(boot.Target) << 2

	return ccOK, []byte{0x01, 0x05, data1, data2, 0x00, 0x00, 0x00}
}

// The SDR repository is structurally valid but empty: reservation ID 1,
// zero records.
func handleGetDeviceSDRInfo(_ *Server, _ *session, _ []byte) (byte, []byte) {
	return ccOK, []byte{0x00, 0x01}
}

func handleReserveDeviceSDR(_ *Server, _ *session, _ []byte) (byte, []byte) {
	return ccOK, []byte{0x01, 0x00}
}

func handleNoRecord(_ *Server, _ *session, _ []byte) (byte, []byte) {
	return ccInvalidDataField, nil
}

func handleGetSELInfo(s *Server, _ *session, _ []byte) (byte, []byte) {
	entries := uint16(s.events.Len())
	resp := []byte{0x51} // SEL version 1.5 encoding
	resp = binary.LittleEndian.AppendUint16(resp, entries)
	resp = binary.LittleEndian.AppendUint16(resp, 0xFFFF) // free space
	resp = binary.LittleEndian.AppendUint32(resp, uint32(time.Now().Unix()))
	resp = binary.LittleEndian.AppendUint32(resp, 0)
	resp = append(resp, 0x02) // reserve SEL supported
	return ccOK, resp
}

func handleReserveSEL(_ *Server, _ *session, _ []byte) (byte, []byte) {
	return ccOK, []byte{0x01, 0x00}
}

// handleGetSELEntry formats one event-store entry as a 16-byte standard
// system event record.
func handleGetSELEntry(s *Server, _ *session, data []byte) (byte, []byte) {
	if len(data) < 6 {
		return ccRequestDataLen, nil
	}
	recordID := binary.LittleEndian.Uint16(data[2:4])

	entries := s.events.Entries()
	if len(entries) == 0 {
		return ccInvalidDataField, nil
	}

	idx := -1
	switch recordID {
	case 0x0000:
		idx = 0
	case 0xFFFF:
		idx = len(entries) - 1
	default:
		for i, e := range entries {
			if e.RecordID == recordID {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return ccInvalidDataField, nil
	}
	entry := entries[idx]

	nextID := uint16(0xFFFF)
	if idx+1 < len(entries) {
		nextID = entries[idx+1].RecordID
	}

	var severityData byte
	switch entry.Severity {
	case state.SeverityWarning:
		severityData = 0x01
	case state.SeverityCritical:
		severityData = 0x02
	}

	resp := binary.LittleEndian.AppendUint16(nil, nextID)
	resp = binary.LittleEndian.AppendUint16(resp, entry.RecordID)
	resp = append(resp, 0x02) // standard event record
	resp = binary.LittleEndian.AppendUint32(resp, uint32(entry.Timestamp.Unix()))
	resp = binary.LittleEndian.AppendUint16(resp, 0x0020) // generator: BMC
	resp = append(resp,
		0x04,         // event message format revision
		0x12,         // sensor type: system event
		0x01,         // sensor number
		0x6F,         // event dir/type: sensor-specific, assertion
		severityData, // event data 1
		0x00, 0x00,   // event data 2-3
	)
	return ccOK, resp
}

// handleGetDCMICapabilities advertises the DCMI mandatory capability set.
func handleGetDCMICapabilities(_ *Server, _ *session, data []byte) (byte, []byte) {
	if len(data) < 2 || data[0] != dcmiGroupExtension {
		return ccInvalidDataField, nil
	}
	param := data[1]
	resp := []byte{dcmiGroupExtension, 0x01, 0x05, 0x02} // DCMI 1.5, param rev 2
	switch param {
	case 0x01: // supported DCMI capabilities
		resp = append(resp, 0x00, 0x01, 0x07)
	case 0x02: // mandatory platform attributes
		resp = append(resp, 0x00, 0x00, 0x00, 0x00, 0x00)
	default:
		return ccInvalidDataField, nil
	}
	return ccOK, resp
}
