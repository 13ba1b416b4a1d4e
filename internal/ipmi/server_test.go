package ipmi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vbridge/vbridge/internal/logging"
	"github.com/vbridge/vbridge/internal/state"
	"github.com/vbridge/vbridge/internal/vsphere"
)

type testBMC struct {
	server  *Server
	backend *vsphere.FakeBackend
	vm      *state.VM
	cancel  context.CancelFunc
}

func newTestBMC(t *testing.T) *testBMC {
	t.Helper()
	backend := vsphere.NewFakeBackend()
	backend.AddVM("worker-1")

	entry := logrus.NewEntry(logging.Discard())

	vm := state.NewVM("worker-1")
	events := state.NewEventLog(time.Now().UTC())

	server, err := NewServer(Options{
		VMName:  "worker-1",
		Addr:    "127.0.0.1:0",
		Users:   map[string]string{"admin": "password"},
		Adapter: vsphere.NewAdapter(backend, entry),
		VM:      vm,
		Events:  events,
		Log:     entry,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = server.Run(ctx) }()
	t.Cleanup(cancel)
	return &testBMC{server: server, backend: backend, vm: vm, cancel: cancel}
}

// console is a minimal RMCP+ client used to exercise the server end to end.
type console struct {
	t    *testing.T
	conn *net.UDPConn

	consoleSessionID uint32
	managedSessionID uint32
	rc               [16]byte
	rm               [16]byte
	guid             [16]byte
	sik              []byte
	k1               []byte
	seq              uint32
	rqSeq            byte
}

func dialConsole(t *testing.T, bmc *testBMC) *console {
	t.Helper()
	conn, err := net.DialUDP("udp4", nil, bmc.server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &console{t: t, conn: conn, consoleSessionID: 0x01020304}
}

func (c *console) exchange(out []byte) []byte {
	c.t.Helper()
	if _, err := c.conn.Write(out); err != nil {
		c.t.Fatalf("write: %v", err)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, maxDatagramSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	return buf[:n]
}

// sendExpectSilence verifies the server drops a packet without answering.
func (c *console) sendExpectSilence(out []byte) {
	c.t.Helper()
	if _, err := c.conn.Write(out); err != nil {
		c.t.Fatalf("write: %v", err)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, maxDatagramSize)
	if n, err := c.conn.Read(buf); err == nil {
		c.t.Fatalf("expected silence, got %d bytes", n)
	}
}

func (c *console) openSession(integrity, confidentiality byte) byte {
	c.t.Helper()
	payload := []byte{0x01, 0x00, 0x00, 0x00}
	payload = appendUint32LE(payload, c.consoleSessionID)
	payload = append(payload, 0x00, 0x00, 0x00, 0x08, authAlgRAKPHMACSHA1, 0x00, 0x00, 0x00)
	payload = append(payload, 0x01, 0x00, 0x00, 0x08, integrity, 0x00, 0x00, 0x00)
	payload = append(payload, 0x02, 0x00, 0x00, 0x08, confidentiality, 0x00, 0x00, 0x00)

	resp := c.exchange(encodeV20(payloadOpenSessionReq, false, 0, 0, payload, nil))
	pkt, err := decodePacket(resp)
	if err != nil {
		c.t.Fatalf("decode open session response: %v", err)
	}
	if pkt.payloadType != payloadOpenSessionResp {
		c.t.Fatalf("payload type = %#x", pkt.payloadType)
	}
	if status := pkt.payload[1]; status != statusOK {
		return status
	}
	c.managedSessionID = binary.LittleEndian.Uint32(pkt.payload[8:12])
	return statusOK
}

func (c *console) rakp(username, password string) byte {
	c.t.Helper()
	copy(c.rc[:], bytes.Repeat([]byte{0xA5}, 16))

	r1 := []byte{0x02, 0x00, 0x00, 0x00}
	r1 = appendUint32LE(r1, c.managedSessionID)
	r1 = append(r1, c.rc[:]...)
	r1 = append(r1, 0x14, 0x00, 0x00, byte(len(username)))
	r1 = append(r1, username...)

	resp := c.exchange(encodeV20(payloadRAKP1, false, 0, 0, r1, nil))
	pkt, err := decodePacket(resp)
	if err != nil {
		c.t.Fatalf("decode rakp2: %v", err)
	}
	if pkt.payloadType != payloadRAKP2 {
		c.t.Fatalf("payload type = %#x, want RAKP2", pkt.payloadType)
	}
	if status := pkt.payload[1]; status != statusOK {
		return status
	}
	copy(c.rm[:], pkt.payload[8:24])
	copy(c.guid[:], pkt.payload[24:40])

	want := rakp2AuthCode([]byte(password), c.consoleSessionID, c.managedSessionID,
		c.rc[:], c.rm[:], c.guid[:], 0x14, []byte(username))
	if !hmac.Equal(want, pkt.payload[40:]) {
		c.t.Fatal("server RAKP2 auth code does not verify against the shared password")
	}

	r3 := []byte{0x03, 0x00, 0x00, 0x00}
	r3 = appendUint32LE(r3, c.managedSessionID)
	r3 = append(r3, rakp3AuthCode([]byte(password), c.rm[:], c.consoleSessionID, 0x14, []byte(username))...)

	resp = c.exchange(encodeV20(payloadRAKP3, false, 0, 0, r3, nil))
	pkt, err = decodePacket(resp)
	if err != nil {
		c.t.Fatalf("decode rakp4: %v", err)
	}
	if pkt.payloadType != payloadRAKP4 {
		c.t.Fatalf("payload type = %#x, want RAKP4", pkt.payloadType)
	}
	if status := pkt.payload[1]; status != statusOK {
		return status
	}

	c.sik = deriveSIK([]byte(password), c.rc[:], c.rm[:], 0x14, []byte(username))
	c.k1 = deriveK(c.sik, 0x01)
	wantICV := rakp4ICV(c.sik, c.rc[:], c.managedSessionID, c.guid[:])
	if !hmac.Equal(wantICV, pkt.payload[8:]) {
		c.t.Fatal("RAKP4 integrity check value does not verify")
	}
	return statusOK
}

// command sends one authenticated IPMI command and returns completion code
// and response data.
func (c *console) command(netFn, cmd byte, data []byte) (byte, []byte) {
	c.t.Helper()
	c.seq++
	c.rqSeq++
	frame := consoleIPMBRequest(netFn, cmd, c.rqSeq, data)
	raw := c.exchange(encodeV20(payloadIPMI, false, c.managedSessionID, c.seq, frame, c.k1))

	pkt, err := decodePacket(raw)
	if err != nil {
		c.t.Fatalf("decode response: %v", err)
	}
	if pkt.sessionID != c.consoleSessionID {
		c.t.Fatalf("response session id = %#x, want console id %#x", pkt.sessionID, c.consoleSessionID)
	}
	if !pkt.authenticated || !hmac.Equal(hmacSHA1(c.k1, pkt.signedRange)[:sha1AuthCodeLen], pkt.authCode) {
		c.t.Fatal("response integrity check failed")
	}
	msg := pkt.payload
	if len(msg) < 8 {
		c.t.Fatalf("short ipmb response: % x", msg)
	}
	return msg[6], msg[7 : len(msg)-1]
}

func establishSession(t *testing.T, bmc *testBMC) *console {
	t.Helper()
	c := dialConsole(t, bmc)
	if status := c.openSession(integrityAlgHMACSHA196, confAlgNone); status != statusOK {
		t.Fatalf("open session status = %#x", status)
	}
	if status := c.rakp("admin", "password"); status != statusOK {
		t.Fatalf("rakp status = %#x", status)
	}
	return c
}

func TestSessionlessGetChannelAuthCaps(t *testing.T) {
	bmc := newTestBMC(t)
	c := dialConsole(t, bmc)

	payload := consoleIPMBRequest(netFnApp, cmdGetChannelAuthCaps, 0, []byte{0x0E, 0x04})
	resp := c.exchange(encodeV15(payload))

	pkt, err := decodePacket(resp)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pkt.payload[6] != ccOK {
		t.Fatalf("completion = %#x", pkt.payload[6])
	}
	if pkt.payload[8]&0x80 == 0 {
		t.Fatal("IPMI 2.0 extended capabilities bit not advertised")
	}
}

func TestSessionlessOtherCommandsDropped(t *testing.T) {
	bmc := newTestBMC(t)
	c := dialConsole(t, bmc)

	// Chassis Control without a session must be silently discarded.
	payload := consoleIPMBRequest(netFnChassis, cmdChassisControl, 0, []byte{0x01})
	c.sendExpectSilence(encodeV15(payload))
}

func TestFullHandshakeAndPowerCycle(t *testing.T) {
	bmc := newTestBMC(t)
	c := establishSession(t, bmc)

	cc, data := c.command(netFnApp, cmdGetDeviceID, nil)
	if cc != ccOK {
		t.Fatalf("get device id completion = %#x", cc)
	}
	if data[4] != 0x02 {
		t.Fatalf("ipmi version byte = %#x, want 2.0", data[4])
	}

	// Power up.
	cc, _ = c.command(netFnChassis, cmdChassisControl, []byte{chassisControlPowerUp})
	if cc != ccOK {
		t.Fatalf("chassis control completion = %#x", cc)
	}
	waitForPower(t, bmc.backend, vsphere.PowerOn)

	cc, data = c.command(netFnChassis, cmdGetChassisStatus, nil)
	if cc != ccOK || data[0]&0x01 != 1 {
		t.Fatalf("chassis status = %#x % x, want power on", cc, data)
	}

	// Power down.
	cc, _ = c.command(netFnChassis, cmdChassisControl, []byte{chassisControlPowerDown})
	if cc != ccOK {
		t.Fatalf("chassis control completion = %#x", cc)
	}
	waitForPower(t, bmc.backend, vsphere.PowerOff)

	cc, data = c.command(netFnChassis, cmdGetChassisStatus, nil)
	if cc != ccOK || data[0]&0x01 != 0 {
		t.Fatalf("chassis status = %#x % x, want power off", cc, data)
	}
}

func waitForPower(t *testing.T, backend *vsphere.FakeBackend, want vsphere.PowerState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if backend.PowerStateOf("worker-1") == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("backend never reached power state %v", want)
}

func TestBootOptionRoundTrip(t *testing.T) {
	bmc := newTestBMC(t)
	c := establishSession(t, bmc)

	// Set boot flags: valid, once, UEFI, PXE.
	set := []byte{0x05, 0x80 | 0x20, bootSelectorPxe << 2, 0x00, 0x00, 0x00}
	cc, _ := c.command(netFnChassis, cmdSetSystemBootOpts, set)
	if cc != ccOK {
		t.Fatalf("set boot options completion = %#x", cc)
	}

	cc, data := c.command(netFnChassis, cmdGetSystemBootOpts, []byte{0x05, 0x00, 0x00})
	if cc != ccOK {
		t.Fatalf("get boot options completion = %#x", cc)
	}
	if data[1] != 0x05 {
		t.Fatalf("parameter selector = %#x", data[1])
	}
	if data[2]&0x80 == 0 {
		t.Fatal("boot flags valid bit missing")
	}
	if sel := (data[3] >> 2) & 0x0F; sel != bootSelectorPxe {
		t.Fatalf("boot selector = %#x, want PXE", sel)
	}

	if got := bmc.vm.BootOverride(); got.Target != state.BootPxe || got.Enabled != state.OverrideOnce {
		t.Fatalf("cached override = %+v", got)
	}

	// Unsupported selector.
	bad := []byte{0x05, 0x80, 0x07 << 2, 0x00, 0x00, 0x00}
	cc, _ = c.command(netFnChassis, cmdSetSystemBootOpts, bad)
	if cc != ccInvalidDataField {
		t.Fatalf("bad selector completion = %#x, want 0xCC", cc)
	}
}

func TestUnknownCommandCompletion(t *testing.T) {
	bmc := newTestBMC(t)
	c := establishSession(t, bmc)

	cc, _ := c.command(netFnApp, 0x42, nil)
	if cc != ccInvalidCommand {
		t.Fatalf("completion = %#x, want 0xC1", cc)
	}
}

func TestSELReadThroughIPMI(t *testing.T) {
	bmc := newTestBMC(t)
	c := establishSession(t, bmc)

	cc, data := c.command(netFnStorage, cmdGetSELInfo, nil)
	if cc != ccOK {
		t.Fatalf("sel info completion = %#x", cc)
	}
	if entries := binary.LittleEndian.Uint16(data[1:3]); entries == 0 {
		t.Fatal("seeded SEL reports zero entries")
	}

	cc, data = c.command(netFnStorage, cmdGetSELEntry, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0xFF})
	if cc != ccOK {
		t.Fatalf("sel entry completion = %#x", cc)
	}
	if data[4] != 0x02 {
		t.Fatalf("record type = %#x, want standard event record", data[4])
	}
}

func TestReplayRejection(t *testing.T) {
	bmc := newTestBMC(t)
	c := establishSession(t, bmc)

	// Advance the sequence well past the window.
	for i := 0; i < 12; i++ {
		if cc, _ := c.command(netFnApp, cmdGetDeviceID, nil); cc != ccOK {
			t.Fatalf("command %d failed", i)
		}
	}

	// Replay an old sequence number: must be discarded with no response.
	frame := consoleIPMBRequest(netFnApp, cmdGetDeviceID, 0x3F, nil)
	old := encodeV20(payloadIPMI, false, c.managedSessionID, 1, frame, c.k1)
	c.sendExpectSilence(old)
}

func TestUnknownUserRejectedAtRAKP2(t *testing.T) {
	bmc := newTestBMC(t)
	c := dialConsole(t, bmc)

	if status := c.openSession(integrityAlgHMACSHA196, confAlgNone); status != statusOK {
		t.Fatalf("open session status = %#x", status)
	}
	status := c.rakp("attacker", "password")
	if status != statusUnauthorizedName {
		t.Fatalf("rakp status = %#x, want unauthorized name", status)
	}

	// The session is gone: an authenticated packet against it is dropped.
	frame := consoleIPMBRequest(netFnApp, cmdGetDeviceID, 1, nil)
	c.sendExpectSilence(encodeV20(payloadIPMI, false, c.managedSessionID, 1, frame, bytes.Repeat([]byte{0}, 20)))
}

func TestCloseSessionRemovesState(t *testing.T) {
	bmc := newTestBMC(t)
	c := establishSession(t, bmc)

	idBytes := appendUint32LE(nil, c.managedSessionID)
	cc, _ := c.command(netFnApp, cmdCloseSession, idBytes)
	if cc != ccOK {
		t.Fatalf("close session completion = %#x", cc)
	}

	// Further packets on the dead session are dropped.
	c.seq++
	frame := consoleIPMBRequest(netFnApp, cmdGetDeviceID, 9, nil)
	c.sendExpectSilence(encodeV20(payloadIPMI, false, c.managedSessionID, c.seq, frame, c.k1))

	if bmc.server.sessions.count() != 0 {
		t.Fatalf("session table size = %d, want 0", bmc.server.sessions.count())
	}
}

func TestBadOpenSessionAlgorithmRefused(t *testing.T) {
	bmc := newTestBMC(t)
	c := dialConsole(t, bmc)

	// MD5 (0x02) is not offered.
	payload := []byte{0x01, 0x00, 0x00, 0x00}
	payload = appendUint32LE(payload, c.consoleSessionID)
	payload = append(payload, 0x00, 0x00, 0x00, 0x08, 0x02, 0x00, 0x00, 0x00)
	payload = append(payload, 0x01, 0x00, 0x00, 0x08, integrityAlgHMACSHA196, 0x00, 0x00, 0x00)
	payload = append(payload, 0x02, 0x00, 0x00, 0x08, confAlgNone, 0x00, 0x00, 0x00)

	resp := c.exchange(encodeV20(payloadOpenSessionReq, false, 0, 0, payload, nil))
	pkt, err := decodePacket(resp)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pkt.payload[1] != statusInvalidAuthAlg {
		t.Fatalf("status = %#x, want invalid auth algorithm", pkt.payload[1])
	}
}
