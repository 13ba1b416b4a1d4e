package ipmi

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vbridge/vbridge/internal/state"
	"github.com/vbridge/vbridge/internal/vsphere"
)

// powerOpTimeout bounds a background power operation including retries.
const powerOpTimeout = 2 * time.Minute

// Stats receives listener events; the daemon wires a Prometheus
// implementation, tests use the default no-op.
type Stats interface {
	PacketIn()
	PacketOut()
	PacketDropped()
	SessionOpened()
	SessionClosed()
}

type nopStats struct{}

func (nopStats) PacketIn()      {}
func (nopStats) PacketOut()     {}
func (nopStats) PacketDropped() {}
func (nopStats) SessionOpened() {}
func (nopStats) SessionClosed() {}

// Options configure one BMC listener.
type Options struct {
	VMName     string
	Addr       string // host:port, UDP4
	Users      map[string]string
	DefaultISO *vsphere.ISORef
	Adapter    *vsphere.Adapter
	VM         *state.VM
	Events     *state.EventLog
	Log        *logrus.Entry
	Stats      Stats
}

// Server is one per-VM IPMI BMC endpoint: a UDP listener, a session table,
// and the command dispatcher bound to that VM's cache and adapter.
type Server struct {
	vmName     string
	users      map[string]string
	defaultISO *vsphere.ISORef

	adapter *vsphere.Adapter
	vm      *state.VM
	events  *state.EventLog
	log     *logrus.Entry
	stats   Stats

	conn     *net.UDPConn
	sessions *sessionManager
	guid     [16]byte
}

// NewServer binds the UDP socket immediately so port conflicts surface at
// startup.
func NewServer(opts Options) (*Server, error) {
	addr, err := net.ResolveUDPAddr("udp4", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", opts.Addr, err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", opts.Addr, err)
	}
	stats := opts.Stats
	if stats == nil {
		stats = nopStats{}
	}
	s := &Server{
		vmName:     opts.VMName,
		users:      opts.Users,
		defaultISO: opts.DefaultISO,
		adapter:    opts.Adapter,
		vm:         opts.VM,
		events:     opts.Events,
		log:        opts.Log,
		stats:      stats,
		conn:       conn,
		sessions:   newSessionManager(),
		guid:       md5.Sum([]byte("vbridge-bmc-" + opts.VMName)),
	}
	return s, nil
}

// LocalAddr reports the bound address; tests bind port 0.
func (s *Server) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Close releases the socket without serving; used when a sibling listener
// fails during startup.
func (s *Server) Close() error {
	return s.conn.Close()
}

// Run serves datagrams until ctx is canceled. Datagrams are processed in
// receive order, which gives per-session FIFO responses.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()
	go s.reapLoop(ctx)

	buf := make([]byte, maxDatagramSize)
	for {
		n, raddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("udp read: %w", err)
		}
		s.stats.PacketIn()
		resp := s.process(buf[:n], raddr)
		if resp != nil {
			if _, err := s.conn.WriteToUDP(resp, raddr); err != nil {
				s.log.WithError(err).Debug("udp write failed")
				continue
			}
			s.stats.PacketOut()
		}
	}
}

func (s *Server) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.sessions.reap(now); n > 0 {
				s.log.WithField("sessions", n).Debug("reaped idle ipmi sessions")
				for i := 0; i < n; i++ {
					s.stats.SessionClosed()
				}
			}
		}
	}
}

// process decodes one datagram and returns the response bytes, or nil when
// the packet is dropped.
func (s *Server) process(buf []byte, raddr *net.UDPAddr) []byte {
	pkt, err := decodePacket(buf)
	if err != nil {
		s.stats.PacketDropped()
		s.log.WithError(err).WithField("len", len(buf)).Debug("dropping malformed datagram")
		return nil
	}

	switch {
	case pkt.authType == authTypeNone:
		return s.processSessionless(pkt)
	case pkt.payloadType == payloadOpenSessionReq:
		return s.handleOpenSession(pkt, raddr)
	case pkt.payloadType == payloadRAKP1:
		return s.handleRAKP1(pkt)
	case pkt.payloadType == payloadRAKP3:
		return s.handleRAKP3(pkt)
	case pkt.payloadType == payloadIPMI:
		return s.processSessionPacket(pkt)
	default:
		s.stats.PacketDropped()
		return nil
	}
}

// processSessionless serves the pre-session discovery allow-list over the
// 1.5 wrapper. Everything else before authentication is discarded.
func (s *Server) processSessionless(pkt *wirePacket) []byte {
	msg, err := parseIPMB(pkt.payload)
	if err != nil {
		s.stats.PacketDropped()
		return nil
	}
	if !(msg.netFn == netFnApp && msg.cmd == cmdGetChannelAuthCaps) {
		s.stats.PacketDropped()
		s.log.WithFields(logrus.Fields{
			"netfn": fmt.Sprintf("%#x", msg.netFn),
			"cmd":   fmt.Sprintf("%#x", msg.cmd),
		}).Debug("rejecting sessionless command")
		return nil
	}
	cc, data := dispatch(s, nil, msg.netFn, msg.cmd, msg.data)
	return encodeV15(msg.buildResponse(cc, data))
}

// processSessionPacket verifies, decrypts, dispatches, and wraps one
// authenticated IPMI message.
func (s *Server) processSessionPacket(pkt *wirePacket) []byte {
	if pkt.sessionID == 0 {
		// RMCP+ sessionless IPMI messages get the same allow-list as 1.5.
		msg, err := parseIPMB(pkt.payload)
		if err != nil || !(msg.netFn == netFnApp && msg.cmd == cmdGetChannelAuthCaps) {
			s.stats.PacketDropped()
			return nil
		}
		cc, data := dispatch(s, nil, msg.netFn, msg.cmd, msg.data)
		return encodeV20(payloadIPMI, false, 0, 0, msg.buildResponse(cc, data), nil)
	}

	sess := s.sessions.get(pkt.sessionID)
	if sess == nil || !sess.authenticated() {
		s.stats.PacketDropped()
		return nil
	}
	if sess.integrityAlg != integrityAlgNone {
		if !pkt.authenticated || !sess.verifyAuthCode(pkt.signedRange, pkt.authCode) {
			s.stats.PacketDropped()
			s.log.Debug("dropping packet with bad auth code")
			return nil
		}
	}
	if !sess.checkReplay(pkt.sequence) {
		s.stats.PacketDropped()
		s.log.WithField("seq", pkt.sequence).Debug("dropping replayed packet")
		return nil
	}

	payload := pkt.payload
	if pkt.encrypted {
		if sess.confAlg != confAlgAESCBC128 {
			s.stats.PacketDropped()
			return nil
		}
		var err error
		payload, err = decryptAESCBC(sess.k2, payload)
		if err != nil {
			s.stats.PacketDropped()
			return nil
		}
	}

	msg, err := parseIPMB(payload)
	if err != nil {
		s.stats.PacketDropped()
		return nil
	}

	// First authenticated command completes the handshake.
	if sess.state == stateRAKP4Sent {
		sess.state = stateEstablished
	}

	cc, data := dispatch(s, sess, msg.netFn, msg.cmd, msg.data)
	resp := msg.buildResponse(cc, data)

	encrypted := sess.confAlg == confAlgAESCBC128
	if encrypted {
		resp, err = encryptAESCBC(sess.k2, resp)
		if err != nil {
			s.stats.PacketDropped()
			return nil
		}
	}
	var k1 []byte
	if sess.integrityAlg != integrityAlgNone {
		k1 = sess.k1
	}
	out := encodeV20(payloadIPMI, encrypted, sess.consoleSessionID, sess.nextOutbound(), resp, k1)

	if sess.closePending {
		s.sessions.remove(sess.managedSessionID)
		s.stats.SessionClosed()
		s.log.WithField("session", fmt.Sprintf("%#x", sess.managedSessionID)).Debug("session closed")
	}
	return out
}

// handleOpenSession negotiates the cipher suite and allocates a session.
func (s *Server) handleOpenSession(pkt *wirePacket, raddr *net.UDPAddr) []byte {
	p := pkt.payload
	if len(p) < 32 {
		s.stats.PacketDropped()
		return nil
	}
	tag := p[0]
	consoleSessionID := binary.LittleEndian.Uint32(p[4:8])

	authAlg, integrityAlg, confAlg := byte(0xFF), byte(0xFF), byte(0xFF)
	for off := 8; off+8 <= len(p); off += 8 {
		alg := p[off+4] & 0x3F
		switch p[off] {
		case 0x00:
			authAlg = alg
		case 0x01:
			integrityAlg = alg
		case 0x02:
			confAlg = alg
		}
	}

	status := byte(statusOK)
	switch {
	case authAlg != authAlgRAKPHMACSHA1:
		status = statusInvalidAuthAlg
	case integrityAlg != integrityAlgNone && integrityAlg != integrityAlgHMACSHA196:
		status = statusInvalidIntegAlg
	case confAlg != confAlgNone && confAlg != confAlgAESCBC128:
		status = statusInvalidConfAlg
	}
	if status != statusOK {
		out := []byte{tag, status, privAdministrator, 0x00}
		out = appendUint32LE(out, consoleSessionID)
		return encodeV20(payloadOpenSessionResp, false, 0, 0, out, nil)
	}

	sess := s.sessions.create(raddr.String(), consoleSessionID)
	sess.authAlg = authAlg
	sess.integrityAlg = integrityAlg
	sess.confAlg = confAlg
	sess.privilege = privAdministrator
	s.stats.SessionOpened()

	out := []byte{tag, statusOK, privAdministrator, 0x00}
	out = appendUint32LE(out, consoleSessionID)
	out = appendUint32LE(out, sess.managedSessionID)
	out = append(out, 0x00, 0x00, 0x00, 0x08, authAlg, 0x00, 0x00, 0x00)
	out = append(out, 0x01, 0x00, 0x00, 0x08, integrityAlg, 0x00, 0x00, 0x00)
	out = append(out, 0x02, 0x00, 0x00, 0x08, confAlg, 0x00, 0x00, 0x00)
	return encodeV20(payloadOpenSessionResp, false, 0, 0, out, nil)
}

// handleRAKP1 validates the user and answers with the managed-system
// random and the RAKP2 key exchange code. An unknown user is refused with
// the unauthorized-name status and the session is torn down.
func (s *Server) handleRAKP1(pkt *wirePacket) []byte {
	p := pkt.payload
	if len(p) < 28 {
		s.stats.PacketDropped()
		return nil
	}
	tag := p[0]
	managedSessionID := binary.LittleEndian.Uint32(p[4:8])

	sess := s.sessions.get(managedSessionID)
	if sess == nil || sess.state != stateOpenAck {
		s.stats.PacketDropped()
		return nil
	}

	copy(sess.consoleRandom[:], p[8:24])
	role := p[24]
	userLen := int(p[27])
	if len(p) < 28+userLen {
		s.stats.PacketDropped()
		return nil
	}
	username := string(p[28 : 28+userLen])

	password, ok := s.users[username]
	if !ok {
		s.sessions.remove(managedSessionID)
		s.stats.SessionClosed()
		s.log.WithField("user", username).Info("rejecting ipmi session for unknown user")
		out := []byte{tag, statusUnauthorizedName, 0x00, 0x00}
		out = appendUint32LE(out, sess.consoleSessionID)
		return encodeV20(payloadRAKP2, false, 0, 0, out, nil)
	}

	sess.role = role
	sess.username = []byte(username)
	sess.password = []byte(password)
	copy(sess.managedRandom[:], randomBytes(16))
	sess.state = stateRAKP2Sent

	out := []byte{tag, statusOK, 0x00, 0x00}
	out = appendUint32LE(out, sess.consoleSessionID)
	out = append(out, sess.managedRandom[:]...)
	out = append(out, s.guid[:]...)
	out = append(out, rakp2AuthCode(
		sess.password,
		sess.consoleSessionID, sess.managedSessionID,
		sess.consoleRandom[:], sess.managedRandom[:], s.guid[:],
		role, sess.username)...)
	return encodeV20(payloadRAKP2, false, 0, 0, out, nil)
}

// handleRAKP3 verifies the console's key exchange code, derives the session
// keys, and answers with RAKP4.
func (s *Server) handleRAKP3(pkt *wirePacket) []byte {
	p := pkt.payload
	if len(p) < 8 {
		s.stats.PacketDropped()
		return nil
	}
	tag, status := p[0], p[1]
	managedSessionID := binary.LittleEndian.Uint32(p[4:8])

	sess := s.sessions.get(managedSessionID)
	if sess == nil || sess.state != stateRAKP2Sent {
		s.stats.PacketDropped()
		return nil
	}
	if status != statusOK {
		// Console aborted after inspecting RAKP2.
		s.sessions.remove(managedSessionID)
		s.stats.SessionClosed()
		return nil
	}

	want := rakp3AuthCode(sess.password, sess.managedRandom[:], sess.consoleSessionID, sess.role, sess.username)
	if !hmac.Equal(want, p[8:]) {
		s.sessions.remove(managedSessionID)
		s.stats.SessionClosed()
		s.log.Info("rejecting ipmi session with bad RAKP3 integrity value")
		out := []byte{tag, statusInvalidICV, 0x00, 0x00}
		out = appendUint32LE(out, sess.consoleSessionID)
		return encodeV20(payloadRAKP4, false, 0, 0, out, nil)
	}

	sess.sik = deriveSIK(sess.password, sess.consoleRandom[:], sess.managedRandom[:], sess.role, sess.username)
	sess.k1 = deriveK(sess.sik, 0x01)
	sess.k2 = deriveK(sess.sik, 0x02)
	sess.state = stateRAKP4Sent

	out := []byte{tag, statusOK, 0x00, 0x00}
	out = appendUint32LE(out, sess.consoleSessionID)
	out = append(out, rakp4ICV(sess.sik, sess.consoleRandom[:], sess.managedSessionID, s.guid[:])...)
	return encodeV20(payloadRAKP4, false, 0, 0, out, nil)
}

// runPowerOp updates the cache optimistically and performs the vSphere
// operation in the background; the orchestrator's follow-up status poll
// observes the new state immediately and upstream failures never turn into
// IPMI errors.
func (s *Server) runPowerOp(name string, optimistic vsphere.PowerState, op func(ctx context.Context) error) {
	s.vm.SetPowerState(optimistic)
	if optimistic == vsphere.PowerOn {
		s.vm.ConsumeBootOnce()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), powerOpTimeout)
		defer cancel()
		if err := op(ctx); err != nil {
			s.log.WithError(err).WithField("op", name).Warn("power operation deferred")
			s.events.Append(state.SeverityWarning, "Upstream unavailable; operation deferred.", "BMC", time.Now().UTC())
			return
		}
		if ps, err := s.adapter.PowerState(ctx, s.vmName); err == nil {
			s.vm.SetPowerState(ps)
		}
		s.events.Append(state.SeverityOK, "Chassis "+name+" completed", "BMC", time.Now().UTC())
	}()
}

// applyBootTarget pushes a boot override down to the VM's boot order, and
// mounts the configured default ISO for CD boot.
func (s *Server) applyBootTarget(target state.BootTarget) {
	var order []vsphere.BootDevice
	switch target {
	case state.BootPxe:
		order = []vsphere.BootDevice{vsphere.BootNetwork, vsphere.BootDisk, vsphere.BootCdrom}
	case state.BootHdd:
		order = []vsphere.BootDevice{vsphere.BootDisk, vsphere.BootCdrom, vsphere.BootNetwork}
	case state.BootCd:
		order = []vsphere.BootDevice{vsphere.BootCdrom, vsphere.BootDisk, vsphere.BootNetwork}
	default:
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), powerOpTimeout)
		defer cancel()
		if err := s.adapter.SetBootOrder(ctx, s.vmName, order); err != nil {
			s.log.WithError(err).WithField("target", target).Warn("boot order change deferred")
		}
		if target == state.BootCd && s.defaultISO != nil {
			if err := s.adapter.MountISO(ctx, s.vmName, s.defaultISO.Datastore, s.defaultISO.Path); err != nil {
				s.log.WithError(err).Warn("default iso mount deferred")
				return
			}
			s.vm.SetMedia(state.MediaCD, state.VirtualMedia{
				ImageURI: fmt.Sprintf("[%s] %s", s.defaultISO.Datastore, s.defaultISO.Path),
				Inserted: true,
			})
		}
	}()
}
