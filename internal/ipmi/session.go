package ipmi

import (
	"crypto/hmac"
	"sync"
	"time"
)

// Session lifetimes.
const (
	sessionIdleTimeout = 60 * time.Second
	reaperInterval     = 10 * time.Second
	replayWindow       = 8
)

type sessionState int

const (
	stateOpenAck sessionState = iota
	stateRAKP2Sent
	stateRAKP4Sent
	stateEstablished
)

// session is one RMCP+ session in the table. Fields are written during the
// handshake (single UDP loop) and read afterwards; the manager lock guards
// table membership and last-activity times, while sequence bookkeeping runs
// on the single UDP loop.
type session struct {
	remoteAddr       string
	managedSessionID uint32
	consoleSessionID uint32

	state     sessionState
	privilege byte

	authAlg      byte
	integrityAlg byte
	confAlg      byte

	username []byte
	password []byte

	consoleRandom [16]byte
	managedRandom [16]byte
	role          byte

	sik []byte
	k1  []byte
	k2  []byte

	outboundSeq  uint32
	lastInbound  uint32
	lastActive   time.Time
	closePending bool
}

// Privilege levels.
const (
	privUser          = 0x02
	privOperator      = 0x03
	privAdministrator = 0x04
)

func (s *session) authenticated() bool {
	return s.state == stateRAKP4Sent || s.state == stateEstablished
}

// checkReplay enforces the ±window sliding replay rule: a sequence number
// window or more behind the highest seen is discarded.
func (s *session) checkReplay(seq uint32) bool {
	if seq+replayWindow <= s.lastInbound {
		return false
	}
	if seq > s.lastInbound {
		s.lastInbound = seq
	}
	return true
}

func (s *session) nextOutbound() uint32 {
	s.outboundSeq++
	return s.outboundSeq
}

// verifyAuthCode checks a packet's HMAC-SHA1-96 trailer against K1.
func (s *session) verifyAuthCode(signed, code []byte) bool {
	if s.integrityAlg == integrityAlgNone {
		return true
	}
	if len(s.k1) == 0 {
		return false
	}
	want := hmacSHA1(s.k1, signed)[:sha1AuthCodeLen]
	return hmac.Equal(want, code)
}

// sessionManager owns the session table for one BMC.
type sessionManager struct {
	mu       sync.Mutex
	byID     map[uint32]*session // keyed by managed session ID
	nextBase uint32
}

func newSessionManager() *sessionManager {
	return &sessionManager{
		byID:     make(map[uint32]*session),
		nextBase: 0x0a000000,
	}
}

func (m *sessionManager) create(remoteAddr string, consoleSessionID uint32) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextBase
	for {
		id++
		if id == 0 {
			continue
		}
		if _, used := m.byID[id]; !used {
			break
		}
	}
	m.nextBase = id

	s := &session{
		remoteAddr:       remoteAddr,
		managedSessionID: id,
		consoleSessionID: consoleSessionID,
		state:            stateOpenAck,
		lastActive:       time.Now(),
	}
	m.byID[id] = s
	return s
}

func (m *sessionManager) get(id uint32) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.byID[id]
	if s != nil {
		s.lastActive = time.Now()
	}
	return s
}

func (m *sessionManager) remove(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

// reap drops sessions idle beyond the timeout and returns how many fell.
func (m *sessionManager) reap(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.byID {
		if now.Sub(s.lastActive) > sessionIdleTimeout {
			delete(m.byID, id)
			n++
		}
	}
	return n
}

func (m *sessionManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}
