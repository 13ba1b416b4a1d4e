// Package ipmi implements the IPMI v2.0 / RMCP+ side of the bridge: UDP
// framing, the RAKP authentication handshake, per-session packet integrity
// and confidentiality, and the command subset a bare-metal orchestrator
// exercises during inspection and provisioning.
package ipmi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// RMCP envelope constants.
const (
	rmcpVersion1    = 0x06
	rmcpSeqNoAck    = 0xFF
	rmcpClassIPMI   = 0x07
	rmcpHeaderSize  = 4
	maxDatagramSize = 1024
)

// Session wrapper authentication/format types.
const (
	authTypeNone  = 0x00 // IPMI 1.5 wrapper, unauthenticated
	authTypeRMCPP = 0x06 // IPMI 2.0 / RMCP+ wrapper
)

// RMCP+ payload types.
const (
	payloadIPMI            = 0x00
	payloadOpenSessionReq  = 0x10
	payloadOpenSessionResp = 0x11
	payloadRAKP1           = 0x12
	payloadRAKP2           = 0x13
	payloadRAKP3           = 0x14
	payloadRAKP4           = 0x15

	payloadEncryptedBit     = 0x80
	payloadAuthenticatedBit = 0x40
	payloadTypeMask         = 0x3F
)

var (
	errShortPacket  = errors.New("short packet")
	errNotIPMIClass = errors.New("not an IPMI class RMCP message")
)

// wirePacket is a decoded inbound datagram before session processing.
type wirePacket struct {
	authType      uint8
	payloadType   uint8 // masked type bits
	encrypted     bool
	authenticated bool
	sessionID     uint32
	sequence      uint32
	payload       []byte // still encrypted if encrypted is set
	authCode      []byte // trailer HMAC when authenticated
	signedRange   []byte // bytes covered by the integrity check
}

// decodePacket validates the RMCP envelope and splits the session wrapper.
func decodePacket(buf []byte) (*wirePacket, error) {
	if len(buf) < rmcpHeaderSize+1 {
		return nil, errShortPacket
	}
	if buf[0] != rmcpVersion1 || buf[3] != rmcpClassIPMI {
		return nil, errNotIPMIClass
	}
	body := buf[rmcpHeaderSize:]

	switch body[0] {
	case authTypeNone:
		return decodeV15(body)
	case authTypeRMCPP:
		return decodeV20(body)
	default:
		return nil, fmt.Errorf("unsupported session auth type %#x", body[0])
	}
}

// decodeV15 parses the IPMI 1.5 wrapper used for pre-session discovery
// commands (Get Channel Authentication Capabilities).
func decodeV15(body []byte) (*wirePacket, error) {
	// authType(1) seq(4) sessionID(4) msgLen(1)
	if len(body) < 10 {
		return nil, errShortPacket
	}
	msgLen := int(body[9])
	if len(body) < 10+msgLen {
		return nil, errShortPacket
	}
	return &wirePacket{
		authType:  authTypeNone,
		sessionID: binary.LittleEndian.Uint32(body[5:9]),
		sequence:  binary.LittleEndian.Uint32(body[1:5]),
		payload:   body[10 : 10+msgLen],
	}, nil
}

// decodeV20 parses the RMCP+ wrapper. The integrity trailer, when present,
// is carved off but not verified here; the session layer owns key lookup.
func decodeV20(body []byte) (*wirePacket, error) {
	// authType(1) payloadType(1) sessionID(4) seq(4) payloadLen(2)
	if len(body) < 12 {
		return nil, errShortPacket
	}
	pt := body[1]
	payloadLen := int(binary.LittleEndian.Uint16(body[10:12]))
	if len(body) < 12+payloadLen {
		return nil, errShortPacket
	}

	p := &wirePacket{
		authType:      authTypeRMCPP,
		payloadType:   pt & payloadTypeMask,
		encrypted:     pt&payloadEncryptedBit != 0,
		authenticated: pt&payloadAuthenticatedBit != 0,
		sessionID:     binary.LittleEndian.Uint32(body[2:6]),
		sequence:      binary.LittleEndian.Uint32(body[6:10]),
		payload:       body[12 : 12+payloadLen],
	}

	if p.authenticated {
		// Trailer: pad(0xFF)* padLen(1) nextHeader(1) authCode(12).
		trailer := body[12+payloadLen:]
		if len(trailer) < sha1AuthCodeLen+2 {
			return nil, errShortPacket
		}
		p.authCode = trailer[len(trailer)-sha1AuthCodeLen:]
		p.signedRange = body[:len(body)-sha1AuthCodeLen]
	}
	return p, nil
}

// encodeV15 wraps an IPMB response in the 1.5 sessionless format.
func encodeV15(payload []byte) []byte {
	out := make([]byte, 0, rmcpHeaderSize+10+len(payload))
	out = append(out, rmcpVersion1, 0x00, rmcpSeqNoAck, rmcpClassIPMI)
	out = append(out, authTypeNone)
	out = append(out, 0, 0, 0, 0) // sequence
	out = append(out, 0, 0, 0, 0) // session id
	out = append(out, byte(len(payload)))
	out = append(out, payload...)
	return out
}

// encodeV20 wraps a payload in the RMCP+ format. When k1 is non-nil the
// packet is authenticated: an integrity pad, pad length, next-header byte,
// and an HMAC-SHA1-96 auth code are appended. Encryption, when negotiated,
// is applied by the caller before this point.
func encodeV20(payloadType uint8, encrypted bool, sessionID, seq uint32, payload, k1 []byte) []byte {
	pt := payloadType
	if encrypted {
		pt |= payloadEncryptedBit
	}
	if k1 != nil {
		pt |= payloadAuthenticatedBit
	}

	out := make([]byte, 0, rmcpHeaderSize+12+len(payload)+24)
	out = append(out, rmcpVersion1, 0x00, rmcpSeqNoAck, rmcpClassIPMI)
	out = append(out, authTypeRMCPP, pt)
	out = binary.LittleEndian.AppendUint32(out, sessionID)
	out = binary.LittleEndian.AppendUint32(out, seq)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(payload)))
	out = append(out, payload...)

	if k1 == nil {
		return out
	}

	// Pad the signed range (auth type byte through next-header byte) to a
	// multiple of four.
	signedLen := len(out) - rmcpHeaderSize + 2 // + padLen + nextHeader
	pad := (4 - signedLen%4) % 4
	for i := 0; i < pad; i++ {
		out = append(out, 0xFF)
	}
	out = append(out, byte(pad), 0x07)
	mac := hmacSHA1(k1, out[rmcpHeaderSize:])
	out = append(out, mac[:sha1AuthCodeLen]...)
	return out
}
