package ipmi

import (
	"bytes"
	"testing"
)

func consoleIPMBRequest(netFn, cmd, rqSeq byte, data []byte) []byte {
	out := []byte{0x20, netFn << 2}
	out = append(out, checksum(out[0], out[1]))
	out = append(out, 0x81, rqSeq<<2, cmd)
	out = append(out, data...)
	var sum byte
	for _, b := range out[3:] {
		sum += b
	}
	return append(out, -sum)
}

func TestChecksumZeroSum(t *testing.T) {
	b := []byte{0x20, 0x18}
	cs := checksum(b...)
	if byte(b[0]+b[1]+cs) != 0 {
		t.Fatalf("checksum %#x does not zero the sum", cs)
	}
}

func TestParseIPMBRoundTrip(t *testing.T) {
	req := consoleIPMBRequest(netFnApp, cmdGetDeviceID, 3, nil)
	msg, err := parseIPMB(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.netFn != netFnApp || msg.cmd != cmdGetDeviceID || msg.rqSeq != 3 {
		t.Fatalf("unexpected message: %+v", msg)
	}

	resp := msg.buildResponse(ccOK, []byte{0xAB})
	if resp[0] != 0x81 {
		t.Fatalf("response rsAddr = %#x, want requester address", resp[0])
	}
	if resp[1]>>2 != netFnApp|0x01 {
		t.Fatalf("response netFn = %#x, want response function", resp[1]>>2)
	}
	if resp[6] != ccOK || resp[7] != 0xAB {
		t.Fatalf("completion/data wrong: % x", resp)
	}

	// Response checksums must also zero out.
	if checksum(resp[0], resp[1]) != resp[2] {
		t.Fatal("header checksum mismatch")
	}
	var sum byte
	for _, b := range resp[3:] {
		sum += b
	}
	if sum != 0 {
		t.Fatal("payload checksum mismatch")
	}
}

func TestParseIPMBRejectsBadChecksum(t *testing.T) {
	req := consoleIPMBRequest(netFnApp, cmdGetDeviceID, 0, nil)
	req[2] ^= 0xFF
	if _, err := parseIPMB(req); err == nil {
		t.Fatal("corrupted header checksum accepted")
	}
}

func TestDecodeV15Wrapper(t *testing.T) {
	payload := consoleIPMBRequest(netFnApp, cmdGetChannelAuthCaps, 0, []byte{0x0E, 0x04})
	raw := encodeV15(payload)
	pkt, err := decodePacket(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pkt.authType != authTypeNone {
		t.Fatalf("authType = %#x", pkt.authType)
	}
	if !bytes.Equal(pkt.payload, payload) {
		t.Fatal("payload mangled through 1.5 wrapper")
	}
}

func TestDecodePacketRejectsGarbage(t *testing.T) {
	if _, err := decodePacket([]byte{0x16, 0x03, 0x01}); err == nil {
		t.Fatal("non-RMCP bytes accepted")
	}
	if _, err := decodePacket(encodeV15(nil)[:6]); err == nil {
		t.Fatal("truncated packet accepted")
	}
}

func TestEncodeV20IntegrityTrailer(t *testing.T) {
	k1 := bytes.Repeat([]byte{0x01}, 20)
	payload := []byte{1, 2, 3, 4, 5}
	raw := encodeV20(payloadIPMI, false, 0x11223344, 7, payload, k1)

	pkt, err := decodePacket(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !pkt.authenticated {
		t.Fatal("packet should carry the authenticated bit")
	}
	if pkt.sessionID != 0x11223344 || pkt.sequence != 7 {
		t.Fatalf("header fields wrong: %+v", pkt)
	}
	if !bytes.Equal(pkt.payload, payload) {
		t.Fatal("payload mangled")
	}
	want := hmacSHA1(k1, pkt.signedRange)[:sha1AuthCodeLen]
	if !bytes.Equal(pkt.authCode, want) {
		t.Fatal("auth code does not verify")
	}
	// Signed range must be a multiple of four bytes.
	if len(pkt.signedRange)%4 != 0 {
		t.Fatalf("signed range length %d not padded to 4", len(pkt.signedRange))
	}
}
