//  This file is part of the eliona project.
//  Copyright © 2022 LEICOM iTEC AG. All Rights Reserved.
//  ______ _ _
// |  ____| (_)
// | |__  | |_  ___  _ __   __ _
// |  __| | | |/ _ \| '_ \ / _` |
// | |____| | | (_) | | | | (_| |
// |______|_|_|\___/|_| |_|\__,_|
//
//  THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING
//  BUT NOT LIMITED  TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
//  NON INFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM,
//  DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
//  OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

// Package ntlm implements the client side of NTLM authentication with
// NTLMv2 keyed responses, sufficient to authenticate against Exchange
// 2007+ EAS and EWS endpoints that do not offer Basic auth.
package ntlm

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// =============================================================================
// NTLM Message Types
// =============================================================================

// MessageType identifies the three messages in the handshake. [MS-NLMP] 2.2.1
type MessageType uint32

const (
	TypeNegotiate   MessageType = 1
	TypeChallenge   MessageType = 2
	TypeAuthenticate MessageType = 3
)

var signature = []byte{'N', 'T', 'L', 'M', 'S', 'S', 'P', 0}

// Workstation is sent as the client's computer name. Its value is opaque
// to the server; any stable string is acceptable.
const Workstation = "ANDROID"

// =============================================================================
// Negotiate Flags
// =============================================================================

// Flag is a bit in the NegotiateFlags field exchanged in all three messages.
type Flag uint32

const (
	FlagUnicode       Flag = 0x00000001
	FlagOEM           Flag = 0x00000002
	FlagRequestTarget Flag = 0x00000004
	FlagNTLM          Flag = 0x00000200
	FlagAlwaysSign    Flag = 0x00008000
	FlagNTLM2Key      Flag = 0x00080000
	Flag128           Flag = 0x20000000
	Flag56            Flag = 0x80000000
)

// negotiateFlags is what this client advertises in Type 1.
const negotiateFlags = FlagUnicode | FlagOEM | FlagRequestTarget | FlagNTLM | FlagAlwaysSign | FlagNTLM2Key | Flag128 | Flag56

// authenticateFlags is what this client echoes in Type 3; OEM and
// RequestTarget serve no purpose once the target has already responded.
const authenticateFlags = FlagUnicode | FlagNTLM | FlagAlwaysSign | FlagNTLM2Key | Flag128 | Flag56

// =============================================================================
// Type 1 (Negotiate)
// =============================================================================

// type1 message byte offsets: fixed 32-byte header, domain/workstation
// security buffers point past it. [MS-NLMP] 2.2.1.1
const (
	type1FlagsOffset           = 12
	type1DomainLenOffset       = 16
	type1DomainMaxOffset       = 18
	type1DomainOffOffset       = 20
	type1WorkstationLenOffset  = 24
	type1WorkstationMaxOffset  = 26
	type1WorkstationOffOffset  = 28
	type1HeaderSize            = 32
)

// BuildNegotiate builds the base64 payload of a Type 1 message with an
// empty domain/workstation supplied-credentials buffer: Exchange does not
// require them and omitting them keeps the message minimal.
func BuildNegotiate() string {
	buf := make([]byte, type1HeaderSize)
	copy(buf[0:8], signature)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(TypeNegotiate))
	binary.LittleEndian.PutUint32(buf[type1FlagsOffset:], uint32(negotiateFlags))
	// Domain and workstation buffers are zero-length, pointing at the end
	// of the fixed header.
	binary.LittleEndian.PutUint32(buf[type1DomainOffOffset:], uint32(type1HeaderSize))
	binary.LittleEndian.PutUint32(buf[type1WorkstationOffOffset:], uint32(type1HeaderSize))
	return base64.StdEncoding.EncodeToString(buf)
}

// =============================================================================
// Type 2 (Challenge)
// =============================================================================

const (
	type2FlagsOffset            = 20
	type2ServerChallengeOffset  = 24
	type2TargetInfoLenOffset    = 40
	type2TargetInfoOffOffset    = 44
	type2MinSize                = 48
)

// Challenge is the parsed Type 2 message.
type Challenge struct {
	ServerChallenge [8]byte
	Flags           Flag
	TargetInfo      []byte
}

// ParseChallenge decodes the base64 Type 2 payload from a
// WWW-Authenticate: NTLM <b64> challenge header value.
func ParseChallenge(b64 string) (Challenge, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return Challenge{}, fmt.Errorf("decoding ntlm type2 base64: %v", err)
	}
	if len(raw) < type2MinSize {
		return Challenge{}, fmt.Errorf("ntlm type2 message too short: %d bytes", len(raw))
	}
	if string(raw[0:8]) != string(signature) {
		return Challenge{}, fmt.Errorf("ntlm type2 message missing NTLMSSP signature")
	}
	mt := binary.LittleEndian.Uint32(raw[8:12])
	if MessageType(mt) != TypeChallenge {
		return Challenge{}, fmt.Errorf("expected ntlm type2 message, got type %d", mt)
	}

	var c Challenge
	copy(c.ServerChallenge[:], raw[type2ServerChallengeOffset:type2ServerChallengeOffset+8])
	c.Flags = Flag(binary.LittleEndian.Uint32(raw[type2FlagsOffset:]))

	tiLen := binary.LittleEndian.Uint16(raw[type2TargetInfoLenOffset:])
	tiOff := binary.LittleEndian.Uint32(raw[type2TargetInfoOffOffset:])
	// A missing or out-of-range TargetInfo buffer is tolerated: treated as
	// empty rather than a parse failure, matching server variants that
	// omit it entirely.
	if tiLen > 0 && uint64(tiOff)+uint64(tiLen) <= uint64(len(raw)) {
		c.TargetInfo = append([]byte(nil), raw[tiOff:uint64(tiOff)+uint64(tiLen)]...)
	}
	return c, nil
}

// utf16LE encodes s (ASCII/UTF-8 input: credentials, domain, workstation)
// as UTF-16LE, the wire encoding every NTLM string field uses when
// FlagUnicode is set.
func utf16LE(s string) []byte {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		// Only ever called with credential/identifier strings; a UTF-8 ->
		// UTF-16LE transcode of such input cannot fail.
		panic(fmt.Sprintf("utf16le encoding %q: %v", s, err))
	}
	return out
}
