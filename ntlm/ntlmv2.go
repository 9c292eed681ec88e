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

package ntlm

import (
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // HMAC-MD5 is mandated by NTLMv2, not used standalone
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// filetimeEpochOffsetMs is the number of milliseconds between the Windows
// FILETIME epoch (1601-01-01) and the Unix epoch (1970-01-01).
const filetimeEpochOffsetMs = 11644473600000

// ntowf is NTOWF = MD4(UTF-16LE(password)), the legacy NT one-way function
// NTLMv2 still uses as its key-derivation seed.
func ntowf(password string) [16]byte {
	return md4Sum(utf16LE(password))
}

// ntowfV2 = HMAC-MD5(NTOWF, UTF-16LE(upper(username) || upper(domain))).
func ntowfV2(password, username, domain string) [16]byte {
	key := ntowf(password)
	mac := hmac.New(md5.New, key[:])
	mac.Write(utf16LE(strings.ToUpper(username) + strings.ToUpper(domain)))
	var out [16]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// clientChallenge returns 8 cryptographically random bytes.
func clientChallenge() ([8]byte, error) {
	var c [8]byte
	if _, err := rand.Read(c[:]); err != nil {
		return c, fmt.Errorf("generating ntlmv2 client challenge: %v", err)
	}
	return c, nil
}

// blob builds the NTLMv2 "temp" structure that is hashed alongside the
// server challenge to produce NTProofStr, and then appended verbatim to
// form the full nt_response.
func blob(now time.Time, challenge [8]byte, targetInfo []byte) []byte {
	filetime := uint64(now.UnixMilli()+filetimeEpochOffsetMs) * 10000

	b := make([]byte, 0, 32+len(targetInfo))
	b = binary.LittleEndian.AppendUint32(b, 0x01010000)
	b = binary.LittleEndian.AppendUint32(b, 0x00000000)
	var ft [8]byte
	binary.LittleEndian.PutUint64(ft[:], filetime)
	b = append(b, ft[:]...)
	b = append(b, challenge[:]...)
	b = binary.LittleEndian.AppendUint32(b, 0x00000000) // unknown, reserved
	b = append(b, targetInfo...)
	b = binary.LittleEndian.AppendUint32(b, 0x00000000) // terminator
	return b
}

// ntlmV2Response computes NTProofStr and the full nt_response
// (NTProofStr || blob).
func ntlmV2Response(ntowfV2Hash [16]byte, serverChallenge [8]byte, blobBytes []byte) (proof [16]byte, ntResponse []byte) {
	mac := hmac.New(md5.New, ntowfV2Hash[:])
	mac.Write(serverChallenge[:])
	mac.Write(blobBytes)
	sum := mac.Sum(nil)
	copy(proof[:], sum)
	ntResponse = append(append([]byte(nil), proof[:]...), blobBytes...)
	return proof, ntResponse
}

// lmV2Response computes lm_response = HMAC-MD5(NTOWFv2, server || client) ||
// client_challenge.
func lmV2Response(ntowfV2Hash [16]byte, serverChallenge, clientChal [8]byte) []byte {
	mac := hmac.New(md5.New, ntowfV2Hash[:])
	mac.Write(serverChallenge[:])
	mac.Write(clientChal[:])
	sum := mac.Sum(nil)
	return append(sum, clientChal[:]...)
}

// =============================================================================
// Type 3 (Authenticate)
// =============================================================================

const (
	type3LmRespLenOffset    = 12
	type3LmRespOffOffset    = 16
	type3NtRespLenOffset    = 20
	type3NtRespOffOffset    = 24
	type3DomainLenOffset    = 28
	type3DomainOffOffset    = 32
	type3UserLenOffset      = 36
	type3UserOffOffset      = 40
	type3WorkstationLenOff  = 44
	type3WorkstationOffOff  = 48
	type3SessionKeyLenOff   = 52
	type3SessionKeyOffOff   = 56
	type3FlagsOffset        = 60
	type3VersionOffset      = 64
	type3MicOffset          = 72
	type3HeaderSize         = 88
)

// version is the fixed Windows version block [MS-NLMP] 2.2.2.10 conveys;
// its value does not affect interoperability, only advertised OS build.
var type3Version = [8]byte{6, 1, 0, 0, 0, 0, 0, 15}

// BuildAuthenticate computes the NTLMv2 Type 3 message from a parsed Type 2
// challenge and the account's credentials, returning the base64 payload
// ready to be placed in an "Authorization: NTLM <b64>" header.
func BuildAuthenticate(ch Challenge, domain, username, password string) (string, error) {
	clientChal, err := clientChallenge()
	if err != nil {
		return "", err
	}
	v2 := ntowfV2(password, username, domain)
	blobBytes := blob(time.Now(), ch.ServerChallenge, ch.TargetInfo)
	_, ntResponse := ntlmV2Response(v2, ch.ServerChallenge, blobBytes)
	lmResponse := lmV2Response(v2, ch.ServerChallenge, clientChal)

	domainBytes := utf16LE(domain)
	userBytes := utf16LE(username)
	wsBytes := utf16LE(Workstation)

	payload := make([]byte, 0, len(lmResponse)+len(ntResponse)+len(domainBytes)+len(userBytes)+len(wsBytes))
	offsets := make(map[string]uint32, 5)
	place := func(name string, data []byte) {
		offsets[name] = type3HeaderSize + uint32(len(payload))
		payload = append(payload, data...)
	}
	place("lm", lmResponse)
	place("nt", ntResponse)
	place("domain", domainBytes)
	place("user", userBytes)
	place("ws", wsBytes)

	buf := make([]byte, type3HeaderSize, type3HeaderSize+len(payload))
	copy(buf[0:8], signature)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(TypeAuthenticate))

	putBuffer := func(lenOff, offOff uint32, length int, off uint32) {
		binary.LittleEndian.PutUint16(buf[lenOff:], uint16(length))
		binary.LittleEndian.PutUint16(buf[lenOff+2:], uint16(length))
		binary.LittleEndian.PutUint32(buf[offOff:], off)
	}
	putBuffer(type3LmRespLenOffset, type3LmRespOffOffset, len(lmResponse), offsets["lm"])
	putBuffer(type3NtRespLenOffset, type3NtRespOffOffset, len(ntResponse), offsets["nt"])
	putBuffer(type3DomainLenOffset, type3DomainOffOffset, len(domainBytes), offsets["domain"])
	putBuffer(type3UserLenOffset, type3UserOffOffset, len(userBytes), offsets["user"])
	putBuffer(type3WorkstationLenOff, type3WorkstationOffOff, len(wsBytes), offsets["ws"])
	// Session-key buffer stays empty: this client never negotiates
	// signing/sealing, only authentication.
	binary.LittleEndian.PutUint32(buf[type3SessionKeyOffOff:], type3HeaderSize+uint32(len(payload)))

	binary.LittleEndian.PutUint32(buf[type3FlagsOffset:], uint32(authenticateFlags))
	copy(buf[type3VersionOffset:type3VersionOffset+8], type3Version[:])
	// MIC (16 bytes at type3MicOffset) stays zeroed: this client does not
	// sign the negotiate/challenge/authenticate triple.

	buf = append(buf, payload...)
	return base64.StdEncoding.EncodeToString(buf), nil
}

// AuthorizationHeader formats the Type 1 or Type 3 base64 payload as the
// value of an HTTP Authorization header.
func AuthorizationHeader(b64 string) string {
	return "NTLM " + b64
}
