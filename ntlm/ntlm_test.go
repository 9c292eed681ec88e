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
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNTOWFv2IsStableForSameInputs(t *testing.T) {
	a := ntowfV2("hunter2", "alice", "CONTOSO")
	b := ntowfV2("hunter2", "alice", "CONTOSO")
	assert.Equal(t, a, b)

	c := ntowfV2("hunter2", "alice", "contoso") // case-insensitive per spec
	assert.Equal(t, a, c)

	d := ntowfV2("hunter2", "bob", "CONTOSO")
	assert.NotEqual(t, a, d)
}

func TestBuildNegotiateHasSignatureAndType(t *testing.T) {
	b64 := BuildNegotiate()
	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	assert.Equal(t, signature, raw[0:8])
	assert.Equal(t, uint32(TypeNegotiate), binary.LittleEndian.Uint32(raw[8:12]))
}

func TestParseChallengeExtractsServerChallengeAndTargetInfo(t *testing.T) {
	raw := make([]byte, type2MinSize+4)
	copy(raw[0:8], signature)
	binary.LittleEndian.PutUint32(raw[8:12], uint32(TypeChallenge))
	want := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	copy(raw[type2ServerChallengeOffset:], want[:])
	ti := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	binary.LittleEndian.PutUint16(raw[type2TargetInfoLenOffset:], uint16(len(ti)))
	binary.LittleEndian.PutUint32(raw[type2TargetInfoOffOffset:], uint32(type2MinSize))
	copy(raw[type2MinSize:], ti)

	ch, err := ParseChallenge(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, want, ch.ServerChallenge)
	assert.Equal(t, ti, ch.TargetInfo)
}

func TestParseChallengeTolerantOfMissingTargetInfo(t *testing.T) {
	raw := make([]byte, type2MinSize)
	copy(raw[0:8], signature)
	binary.LittleEndian.PutUint32(raw[8:12], uint32(TypeChallenge))
	ch, err := ParseChallenge(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Nil(t, ch.TargetInfo)
}

func TestBuildAuthenticateProducesWellFormedType3(t *testing.T) {
	ch := Challenge{ServerChallenge: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, TargetInfo: []byte{0x01, 0x02}}
	b64, err := BuildAuthenticate(ch, "CONTOSO", "alice", "hunter2")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), type3HeaderSize)
	assert.Equal(t, signature, raw[0:8])
	assert.Equal(t, uint32(TypeAuthenticate), binary.LittleEndian.Uint32(raw[8:12]))
	assert.Equal(t, type3Version[:], raw[type3VersionOffset:type3VersionOffset+8])

	ntLen := binary.LittleEndian.Uint16(raw[type3NtRespLenOffset:])
	ntOff := binary.LittleEndian.Uint32(raw[type3NtRespOffOffset:])
	assert.Equal(t, 16+32+len(ch.TargetInfo), int(ntLen)) // proof(16) + blob fixed fields(32) + target_info
	assert.LessOrEqual(t, int(ntOff)+int(ntLen), len(raw))
}
