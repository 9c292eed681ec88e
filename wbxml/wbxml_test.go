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

package wbxml

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := `<Sync xmlns="airsync"><Collections><Collection><SyncKey>1</SyncKey><CollectionId>5</CollectionId><GetChanges/></Collection></Collections></Sync>`

	var wire bytes.Buffer
	require.NoError(t, Encode(&wire, strings.NewReader(src), Tags))

	header := wire.Bytes()[:4]
	assert.Equal(t, []byte{0x03, 0x01, 0x6A, 0x00}, header)

	out, err := Decode(bytes.NewReader(wire.Bytes()))
	require.NoError(t, err)

	got := string(out)
	assert.Contains(t, got, "<Sync>")
	assert.Contains(t, got, "<SyncKey>1</SyncKey>")
	assert.Contains(t, got, "<CollectionId>5</CollectionId>")
	assert.Contains(t, got, "<GetChanges></GetChanges>")
}

func TestDecodeUnknownTagFallsBackInsteadOfErroring(t *testing.T) {
	// SWITCH_PAGE to AirSync(0), tag id 0x3E (never registered) with
	// content, a STR_I body, END.
	wire := []byte{0x03, 0x01, 0x6A, 0x00, 0x00, 0x00, 0x3E | tagContentFlag, 0x03, 'x', 0x00, 0x01}
	out, err := Decode(bytes.NewReader(wire))
	require.NoError(t, err)
	assert.Contains(t, string(out), "<UnknownPage0_Tag62>")
}

func TestDecodeTruncatedInputReturnsError(t *testing.T) {
	wire := []byte{0x03, 0x01, 0x6A, 0x00, 0x00} // SWITCH_PAGE with no operand
	_, err := Decode(bytes.NewReader(wire))
	assert.Error(t, err)
}

func TestSendMailEmitsComposeMailWithOpaqueMime(t *testing.T) {
	mime := []byte("From: a@x\r\nTo: b@x\r\nSubject: hi\r\n\r\nbody")
	wire, err := SendMail("client-123", mime)
	require.NoError(t, err)

	assert.Equal(t, []byte{0x03, 0x01, 0x6A, 0x00}, wire[:4])
	assert.Equal(t, byte(tokSwitchPage), wire[4])
	assert.Equal(t, byte(PageComposeMail), wire[5])

	out, err := Decode(bytes.NewReader(wire))
	require.NoError(t, err)
	got := string(out)
	assert.Contains(t, got, "<SendMail>")
	assert.Contains(t, got, "<ClientId>client-123</ClientId>")
	assert.Contains(t, got, "<SaveInSentItems></SaveInSentItems>")
	assert.Contains(t, got, string(mime))
}

func TestDecoderIsVocabularyAgnostic(t *testing.T) {
	// The decoder's resolution logic only depends on the CodeSpace it is
	// given, not on the EAS dictionary: a caller can hand it any tag
	// dictionary, e.g. a different WBXML-based protocol's.
	custom := CodeSpace{
		0: CodePage{0x05: "Foo", 0x06: "Bar"},
	}
	wire := []byte{0x03, 0x01, 0x6A, 0x00, 0x05 | tagContentFlag, 0x06, 0x01}
	d := NewDecoder(bytes.NewReader(wire), custom, CodeSpace{})
	var sb strings.Builder
	require.NoError(t, XML(&sb, d, ""))
	assert.Equal(t, "<Foo><Bar></Bar></Foo>", sb.String())
}
