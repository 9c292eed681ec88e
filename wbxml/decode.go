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
	"bufio"
	"fmt"
	"io"
)

const (
	tokSwitchPage = 0x00
	tokEnd        = 0x01
	tokStrI       = 0x03
	tokOpaque     = 0xC3

	tagContentFlag = 0x40
	tagAttrFlag    = 0x80
	tagIDMask      = 0x3F
)

// TokenKind discriminates the events a Decoder yields.
type TokenKind int

const (
	TokenStart TokenKind = iota
	TokenEnd
	TokenText
	TokenOpaque
)

// Token is one decoded WBXML event. For TokenStart, HasContent reports
// whether the tag carries children (mirrored by a later TokenEnd) or is
// self-closing.
type Token struct {
	Kind       TokenKind
	Name       string
	Text       string
	Opaque     []byte
	HasContent bool
}

// Decoder walks a WBXML byte stream and yields a flat token sequence. It
// never returns an error for an unrecognized tag: per the codec's
// resilience requirement, unknown tags surface as a synthesized name
// rather than aborting the decode.
type Decoder struct {
	r           *bufio.Reader
	tags        CodeSpace
	attrs       CodeSpace
	currentPage byte
	headerDone  bool
}

// NewDecoder builds a Decoder over r using tags for element names and attrs
// for attribute names (attributes are rare on the wire and, per the codec
// contract, not surfaced as distinct events here).
func NewDecoder(r io.Reader, tags CodeSpace, attrs CodeSpace) *Decoder {
	return &Decoder{r: bufio.NewReader(r), tags: tags, attrs: attrs}
}

func (d *Decoder) readByte() (byte, error) {
	return d.r.ReadByte()
}

// readMultibyteUint32 decodes a WBXML mb_u32: 7 bits per byte, high bit
// set on every byte but the last.
func (d *Decoder) readMultibyteUint32() (uint32, error) {
	var v uint32
	for {
		b, err := d.readByte()
		if err != nil {
			return 0, err
		}
		v = (v << 7) | uint32(b&0x7F)
		if b&0x80 == 0 {
			return v, nil
		}
	}
}

func (d *Decoder) readHeader() error {
	if _, err := d.readByte(); err != nil { // version
		return fmt.Errorf("reading wbxml version: %v", err)
	}
	if _, err := d.readMultibyteUint32(); err != nil { // public id
		return fmt.Errorf("reading wbxml public id: %v", err)
	}
	if _, err := d.readMultibyteUint32(); err != nil { // charset
		return fmt.Errorf("reading wbxml charset: %v", err)
	}
	strTabLen, err := d.readMultibyteUint32()
	if err != nil {
		return fmt.Errorf("reading wbxml string table length: %v", err)
	}
	if strTabLen > 0 {
		if _, err := io.CopyN(io.Discard, d.r, int64(strTabLen)); err != nil {
			return fmt.Errorf("skipping wbxml string table: %v", err)
		}
	}
	d.headerDone = true
	return nil
}

// Next returns the next token, or io.EOF when the stream is exhausted.
func (d *Decoder) Next() (Token, error) {
	if !d.headerDone {
		if err := d.readHeader(); err != nil {
			return Token{}, err
		}
	}
	for {
		b, err := d.readByte()
		if err != nil {
			if err == io.EOF {
				return Token{}, io.EOF
			}
			return Token{}, fmt.Errorf("reading wbxml token: %v", err)
		}
		switch b {
		case tokSwitchPage:
			page, err := d.readByte()
			if err != nil {
				return Token{}, fmt.Errorf("reading wbxml switch_page operand: %v", err)
			}
			d.currentPage = page
			continue
		case tokEnd:
			return Token{Kind: TokenEnd}, nil
		case tokStrI:
			s, err := d.r.ReadString(0x00)
			if err != nil {
				return Token{}, fmt.Errorf("reading wbxml inline string: %v", err)
			}
			return Token{Kind: TokenText, Text: s[:len(s)-1]}, nil
		case tokOpaque:
			n, err := d.readMultibyteUint32()
			if err != nil {
				return Token{}, fmt.Errorf("reading wbxml opaque length: %v", err)
			}
			buf := make([]byte, n)
			if _, err := io.ReadFull(d.r, buf); err != nil {
				return Token{}, fmt.Errorf("reading wbxml opaque payload: %v", err)
			}
			return Token{Kind: TokenOpaque, Opaque: buf}, nil
		default:
			id := b & tagIDMask
			hasContent := b&tagContentFlag != 0
			if b&tagAttrFlag != 0 {
				// Attribute-bearing tags are not expected on any EAS
				// response this client parses; skip to the attribute
				// end marker rather than mis-decoding the body.
				if err := d.skipAttributes(); err != nil {
					return Token{}, err
				}
			}
			return Token{Kind: TokenStart, Name: d.tagName(id), HasContent: hasContent}, nil
		}
	}
}

func (d *Decoder) skipAttributes() error {
	for {
		b, err := d.readByte()
		if err != nil {
			return fmt.Errorf("skipping wbxml attributes: %v", err)
		}
		if b == tokEnd {
			return nil
		}
	}
}

func (d *Decoder) tagName(id byte) string {
	if page, ok := d.tags[d.currentPage]; ok {
		if name, ok := page[id]; ok {
			return name
		}
	}
	return fmt.Sprintf("UnknownPage%d_Tag%d", d.currentPage, id)
}
