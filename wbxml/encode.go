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
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Encode reads the XML event stream produced by src (an encoding/xml
// request body assembled by the provisioning and calendar packages) and
// writes its WBXML encoding to w using tags for name resolution.
func Encode(w io.Writer, src io.Reader, tags CodeSpace) error {
	e := &encoder{dec: xml.NewDecoder(src), tags: tags, currentPage: 0xFF}
	if err := writeHeader(w); err != nil {
		return err
	}
	return e.run(w)
}

func writeHeader(w io.Writer) error {
	_, err := w.Write([]byte{0x03, 0x01, 0x6A, 0x00})
	if err != nil {
		return fmt.Errorf("writing wbxml header: %v", err)
	}
	return nil
}

type encoder struct {
	dec         *xml.Decoder
	tags        CodeSpace
	currentPage byte
	peeked      xml.Token
	hasPeek     bool
	nsStack     []string
}

func (e *encoder) next() (xml.Token, error) {
	if e.hasPeek {
		e.hasPeek = false
		return e.peeked, nil
	}
	return e.dec.Token()
}

func (e *encoder) peek() (xml.Token, error) {
	if !e.hasPeek {
		t, err := e.dec.Token()
		if err != nil {
			return nil, err
		}
		e.peeked = xml.CopyToken(t)
		e.hasPeek = true
	}
	return e.peeked, nil
}

// isEmpty reports whether the element just opened closes immediately
// (no children, no non-blank text), skipping over any insignificant
// whitespace CharData while peeking.
func (e *encoder) isEmpty() (bool, error) {
	for {
		t, err := e.peek()
		if err != nil {
			return false, err
		}
		switch v := t.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(v)) == 0 {
				e.hasPeek = false
				continue
			}
			return false, nil
		case xml.EndElement:
			return true, nil
		default:
			return false, nil
		}
	}
}

func (e *encoder) namespace() string {
	if len(e.nsStack) == 0 {
		return ""
	}
	return e.nsStack[len(e.nsStack)-1]
}

func (e *encoder) run(w io.Writer) error {
	for {
		tok, err := e.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tokenizing xml for wbxml encode: %v", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			ns := t.Name.Space
			if alias, ok := prefixAlias[ns]; ok {
				ns = alias
			}
			if ns == "" {
				ns = e.namespace()
			}
			page, id, err := resolveTag(e.tags, ns, t.Name.Local)
			if err != nil {
				return err
			}
			if page != e.currentPage {
				if _, err := w.Write([]byte{tokSwitchPage, page}); err != nil {
					return fmt.Errorf("writing wbxml switch_page: %v", err)
				}
				e.currentPage = page
			}
			empty, err := e.isEmpty()
			if err != nil {
				return fmt.Errorf("looking ahead past <%s>: %v", t.Name.Local, err)
			}
			tagByte := id
			if !empty {
				tagByte |= tagContentFlag
			}
			if _, err := w.Write([]byte{tagByte}); err != nil {
				return fmt.Errorf("writing wbxml tag for <%s>: %v", t.Name.Local, err)
			}
			e.nsStack = append(e.nsStack, ns)
			if empty {
				// Consume the matching EndElement without emitting END:
				// a content-less tag byte is already self-terminating.
				if _, err := e.next(); err != nil {
					return fmt.Errorf("consuming empty element close for <%s>: %v", t.Name.Local, err)
				}
				e.nsStack = e.nsStack[:len(e.nsStack)-1]
			}
		case xml.EndElement:
			if len(e.nsStack) > 0 {
				e.nsStack = e.nsStack[:len(e.nsStack)-1]
			}
			if _, err := w.Write([]byte{tokEnd}); err != nil {
				return fmt.Errorf("writing wbxml end: %v", err)
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			if err := writeStrI(w, text); err != nil {
				return err
			}
		}
	}
}

// prefixAlias maps the xml.Name.Space values Go's encoding/xml reports for
// a declared "xmlns" attribute (the literal URI/prefix string used when
// building request elements) back to the lowercase namespace keys
// pageByNamespace understands.
var prefixAlias = map[string]string{
	"airsync":         "airsync",
	"calendar":         "calendar",
	"airsyncbase":      "airsyncbase",
	"folderhierarchy":  "folderhierarchy",
	"provision":        "provision",
	"settings":         "settings",
	"composemail":      "composemail",
	"itemoperations":   "itemoperations",
}

func resolveTag(tags CodeSpace, ns, local string) (page byte, id byte, err error) {
	if ns != "" {
		if p, ok := pageByNamespace[ns]; ok {
			if cp, ok := tags[p]; ok {
				if tid, ok := reverseLookup(cp, local); ok {
					return p, tid, nil
				}
			}
		}
	}
	for p, cp := range tags {
		if tid, ok := reverseLookup(cp, local); ok {
			return p, tid, nil
		}
	}
	return 0, 0, fmt.Errorf("encoding wbxml: no code page defines tag %q", local)
}

func reverseLookup(cp CodePage, name string) (byte, bool) {
	for id, n := range cp {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

func writeStrI(w io.Writer, s string) error {
	if _, err := w.Write([]byte{tokStrI}); err != nil {
		return fmt.Errorf("writing wbxml str_i marker: %v", err)
	}
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("writing wbxml str_i content: %v", err)
	}
	if _, err := w.Write([]byte{0x00}); err != nil {
		return fmt.Errorf("writing wbxml str_i terminator: %v", err)
	}
	return nil
}

func writeMultibyteUint32(w io.Writer, v uint32) error {
	var buf [5]byte
	i := len(buf)
	i--
	buf[i] = byte(v & 0x7F)
	v >>= 7
	for v > 0 {
		i--
		buf[i] = byte(v&0x7F) | 0x80
		v >>= 7
	}
	_, err := w.Write(buf[i:])
	return err
}

func writeOpaque(w io.Writer, data []byte) error {
	if _, err := w.Write([]byte{tokOpaque}); err != nil {
		return fmt.Errorf("writing wbxml opaque marker: %v", err)
	}
	if err := writeMultibyteUint32(w, uint32(len(data))); err != nil {
		return fmt.Errorf("writing wbxml opaque length: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing wbxml opaque payload: %v", err)
	}
	return nil
}
