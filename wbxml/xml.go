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
	"fmt"
	"io"
	"strings"
)

// XML drains d and writes it out as plain XML text. This is how decoded
// WBXML responses are handed to the rest of the engine: every parser
// downstream (provisioning, calendar sync) consumes encoding/xml over this
// output rather than walking WBXML tokens directly. indent, when
// non-empty, pretty-prints nesting; pass "" for the compact form parsers
// actually consume.
func XML(w io.Writer, d *Decoder, indent string) error {
	var stack []string
	depth := 0
	newline := func() {
		if indent == "" {
			return
		}
		fmt.Fprint(w, "\n", strings.Repeat(indent, depth))
	}
	for {
		tok, err := d.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch tok.Kind {
		case TokenStart:
			newline()
			if tok.HasContent {
				fmt.Fprintf(w, "<%s>", tok.Name)
				stack = append(stack, tok.Name)
				depth++
			} else {
				fmt.Fprintf(w, "<%s></%s>", tok.Name, tok.Name)
			}
		case TokenEnd:
			depth--
			newline()
			name := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			fmt.Fprintf(w, "</%s>", name)
		case TokenText:
			io.WriteString(w, escapeText(tok.Text))
		case TokenOpaque:
			io.WriteString(w, escapeText(string(tok.Opaque)))
		}
	}
}

// Decode is the convenience entry point transport.Execute uses: it decodes
// the full WBXML body into an XML byte slice ready for encoding/xml.
func Decode(r io.Reader) ([]byte, error) {
	d := NewDecoder(r, Tags, CodeSpace{})
	var sb strings.Builder
	if err := XML(&sb, d, ""); err != nil {
		return nil, fmt.Errorf("decoding wbxml body: %v", err)
	}
	return []byte(sb.String()), nil
}

var textEscapes = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

func escapeText(s string) string {
	return textEscapes.Replace(s)
}
