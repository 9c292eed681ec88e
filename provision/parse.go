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

package provision

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
)

// parsePhase1 extracts the outer Provision Status and, when present, the
// inner Policy Status and PolicyKey. The two Status elements are siblings
// at different depths (Provision/Status vs Provision/Policies/Policy/Status),
// so a streaming walk that tracks the open-element stack is required:
// a naive "first <Status> wins" scan would pick up whichever happens to
// come first on the wire, which is not reliably the outer one.
func parsePhase1(respXML []byte) (phase1Result, error) {
	dec := xml.NewDecoder(bytes.NewReader(respXML))
	var stack []string
	var res phase1Result

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return phase1Result{}, fmt.Errorf("parsing provision response: %v", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			stack = append(stack, name)
			switch name {
			case "Status":
				text, err := readCharData(dec)
				if err != nil {
					return phase1Result{}, err
				}
				n, err := strconv.Atoi(text)
				if err != nil {
					return phase1Result{}, fmt.Errorf("parsing provision Status %q: %v", text, err)
				}
				if inPolicy(stack) {
					res.policyStatus = n
				} else if inProvision(stack) {
					res.provisionStatus = n
				}
				stack = stack[:len(stack)-1] // readCharData already consumed this element's EndElement
			case "PolicyKey":
				text, err := readCharData(dec)
				if err != nil {
					return phase1Result{}, err
				}
				if inPolicy(stack) {
					res.policyKey = text
				}
				stack = stack[:len(stack)-1]
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return res, nil
}

// inPolicy reports whether the currently-open element (stack's last entry,
// already pushed) is a direct child of <Policy>.
func inPolicy(stack []string) bool {
	return len(stack) >= 2 && stack[len(stack)-2] == "Policy"
}

// inProvision reports whether the currently-open element is a direct
// child of <Provision> (i.e. the outer Status, not Policy's).
func inProvision(stack []string) bool {
	return len(stack) >= 2 && stack[len(stack)-2] == "Provision"
}

// readCharData reads the text content immediately following a StartElement
// already consumed from dec, stopping at the matching EndElement.
func readCharData(dec *xml.Decoder) (string, error) {
	var sb []byte
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("reading element text: %v", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb = append(sb, t...)
		case xml.EndElement:
			return string(sb), nil
		}
	}
}
