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

package calendar

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"easclient/model"
)

// tokenWalker provides the shared element-stack bookkeeping every parser
// in this file needs: WBXML-decoded bodies carry no namespace prefixes
// (the wire protocol switches code pages instead), so element-name
// comparisons alone are sufficient here, unlike the EWS response path.
type tokenWalker struct {
	dec   *xml.Decoder
	stack []string
}

func newTokenWalker(xmlBody []byte) *tokenWalker {
	return &tokenWalker{dec: xml.NewDecoder(bytes.NewReader(xmlBody))}
}

func (w *tokenWalker) parent() string {
	if len(w.stack) < 2 {
		return ""
	}
	return w.stack[len(w.stack)-2]
}

func (w *tokenWalker) current() string {
	if len(w.stack) == 0 {
		return ""
	}
	return w.stack[len(w.stack)-1]
}

// next advances one token, maintaining the stack, and returns it.
func (w *tokenWalker) next() (xml.Token, error) {
	tok, err := w.dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case xml.StartElement:
		w.stack = append(w.stack, t.Name.Local)
	case xml.EndElement:
		if len(w.stack) > 0 {
			w.stack = w.stack[:len(w.stack)-1]
		}
	}
	return tok, nil
}

// text reads character data up to the matching end of the currently-open
// element (the element just pushed by a StartElement).
func (w *tokenWalker) text() (string, error) {
	var sb []byte
	depth := 1
	for {
		tok, err := w.dec.Token()
		if err != nil {
			return "", fmt.Errorf("reading element text: %v", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb = append(sb, t...)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				if len(w.stack) > 0 {
					w.stack = w.stack[:len(w.stack)-1]
				}
				return string(sb), nil
			}
		}
	}
}

// =============================================================================
// FolderSync
// =============================================================================

func parseFolderSyncResponse(xmlBody []byte) ([]model.Folder, error) {
	w := newTokenWalker(xmlBody)
	var folders []model.Folder
	var cur model.Folder
	for {
		tok, err := w.next()
		if err == io.EOF {
			return folders, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parsing FolderSync response: %v", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local == "Add" && w.parent() == "Changes" {
			cur = model.Folder{}
		}
		if w.parent() != "Add" {
			continue
		}
		switch start.Name.Local {
		case "ServerId":
			cur.ServerID, err = w.text()
		case "ParentId":
			cur.ParentID, err = w.text()
		case "DisplayName":
			cur.DisplayName, err = w.text()
		case "Type":
			cur.Type, err = w.text()
			if err == nil {
				folders = append(folders, cur)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("parsing FolderSync response: %v", err)
		}
	}
}

// =============================================================================
// Sync (incoming Add/Change/Delete commands)
// =============================================================================

type syncResult struct {
	Key              string
	MoreAvailable    bool
	CollectionStatus int
	Events           []model.CalendarEvent
}

func parseSyncResponse(xmlBody []byte) (syncResult, error) {
	w := newTokenWalker(xmlBody)
	var res syncResult
	res.CollectionStatus = 1

	for {
		tok, err := w.next()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return syncResult{}, fmt.Errorf("parsing Sync response: %v", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "SyncKey":
			if w.parent() == "Collection" {
				res.Key, err = w.text()
			}
		case "Status":
			if w.parent() == "Collection" {
				var text string
				text, err = w.text()
				if err == nil {
					res.CollectionStatus, err = strconv.Atoi(text)
				}
			}
		case "MoreAvailable":
			res.MoreAvailable = true
		case "Add", "Change":
			var ev model.CalendarEvent
			ev, err = parseEventEnvelope(w)
			if err == nil {
				res.Events = append(res.Events, ev)
			}
		}
		if err != nil {
			return syncResult{}, fmt.Errorf("parsing Sync response: %v", err)
		}
	}
}

// parseEventEnvelope consumes one <Add>/<Change> element's subtree (the
// stack already has it pushed) and builds a CalendarEvent from its
// ServerId and ApplicationData fields. It tracks nesting depth and leaf
// text through the same walk so a leaf's end tag is only ever consumed
// once, by this loop.
func parseEventEnvelope(w *tokenWalker) (model.CalendarEvent, error) {
	var ev model.CalendarEvent
	depth := 1
	var textBuf []byte
	for depth > 0 {
		tok, err := w.dec.Token()
		if err != nil {
			return ev, fmt.Errorf("parsing event envelope: %v", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "Recurrence" {
				raw, rerr := captureSubtree(w.dec, t)
				if rerr != nil {
					return ev, fmt.Errorf("parsing event envelope: %v", rerr)
				}
				if err := assignEventField(&ev, "Recurrence", w.current(), string(raw)); err != nil {
					return ev, err
				}
				textBuf = nil
				continue
			}
			depth++
			w.stack = append(w.stack, t.Name.Local)
			textBuf = nil
		case xml.CharData:
			textBuf = append(textBuf, t...)
		case xml.EndElement:
			depth--
			name := w.current()
			parent := w.parent()
			if len(w.stack) > 0 {
				w.stack = w.stack[:len(w.stack)-1]
			}
			if err := assignEventField(&ev, name, parent, string(textBuf)); err != nil {
				return ev, err
			}
			textBuf = nil
		}
	}
	return ev, nil
}

// captureSubtree re-serializes the element subtree rooted at start
// (already consumed from dec) into its own XML bytes, for fields this
// engine treats as opaque and re-emits verbatim rather than parses.
func captureSubtree(dec *xml.Decoder, start xml.StartElement) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := enc.EncodeToken(start); err != nil {
		return nil, err
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if err := enc.EncodeToken(tok); err != nil {
			return nil, err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// assignEventField dispatches on tag name (namespace-agnostic: the WBXML
// decoder already stripped code-page context down to a bare name) and,
// for the fields this engine understands, assigns their already-read
// text. parent disambiguates Data, which appears under both Body and
// unrelated EAS elements this engine does not use.
func assignEventField(ev *model.CalendarEvent, name, parent, text string) error {
	var err error
	switch name {
	case "ServerId":
		ev.ServerID = text
	case "Subject":
		ev.Subject = text
	case "StartTime":
		ev.StartUTCMs, err = parseDate(text)
	case "EndTime":
		ev.EndUTCMs, err = parseDate(text)
	case "Location":
		ev.Location = text
	case "AllDayEvent":
		ev.AllDay = text == "1"
	case "Reminder":
		if text != "" {
			ev.ReminderMin, err = strconv.Atoi(text)
		}
	case "BusyStatus":
		if text != "" {
			var n int
			n, err = strconv.Atoi(text)
			ev.BusyStatus = model.BusyStatus(n)
		}
	case "Sensitivity":
		if text != "" {
			var n int
			n, err = strconv.Atoi(text)
			ev.Sensitivity = model.Sensitivity(n)
		}
	case "OrganizerEmail":
		ev.OrganizerEmail = text
	case "Recurrence":
		ev.RecurrenceRaw = []byte(text)
		ev.IsRecurring = true
	case "Data":
		if parent == "Body" {
			ev.Body = cleanBody(text)
		}
	}
	return err
}

// =============================================================================
// Add acknowledgment (Create response)
// =============================================================================

type addResult struct {
	NewKey   string
	Status   int
	ServerID string
}

func parseAddResponse(xmlBody []byte) (addResult, error) {
	w := newTokenWalker(xmlBody)
	var res addResult
	for {
		tok, err := w.next()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return addResult{}, fmt.Errorf("parsing Sync Add response: %v", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "SyncKey":
			if w.parent() == "Collection" {
				res.NewKey, err = w.text()
			}
		case "ServerId":
			if w.parent() == "Add" {
				res.ServerID, err = w.text()
			}
		case "Status":
			if w.parent() == "Add" {
				var text string
				text, err = w.text()
				if err == nil {
					res.Status, err = strconv.Atoi(text)
				}
			} else if w.parent() == "Collection" && res.Status == 0 {
				var text string
				text, err = w.text()
				if err == nil {
					res.Status, err = strconv.Atoi(text)
				}
			}
		}
		if err != nil {
			return addResult{}, fmt.Errorf("parsing Sync Add response: %v", err)
		}
	}
}

// =============================================================================
// Change acknowledgment (Update response)
// =============================================================================

type changeResult struct {
	NewKey           string
	CollectionStatus int
	HasItemStatus    bool
	ItemStatus       int
}

func parseChangeResponse(xmlBody []byte) (changeResult, error) {
	w := newTokenWalker(xmlBody)
	res := changeResult{CollectionStatus: 1}
	for {
		tok, err := w.next()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return changeResult{}, fmt.Errorf("parsing Sync Change response: %v", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "SyncKey":
			if w.parent() == "Collection" {
				res.NewKey, err = w.text()
			}
		case "Status":
			switch w.parent() {
			case "Collection":
				var text string
				text, err = w.text()
				if err == nil {
					res.CollectionStatus, err = strconv.Atoi(text)
				}
			case "Change":
				var text string
				text, err = w.text()
				if err == nil {
					res.HasItemStatus = true
					res.ItemStatus, err = strconv.Atoi(text)
				}
			}
		}
		if err != nil {
			return changeResult{}, fmt.Errorf("parsing Sync Change response: %v", err)
		}
	}
}

// =============================================================================
// Delete response
// =============================================================================

type deleteResult struct {
	NewKey string
	Status int
}

func parseDeleteResponse(xmlBody []byte) (deleteResult, error) {
	w := newTokenWalker(xmlBody)
	var res deleteResult
	for {
		tok, err := w.next()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return deleteResult{}, fmt.Errorf("parsing Sync Delete response: %v", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "SyncKey":
			if w.parent() == "Collection" {
				res.NewKey, err = w.text()
			}
		case "Status":
			if w.parent() == "Collection" {
				var text string
				text, err = w.text()
				if err == nil {
					res.Status, err = strconv.Atoi(text)
				}
			}
		}
		if err != nil {
			return deleteResult{}, fmt.Errorf("parsing Sync Delete response: %v", err)
		}
	}
}

// =============================================================================
// Shared: body cleanup and date parsing
// =============================================================================

var htmlLineBreaks = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<p>", "\n", "</p>", "\n", "<div>", "\n", "</div>", "\n")

// unescapeXMLText reverses the entity escaping order the spec mandates:
// &amp; last, so an already-decoded "&lt;" does not get re-interpreted.
func unescapeXMLText(s string) string {
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&apos;", "'")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return s
}

// cleanBody unescapes entities and collapses HTML line breaks to newlines.
// Duplicate-line removal, which compensates for an Exchange bug that
// occasionally repeats the body during sync, is done by dedupeLines.
func cleanBody(raw string) string {
	text := unescapeXMLText(raw)
	text = htmlLineBreaks.Replace(text)
	return text
}

// dedupeLines removes every repeat of a non-blank line, keeping its first
// occurrence, whether or not the repeats are consecutive. Exposed
// separately from cleanBody so callers can gate it behind
// Options.DedupeBodyLines.
func dedupeLines(text string) string {
	lines := strings.Split(text, "\n")
	seen := make(map[string]bool, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			out = append(out, line)
			continue
		}
		if seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// parseDate accepts both the EAS (yyyyMMddTHHmmssZ) and EWS
// (yyyy-MM-ddTHH:mm:ss[Z]) wire formats, always interpreted as UTC.
func parseDate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	layouts := []string{"20060102T150405Z", "2006-01-02T15:04:05Z", "2006-01-02T15:04:05"}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC().UnixMilli(), nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("parsing date %q: %v", s, lastErr)
}
