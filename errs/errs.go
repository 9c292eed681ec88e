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

// Package errs classifies every failure the engine can produce into one of
// the seven kinds the retry policy (§7) dispatches on. No error is ever
// swallowed: every layer that wraps an error preserves the originating
// Kind and, where applicable, the wire status code.
package errs

import "fmt"

// Kind is one of the seven error classifications.
type Kind int

const (
	KindTransport Kind = iota
	KindAuth
	KindProvisioning
	KindProtocolStatus
	KindParse
	KindLogic
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindProvisioning:
		return "provisioning"
	case KindProtocolStatus:
		return "protocol_status"
	case KindParse:
		return "parse"
	case KindLogic:
		return "logic"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the engine's classified error. Status carries the wire status
// code that produced it: an EAS or Provision Status code, or the HTTP
// status code of a rejected request. It is 0 when not applicable; EWS
// failures leave it 0 and report their ResponseCode in Err's text.
type Error struct {
	Kind   Kind
	Status int
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status=%d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a classified Error tagged with op and kind.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// WithStatus wraps err as a classified Error carrying a wire status code.
func WithStatus(op string, kind Kind, status int, err error) *Error {
	return &Error{Op: op, Kind: kind, Status: status, Err: err}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	return e.Kind == kind
}

// StatusOf extracts the wire status code from a classified error, if any.
func StatusOf(err error) (int, bool) {
	var e *Error
	if !asError(err, &e) {
		return 0, false
	}
	if e.Status == 0 {
		return 0, false
	}
	return e.Status, true
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
