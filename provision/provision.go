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

// Package provision drives the MS-ASPROV two-phase policy handshake and
// owns the PolicyKey every other EAS command must carry.
package provision

import (
	"context"
	"fmt"
	"sync"

	"github.com/eliona-smart-building-assistant/go-utils/log"

	"easclient/errs"
	"easclient/model"
)

// State is the handshake's externally-visible progress.
type State int

const (
	StateUnknown State = iota
	StatePhase1Requested
	StatePhase1Ack
	StatePhase2Requested
	StateActive
)

func (s State) String() string {
	switch s {
	case StatePhase1Requested:
		return "Phase1Requested"
	case StatePhase1Ack:
		return "Phase1Ack"
	case StatePhase2Requested:
		return "Phase2Requested"
	case StateActive:
		return "Active"
	default:
		return "Unknown"
	}
}

// PolicyType is the only policy document this client negotiates.
const PolicyType = "MS-EAS-Provisioning-WBXML"

// Provision Status codes, MS-ASPROV 2.2.2.2.
const (
	StatusOK                = 1
	StatusProtocolError     = 2
	StatusServerError       = 3
	StatusClientCannotComply = 139
	StatusNotProvisionable  = 141
	StatusExternallyManaged = 145
)

// Policy Status codes, MS-ASPROV 2.2.2.4.
const (
	PolicyStatusSuccess       = 1
	PolicyStatusNoPolicy      = 2
	PolicyStatusUnknownType   = 3
	PolicyStatusCorrupted     = 4
	PolicyStatusWrongKey      = 5
)

// DeviceInfo is stamped into the EAS14 Phase 1 request's
// settings:DeviceInformation block.
type DeviceInfo struct {
	Model       string
	IMEI        string
	FriendlyName string
	OS          string
	UserAgent   string
}

// Transport is the seam FSM uses to send a Provision command; satisfied by
// transport.Client, kept minimal here so this package does not import
// transport (which in turn depends on this package for current_policy_key).
type Transport interface {
	ExecuteProvision(ctx context.Context, xmlBody string, policyKey string) (respXML []byte, err error)
}

// phase1Result is what parsePhase1 extracts from the decoded response.
type phase1Result struct {
	provisionStatus int
	policyStatus    int
	policyKey       string
}

// FSM drives the handshake and publishes the currently-Active PolicyKey.
// Re-provisioning is serialized under reprovisionMu so a 449 storm across
// many in-flight commands triggers exactly one handshake.
type FSM struct {
	transport Transport
	device    DeviceInfo
	dialect   model.Dialect

	mu    sync.Mutex
	state State
	key   model.Published[model.PolicyKey]

	reprovisionMu sync.Mutex
}

// New builds an FSM. dialect picks whether DeviceInformation is sent in
// Phase 1 (EAS14 only).
func New(t Transport, device DeviceInfo, dialect model.Dialect) *FSM {
	f := &FSM{transport: t, device: device, dialect: dialect, state: StateUnknown}
	return f
}

// CurrentPolicyKey returns the key string transport.Client stamps into
// every outgoing EAS request's X-MS-PolicyKey header: "0" before any
// handshake has completed.
func (f *FSM) CurrentPolicyKey() string {
	if pk, ok := f.key.Load(); ok {
		return pk.Value
	}
	return model.UnprovisionedPolicyKey
}

// State reports the FSM's current phase, mostly for diagnostics.
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Invalidate drops the current PolicyKey, e.g. after a 449 response, so
// the next EnsureProvisioned call re-runs the handshake.
func (f *FSM) Invalidate() {
	f.mu.Lock()
	f.state = StateUnknown
	f.mu.Unlock()
	f.key.Clear()
}

// EnsureProvisioned runs the handshake if not already Active. Concurrent
// callers after a 449 invalidation all block on the same reprovisionMu and
// only the first actually talks to the server; the rest observe the
// freshly-published key once it returns.
func (f *FSM) EnsureProvisioned(ctx context.Context) error {
	f.mu.Lock()
	alreadyActive := f.state == StateActive
	f.mu.Unlock()
	if alreadyActive {
		return nil
	}

	f.reprovisionMu.Lock()
	defer f.reprovisionMu.Unlock()

	f.mu.Lock()
	alreadyActive = f.state == StateActive
	f.mu.Unlock()
	if alreadyActive {
		return nil
	}

	log.Debug("provision", "starting MS-ASPROV handshake")
	return f.runHandshake(ctx)
}

func (f *FSM) runHandshake(ctx context.Context) error {
	f.setState(StatePhase1Requested)

	phase1Body := f.buildRequest("", "")
	respXML, err := f.transport.ExecuteProvision(ctx, phase1Body, model.UnprovisionedPolicyKey)
	if err != nil {
		f.setState(StateUnknown)
		return errs.New("provision.Phase1", errs.KindTransport, err)
	}
	res, err := parsePhase1(respXML)
	if err != nil {
		f.setState(StateUnknown)
		return errs.New("provision.Phase1", errs.KindParse, err)
	}
	if res.provisionStatus != StatusOK {
		f.setState(StateUnknown)
		return errs.WithStatus("provision.Phase1", errs.KindProvisioning, res.provisionStatus, fmt.Errorf("server rejected provisioning (status=%d)", res.provisionStatus))
	}

	switch res.policyStatus {
	case PolicyStatusNoPolicy:
		log.Debug("provision", "server reports no applicable policy")
		f.key.Store(model.PolicyKey{Value: model.UnprovisionedPolicyKey, State: model.PolicyActive})
		f.setState(StateActive)
		return nil
	case PolicyStatusSuccess:
		if res.policyKey == "" {
			f.setState(StateUnknown)
			return errs.New("provision.Phase1", errs.KindProvisioning, fmt.Errorf("policy status=1 but PolicyKey missing"))
		}
		f.key.Store(model.PolicyKey{Value: res.policyKey, State: model.PolicyProvisional})
		f.setState(StatePhase1Ack)
	default:
		f.setState(StateUnknown)
		return errs.WithStatus("provision.Phase1", errs.KindProvisioning, res.policyStatus, fmt.Errorf("unacceptable policy status %d", res.policyStatus))
	}

	tempKey, _ := f.key.Load()
	f.setState(StatePhase2Requested)
	phase2Body := f.buildRequest(tempKey.Value, "1")
	respXML, err = f.transport.ExecuteProvision(ctx, phase2Body, model.UnprovisionedPolicyKey)
	if err != nil {
		f.setState(StateUnknown)
		return errs.New("provision.Phase2", errs.KindTransport, err)
	}
	res2, err := parsePhase1(respXML)
	if err != nil {
		f.setState(StateUnknown)
		return errs.New("provision.Phase2", errs.KindParse, err)
	}
	if res2.provisionStatus != StatusOK {
		f.setState(StateUnknown)
		return errs.WithStatus("provision.Phase2", errs.KindProvisioning, res2.provisionStatus, fmt.Errorf("server rejected phase 2 (status=%d)", res2.provisionStatus))
	}
	finalKey := res2.policyKey
	if finalKey == "" {
		finalKey = tempKey.Value
	}
	f.key.Store(model.PolicyKey{Value: finalKey, State: model.PolicyActive})
	f.setState(StateActive)
	log.Debug("provision", "handshake complete, policy key active")
	return nil
}

func (f *FSM) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}
