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

package model

// UnprovisionedPolicyKey is the sentinel value stamped on the very first
// Provision request and reused for servers that report no applicable
// policy (Policy Status == 2).
const UnprovisionedPolicyKey = "0"

// PolicyState is the provisioning FSM's externally-visible state, owned by
// the provision package and read by the transport package on every
// request.
type PolicyState int

const (
	PolicyUnprovisioned PolicyState = iota
	PolicyProvisional
	PolicyActive
)

func (s PolicyState) String() string {
	switch s {
	case PolicyProvisional:
		return "Provisional"
	case PolicyActive:
		return "Active"
	default:
		return "Unprovisioned"
	}
}

// PolicyKey is the opaque server-issued policy acknowledgment token plus
// the state it was obtained in.
type PolicyKey struct {
	Value string
	State PolicyState
}
