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
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easclient/model"
)

type stubTransport struct {
	phase1Resp string
	phase2Resp string
	calls      int
}

func (s *stubTransport) ExecuteProvision(_ context.Context, xmlBody string, _ string) ([]byte, error) {
	s.calls++
	if s.calls == 1 {
		return []byte(s.phase1Resp), nil
	}
	return []byte(s.phase2Resp), nil
}

func TestFreshClientTwoPhaseHandshake(t *testing.T) {
	// Scenario 1: Phase 1 returns Policy Status=1 and a temp key; Phase 2
	// echoes the same key.
	phase1 := `<Provision xmlns="provision"><Status>1</Status><Policies><Policy><PolicyType>MS-EAS-Provisioning-WBXML</PolicyType><Status>1</Status><PolicyKey>1234567890</PolicyKey></Policy></Policies></Provision>`
	phase2 := `<Provision xmlns="provision"><Status>1</Status><Policies><Policy><PolicyType>MS-EAS-Provisioning-WBXML</PolicyType><Status>1</Status><PolicyKey>1234567890</PolicyKey></Policy></Policies></Provision>`
	tr := &stubTransport{phase1Resp: phase1, phase2Resp: phase2}
	fsm := New(tr, DeviceInfo{Model: "m", IMEI: "123456789012345", FriendlyName: "f", OS: "o", UserAgent: "u"}, model.DialectEAS14)

	err := fsm.EnsureProvisioned(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateActive, fsm.State())
	assert.Equal(t, "1234567890", fsm.CurrentPolicyKey())
	assert.Equal(t, 2, tr.calls)
}

func TestNoPolicyServerSkipsPhase2(t *testing.T) {
	// Scenario 2: Policy Status=2, no key; no Phase 2 call is issued.
	phase1 := `<Provision xmlns="provision"><Status>1</Status><Policies><Policy><PolicyType>MS-EAS-Provisioning-WBXML</PolicyType><Status>2</Status></Policy></Policies></Provision>`
	tr := &stubTransport{phase1Resp: phase1}
	fsm := New(tr, DeviceInfo{}, model.DialectEAS12)

	err := fsm.EnsureProvisioned(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateActive, fsm.State())
	assert.Equal(t, model.UnprovisionedPolicyKey, fsm.CurrentPolicyKey())
	assert.Equal(t, 1, tr.calls)
}

func TestProvisionStatusNotOneFails(t *testing.T) {
	phase1 := `<Provision xmlns="provision"><Status>2</Status><Policies><Policy><PolicyType>MS-EAS-Provisioning-WBXML</PolicyType></Policy></Policies></Provision>`
	tr := &stubTransport{phase1Resp: phase1}
	fsm := New(tr, DeviceInfo{}, model.DialectEAS12)

	err := fsm.EnsureProvisioned(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateUnknown, fsm.State())
}

func TestEnsureProvisionedIsIdempotentOnceActive(t *testing.T) {
	phase1 := `<Provision xmlns="provision"><Status>1</Status><Policies><Policy><Status>2</Status></Policy></Policies></Provision>`
	tr := &stubTransport{phase1Resp: phase1}
	fsm := New(tr, DeviceInfo{}, model.DialectEAS12)

	require.NoError(t, fsm.EnsureProvisioned(context.Background()))
	require.NoError(t, fsm.EnsureProvisioned(context.Background()))
	assert.Equal(t, 1, tr.calls, "second call must not re-run the handshake")
}

func TestInvalidateForcesReprovision(t *testing.T) {
	phase1 := `<Provision xmlns="provision"><Status>1</Status><Policies><Policy><Status>2</Status></Policy></Policies></Provision>`
	tr := &stubTransport{phase1Resp: phase1, phase2Resp: phase1}
	fsm := New(tr, DeviceInfo{}, model.DialectEAS12)

	require.NoError(t, fsm.EnsureProvisioned(context.Background()))
	fsm.Invalidate()
	assert.Equal(t, model.UnprovisionedPolicyKey, fsm.CurrentPolicyKey())
	require.NoError(t, fsm.EnsureProvisioned(context.Background()))
	assert.Equal(t, 2, tr.calls)
}

func TestBuildRequestOmitsDeviceInfoOnEAS12(t *testing.T) {
	fsm := New(&stubTransport{}, DeviceInfo{Model: "Pixel"}, model.DialectEAS12)
	body := fsm.buildRequest("", "")
	assert.NotContains(t, body, "DeviceInformation")
}

func TestBuildRequestIncludesDeviceInfoOnEAS14(t *testing.T) {
	fsm := New(&stubTransport{}, DeviceInfo{Model: "Pixel", IMEI: "000111222333444555"}, model.DialectEAS14)
	body := fsm.buildRequest("", "")
	assert.Contains(t, body, "<Model>Pixel</Model>")
	assert.Contains(t, body, fmt.Sprintf("<IMEI>%s</IMEI>", last15("000111222333444555")))
}
