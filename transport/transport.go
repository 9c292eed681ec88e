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

// Package transport wraps a single EAS HTTP round-trip: encoding,
// authentication, header assembly, decoding and the retry policy that maps
// wire-level failures onto errs.Kind.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/eliona-smart-building-assistant/go-utils/log"
	"golang.org/x/sync/singleflight"

	"easclient/errs"
	"easclient/model"
	"easclient/ntlm"
	"easclient/wbxml"
)

// HTTPDoer is the seam between this package and the real network: the
// production client plugs in *http.Client, tests plug in an in-memory
// double, per the dependency-injection design this package replaces
// function-pointer bundles with.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PolicyProvider is satisfied by *provision.FSM. Kept as an interface here
// so this package does not import provision (provision.Transport already
// depends on this package's Client to send the Provision command itself).
type PolicyProvider interface {
	CurrentPolicyKey() string
	EnsureProvisioned(ctx context.Context) error
	Invalidate()
}

// Config are the tunable knobs the spec enumerates; every other behavior
// is a constant.
type Config struct {
	WindowSize  int
	EWSEnabled  bool
}

// DefaultConfig mirrors the spec's defaults.
var DefaultConfig = Config{WindowSize: 100, EWSEnabled: true}

// Client executes EAS commands against a single account.
type Client struct {
	http    HTTPDoer
	account model.Account

	version     model.Published[model.ServerVersion]
	versionOnce singleflight.Group

	policy PolicyProvider
}

// New builds a Client. policy may be nil only for the version-detection
// probe and Provision itself, which run before any PolicyKey exists.
func New(doer HTTPDoer, account model.Account, policy PolicyProvider) *Client {
	return &Client{http: doer, account: account, policy: policy}
}

// ExecuteProvision satisfies provision.Transport: it sends a Provision
// command with an explicit PolicyKey (the FSM owns that value during the
// handshake, not the Client's policy provider, which may not be Active yet).
func (c *Client) ExecuteProvision(ctx context.Context, xmlBody string, policyKey string) ([]byte, error) {
	return c.execute(ctx, "Provision", xmlBody, policyKey)
}

// Execute runs cmd with xmlBody and parses the decoded XML response with
// parse. Defined as a free function because Go methods cannot carry their
// own type parameters.
func Execute[T any](ctx context.Context, c *Client, cmd string, xmlBody string, parse func([]byte) (T, error)) (T, error) {
	var zero T
	if c.policy != nil {
		if err := c.policy.EnsureProvisioned(ctx); err != nil {
			return zero, err
		}
	}
	policyKey := model.UnprovisionedPolicyKey
	if c.policy != nil {
		policyKey = c.policy.CurrentPolicyKey()
	}

	respXML, err := c.execute(ctx, cmd, xmlBody, policyKey)
	if err != nil {
		if errs.Is(err, errs.KindProvisioning) && c.policy != nil {
			c.policy.Invalidate()
			if rerr := c.policy.EnsureProvisioned(ctx); rerr != nil {
				return zero, rerr
			}
			respXML, err = c.execute(ctx, cmd, xmlBody, c.policy.CurrentPolicyKey())
		}
		if err != nil {
			return zero, err
		}
	}

	out, err := parse(respXML)
	if err != nil {
		return zero, errs.New(fmt.Sprintf("transport.%s", cmd), errs.KindParse, err)
	}
	return out, nil
}

// execute performs one EAS command round-trip, handling 401-once and
// 5xx classification. 449 is surfaced as errs.KindProvisioning so Execute
// can invalidate and retry via the FSM.
func (c *Client) execute(ctx context.Context, cmd string, xmlBody string, policyKey string) ([]byte, error) {
	version, err := c.detectVersion(ctx)
	if err != nil {
		return nil, err
	}

	var wireBody bytes.Buffer
	if err := wbxml.Encode(&wireBody, strings.NewReader(xmlBody), wbxml.Tags); err != nil {
		return nil, errs.New(fmt.Sprintf("transport.%s", cmd), errs.KindParse, err)
	}

	newReq := func(authHeader string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.commandURL(cmd), bytes.NewReader(wireBody.Bytes()))
		if err != nil {
			return nil, fmt.Errorf("building request for %s: %v", cmd, err)
		}
		req.Header.Set("MS-ASProtocolVersion", version.String())
		req.Header.Set("X-MS-PolicyKey", policyKey)
		req.Header.Set("Content-Type", "application/vnd.ms-sync.wbxml")
		req.Header.Set("Accept", "application/vnd.ms-sync.wbxml")
		req.Header.Set("User-Agent", "easclient/1.0")
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		} else {
			req.SetBasicAuth(c.account.Username, c.account.Password)
		}
		return req, nil
	}

	resp, err := c.doAuthenticated(newReq)
	if err != nil {
		return nil, errs.New(fmt.Sprintf("transport.%s", cmd), errs.KindTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(fmt.Sprintf("transport.%s", cmd), errs.KindTransport, fmt.Errorf("reading response body: %v", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		decoded, err := wbxml.Decode(bytes.NewReader(body))
		if err != nil {
			return nil, errs.New(fmt.Sprintf("transport.%s", cmd), errs.KindParse, err)
		}
		return decoded, nil
	case resp.StatusCode == 449:
		return nil, errs.WithStatus(fmt.Sprintf("transport.%s", cmd), errs.KindProvisioning, 449, fmt.Errorf("server requires re-provisioning"))
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, errs.WithStatus(fmt.Sprintf("transport.%s", cmd), errs.KindAuth, resp.StatusCode, fmt.Errorf("authentication rejected"))
	case resp.StatusCode >= 500:
		return nil, errs.WithStatus(fmt.Sprintf("transport.%s", cmd), errs.KindTransport, resp.StatusCode, fmt.Errorf("server error %d", resp.StatusCode))
	default:
		return nil, errs.WithStatus(fmt.Sprintf("transport.%s", cmd), errs.KindTransport, resp.StatusCode, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode))
	}
}

// doAuthenticated performs the two-leg NTLM dance when the server replies
// 401 to the first attempt, per the "401 once" retry policy. newReq must be
// safe to call twice: the request body is rebuilt, not replayed, because
// http.Request.Body is single-use.
func (c *Client) doAuthenticated(newReq func(authHeader string) (*http.Request, error)) (*http.Response, error) {
	req1, err := newReq("")
	if err != nil {
		return nil, err
	}
	resp1, err := c.http.Do(req1)
	if err != nil {
		return nil, fmt.Errorf("sending request: %v", err)
	}
	if resp1.StatusCode != http.StatusUnauthorized {
		return resp1, nil
	}
	wwwAuth := resp1.Header.Get("WWW-Authenticate")
	resp1.Body.Close()
	if !strings.HasPrefix(wwwAuth, "NTLM ") {
		// Not an NTLM challenge (e.g. plain Basic rejection): send the
		// request once more with Basic credentials and return that
		// response as-is.
		req2, err := newReq("")
		if err != nil {
			return nil, err
		}
		return c.http.Do(req2)
	}

	challenge, err := ntlm.ParseChallenge(strings.TrimPrefix(wwwAuth, "NTLM "))
	if err != nil {
		return nil, fmt.Errorf("parsing ntlm challenge: %v", err)
	}
	type3, err := ntlm.BuildAuthenticate(challenge, c.account.Domain, c.account.Username, c.account.Password)
	if err != nil {
		return nil, fmt.Errorf("building ntlm authenticate message: %v", err)
	}
	req2, err := newReq(ntlm.AuthorizationHeader(type3))
	if err != nil {
		return nil, err
	}
	log.Debug("transport", "retrying request with NTLM authenticate message")
	return c.http.Do(req2)
}

func (c *Client) commandURL(cmd string) string {
	q := url.Values{}
	q.Set("Cmd", cmd)
	q.Set("User", c.account.Username)
	q.Set("DeviceId", c.account.DeviceID)
	q.Set("DeviceType", "Android")
	return fmt.Sprintf("%s/Microsoft-Server-ActiveSync?%s", strings.TrimRight(c.account.ServerBaseURL, "/"), q.Encode())
}

// Version returns the server version detected by the last successful
// probe, for diagnostics; ok is false before the first command runs.
func (c *Client) Version() (model.ServerVersion, bool) {
	return c.version.Load()
}

// detectVersion runs the HEAD/OPTIONS probe at most once per Client: every
// concurrent caller before the first result lands blocks on the same
// singleflight call instead of issuing redundant probes.
func (c *Client) detectVersion(ctx context.Context) (model.ServerVersion, error) {
	if v, ok := c.version.Load(); ok {
		return v, nil
	}
	v, err, _ := c.versionOnce.Do("detect", func() (interface{}, error) {
		if v, ok := c.version.Load(); ok {
			return v, nil
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodOptions, c.account.ServerBaseURL+"/Microsoft-Server-ActiveSync", nil)
		if err != nil {
			return model.ServerVersion{}, fmt.Errorf("building version probe request: %v", err)
		}
		req.SetBasicAuth(c.account.Username, c.account.Password)
		resp, err := c.http.Do(req)
		if err != nil {
			return model.ServerVersion{}, fmt.Errorf("probing server version: %v", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		sv := model.HighestSupported(resp.Header.Get("MS-ASProtocolVersions"))
		c.version.Store(sv)
		log.Debug("transport", "detected server version %s (dialect %v)", sv.String(), sv.Dialect())
		return sv, nil
	})
	if err != nil {
		return model.ServerVersion{}, errs.New("transport.detectVersion", errs.KindTransport, err)
	}
	return v.(model.ServerVersion), nil
}
