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

package transport

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// MemoryRoundTripper is the in-memory HTTPDoer double the test suite uses
// in place of a real *http.Client: it hands back scripted responses keyed
// by call order, without touching a socket.
type MemoryRoundTripper struct {
	mu        sync.Mutex
	Responses []*http.Response
	Requests  []*http.Request
	next      int
}

// Do implements HTTPDoer.
func (m *MemoryRoundTripper) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.next >= len(m.Responses) {
		return nil, io.ErrUnexpectedEOF
	}
	resp := m.Responses[m.next]
	m.next++
	return resp, nil
}

// NewResponse builds a canned *http.Response with the given status, body
// and headers; it sets no Content-Type of its own.
func NewResponse(status int, body []byte, headers map[string]string) *http.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}
