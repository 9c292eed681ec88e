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
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easclient/errs"
	"easclient/model"
)

const findItemWithOneResultXML = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
<soap:Body><m:FindItemResponse><m:ResponseMessages><m:FindItemResponseMessage ResponseClass="Success">
<m:RootFolder><t:Items><t:CalendarItem><t:ItemId Id="AAA=" ChangeKey="CCC=" /></t:CalendarItem></t:Items></m:RootFolder>
</m:FindItemResponseMessage></m:ResponseMessages></m:FindItemResponse></soap:Body></soap:Envelope>`

const findItemEmptyXML = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
<soap:Body><m:FindItemResponse><m:ResponseMessages><m:FindItemResponseMessage ResponseClass="Success">
<m:RootFolder><t:Items xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types"></t:Items></m:RootFolder>
</m:FindItemResponseMessage></m:ResponseMessages></m:FindItemResponse></soap:Body></soap:Envelope>`

func soapFaultXML(code, msg string) string {
	return `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
<soap:Body><soap:Fault><faultcode>soap:Server</faultcode><faultstring>ErrorItemNotFound</faultstring>
<detail><ResponseCode>` + code + `</ResponseCode><Message>` + msg + `</Message></detail>
</soap:Fault></soap:Body></soap:Envelope>`
}

// multiplexHandler dispatches on which SOAP operation element a request
// body contains, independent of the SOAPAction header; it only asserts
// that the header sendRequest sets on every call is present.
func multiplexHandler(t *testing.T, routes map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("SOAPAction"), "EWS request missing SOAPAction header")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		s := string(body)
		for needle, resp := range routes {
			if strings.Contains(s, needle) {
				w.Write([]byte(resp))
				return
			}
		}
		t.Fatalf("unexpected EWS request: %s", s)
	}
}

func newEWSClientAgainst(server *httptest.Server) *EWSClient {
	account := model.Account{Username: "alice@example.com", Password: "x", EWSURL: server.URL}
	c := NewEWSClient(account, model.DialectEAS14)
	c.http = server.Client()
	return c
}

func TestCreateItemReturnsItemIdFromResponse(t *testing.T) {
	const resp = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
<soap:Body><m:CreateItemResponse><m:ResponseMessages><m:CreateItemResponseMessage ResponseClass="Success"><m:ResponseCode>NoError</m:ResponseCode>
<m:Items><t:CalendarItem xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types"><t:ItemId Id="NEWID=" /></t:CalendarItem></m:Items>
</m:CreateItemResponseMessage></m:ResponseMessages></m:CreateItemResponse></soap:Body></soap:Envelope>`

	server := httptest.NewServer(multiplexHandler(t, map[string]string{"m:CreateItem": resp}))
	defer server.Close()
	c := newEWSClientAgainst(server)

	id, err := c.CreateItem(context.Background(), sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, "NEWID=", id)
}

func TestCreateItemFabricatesPlaceholderWhenItemIdMissing(t *testing.T) {
	const resp = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
<soap:Body><m:CreateItemResponse><m:ResponseMessages><m:CreateItemResponseMessage ResponseClass="Success"><m:ResponseCode>NoError</m:ResponseCode>
<m:Items></m:Items>
</m:CreateItemResponseMessage></m:ResponseMessages></m:CreateItemResponse></soap:Body></soap:Envelope>`

	server := httptest.NewServer(multiplexHandler(t, map[string]string{"m:CreateItem": resp}))
	defer server.Close()
	c := newEWSClientAgainst(server)

	id, err := c.CreateItem(context.Background(), sampleEvent())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "pending_sync_"))
}

func TestUpdateItemFindsItemThenUpdatesFields(t *testing.T) {
	const updateResp = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
<soap:Body><m:UpdateItemResponse><m:ResponseMessages><m:UpdateItemResponseMessage ResponseClass="Success"><m:ResponseCode>NoError</m:ResponseCode></m:UpdateItemResponseMessage>
</m:ResponseMessages></m:UpdateItemResponse></soap:Body></soap:Envelope>`

	server := httptest.NewServer(multiplexHandler(t, map[string]string{
		"m:FindItem":   findItemWithOneResultXML,
		"m:UpdateItem": updateResp,
	}))
	defer server.Close()
	c := newEWSClientAgainst(server)

	ev := sampleEvent()
	ev.ServerID = "5:23" // short ActiveSync server id, needs FindItem resolution
	err := c.UpdateItem(context.Background(), ev)
	require.NoError(t, err)
}

func TestUpdateItemFailsWhenItemNotFound(t *testing.T) {
	server := httptest.NewServer(multiplexHandler(t, map[string]string{"m:FindItem": findItemEmptyXML}))
	defer server.Close()
	c := newEWSClientAgainst(server)

	ev := sampleEvent()
	ev.ServerID = "5:99"
	err := c.UpdateItem(context.Background(), ev)
	require.Error(t, err)
}

func TestCreateItemReturnsProtocolStatusOnNonNoErrorResponseCode(t *testing.T) {
	const resp = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
<soap:Body><m:CreateItemResponse><m:ResponseMessages><m:CreateItemResponseMessage ResponseClass="Error"><m:ResponseCode>ErrorAccessDenied</m:ResponseCode>
<m:Items></m:Items>
</m:CreateItemResponseMessage></m:ResponseMessages></m:CreateItemResponse></soap:Body></soap:Envelope>`

	server := httptest.NewServer(multiplexHandler(t, map[string]string{"m:CreateItem": resp}))
	defer server.Close()
	c := newEWSClientAgainst(server)

	_, err := c.CreateItem(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindProtocolStatus))
}

func TestUpdateItemReturnsProtocolStatusOnNonNoErrorResponseCode(t *testing.T) {
	const updateResp = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
<soap:Body><m:UpdateItemResponse><m:ResponseMessages><m:UpdateItemResponseMessage ResponseClass="Error"><m:ResponseCode>ErrorItemNotFound</m:ResponseCode></m:UpdateItemResponseMessage>
</m:ResponseMessages></m:UpdateItemResponse></soap:Body></soap:Envelope>`

	server := httptest.NewServer(multiplexHandler(t, map[string]string{
		"m:FindItem":   findItemWithOneResultXML,
		"m:UpdateItem": updateResp,
	}))
	defer server.Close()
	c := newEWSClientAgainst(server)

	ev := sampleEvent()
	ev.ServerID = "5:23"
	err := c.UpdateItem(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindProtocolStatus))
}

func TestDeleteItemReturnsProtocolStatusOnNonNoErrorResponseCode(t *testing.T) {
	const deleteResp = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
<soap:Body><m:DeleteItemResponse><m:ResponseMessages><m:DeleteItemResponseMessage ResponseClass="Error"><m:ResponseCode>ErrorItemNotFound</m:ResponseCode></m:DeleteItemResponseMessage>
</m:ResponseMessages></m:DeleteItemResponse></soap:Body></soap:Envelope>`

	server := httptest.NewServer(multiplexHandler(t, map[string]string{"m:DeleteItem": deleteResp}))
	defer server.Close()
	c := newEWSClientAgainst(server)

	err := c.DeleteItem(context.Background(), "pending_sync_12345", "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindProtocolStatus))
}

func TestDeleteItemFindsItemThenDeletes(t *testing.T) {
	const deleteResp = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
<soap:Body><m:DeleteItemResponse><m:ResponseMessages><m:DeleteItemResponseMessage ResponseClass="Success"><m:ResponseCode>NoError</m:ResponseCode></m:DeleteItemResponseMessage>
</m:ResponseMessages></m:DeleteItemResponse></soap:Body></soap:Envelope>`

	server := httptest.NewServer(multiplexHandler(t, map[string]string{
		"m:FindItem":   findItemWithOneResultXML,
		"m:DeleteItem": deleteResp,
	}))
	defer server.Close()
	c := newEWSClientAgainst(server)

	err := c.DeleteItem(context.Background(), "5:23", "Standup")
	require.NoError(t, err)
}

func TestDeleteItemSkipsResolutionForFullItemID(t *testing.T) {
	const deleteResp = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
<soap:Body><m:DeleteItemResponse><m:ResponseMessages><m:DeleteItemResponseMessage ResponseClass="Success"><m:ResponseCode>NoError</m:ResponseCode></m:DeleteItemResponseMessage>
</m:ResponseMessages></m:DeleteItemResponse></soap:Body></soap:Envelope>`

	server := httptest.NewServer(multiplexHandler(t, map[string]string{"m:DeleteItem": deleteResp}))
	defer server.Close()
	c := newEWSClientAgainst(server)

	err := c.DeleteItem(context.Background(), "pending_sync_12345", "")
	require.NoError(t, err)
}

func TestFindItemIDBySubjectReturnsNotFoundWhenEmpty(t *testing.T) {
	server := httptest.NewServer(multiplexHandler(t, map[string]string{"m:FindItem": findItemEmptyXML}))
	defer server.Close()
	c := newEWSClientAgainst(server)

	_, err := c.findItemIDBySubject(context.Background(), "alice@example.com", "Standup")
	assert.ErrorIs(t, err, errNotFound)
}

func TestResolveDNPassesThroughSMTPAddresses(t *testing.T) {
	server := httptest.NewServer(multiplexHandler(t, map[string]string{}))
	defer server.Close()
	c := newEWSClientAgainst(server)

	smtp, err := c.resolveDN(context.Background(), "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", smtp)
}

func TestResolveDNCachesResult(t *testing.T) {
	const resolveResp = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages" xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types">
<soap:Body><m:ResolveNamesResponse><m:ResponseMessages><m:ResolveNamesResponseMessage ResponseClass="Success">
<m:ResolutionSet><t:Resolution><t:Mailbox><t:EmailAddress>carol@example.com</t:EmailAddress></t:Mailbox></t:Resolution></m:ResolutionSet>
</m:ResolveNamesResponseMessage></m:ResponseMessages></m:ResolveNamesResponse></soap:Body></soap:Envelope>`

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(resolveResp))
	}))
	defer server.Close()
	c := newEWSClientAgainst(server)

	smtp1, err := c.resolveDN(context.Background(), "/O=CONTOSO/CN=RECIPIENTS/CN=CAROL")
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", smtp1)

	smtp2, err := c.resolveDN(context.Background(), "/O=CONTOSO/CN=RECIPIENTS/CN=CAROL")
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", smtp2)
	assert.Equal(t, 1, calls, "second lookup must be served from the address cache")
}

func TestCheckSOAPFaultDetectsFault(t *testing.T) {
	err := checkSOAPFault("calendar.ews.Test", []byte(soapFaultXML("ErrorItemNotFound", "The item was not found.")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ErrorItemNotFound")
	assert.True(t, errs.Is(err, errs.KindProtocolStatus))
}

func TestCheckSOAPFaultIgnoresNormalResponse(t *testing.T) {
	err := checkSOAPFault("calendar.ews.Test", []byte(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body><m:Ping/></soap:Body></soap:Envelope>`))
	assert.NoError(t, err)
}

func TestIsSMTPAddress(t *testing.T) {
	assert.True(t, isSMTPAddress("alice@example.com"))
	assert.False(t, isSMTPAddress("/O=CONTOSO/CN=RECIPIENTS/CN=ALICE"))
}
