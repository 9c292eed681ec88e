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
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Azure/go-ntlmssp"
	"github.com/eliona-smart-building-assistant/go-utils/log"

	"easclient/errs"
	"easclient/model"
)

var errNotFound = fmt.Errorf("entity not found")

const soapActionBase = "http://schemas.microsoft.com/exchange/services/2006/messages/"

// EWSClient is the SOAP 1.1 fallback this engine reaches for when the
// active EAS dialect cannot express an operation at all (spec-flagged
// "best effort" territory, e.g. attendee editing on EAS 12.x).
type EWSClient struct {
	http    *http.Client
	ewsURL  string
	account model.Account
	dialect model.Dialect

	mu           sync.Mutex
	addressCache map[string]string
}

// NewEWSClient builds an EWSClient authenticating via NTLM, the only
// scheme this engine's on-prem Exchange targets expose.
func NewEWSClient(account model.Account, dialect model.Dialect) *EWSClient {
	return &EWSClient{
		http: &http.Client{
			Transport: ntlmssp.Negotiator{RoundTripper: &http.Transport{}},
		},
		ewsURL:       account.EWSURL,
		account:      account,
		dialect:      dialect,
		addressCache: make(map[string]string),
	}
}

// serverVersion picks the RequestServerVersion SOAP header value for the
// active dialect; EAS 12.x maps to the oldest EWS schema this client
// speaks, EAS 14.x to the schema that understands HTML bodies.
func (c *EWSClient) serverVersion() string {
	if c.dialect == model.DialectEAS14 {
		return "Exchange2010_SP1"
	}
	return "Exchange2007_SP1"
}

// sendRequest POSTs xmlBody to the EWS endpoint, tagging the request with
// the SOAPAction header for op (the top-level EWS operation name, e.g.
// "CreateItem") as required by the SOAP 1.1 binding Exchange expects.
func (c *EWSClient) sendRequest(ctx context.Context, op, xmlBody string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ewsURL, bytes.NewBufferString(xmlBody))
	if err != nil {
		return nil, fmt.Errorf("creating EWS request: %v", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapActionBase+op)
	req.SetBasicAuth(c.account.Username, c.account.Password) // needed for NTLM

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending EWS request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading EWS response body: %v", err)
	}
	return body, nil
}

type soapFault struct {
	Body struct {
		Fault struct {
			FaultCode   string `xml:"faultcode"`
			FaultString string `xml:"faultstring"`
			Detail      struct {
				ResponseCode string `xml:"ResponseCode"`
				Message      string `xml:"Message"`
			} `xml:"detail"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

func checkSOAPFault(op string, respXML []byte) error {
	var fault soapFault
	if err := xml.Unmarshal(respXML, &fault); err == nil && fault.Body.Fault.FaultCode != "" {
		return errs.New(op, errs.KindProtocolStatus, fmt.Errorf("SOAP fault: %s - %s", fault.Body.Fault.Detail.ResponseCode, fault.Body.Fault.Detail.Message))
	}
	return nil
}

func legacyFreeBusyStatus(bs model.BusyStatus) string {
	switch bs {
	case model.BusyFree:
		return "Free"
	case model.BusyTentative:
		return "Tentative"
	case model.BusyOOF:
		return "OOF"
	default:
		return "Busy"
	}
}

func formatEWSAttendees(attendees []model.Attendee) string {
	var sb []byte
	for _, a := range attendees {
		sb = append(sb, fmt.Sprintf(`<t:Attendee><t:Mailbox><t:EmailAddress>%s</t:EmailAddress></t:Mailbox></t:Attendee>`, escapeXML(a.Email))...)
	}
	return string(sb)
}

// CreateItem creates a calendar item via EWS with its subject, start, end,
// all-day flag, free/busy status, location and required attendees. Body,
// reminder and sensitivity are not sent.
func (c *EWSClient) CreateItem(ctx context.Context, ev model.CalendarEvent) (string, error) {
	// Inviting zero attendees is a validation error on some Exchange
	// versions if SendMeetingInvitations asks for a send at all.
	sendInvites := "SendToNone"
	if len(ev.Attendees) > 0 {
		sendInvites = "SendToAllAndSaveCopy"
	}
	requestXML := fmt.Sprintf(`
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
    <soap:Header><t:RequestServerVersion Version="%s"/></soap:Header>
    <soap:Body>
        <m:CreateItem SendMeetingInvitations="%s">
            <m:SavedItemFolderId><t:DistinguishedFolderId Id="calendar"/></m:SavedItemFolderId>
            <m:Items>
                <t:CalendarItem>
                    <t:Subject>%s</t:Subject>
                    <t:Start>%s</t:Start>
                    <t:End>%s</t:End>
                    <t:IsAllDayEvent>%t</t:IsAllDayEvent>
                    <t:LegacyFreeBusyStatus>%s</t:LegacyFreeBusyStatus>
                    <t:Location>%s</t:Location>
                    <t:RequiredAttendees>%s</t:RequiredAttendees>
                </t:CalendarItem>
            </m:Items>
        </m:CreateItem>
    </soap:Body>
</soap:Envelope>`,
		c.serverVersion(), sendInvites, escapeXML(ev.Subject),
		time.UnixMilli(ev.StartUTCMs).UTC().Format(time.RFC3339),
		time.UnixMilli(ev.EndUTCMs).UTC().Format(time.RFC3339),
		ev.AllDay, legacyFreeBusyStatus(ev.BusyStatus), escapeXML(ev.Location),
		formatEWSAttendees(ev.Attendees))

	if ev.OrganizerEmail != "" && !isSMTPAddress(ev.OrganizerEmail) {
		if smtp, rerr := c.resolveDN(ctx, ev.OrganizerEmail); rerr == nil {
			log.Debug("calendar.ews", "resolved organizer DN to %s", smtp)
		}
	}

	respXML, err := c.sendRequest(ctx, "CreateItem", requestXML)
	if err != nil {
		return "", fmt.Errorf("requesting EWS CreateItem: %v", err)
	}
	if err := checkSOAPFault("calendar.ews.CreateItem", respXML); err != nil {
		return "", err
	}

	var env struct {
		Body struct {
			CreateItemResponse struct {
				ResponseMessages struct {
					CreateItemResponseMessage struct {
						ResponseClass string `xml:"ResponseClass,attr"`
						ResponseCode  string `xml:"ResponseCode"`
						Items         struct {
							CalendarItem struct {
								ItemId struct {
									ID string `xml:"Id,attr"`
								} `xml:"ItemId"`
							} `xml:"CalendarItem"`
						} `xml:"Items"`
					} `xml:"CreateItemResponseMessage"`
				} `xml:"ResponseMessages"`
			} `xml:"CreateItemResponse"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(respXML, &env); err != nil {
		return "", fmt.Errorf("unmarshaling EWS CreateItem response: %v", err)
	}
	msg := env.Body.CreateItemResponse.ResponseMessages.CreateItemResponseMessage
	if msg.ResponseClass != "Success" || msg.ResponseCode != "NoError" {
		return "", errs.New("calendar.ews.CreateItem", errs.KindProtocolStatus, fmt.Errorf("EWS CreateItem failed: %s", msg.ResponseCode))
	}
	id := msg.Items.CalendarItem.ItemId.ID
	if id == "" {
		// The server accepted the item but the response omitted the
		// ItemId (observed against some hosted tenants); fabricate a
		// stable placeholder so the caller has something to key future
		// Update/Delete calls on until the next full sync resolves it.
		id = "pending_sync_" + strconv.FormatInt(time.Now().UnixMilli(), 10)
		log.Debug("calendar.ews", "CreateItem response omitted ItemId, using placeholder %s", id)
	}
	return id, nil
}

// UpdateItem locates the item by its server id (and subject, if the id
// still needs FindItem resolution) and replaces the fields this engine
// understands, in place.
func (c *EWSClient) UpdateItem(ctx context.Context, ev model.CalendarEvent) error {
	itemID, err := c.resolveItemID(ctx, c.account.Username, ev.ServerID, ev.Subject)
	if err != nil {
		return fmt.Errorf("locating EWS item for update: %v", err)
	}

	requestXML := fmt.Sprintf(`
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
    <soap:Header><t:RequestServerVersion Version="%s"/></soap:Header>
    <soap:Body>
        <m:UpdateItem ConflictResolution="AlwaysOverwrite" SendMeetingInvitationsOrCancellations="SendToNone">
            <m:ItemChanges>
                <t:ItemChange>
                    <t:ItemId Id="%s" ChangeKey="%s"/>
                    <t:Updates>
                        <t:SetItemField>
                            <t:FieldURI FieldURI="item:Subject"/>
                            <t:CalendarItem><t:Subject>%s</t:Subject></t:CalendarItem>
                        </t:SetItemField>
                        <t:SetItemField>
                            <t:FieldURI FieldURI="calendar:Start"/>
                            <t:CalendarItem><t:Start>%s</t:Start></t:CalendarItem>
                        </t:SetItemField>
                        <t:SetItemField>
                            <t:FieldURI FieldURI="calendar:End"/>
                            <t:CalendarItem><t:End>%s</t:End></t:CalendarItem>
                        </t:SetItemField>
                        <t:SetItemField>
                            <t:FieldURI FieldURI="calendar:Location"/>
                            <t:CalendarItem><t:Location>%s</t:Location></t:CalendarItem>
                        </t:SetItemField>
                        <t:SetItemField>
                            <t:FieldURI FieldURI="calendar:LegacyFreeBusyStatus"/>
                            <t:CalendarItem><t:LegacyFreeBusyStatus>%s</t:LegacyFreeBusyStatus></t:CalendarItem>
                        </t:SetItemField>
                        <t:SetItemField>
                            <t:FieldURI FieldURI="item:Body"/>
                            <t:CalendarItem><t:Body BodyType="Text">%s</t:Body></t:CalendarItem>
                        </t:SetItemField>
                        <t:SetItemField>
                            <t:FieldURI FieldURI="calendar:RequiredAttendees"/>
                            <t:CalendarItem><t:RequiredAttendees>%s</t:RequiredAttendees></t:CalendarItem>
                        </t:SetItemField>
                    </t:Updates>
                </t:ItemChange>
            </m:ItemChanges>
        </m:UpdateItem>
    </soap:Body>
</soap:Envelope>`, c.serverVersion(), itemID.ID, itemID.ChangeKey, escapeXML(ev.Subject),
		time.UnixMilli(ev.StartUTCMs).UTC().Format(time.RFC3339),
		time.UnixMilli(ev.EndUTCMs).UTC().Format(time.RFC3339),
		escapeXML(ev.Location), legacyFreeBusyStatus(ev.BusyStatus),
		escapeXML(ev.Body), formatEWSAttendees(ev.Attendees))

	respXML, err := c.sendRequest(ctx, "UpdateItem", requestXML)
	if err != nil {
		return fmt.Errorf("requesting EWS UpdateItem: %v", err)
	}
	if err := checkSOAPFault("calendar.ews.UpdateItem", respXML); err != nil {
		return err
	}

	var env struct {
		Body struct {
			UpdateItemResponse struct {
				ResponseMessages struct {
					UpdateItemResponseMessage struct {
						ResponseClass string `xml:"ResponseClass,attr"`
						ResponseCode  string `xml:"ResponseCode"`
					} `xml:"UpdateItemResponseMessage"`
				} `xml:"ResponseMessages"`
			} `xml:"UpdateItemResponse"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(respXML, &env); err != nil {
		return fmt.Errorf("unmarshaling EWS UpdateItem response: %v", err)
	}
	msg := env.Body.UpdateItemResponse.ResponseMessages.UpdateItemResponseMessage
	if msg.ResponseClass != "Success" || msg.ResponseCode != "NoError" {
		return errs.New("calendar.ews.UpdateItem", errs.KindProtocolStatus, fmt.Errorf("EWS UpdateItem failed: %s", msg.ResponseCode))
	}
	return nil
}

// DeleteItem locates the item by its server id (and subject, if the id
// still needs FindItem resolution) and deletes it, sending cancellations
// to attendees.
func (c *EWSClient) DeleteItem(ctx context.Context, serverID, subject string) error {
	itemID, err := c.resolveItemID(ctx, c.account.Username, serverID, subject)
	if err != nil {
		return fmt.Errorf("locating EWS item for delete: %v", err)
	}

	requestXML := fmt.Sprintf(`
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
    <soap:Header><t:RequestServerVersion Version="%s"/></soap:Header>
    <soap:Body>
        <m:DeleteItem DeleteType="MoveToDeletedItems" SendMeetingCancellations="SendToAllAndSaveCopy">
            <m:ItemIds><t:ItemId Id="%s"/></m:ItemIds>
        </m:DeleteItem>
    </soap:Body>
</soap:Envelope>`, c.serverVersion(), itemID.ID)

	respXML, err := c.sendRequest(ctx, "DeleteItem", requestXML)
	if err != nil {
		return fmt.Errorf("requesting EWS DeleteItem: %v", err)
	}
	if err := checkSOAPFault("calendar.ews.DeleteItem", respXML); err != nil {
		return err
	}

	var env struct {
		Body struct {
			DeleteItemResponse struct {
				ResponseMessages struct {
					DeleteItemResponseMessage struct {
						ResponseClass string `xml:"ResponseClass,attr"`
						ResponseCode  string `xml:"ResponseCode"`
					} `xml:"DeleteItemResponseMessage"`
				} `xml:"ResponseMessages"`
			} `xml:"DeleteItemResponse"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(respXML, &env); err != nil {
		return fmt.Errorf("unmarshaling EWS DeleteItem response: %v", err)
	}
	msg := env.Body.DeleteItemResponse.ResponseMessages.DeleteItemResponseMessage
	if msg.ResponseClass != "Success" || msg.ResponseCode != "NoError" {
		return errs.New("calendar.ews.DeleteItem", errs.KindProtocolStatus, fmt.Errorf("EWS DeleteItem failed: %s", msg.ResponseCode))
	}
	return nil
}

// resolveItemID produces the ItemId/ChangeKey pair an EWS operation needs
// for serverID. Per invariant I4, server_id is opaque to the client except
// for this one decision: a short ActiveSync server id (pattern "N:M") has
// no EWS identity yet and must be resolved via findItemIDBySubject; anything
// else (a placeholder this client fabricated, or an id EWS already handed
// back) is already a full ItemId and is used as-is.
func (c *EWSClient) resolveItemID(ctx context.Context, mailbox, serverID, subject string) (model.ItemID, error) {
	if !model.LooksLikeShortServerID(serverID) {
		return model.ItemID{ID: serverID}, nil
	}
	return c.findItemIDBySubject(ctx, mailbox, subject)
}

// findItemIDBySubject resolves a calendar item to the ItemId/ChangeKey pair
// EWS operations require, by restricting FindItem on item:Subject. This is
// the one lookup available once all the client holds is an opaque short
// ActiveSync server id and the event fields synced alongside it.
func (c *EWSClient) findItemIDBySubject(ctx context.Context, mailbox, subject string) (model.ItemID, error) {
	requestXML := fmt.Sprintf(`
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
    <soap:Header><t:RequestServerVersion Version="%s"/></soap:Header>
    <soap:Body>
      <m:FindItem Traversal="Shallow">
        <m:ItemShape><t:BaseShape>AllProperties</t:BaseShape></m:ItemShape>
        <m:Restriction>
          <t:IsEqualTo>
            <t:FieldURI FieldURI="item:Subject"/>
            <t:FieldURIOrConstant><t:Constant Value="%s"/></t:FieldURIOrConstant>
          </t:IsEqualTo>
        </m:Restriction>
        <m:ParentFolderIds>
          <t:DistinguishedFolderId Id="calendar"><t:Mailbox><t:EmailAddress>%s</t:EmailAddress></t:Mailbox></t:DistinguishedFolderId>
        </m:ParentFolderIds>
      </m:FindItem>
    </soap:Body>
</soap:Envelope>`, c.serverVersion(), escapeXML(subject), mailbox)

	respXML, err := c.sendRequest(ctx, "FindItem", requestXML)
	if err != nil {
		return model.ItemID{}, fmt.Errorf("requesting EWS FindItem: %v", err)
	}
	if err := checkSOAPFault("calendar.ews.FindItem", respXML); err != nil {
		return model.ItemID{}, err
	}

	var env struct {
		Body struct {
			FindItemResponse struct {
				ResponseMessages struct {
					FindItemResponseMessage struct {
						RootFolder struct {
							Items struct {
								CalendarItem []struct {
									ItemId struct {
										ID        string `xml:"Id,attr"`
										ChangeKey string `xml:"ChangeKey,attr"`
									} `xml:"ItemId"`
								} `xml:"CalendarItem"`
							} `xml:"Items"`
						} `xml:"RootFolder"`
					} `xml:"FindItemResponseMessage"`
				} `xml:"ResponseMessages"`
			} `xml:"FindItemResponse"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(respXML, &env); err != nil {
		return model.ItemID{}, fmt.Errorf("unmarshaling EWS FindItem response: %v", err)
	}
	items := env.Body.FindItemResponse.ResponseMessages.FindItemResponseMessage.RootFolder.Items.CalendarItem
	if len(items) == 0 {
		return model.ItemID{}, errNotFound
	}
	return model.ItemID{ID: items[0].ItemId.ID, ChangeKey: items[0].ItemId.ChangeKey}, nil
}

// resolveDN translates a Legacy Exchange DN to an SMTP address, caching
// results for the client's lifetime since a given organizer DN is looked
// up repeatedly across events.
func (c *EWSClient) resolveDN(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	if smtp, found := c.addressCache[name]; found {
		c.mu.Unlock()
		return smtp, nil
	}
	c.mu.Unlock()

	if isSMTPAddress(name) {
		c.mu.Lock()
		c.addressCache[name] = name
		c.mu.Unlock()
		return name, nil
	}

	requestXML := fmt.Sprintf(`
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types" xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
    <soap:Header><t:RequestServerVersion Version="%s"/></soap:Header>
    <soap:Body>
        <m:ResolveNames ReturnFullContactData="true" SearchScope="ActiveDirectory">
            <m:UnresolvedEntry>%s</m:UnresolvedEntry>
        </m:ResolveNames>
    </soap:Body>
</soap:Envelope>`, c.serverVersion(), escapeXML(name))

	respXML, err := c.sendRequest(ctx, "ResolveNames", requestXML)
	if err != nil {
		return "", fmt.Errorf("resolving legacy DN: %v", err)
	}

	var env struct {
		Body struct {
			ResolveNamesResponse struct {
				ResponseMessages struct {
					ResolveNamesResponseMessage []struct {
						ResolutionSet struct {
							Resolution []struct {
								Mailbox struct {
									EmailAddress string `xml:"EmailAddress"`
								} `xml:"Mailbox"`
							} `xml:"Resolution"`
						} `xml:"ResolutionSet"`
					} `xml:"ResolveNamesResponseMessage"`
				} `xml:"ResponseMessages"`
			} `xml:"ResolveNamesResponse"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(respXML, &env); err != nil {
		return "", fmt.Errorf("unmarshaling ResolveNames response: %v", err)
	}
	messages := env.Body.ResolveNamesResponse.ResponseMessages.ResolveNamesResponseMessage
	if len(messages) != 1 || len(messages[0].ResolutionSet.Resolution) != 1 {
		log.Debug("calendar.ews", "ResolveNames returned an unexpected shape for %q", name)
		return "", fmt.Errorf("resolving legacy DN %q: ambiguous or empty result", name)
	}

	smtp := messages[0].ResolutionSet.Resolution[0].Mailbox.EmailAddress
	c.mu.Lock()
	c.addressCache[name] = smtp
	c.mu.Unlock()
	return smtp, nil
}

func isSMTPAddress(s string) bool {
	for _, r := range s {
		if r == '@' {
			return true
		}
	}
	return false
}
