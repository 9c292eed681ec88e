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
	"fmt"
	"strings"

	"easclient/model"
)

const last15Len = 15

// last15 returns the last 15 characters of id, the IMEI substitute the
// Phase 1 DeviceInformation block carries.
func last15(id string) string {
	if len(id) <= last15Len {
		return id
	}
	return id[len(id)-last15Len:]
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// buildRequest assembles the Phase 1 (policyKey == "", status == "") or
// Phase 2 (policyKey == tempKey, status == "1") Provision body.
func (f *FSM) buildRequest(policyKey, status string) string {
	var sb strings.Builder
	sb.WriteString(`<Provision xmlns="provision">`)
	sb.WriteString(`<Policies><Policy><PolicyType>`)
	sb.WriteString(PolicyType)
	sb.WriteString(`</PolicyType>`)
	if policyKey != "" {
		fmt.Fprintf(&sb, `<PolicyKey>%s</PolicyKey>`, escapeXML(policyKey))
	}
	if status != "" {
		fmt.Fprintf(&sb, `<Status>%s</Status>`, status)
	}
	sb.WriteString(`</Policy></Policies>`)

	if f.dialect == model.DialectEAS14 && policyKey == "" {
		sb.WriteString(`<settings:DeviceInformation xmlns:settings="settings"><Set>`)
		fmt.Fprintf(&sb, `<Model>%s</Model>`, escapeXML(f.device.Model))
		fmt.Fprintf(&sb, `<IMEI>%s</IMEI>`, escapeXML(last15(f.device.IMEI)))
		fmt.Fprintf(&sb, `<FriendlyName>%s</FriendlyName>`, escapeXML(f.device.FriendlyName))
		fmt.Fprintf(&sb, `<OS>%s</OS>`, escapeXML(f.device.OS))
		fmt.Fprintf(&sb, `<UserAgent>%s</UserAgent>`, escapeXML(f.device.UserAgent))
		sb.WriteString(`</Set></settings:DeviceInformation>`)
	}
	sb.WriteString(`</Provision>`)
	return sb.String()
}
