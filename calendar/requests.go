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
	"fmt"
	"strings"
	"time"

	"easclient/model"
)

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// easTime formats a UTC millisecond epoch as the EAS wire format
// yyyyMMddTHHmmssZ.
func easTime(utcMs int64) string {
	return time.UnixMilli(utcMs).UTC().Format("20060102T150405Z")
}

func buildFolderSyncRequest() string {
	return `<FolderSync xmlns="folderhierarchy"><SyncKey>0</SyncKey></FolderSync>`
}

func buildSyncRequest(collectionID, key string, windowSize int, getChanges bool) string {
	var sb strings.Builder
	sb.WriteString(`<Sync xmlns="airsync"><Collections><Collection>`)
	fmt.Fprintf(&sb, `<SyncKey>%s</SyncKey><CollectionId>%s</CollectionId>`, escapeXML(key), escapeXML(collectionID))
	if getChanges {
		sb.WriteString(`<GetChanges/>`)
		fmt.Fprintf(&sb, `<WindowSize>%d</WindowSize>`, windowSize)
	}
	sb.WriteString(`</Collection></Collections></Sync>`)
	return sb.String()
}

// writeApplicationData emits the ApplicationData fields Create always
// sends and Update sends only above EAS 12.x, per the version-conditional
// dialect switch. includeExtended gates Body/MeetingStatus/Attendees.
func writeApplicationData(sb *strings.Builder, ev model.CalendarEvent, includeExtended bool) {
	sb.WriteString(`<ApplicationData>`)
	fmt.Fprintf(sb, `<calendar:Subject>%s</calendar:Subject>`, escapeXML(ev.Subject))
	fmt.Fprintf(sb, `<calendar:StartTime>%s</calendar:StartTime>`, easTime(ev.StartUTCMs))
	fmt.Fprintf(sb, `<calendar:EndTime>%s</calendar:EndTime>`, easTime(ev.EndUTCMs))
	fmt.Fprintf(sb, `<calendar:Location>%s</calendar:Location>`, escapeXML(ev.Location))
	if ev.AllDay {
		sb.WriteString(`<calendar:AllDayEvent>1</calendar:AllDayEvent>`)
	} else {
		sb.WriteString(`<calendar:AllDayEvent>0</calendar:AllDayEvent>`)
	}
	fmt.Fprintf(sb, `<calendar:Reminder>%d</calendar:Reminder>`, ev.ReminderMin)
	fmt.Fprintf(sb, `<calendar:BusyStatus>%d</calendar:BusyStatus>`, int(ev.BusyStatus))
	fmt.Fprintf(sb, `<calendar:Sensitivity>%d</calendar:Sensitivity>`, int(ev.Sensitivity))
	if len(ev.RecurrenceRaw) > 0 {
		// Opaque pass-through: this client never edits recurrence, only
		// re-emits whatever subtree it last parsed off the item.
		sb.Write(ev.RecurrenceRaw)
	}

	if includeExtended {
		sb.WriteString(`<airsyncbase:Body><airsyncbase:Type>1</airsyncbase:Type>`)
		fmt.Fprintf(sb, `<airsyncbase:Data>%s</airsyncbase:Data></airsyncbase:Body>`, escapeXML(ev.Body))
		if len(ev.Attendees) > 0 {
			sb.WriteString(`<calendar:MeetingStatus>1</calendar:MeetingStatus>`)
			sb.WriteString(`<calendar:Attendees>`)
			for _, a := range ev.Attendees {
				sb.WriteString(`<calendar:Attendee>`)
				fmt.Fprintf(sb, `<calendar:Email>%s</calendar:Email>`, escapeXML(a.Email))
				sb.WriteString(`<calendar:AttendeeType>1</calendar:AttendeeType>`)
				sb.WriteString(`<calendar:AttendeeStatus>0</calendar:AttendeeStatus>`)
				sb.WriteString(`</calendar:Attendee>`)
			}
			sb.WriteString(`</calendar:Attendees>`)
		} else {
			sb.WriteString(`<calendar:MeetingStatus>0</calendar:MeetingStatus>`)
		}
	}
	sb.WriteString(`</ApplicationData>`)
}

func buildAddRequest(collectionID, key, clientID string, ev model.CalendarEvent) string {
	var sb strings.Builder
	sb.WriteString(`<Sync xmlns="airsync"><Collections><Collection>`)
	fmt.Fprintf(&sb, `<SyncKey>%s</SyncKey><CollectionId>%s</CollectionId>`, escapeXML(key), escapeXML(collectionID))
	sb.WriteString(`<Commands><Add>`)
	fmt.Fprintf(&sb, `<ClientId>%s</ClientId>`, clientID)
	// Create always includes the full field set, on every dialect.
	writeApplicationData(&sb, ev, true)
	sb.WriteString(`</Add></Commands></Collection></Collections></Sync>`)
	return sb.String()
}

func buildChangeRequest(collectionID, key string, ev model.CalendarEvent, dialect model.Dialect) string {
	var sb strings.Builder
	sb.WriteString(`<Sync xmlns="airsync"><Collections><Collection>`)
	fmt.Fprintf(&sb, `<SyncKey>%s</SyncKey><CollectionId>%s</CollectionId>`, escapeXML(key), escapeXML(collectionID))
	sb.WriteString(`<Commands><Change>`)
	fmt.Fprintf(&sb, `<ServerId>%s</ServerId>`, escapeXML(ev.ServerID))
	writeApplicationData(&sb, ev, dialect == model.DialectEAS14)
	sb.WriteString(`</Change></Commands></Collection></Collections></Sync>`)
	return sb.String()
}

func buildDeleteRequest(collectionID, key, serverID string) string {
	var sb strings.Builder
	sb.WriteString(`<Sync xmlns="airsync"><Collections><Collection>`)
	fmt.Fprintf(&sb, `<SyncKey>%s</SyncKey><CollectionId>%s</CollectionId>`, escapeXML(key), escapeXML(collectionID))
	sb.WriteString(`<Commands><Delete>`)
	fmt.Fprintf(&sb, `<ServerId>%s</ServerId>`, escapeXML(serverID))
	sb.WriteString(`</Delete></Commands></Collection></Collections></Sync>`)
	return sb.String()
}
