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

// BusyStatus mirrors EAS calendar:BusyStatus / EWS LegacyFreeBusyStatus.
type BusyStatus int

const (
	BusyFree      BusyStatus = 0
	BusyTentative BusyStatus = 1
	BusyBusy      BusyStatus = 2
	BusyOOF       BusyStatus = 3
)

// Sensitivity mirrors EAS calendar:Sensitivity.
type Sensitivity int

const (
	SensitivityNormal       Sensitivity = 0
	SensitivityPersonal     Sensitivity = 1
	SensitivityPrivate      Sensitivity = 2
	SensitivityConfidential Sensitivity = 3
)

// AttendeeStatus mirrors EAS calendar:AttendeeStatus.
type AttendeeStatus int

const (
	AttendeeStatusUnknown    AttendeeStatus = 0
	AttendeeStatusTentative  AttendeeStatus = 1
	AttendeeStatusAccept     AttendeeStatus = 2
	AttendeeStatusDecline    AttendeeStatus = 3
	AttendeeStatusNotResp    AttendeeStatus = 4
	AttendeeStatusNoResponse AttendeeStatus = 5
)

// AttendeeType mirrors EAS calendar:AttendeeType.
type AttendeeType int

const (
	AttendeeRequired AttendeeType = 1
	AttendeeOptional AttendeeType = 2
	AttendeeResource AttendeeType = 3
)

// Attendee is one recipient of a calendar event.
type Attendee struct {
	Email  string
	Name   string
	Status AttendeeStatus
	Type   AttendeeType
}

// CalendarEvent is the engine's folder-agnostic representation of a
// calendar item, populated from either an EAS Sync Add/Change envelope or
// an EWS CalendarItem.
type CalendarEvent struct {
	ServerID       string
	Subject        string
	StartUTCMs     int64
	EndUTCMs       int64
	Location       string
	Body           string
	AllDay         bool
	ReminderMin    int
	BusyStatus     BusyStatus
	Sensitivity    Sensitivity
	OrganizerEmail string
	Attendees      []Attendee
	Categories     []string
	IsRecurring    bool
	// RecurrenceRaw is the untouched <Recurrence>...</Recurrence> subtree,
	// kept only for round-tripping (spec Non-goal: no recurrence editing).
	RecurrenceRaw  []byte
	LastModifiedMs int64
}

// Equal implements the spec's change-detection equality: by ServerID only.
func (e CalendarEvent) Equal(other CalendarEvent) bool {
	return e.ServerID == other.ServerID
}
