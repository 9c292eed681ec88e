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

// Package wbxml implements the WAP Binary XML 1.3 codec with the EAS
// code-page tag dictionaries, decoding/encoding between the wire format and
// a plain XML event stream so every higher layer (provisioning, calendar
// sync) consumes the same encoding/xml vocabulary regardless of which wire
// protocol produced it.
package wbxml

// CodePage maps a tag id to its element name within one namespace.
type CodePage map[byte]string

// CodeSpace maps a code-page id to its tag dictionary.
type CodeSpace map[byte]CodePage

// Page ids for the EAS namespaces this client speaks. Not every namespace
// on the wire is exercised by calendar sync. Tags lists only a subset of
// each page's tag ids; an id it does not list decodes to the unknown-tag
// form.
const (
	PageAirSync         = 0x00
	PageContacts        = 0x01
	PageEmail           = 0x02
	PageCalendar        = 0x04
	PageMove            = 0x05
	PageFolderHierarchy = 0x07
	PageProvision       = 0x0E
	PageSearch          = 0x0F
	PageGAL             = 0x10
	PageAirSyncBase     = 0x11
	PageSettings        = 0x12
	PageItemOperations  = 0x14
	PageComposeMail     = 0x15
)

// namespaceByPage names the xmlns prefix the encoder recognizes for each
// page, used to resolve an element's preferred code page before falling
// back to a global tag search.
var namespaceByPage = map[byte]string{
	PageAirSync:         "airsync",
	PageContacts:        "contacts",
	PageEmail:           "email",
	PageCalendar:        "calendar",
	PageMove:            "move",
	PageFolderHierarchy: "folderhierarchy",
	PageProvision:       "provision",
	PageSearch:          "search",
	PageGAL:             "gal",
	PageAirSyncBase:     "airsyncbase",
	PageSettings:        "settings",
	PageItemOperations:  "itemoperations",
	PageComposeMail:     "composemail",
}

// pageByNamespace is the reverse of namespaceByPage, built once at init.
var pageByNamespace = func() map[string]byte {
	m := make(map[string]byte, len(namespaceByPage))
	for page, ns := range namespaceByPage {
		m[ns] = page
	}
	return m
}()

// Tags is the static (page, id) -> tag-name dictionary for every EAS
// code page this client exchanges.
var Tags = CodeSpace{
	PageAirSync: CodePage{
		0x05: "Sync",
		0x06: "Responses",
		0x07: "Add",
		0x08: "Change",
		0x09: "Delete",
		0x0A: "Fetch",
		0x0B: "SyncKey",
		0x0C: "ClientId",
		0x0D: "ServerId",
		0x0E: "Status",
		0x0F: "Collection",
		0x10: "Class",
		0x11: "Version",
		0x12: "CollectionId",
		0x13: "GetChanges",
		0x14: "MoreAvailable",
		0x15: "WindowSize",
		0x16: "Commands",
		0x17: "Options",
		0x18: "FilterType",
		0x19: "Truncation",
		0x1A: "RTFTruncation",
		0x1B: "Conflict",
		0x1C: "Collections",
		0x1D: "ApplicationData",
		0x1E: "DeletesAsMoves",
		0x1F: "NotifyGUID",
		0x20: "Supported",
		0x21: "SoftDelete",
		0x22: "MIMESupport",
		0x23: "MIMETruncation",
		0x24: "Wait",
		0x25: "Limit",
		0x26: "Partial",
		0x27: "ConversationMode",
		0x28: "MaxItems",
		0x29: "HeartbeatInterval",
	},
	PageContacts: CodePage{
		0x05: "Anniversary",
		0x06: "AssistantName",
		0x07: "AssistantPhoneNumber",
		0x08: "Birthday",
		0x0F: "Email1Address",
		0x10: "Email2Address",
		0x11: "Email3Address",
		0x15: "FileAs",
		0x16: "FirstName",
		0x17: "Home2PhoneNumber",
		0x18: "HomeAddressCity",
		0x1B: "HomePhoneNumber",
		0x22: "LastName",
		0x23: "MiddleName",
		0x24: "MobilePhoneNumber",
		0x2C: "Suffix",
		0x2D: "Title",
		0x39: "WebPage",
	},
	PageEmail: CodePage{
		0x0F: "DateReceived",
		0x11: "DisplayTo",
		0x12: "Importance",
		0x13: "MessageClass",
		0x14: "Subject",
		0x15: "Read",
		0x16: "To",
		0x17: "CC",
		0x18: "From",
		0x19: "ReplyTo",
		0x1A: "AllDayEvent",
		0x1C: "Categories",
		0x1D: "Category",
	},
	PageCalendar: CodePage{
		0x05: "Timezone",
		0x06: "AllDayEvent",
		0x07: "Attendees",
		0x08: "Attendee",
		0x09: "Email",
		0x0A: "Name",
		0x0B: "Body",
		0x0C: "BodyTruncated",
		0x0D: "BusyStatus",
		0x0E: "Categories",
		0x0F: "Category",
		0x10: "CompressedRTF",
		0x11: "DTStamp",
		0x12: "EndTime",
		0x13: "Exception",
		0x14: "Exceptions",
		0x15: "ExceptionDeleted",
		0x16: "ExceptionStartTime",
		0x17: "Location",
		0x18: "MeetingStatus",
		0x19: "OrganizerEmail",
		0x1A: "Recurrence",
		0x1B: "RecurrenceType",
		0x1C: "RecurrenceUntil",
		0x1D: "RecurrenceOccurrences",
		0x1E: "RecurrenceInterval",
		0x1F: "RecurrenceDayOfWeek",
		0x20: "RecurrenceDayOfMonth",
		0x21: "RecurrenceWeekOfMonth",
		0x22: "RecurrenceMonthOfYear",
		0x23: "Reminder",
		0x24: "Sensitivity",
		0x25: "Subject",
		0x26: "StartTime",
		0x27: "UID",
		0x28: "AttendeeStatus",
		0x29: "AttendeeType",
		0x33: "OrganizerName",
	},
	PageMove: CodePage{
		0x05: "MoveItems",
		0x06: "Move",
		0x07: "SrcMsgId",
		0x08: "SrcFldId",
		0x09: "DstFldId",
		0x0A: "Response",
		0x0B: "Status",
		0x0C: "DstMsgId",
	},
	PageFolderHierarchy: CodePage{
		0x05: "Folders",
		0x06: "Folder",
		0x07: "DisplayName",
		0x08: "ServerId",
		0x09: "ParentId",
		0x0A: "Type",
		0x0B: "Status",
		0x0C: "ContentClass",
		0x0D: "Changes",
		0x0E: "Add",
		0x0F: "Delete",
		0x10: "Update",
		0x11: "SyncKey",
		0x12: "FolderCreate",
		0x13: "FolderDelete",
		0x14: "FolderUpdate",
		0x15: "FolderSync",
		0x16: "Count",
	},
	PageProvision: CodePage{
		0x05: "Provision",
		0x06: "Policies",
		0x07: "Policy",
		0x08: "PolicyType",
		0x09: "PolicyKey",
		0x0A: "Data",
		0x0B: "Status",
		0x0C: "RemoteWipe",
		0x0D: "EASProvisionDoc",
		0x0E: "DevicePasswordEnabled",
		0x0F: "AlphanumericDevicePasswordRequired",
		0x10: "RequireStorageCardEncryption",
		0x11: "PasswordRecoveryEnabled",
		0x13: "AttachmentsEnabled",
		0x14: "MinDevicePasswordLength",
		0x15: "MaxInactivityTimeDeviceLock",
		0x16: "MaxDevicePasswordFailedAttempts",
		0x17: "MaxAttachmentSize",
		0x18: "AllowSimpleDevicePassword",
		0x19: "DevicePasswordExpiration",
		0x1A: "DevicePasswordHistory",
		0x1B: "AllowStorageCard",
		0x1C: "AllowCamera",
		0x1D: "RequireDeviceEncryption",
		0x1E: "AllowUnsignedApplications",
		0x1F: "AllowUnsignedInstallationPackages",
		0x20: "MinDevicePasswordComplexCharacters",
		0x21: "AllowWiFi",
		0x22: "AllowTextMessaging",
		0x23: "AllowPOPIMAPEmail",
		0x24: "AllowBluetooth",
		0x25: "AllowIrDA",
		0x26: "RequireManualSyncWhenRoaming",
		0x27: "AllowDesktopSync",
		0x28: "MaxCalendarAgeFilter",
		0x29: "AllowHTMLEmail",
		0x2A: "MaxSizeLimit",
	},
	PageSearch: CodePage{
		0x05: "Search",
		0x07: "Store",
		0x08: "Name",
		0x09: "Query",
		0x0A: "Options",
		0x0C: "Range",
		0x0D: "Status",
		0x10: "Result",
		0x11: "Properties",
		0x12: "Total",
	},
	PageGAL: CodePage{
		0x05: "DisplayName",
		0x06: "Phone",
		0x07: "Office",
		0x08: "Title",
		0x09: "Company",
		0x0A: "Alias",
		0x0B: "FirstName",
		0x0C: "LastName",
		0x0D: "HomePhone",
		0x0E: "MobilePhone",
		0x0F: "EmailAddress",
	},
	PageAirSyncBase: CodePage{
		0x05: "BodyPreference",
		0x06: "Type",
		0x07: "TruncationSize",
		0x08: "AllOrNone",
		0x0A: "Body",
		0x0B: "Data",
		0x0C: "EstimatedDataSize",
		0x0D: "Truncated",
		0x0E: "Attachments",
		0x0F: "Attachment",
		0x10: "DisplayName",
		0x11: "FileReference",
		0x12: "Method",
		0x13: "ContentId",
		0x14: "ContentLocation",
		0x15: "IsInline",
		0x16: "NativeBodyType",
		0x17: "ContentType",
		0x18: "Preview",
		0x19: "BodyPartPreference",
		0x1A: "BodyPart",
		0x1B: "Status",
	},
	PageSettings: CodePage{
		0x05: "Settings",
		0x06: "Status",
		0x07: "Get",
		0x08: "Set",
		0x09: "Oof",
		0x0A: "OofState",
		0x0B: "StartTime",
		0x0C: "EndTime",
		0x0D: "OofMessage",
		0x11: "Enabled",
		0x16: "DeviceInformation",
		0x17: "Model",
		0x18: "IMEI",
		0x19: "FriendlyName",
		0x1A: "OS",
		0x1B: "OSLanguage",
		0x1C: "PhoneNumber",
		0x1D: "UserInformation",
		0x1E: "EmailAddresses",
		0x1F: "SmtpAddress",
		0x20: "UserAgent",
	},
	PageItemOperations: CodePage{
		0x05: "ItemOperations",
		0x06: "Fetch",
		0x07: "Store",
		0x08: "Options",
		0x09: "Range",
		0x0A: "Total",
		0x0B: "Properties",
		0x0C: "Data",
		0x0D: "Status",
		0x0E: "Response",
		0x0F: "Version",
		0x10: "Schema",
		0x11: "Part",
		0x16: "Move",
		0x17: "DstFldId",
		0x18: "ConversationId",
	},
	PageComposeMail: CodePage{
		0x05: "SendMail",
		0x06: "SmartForward",
		0x07: "SmartReply",
		0x08: "SaveInSentItems",
		0x09: "ReplaceMime",
		0x0A: "Type",
		0x0B: "Source",
		0x0C: "FolderId",
		0x0D: "ItemId",
		0x0E: "LongId",
		0x0F: "InstanceId",
		0x10: "Mime",
		0x11: "ClientId",
		0x12: "Status",
		0x13: "AccountId",
	},
}
