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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFolderSyncResponseFindsCalendarFolder(t *testing.T) {
	xmlBody := []byte(`<FolderSync><Status>1</Status><SyncKey>1</SyncKey><Changes><Count>2</Count>` +
		`<Add><ServerId>3</ServerId><ParentId>0</ParentId><DisplayName>Inbox</DisplayName><Type>2</Type></Add>` +
		`<Add><ServerId>5</ServerId><ParentId>0</ParentId><DisplayName>Calendar</DisplayName><Type>8</Type></Add>` +
		`</Changes></FolderSync>`)

	folders, err := parseFolderSyncResponse(xmlBody)
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Equal(t, "5", folders[1].ServerID)
	assert.Equal(t, "Calendar", folders[1].DisplayName)
	assert.True(t, folders[1].IsCalendar())
	assert.False(t, folders[0].IsCalendar())
}

func TestParseSyncResponseReadsAddAndChangeEnvelopes(t *testing.T) {
	xmlBody := []byte(`<Sync><Collections><Collection><SyncKey>5</SyncKey><CollectionId>5</CollectionId><Status>1</Status>` +
		`<Commands>` +
		`<Add><ServerId>5:1</ServerId><ApplicationData><Subject>Standup</Subject><StartTime>20260801T090000Z</StartTime><EndTime>20260801T093000Z</EndTime></ApplicationData></Add>` +
		`<Change><ServerId>5:2</ServerId><ApplicationData><Subject>Retro</Subject><StartTime>20260802T140000Z</StartTime><EndTime>20260802T150000Z</EndTime></ApplicationData></Change>` +
		`</Commands>` +
		`<MoreAvailable/>` +
		`</Collection></Collections></Sync>`)

	res, err := parseSyncResponse(xmlBody)
	require.NoError(t, err)
	assert.Equal(t, "5", res.Key)
	assert.True(t, res.MoreAvailable)
	assert.Equal(t, 1, res.CollectionStatus)
	require.Len(t, res.Events, 2)
	assert.Equal(t, "5:1", res.Events[0].ServerID)
	assert.Equal(t, "Standup", res.Events[0].Subject)
	assert.Equal(t, "5:2", res.Events[1].ServerID)
	assert.Equal(t, "Retro", res.Events[1].Subject)
}

func TestParseSyncResponseReadsBodyUnderAirSyncBase(t *testing.T) {
	xmlBody := []byte(`<Sync><Collections><Collection><SyncKey>6</SyncKey><CollectionId>5</CollectionId><Status>1</Status>` +
		`<Commands>` +
		`<Add><ServerId>5:3</ServerId><ApplicationData><Subject>Planning</Subject>` +
		`<Body><Type>1</Type><Data>line one&lt;br&gt;line one</Data></Body>` +
		`</ApplicationData></Add>` +
		`</Commands></Collection></Collections></Sync>`)

	res, err := parseSyncResponse(xmlBody)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "line one\nline one", res.Events[0].Body)
}

func TestParseAddResponseReturnsNewKeyStatusAndServerID(t *testing.T) {
	xmlBody := []byte(`<Sync><Collections><Collection><SyncKey>9</SyncKey><CollectionId>5</CollectionId>` +
		`<Status>1</Status><Responses><Add><ClientId>abc123</ClientId><ServerId>5:10</ServerId><Status>1</Status></Add></Responses>` +
		`</Collection></Collections></Sync>`)

	res, err := parseAddResponse(xmlBody)
	require.NoError(t, err)
	assert.Equal(t, "9", res.NewKey)
	assert.Equal(t, 1, res.Status)
	assert.Equal(t, "5:10", res.ServerID)
}

func TestParseChangeResponseReportsPartialResponseSemantics(t *testing.T) {
	xmlBody := []byte(`<Sync><Collections><Collection><SyncKey>11</SyncKey><CollectionId>5</CollectionId>` +
		`<Status>1</Status><Responses><Change><ServerId>5:2</ServerId><Status>7</Status></Change></Responses>` +
		`</Collection></Collections></Sync>`)

	res, err := parseChangeResponse(xmlBody)
	require.NoError(t, err)
	assert.Equal(t, "11", res.NewKey)
	assert.Equal(t, 1, res.CollectionStatus)
	assert.True(t, res.HasItemStatus)
	assert.Equal(t, 7, res.ItemStatus)
}

func TestParseChangeResponseWithoutItemResponseMeansSuccess(t *testing.T) {
	xmlBody := []byte(`<Sync><Collections><Collection><SyncKey>12</SyncKey><CollectionId>5</CollectionId><Status>1</Status></Collection></Collections></Sync>`)

	res, err := parseChangeResponse(xmlBody)
	require.NoError(t, err)
	assert.False(t, res.HasItemStatus)
	assert.Equal(t, 1, res.CollectionStatus)
}

func TestParseDeleteResponseReadsStaleSyncKeyStatus(t *testing.T) {
	xmlBody := []byte(`<Sync><Collections><Collection><SyncKey>0</SyncKey><CollectionId>5</CollectionId><Status>3</Status></Collection></Collections></Sync>`)

	res, err := parseDeleteResponse(xmlBody)
	require.NoError(t, err)
	assert.Equal(t, "0", res.NewKey)
	assert.Equal(t, 3, res.Status)
}

func TestCleanBodyCollapsesHTMLBreaksAndUnescapes(t *testing.T) {
	raw := "line one&lt;br&gt;line two&amp;more"
	assert.Equal(t, "line one\nline two&more", cleanBody(raw))
}

func TestCleanBodyHandlesDoubleEscapedHTML(t *testing.T) {
	// The wire payload's Data element is itself HTML, so the server
	// double-escapes it: the outer XML decoder's own unescaping leaves
	// literal "&lt;br&gt;" text that cleanBody must unescape a second time
	// before the HTML-break collapse can see the tag.
	xmlBody := []byte(`<Sync><Collections><Collection><SyncKey>1</SyncKey><CollectionId>5</CollectionId>` +
		`<Commands><Add><ServerId>5:9</ServerId><ApplicationData><Subject>S</Subject>` +
		`<Body><Type>1</Type><Data>one&amp;lt;br&amp;gt;two</Data></Body>` +
		`</ApplicationData></Add></Commands></Collection></Collections></Sync>`)

	res, err := parseSyncResponse(xmlBody)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "one\ntwo", res.Events[0].Body)
}

func TestDedupeLinesRemovesRepeatedNonBlankLines(t *testing.T) {
	in := "same\nsame\ndifferent\nsame"
	assert.Equal(t, "same\ndifferent", dedupeLines(in))
}

func TestParseSyncResponseCapturesRecurrenceSubtreeVerbatim(t *testing.T) {
	xmlBody := []byte(`<Sync><Collections><Collection><SyncKey>7</SyncKey><CollectionId>5</CollectionId><Status>1</Status>` +
		`<Commands>` +
		`<Add><ServerId>5:4</ServerId><ApplicationData><Subject>Weekly sync</Subject>` +
		`<Recurrence><Type>1</Type><Interval>1</Interval><DayOfWeek>62</DayOfWeek></Recurrence>` +
		`</ApplicationData></Add>` +
		`</Commands></Collection></Collections></Sync>`)

	res, err := parseSyncResponse(xmlBody)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.True(t, ev.IsRecurring)
	assert.Contains(t, string(ev.RecurrenceRaw), "<Type>1</Type>")
	assert.Contains(t, string(ev.RecurrenceRaw), "<DayOfWeek>62</DayOfWeek>")

	var sb strings.Builder
	writeApplicationData(&sb, ev, true)
	assert.Contains(t, sb.String(), "<Type>1</Type>")
	assert.Contains(t, sb.String(), "<DayOfWeek>62</DayOfWeek>")
}

func TestParseDateAcceptsEASAndEWSFormats(t *testing.T) {
	easMs, err := parseDate("20260801T090000Z")
	require.NoError(t, err)
	ewsMs, err := parseDate("2026-08-01T09:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, easMs, ewsMs)
}
