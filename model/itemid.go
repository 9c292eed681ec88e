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

import "strings"

// ItemID is the EWS compound identifier: an opaque Id plus a ChangeKey that
// changes on every modification of the item.
type ItemID struct {
	ID        string
	ChangeKey string
}

func (i ItemID) String() string {
	return i.ID + "|" + i.ChangeKey
}

func (i ItemID) Empty() bool {
	return i.ID == ""
}

// LooksLikeShortServerID reports whether id has the ActiveSync short
// server-id shape (pattern "N:M") rather than a full EWS ItemId. Per
// invariant I4, server_id is otherwise opaque to the client: this is the
// one decision the client is allowed to make about its contents, to know
// whether an EWS round-trip needs full-ItemId resolution via FindItem.
func LooksLikeShortServerID(id string) bool {
	if id == "" {
		return false
	}
	colon := strings.IndexByte(id, ':')
	if colon <= 0 || colon == len(id)-1 {
		return false
	}
	for i, r := range id {
		if i == colon {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
