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

// Package diag exposes a read-only HTTP status endpoint over the engine's
// published state, for local operability. It never takes a collection
// lock: the server version, folder id and last error are model.Published
// values, and the SyncKey and policy state are read under short-held
// mutexes that are never held across a network call, so a slow or wedged
// sync never makes /status hang too.
package diag

import (
	"encoding/json"
	"net/http"

	"github.com/eliona-smart-building-assistant/go-utils/log"
	"github.com/gorilla/mux"

	"easclient/calendar"
	"easclient/model"
	"easclient/provision"
	"easclient/transport"
)

// VersionSource is satisfied by *transport.Client.
type VersionSource interface {
	Version() (model.ServerVersion, bool)
}

// PolicySource is satisfied by *provision.FSM.
type PolicySource interface {
	State() provision.State
}

// SyncSource is satisfied by *calendar.Engine.
type SyncSource interface {
	Status() calendar.Status
}

// Server wraps a gorilla/mux router exposing GET /status.
type Server struct {
	router  *mux.Router
	version VersionSource
	policy  PolicySource
	sync    SyncSource
}

// New builds a Server reading from the given live components.
func New(version VersionSource, policy PolicySource, sync SyncSource) *Server {
	s := &Server{version: version, policy: policy, sync: sync, router: mux.NewRouter()}
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	return s
}

// ListenAndServe blocks serving the status endpoint on addr.
func (s *Server) ListenAndServe(addr string) error {
	log.Info("diag", "status server listening on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

type statusResponse struct {
	ServerVersion string `json:"server_version"`
	PolicyState   string `json:"policy_state"`
	Folders       struct {
		CalendarCollectionID string `json:"calendar_collection_id"`
	} `json:"folders"`
	LastSync struct {
		FolderID      string `json:"folder_id"`
		SyncKey       string `json:"sync_key"`
		MoreAvailable bool   `json:"more_available"`
		LastError     string `json:"last_error"`
	} `json:"last_sync"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp statusResponse
	if v, ok := s.version.Version(); ok {
		resp.ServerVersion = v.String()
	}
	resp.PolicyState = s.policy.State().String()

	status := s.sync.Status()
	resp.Folders.CalendarCollectionID = status.FolderID
	resp.LastSync.FolderID = status.FolderID
	resp.LastSync.SyncKey = status.SyncKey
	resp.LastSync.MoreAvailable = status.MoreAvailable
	resp.LastSync.LastError = status.LastError

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("diag", "encoding status response: %v", err)
	}
}

var _ VersionSource = (*transport.Client)(nil)
