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

// Command easdiagd wires a transport.Client and a calendar.Engine for one
// account sourced from the environment, and serves diag.Server so a local
// operator can inspect sync state without touching the sync loop itself.
package main

import (
	"context"
	"net/http"

	"github.com/eliona-smart-building-assistant/go-utils/common"
	"github.com/eliona-smart-building-assistant/go-utils/log"

	"easclient/calendar"
	"easclient/diag"
	"easclient/model"
	"easclient/provision"
	"easclient/transport"
)

func main() {
	account := model.Account{
		Domain:        common.Getenv("EAS_DOMAIN", ""),
		Username:      common.Getenv("EAS_USERNAME", ""),
		Password:      common.Getenv("EAS_PASSWORD", ""),
		DeviceID:      common.Getenv("EAS_DEVICE_ID", "easdiagd"),
		ServerBaseURL: common.Getenv("EAS_SERVER_URL", ""),
		EWSURL:        common.Getenv("EAS_EWS_URL", ""),
	}
	if account.ServerBaseURL == "" || account.Username == "" {
		log.Fatal("main", "EAS_SERVER_URL and EAS_USERNAME are required")
	}

	httpClient := &http.Client{}
	client := transport.New(httpClient, account, nil)
	fsm := provision.New(client, provision.DeviceInfo{
		Model:        "easdiagd",
		FriendlyName: "EAS diagnostics daemon",
		OS:           "linux",
		UserAgent:    "easdiagd/1.0",
	}, model.DialectEAS14)
	client = transport.New(httpClient, account, fsm)

	var ews *calendar.EWSClient
	if account.EWSURL != "" {
		ews = calendar.NewEWSClient(account, model.DialectEAS14)
	}
	engine := calendar.New(client, ews, calendar.DefaultOptions)

	ctx := context.Background()
	if err := fsm.EnsureProvisioned(ctx); err != nil {
		log.Error("main", "initial provisioning failed, diagnostics will show stale state: %v", err)
	}

	server := diag.New(client, fsm, engine)
	addr := common.Getenv("DIAG_ADDR", ":8090")
	log.Fatal("main", "diagnostics server: %v", server.ListenAndServe(addr))
}
