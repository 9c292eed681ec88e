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

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect is the request/response vocabulary the calendar sync engine must
// speak. Only ServerVersion.Major is ever consulted to pick one.
type Dialect int

const (
	DialectEAS12 Dialect = iota
	DialectEAS14
)

// ServerVersion is the MS-ASProtocolVersion the server has selected, e.g.
// 14.1 or 12.1. Only Major is semantically consumed; Minor is kept for
// diagnostics and for stamping the MS-ASProtocolVersion request header.
type ServerVersion struct {
	Major int
	Minor int
}

// Dialect reports which request/response vocabulary applies: major >= 14 is
// EAS14, major == 12 is EAS12, and anything unrecognized defaults to EAS12
// per spec (the conservative, more restrictive dialect).
func (v ServerVersion) Dialect() Dialect {
	if v.Major >= 14 {
		return DialectEAS14
	}
	return DialectEAS12
}

func (v ServerVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseServerVersion parses a single "major.minor" token, as found in the
// comma-separated MS-ASProtocolVersions response header.
func ParseServerVersion(token string) (ServerVersion, error) {
	parts := strings.SplitN(strings.TrimSpace(token), ".", 2)
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return ServerVersion{}, fmt.Errorf("parsing major version from %q: %v", token, err)
	}
	minor := 0
	if len(parts) == 2 {
		minor, err = strconv.Atoi(parts[1])
		if err != nil {
			return ServerVersion{}, fmt.Errorf("parsing minor version from %q: %v", token, err)
		}
	}
	return ServerVersion{Major: major, Minor: minor}, nil
}

// HighestSupported parses the comma-separated MS-ASProtocolVersions header
// and returns the highest version listed. An empty header defaults to 12.1,
// matching the "unknown => assume 12" rule.
func HighestSupported(header string) ServerVersion {
	best := ServerVersion{Major: 12, Minor: 1}
	found := false
	for _, tok := range strings.Split(header, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, err := ParseServerVersion(tok)
		if err != nil {
			continue
		}
		if !found || v.Major > best.Major || (v.Major == best.Major && v.Minor > best.Minor) {
			best = v
			found = true
		}
	}
	return best
}
