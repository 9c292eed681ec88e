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

import "sync/atomic"

// Published holds a value that is set once or rarely and read constantly:
// the cached calendar folder id, the detected server version, and the
// active policy key all use this instead of a mutex, so readers never
// block on a writer and never observe a torn value.
type Published[T any] struct {
	p atomic.Pointer[T]
}

// Store publishes v, replacing whatever was previously published.
func (pv *Published[T]) Store(v T) {
	pv.p.Store(&v)
}

// Load returns the most recently published value, or the zero value and
// false if nothing has been published yet.
func (pv *Published[T]) Load() (T, bool) {
	p := pv.p.Load()
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// Clear un-publishes the value, e.g. on FolderSync reset or PolicyKey
// invalidation after a 449 response.
func (pv *Published[T]) Clear() {
	pv.p.Store(nil)
}
