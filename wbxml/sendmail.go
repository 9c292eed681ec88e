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

package wbxml

import (
	"bytes"
	"fmt"
	"io"
)

// SendMail builds the ComposeMail SendMail command directly rather than
// through the generic Encode path: the MIME payload must be framed as
// OPAQUE, and the generic encoder only ever emits STR_I for character
// data read off an encoding/xml stream.
func SendMail(clientID string, mime []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeHeader(&buf); err != nil {
		return nil, err
	}
	cp, ok := Tags[PageComposeMail]
	if !ok {
		return nil, fmt.Errorf("encoding send_mail: ComposeMail code page not registered")
	}
	tag := func(name string) (byte, error) {
		id, ok := reverseLookup(cp, name)
		if !ok {
			return 0, fmt.Errorf("encoding send_mail: ComposeMail has no %q tag", name)
		}
		return id, nil
	}

	sendMailID, err := tag("SendMail")
	if err != nil {
		return nil, err
	}
	clientIDID, err := tag("ClientId")
	if err != nil {
		return nil, err
	}
	saveID, err := tag("SaveInSentItems")
	if err != nil {
		return nil, err
	}
	mimeID, err := tag("Mime")
	if err != nil {
		return nil, err
	}

	if err := writeSwitchPage(&buf, PageComposeMail); err != nil {
		return nil, err
	}
	if _, err := buf.Write([]byte{sendMailID | tagContentFlag}); err != nil {
		return nil, fmt.Errorf("writing send_mail open tag: %v", err)
	}

	if _, err := buf.Write([]byte{clientIDID | tagContentFlag}); err != nil {
		return nil, fmt.Errorf("writing send_mail ClientId open tag: %v", err)
	}
	if err := writeStrI(&buf, clientID); err != nil {
		return nil, err
	}
	if _, err := buf.Write([]byte{tokEnd}); err != nil {
		return nil, fmt.Errorf("writing send_mail ClientId end: %v", err)
	}

	if _, err := buf.Write([]byte{saveID}); err != nil {
		return nil, fmt.Errorf("writing send_mail SaveInSentItems: %v", err)
	}

	if _, err := buf.Write([]byte{mimeID | tagContentFlag}); err != nil {
		return nil, fmt.Errorf("writing send_mail Mime open tag: %v", err)
	}
	if err := writeOpaque(&buf, mime); err != nil {
		return nil, err
	}
	if _, err := buf.Write([]byte{tokEnd}); err != nil {
		return nil, fmt.Errorf("writing send_mail Mime end: %v", err)
	}

	if _, err := buf.Write([]byte{tokEnd}); err != nil {
		return nil, fmt.Errorf("writing send_mail SendMail end: %v", err)
	}
	return buf.Bytes(), nil
}

func writeSwitchPage(w io.Writer, page byte) error {
	_, err := w.Write([]byte{tokSwitchPage, page})
	if err != nil {
		return fmt.Errorf("writing wbxml switch_page: %v", err)
	}
	return nil
}
