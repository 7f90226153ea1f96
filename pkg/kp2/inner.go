// Copyright 2026 The Kdbcodec Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kp2

import (
	"encoding/binary"
	"io"

	"zombiezen.com/go/kdbcodec/pkg/secbuf"
)

// Inner header field IDs (version 4)
const (
	innerFieldEnd       = 0
	innerFieldStreamID  = 1
	innerFieldStreamKey = 2
	innerFieldBinary    = 3
)

// binaryProtectFlag marks an inner binary whose bytes should be kept
// memory-protected by clients.
const binaryProtectFlag byte = 0x01

// innerHeader is the version 4 structure that precedes the XML inside
// the decrypted content: the inner stream settings and the attachment
// pool.
type innerHeader struct {
	streamID  uint32
	streamKey []byte
	binaries  []innerBinary
}

type innerBinary struct {
	protected bool
	data      []byte
}

// readInnerHeader parses the inner header from the front of the
// decrypted content and returns it along with the remaining bytes,
// which hold the XML document.
func readInnerHeader(content []byte) (*innerHeader, []byte, error) {
	ih := &innerHeader{streamID: innerStreamNone}
	r := secbuf.NewSliceReader(content)
	for {
		head := r.Slice(1)
		if r.Err() != nil {
			return nil, nil, ErrPrematureEnd
		}
		id := head[0]
		// Copied out: the decrypted content is wiped once open returns.
		val := append([]byte(nil), r.Slice(int(r.Uint32()))...)
		if r.Err() != nil {
			return nil, nil, ErrPrematureEnd
		}
		switch id {
		case innerFieldEnd:
			return ih, content[len(content)-r.Remaining():], nil
		case innerFieldStreamID:
			if len(val) != 4 {
				return nil, nil, &HeaderFieldError{ID: id, Inner: true, Reason: "stream ID must be 4 bytes"}
			}
			ih.streamID = binary.LittleEndian.Uint32(val)
		case innerFieldStreamKey:
			ih.streamKey = val
		case innerFieldBinary:
			if len(val) < 1 {
				return nil, nil, &HeaderFieldError{ID: id, Inner: true, Reason: "binary field missing flags byte"}
			}
			ih.binaries = append(ih.binaries, innerBinary{
				protected: val[0]&binaryProtectFlag != 0,
				data:      val[1:],
			})
		default:
			return nil, nil, &HeaderFieldError{ID: id, Inner: true, Reason: "unknown field"}
		}
	}
}

// write serializes the inner header in front of the XML document.
func (ih *innerHeader) write(w io.Writer) error {
	field := func(id byte, val []byte) error {
		var head [5]byte
		head[0] = id
		binary.LittleEndian.PutUint32(head[1:], uint32(len(val)))
		if _, err := w.Write(head[:]); err != nil {
			return err
		}
		_, err := w.Write(val)
		return err
	}
	var sid [4]byte
	binary.LittleEndian.PutUint32(sid[:], ih.streamID)
	if err := field(innerFieldStreamID, sid[:]); err != nil {
		return err
	}
	if err := field(innerFieldStreamKey, ih.streamKey); err != nil {
		return err
	}
	for _, b := range ih.binaries {
		val := make([]byte, len(b.data)+1)
		if b.protected {
			val[0] = binaryProtectFlag
		}
		copy(val[1:], b.data)
		if err := field(innerFieldBinary, val); err != nil {
			return err
		}
	}
	return field(innerFieldEnd, nil)
}
