// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
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

package storage

import (
	"encoding/binary"
	"fmt"
)

// byteReader walks a serialized chunk payload. All integers are
// little-endian; strings and outer lists carry u32 length prefixes.
type byteReader struct {
	buf []byte
	pos int
}

func newByteReader(b []byte) *byteReader {
	return &byteReader{buf: b}
}

func (r *byteReader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *byteReader) read(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("insufficient bytes: need %d have %d", n, r.remaining())
	}
	start := r.pos
	r.pos += n
	return r.buf[start:r.pos], nil
}

func (r *byteReader) Uint8() (uint8, error) {
	b, err := r.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *byteReader) Uint32() (uint32, error) {
	b, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *byteReader) Int64() (int64, error) {
	b, err := r.read(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// Length reads a u32 length prefix and bounds-checks it against the
// remaining input so corrupt frames cannot drive huge allocations.
func (r *byteReader) Length() (int, error) {
	v, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	n := int(v)
	if n > r.remaining() {
		return 0, fmt.Errorf("length %d exceeds remaining %d bytes", n, r.remaining())
	}
	return n, nil
}

// Count reads a u32 element count. Elements occupy at least minBytes
// each, which bounds the count against the remaining input.
func (r *byteReader) Count(minBytes int) (int, error) {
	v, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	n := int(v)
	if minBytes > 0 && n > r.remaining()/minBytes {
		return 0, fmt.Errorf("count %d exceeds remaining %d bytes", n, r.remaining())
	}
	return n, nil
}

func (r *byteReader) String() (string, error) {
	n, err := r.Length()
	if err != nil {
		return "", err
	}
	b, err := r.read(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type byteWriter struct {
	buf []byte
}

func newByteWriter(capacity int) *byteWriter {
	return &byteWriter{buf: make([]byte, 0, capacity)}
}

func (w *byteWriter) write(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *byteWriter) Uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *byteWriter) Uint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.write(tmp[:])
}

func (w *byteWriter) Int64(v int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	w.write(tmp[:])
}

func (w *byteWriter) String(v string) {
	w.Uint32(uint32(len(v)))
	w.write([]byte(v))
}

func (w *byteWriter) Bytes() []byte {
	return w.buf
}
