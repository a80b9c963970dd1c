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
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/novatechflow/sankshepa/internal/metrics"
	"github.com/novatechflow/sankshepa/pkg/syslog"
)

// Record is one reconstructed message plus its chunk-local template
// id and the index of the chunk frame it came from.
type Record struct {
	Message    syslog.Message
	TemplateID uint32
	ChunkIndex int
}

// ReaderConfig controls streaming reads.
type ReaderConfig struct {
	// TemplateID, when non-nil, yields only records referencing that
	// chunk-local template id. The predicate applies before template
	// expansion.
	TemplateID *uint32

	// Logger receives per-frame skip warnings. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Reader streams chunk frames sequentially, reconstructing records.
// Corrupt or truncated frames are skipped with a warning; decoding
// stops cleanly at end of file.
type Reader struct {
	file    *os.File
	comp    *compressor
	cfg     ReaderConfig
	logger  *slog.Logger
	payload *ChunkPayload
	times   []int64
	recIdx  int
	chunk   int
	current Record
	err     error
	skipped int
	done    bool
}

// OpenReader opens a chunk file and verifies its magic.
func OpenReader(path string, cfg ReaderConfig) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	var magic [len(FileMagic)]byte
	if _, err := io.ReadFull(file, magic[:]); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if string(magic[:]) != FileMagic {
		file.Close()
		return nil, fmt.Errorf("%w: bad magic %q", ErrUnsupportedFormat, magic)
	}
	comp, err := newCompressor(0)
	if err != nil {
		file.Close()
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		file:   file,
		comp:   comp,
		cfg:    cfg,
		logger: logger.With("component", "reader", "path", path),
		chunk:  -1,
	}, nil
}

// Next advances to the next record, loading further chunk frames as
// needed. It returns false at end of file or on a terminal error.
func (r *Reader) Next() bool {
	for {
		if r.payload != nil && r.recIdx < r.payload.RecordCount() {
			i := r.recIdx
			r.recIdx++
			if r.cfg.TemplateID != nil && r.payload.TemplateIDs[i] != *r.cfg.TemplateID {
				continue
			}
			rec, err := r.materialize(i)
			if err != nil {
				// Structurally valid frame with inconsistent record
				// data: abandon the rest of this frame.
				r.skipFrame("bad_record", err)
				r.payload = nil
				continue
			}
			r.current = rec
			return true
		}

		if r.done {
			return false
		}
		payload, err := r.nextFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.done = true
				return false
			}
			r.err = err
			return false
		}
		if payload == nil {
			continue
		}
		r.payload = payload
		r.times = payload.Timestamps()
		r.recIdx = 0
		r.chunk++
	}
}

// Record returns the record produced by the last successful Next.
func (r *Reader) Record() Record {
	return r.current
}

// Err reports the terminal error, if any, after Next returns false.
func (r *Reader) Err() error {
	return r.err
}

// Skipped counts frames dropped for CRC, truncation or decode errors.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Close releases the file and codec.
func (r *Reader) Close() error {
	r.comp.Close()
	return r.file.Close()
}

// nextFrame reads one frame. A nil payload with nil error means the
// frame was skipped and the caller should try the next one. io.EOF
// signals a clean end of file.
func (r *Reader) nextFrame() (*ChunkPayload, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(r.file, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		// A partial header is a truncated trailing frame.
		r.skipFrame("truncated", ErrTruncatedFrame)
		return nil, io.EOF
	}
	length := binary.LittleEndian.Uint32(header[0:4])
	wantCRC := binary.LittleEndian.Uint32(header[4:8])

	compressed := make([]byte, length)
	if _, err := io.ReadFull(r.file, compressed); err != nil {
		r.skipFrame("truncated", ErrTruncatedFrame)
		return nil, io.EOF
	}

	if crc32.ChecksumIEEE(compressed) != wantCRC {
		r.skipFrame("checksum", ErrChecksum)
		return nil, nil
	}

	raw, err := r.comp.Decompress(compressed)
	if err != nil {
		r.skipFrame("decompress", err)
		return nil, nil
	}
	payload, err := decodePayload(raw)
	if err != nil {
		r.skipFrame("decode", err)
		return nil, nil
	}
	return payload, nil
}

func (r *Reader) skipFrame(reason string, err error) {
	r.skipped++
	metrics.ReadFramesSkippedTotal.WithLabelValues(reason).Inc()
	r.logger.Warn("skipping chunk frame", "reason", reason, "error", err)
}

// materialize reconstructs record i of the current payload: pool ids
// resolve to strings, the template expands with the record's variables
// in slot order, tokens joined by single spaces.
func (r *Reader) materialize(i int) (Record, error) {
	p := r.payload
	tmplID := p.TemplateIDs[i]
	body, err := expandTemplate(p.Templates[tmplID], p.Variables[i])
	if err != nil {
		return Record{}, fmt.Errorf("record %d template %d: %w", i, tmplID, err)
	}

	msg := syslog.Message{
		Priority:    p.Priorities[i],
		Version:     syslog.Version(p.Versions[i]),
		TimestampMS: r.times[i],
		Hostname:    p.PoolString(p.HostnameIDs[i]),
		AppName:     p.PoolString(p.AppNameIDs[i]),
		ProcID:      p.PoolString(p.ProcIDIDs[i]),
		MsgID:       p.PoolString(p.MsgIDIDs[i]),
		Body:        body,
	}
	if sd := p.PoolString(p.SDIDs[i]); sd != "" {
		elems, err := syslog.ParseStructuredData(sd)
		if err != nil {
			return Record{}, fmt.Errorf("record %d structured data: %w", i, err)
		}
		msg.StructuredData = elems
	}
	return Record{Message: msg, TemplateID: tmplID, ChunkIndex: r.chunk}, nil
}

func expandTemplate(tokens []string, vars []string) (string, error) {
	var b strings.Builder
	v := 0
	for i, tok := range tokens {
		if i > 0 {
			b.WriteByte(' ')
		}
		if tok == wildcardToken {
			if v >= len(vars) {
				return "", fmt.Errorf("variable arity mismatch: %d slots, %d values", v+1, len(vars))
			}
			b.WriteString(vars[v])
			v++
		} else {
			b.WriteString(tok)
		}
	}
	if v != len(vars) {
		return "", fmt.Errorf("variable arity mismatch: %d slots, %d values", v, len(vars))
	}
	return b.String(), nil
}
