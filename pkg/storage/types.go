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

// Package storage serializes sealed chunks into compressed columnar
// frames on disk and streams them back. Each frame is self-contained:
// decoding one chunk never requires data from another.
package storage

import "errors"

// FileMagic opens every chunk file.
const FileMagic = "SANKSHP1"

var (
	// ErrUnsupportedFormat is returned when a file does not start with
	// FileMagic.
	ErrUnsupportedFormat = errors.New("storage: unsupported file format")

	// ErrChecksum marks a frame whose CRC does not match its payload.
	ErrChecksum = errors.New("storage: frame checksum mismatch")

	// ErrTruncatedFrame marks a frame cut short at end of file.
	ErrTruncatedFrame = errors.New("storage: truncated frame")
)

// ChunkPayload is the columnar form of one sealed chunk. All
// per-record slices share the record count; Deltas has one fewer
// entry (Deltas[i] = t[i+1] - t[i] on top of BaseMS). Pool ids are
// 1-based; 0 means absent. Template tokens use the logshrink wildcard
// sentinel for variable positions.
type ChunkPayload struct {
	Pool      []string
	Templates [][]string

	BaseMS int64
	Deltas []int64

	Priorities  []uint8
	Versions    []uint8
	HostnameIDs []uint32
	AppNameIDs  []uint32
	ProcIDIDs   []uint32
	MsgIDIDs    []uint32
	SDIDs       []uint32
	TemplateIDs []uint32
	Variables   [][]string
}

// RecordCount returns the number of records in the chunk.
func (p *ChunkPayload) RecordCount() int {
	return len(p.Priorities)
}

// Timestamps materializes absolute timestamps by prefix-summing the
// deltas onto the base.
func (p *ChunkPayload) Timestamps() []int64 {
	out := make([]int64, p.RecordCount())
	if len(out) == 0 {
		return out
	}
	out[0] = p.BaseMS
	for i, d := range p.Deltas {
		out[i+1] = out[i] + d
	}
	return out
}

// PoolString resolves a 1-based pool id; id 0 is the absent value.
func (p *ChunkPayload) PoolString(id uint32) string {
	if id == 0 || int(id) > len(p.Pool) {
		return ""
	}
	return p.Pool[id-1]
}
