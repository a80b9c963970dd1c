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

package logshrink

import (
	"github.com/novatechflow/sankshepa/internal/metrics"
	"github.com/novatechflow/sankshepa/pkg/storage"
	"github.com/novatechflow/sankshepa/pkg/syslog"
)

// DefaultBatchSize is the record count at which a chunk seals.
const DefaultBatchSize = 10

// pendingRecord retains the original token vector until seal so that
// variables can be extracted against the final template shape after
// any number of merges.
type pendingRecord struct {
	msg        syslog.Message
	tokens     []string
	templateID uint32
}

// Builder owns the open chunk. It is not safe for concurrent use; a
// single goroutine must own it.
type Builder struct {
	batchSize int

	pool      []string
	poolIndex map[string]uint32

	templates []*Template
	byCount   map[int][]uint32

	records []pendingRecord
}

// NewBuilder creates an empty builder sealing at batchSize records.
func NewBuilder(batchSize int) *Builder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	b := &Builder{batchSize: batchSize}
	b.reset()
	return b
}

func (b *Builder) reset() {
	b.pool = nil
	b.poolIndex = make(map[string]uint32)
	b.templates = nil
	b.byCount = make(map[int][]uint32)
	b.records = b.records[:0]
}

// Len returns the number of records in the open chunk.
func (b *Builder) Len() int {
	return len(b.records)
}

// Full reports whether the open chunk reached the batch size.
func (b *Builder) Full() bool {
	return len(b.records) >= b.batchSize
}

// intern returns the 1-based pool id for s, or 0 for the absent value.
func (b *Builder) intern(s string) uint32 {
	if s == "" {
		return 0
	}
	if id, ok := b.poolIndex[s]; ok {
		return id
	}
	b.pool = append(b.pool, s)
	id := uint32(len(b.pool))
	b.poolIndex[s] = id
	return id
}

// Add tokenizes the message body and clusters it into the chunk's
// template table: the first existing same-length template with
// similarity >= 0.5 (insertion order) absorbs it, downgrading
// mismatched positions to wildcards; otherwise the token vector
// becomes a new fully-concrete template.
func (b *Builder) Add(msg syslog.Message) {
	tokens := Tokenize(msg.Body)

	var tmpl *Template
	for _, id := range b.byCount[len(tokens)] {
		cand := b.templates[id]
		if similarity(cand.Tokens, tokens) >= SimilarityThreshold {
			tmpl = cand
			break
		}
	}
	if tmpl != nil {
		merge(tmpl.Tokens, tokens)
	} else {
		tmpl = &Template{
			ID:     uint32(len(b.templates)),
			Tokens: append([]string(nil), tokens...),
		}
		b.templates = append(b.templates, tmpl)
		b.byCount[len(tokens)] = append(b.byCount[len(tokens)], tmpl.ID)
		metrics.TemplatesCreatedTotal.Inc()
	}

	b.records = append(b.records, pendingRecord{
		msg:        msg,
		tokens:     tokens,
		templateID: tmpl.ID,
	})
}

// Seal extracts variables against the final template shapes, builds
// the columnar payload and resets the builder. The returned template
// slice is the sealed chunk's table, for the template delta feed.
// Seal returns nil for an empty chunk.
func (b *Builder) Seal() (*storage.ChunkPayload, []Template) {
	if len(b.records) == 0 {
		return nil, nil
	}

	n := len(b.records)
	payload := &storage.ChunkPayload{
		Templates:   make([][]string, len(b.templates)),
		Deltas:      make([]int64, n-1),
		Priorities:  make([]uint8, n),
		Versions:    make([]uint8, n),
		HostnameIDs: make([]uint32, n),
		AppNameIDs:  make([]uint32, n),
		ProcIDIDs:   make([]uint32, n),
		MsgIDIDs:    make([]uint32, n),
		SDIDs:       make([]uint32, n),
		TemplateIDs: make([]uint32, n),
		Variables:   make([][]string, n),
	}

	table := make([]Template, len(b.templates))
	for i, t := range b.templates {
		payload.Templates[i] = t.Tokens
		table[i] = Template{ID: t.ID, Tokens: append([]string(nil), t.Tokens...)}
	}

	payload.BaseMS = b.records[0].msg.TimestampMS
	for i, rec := range b.records {
		if i > 0 {
			payload.Deltas[i-1] = rec.msg.TimestampMS - b.records[i-1].msg.TimestampMS
		}
		payload.Priorities[i] = rec.msg.Priority
		payload.Versions[i] = uint8(rec.msg.Version)
		payload.HostnameIDs[i] = b.intern(rec.msg.Hostname)
		payload.AppNameIDs[i] = b.intern(rec.msg.AppName)
		payload.ProcIDIDs[i] = b.intern(rec.msg.ProcID)
		payload.MsgIDIDs[i] = b.intern(rec.msg.MsgID)
		if len(rec.msg.StructuredData) > 0 {
			payload.SDIDs[i] = b.intern(syslog.RenderStructuredData(rec.msg.StructuredData))
		}
		payload.TemplateIDs[i] = rec.templateID

		tmpl := b.templates[rec.templateID]
		var vars []string
		for j, tok := range tmpl.Tokens {
			if tok == Wildcard {
				vars = append(vars, rec.tokens[j])
			}
		}
		payload.Variables[i] = vars
	}
	payload.Pool = b.pool

	b.reset()
	return payload, table
}
