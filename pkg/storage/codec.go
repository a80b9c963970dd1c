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

import "fmt"

// Token tags inside serialized templates. Protocol constants; changing
// them breaks chunk file compatibility.
const (
	tokenLiteral  = 0
	tokenWildcard = 1
)

// wildcardToken mirrors logshrink.Wildcard. Kept local so the codec
// has no dependency on the clustering package.
const wildcardToken = "<*>"

// encodePayload serializes a chunk payload into the columnar wire
// layout: record count, string pool, template table, timestamp block,
// then the fixed-width and variable columns in declaration order.
func encodePayload(p *ChunkPayload) ([]byte, error) {
	n := p.RecordCount()
	if n == 0 {
		return nil, fmt.Errorf("empty chunk payload")
	}
	if len(p.Versions) != n || len(p.HostnameIDs) != n || len(p.AppNameIDs) != n ||
		len(p.ProcIDIDs) != n || len(p.MsgIDIDs) != n || len(p.SDIDs) != n ||
		len(p.TemplateIDs) != n || len(p.Variables) != n || len(p.Deltas) != n-1 {
		return nil, fmt.Errorf("inconsistent column lengths for %d records", n)
	}

	w := newByteWriter(64 * n)
	w.Uint32(uint32(n))

	w.Uint32(uint32(len(p.Pool)))
	for _, s := range p.Pool {
		w.String(s)
	}

	w.Uint32(uint32(len(p.Templates)))
	for _, tokens := range p.Templates {
		w.Uint32(uint32(len(tokens)))
		for _, tok := range tokens {
			if tok == wildcardToken {
				w.Uint8(tokenWildcard)
			} else {
				w.Uint8(tokenLiteral)
				w.String(tok)
			}
		}
	}

	w.Int64(p.BaseMS)
	for _, d := range p.Deltas {
		w.Int64(d)
	}

	for _, v := range p.Priorities {
		w.Uint8(v)
	}
	for _, v := range p.Versions {
		w.Uint8(v)
	}
	for _, col := range [][]uint32{p.HostnameIDs, p.AppNameIDs, p.ProcIDIDs, p.MsgIDIDs, p.SDIDs, p.TemplateIDs} {
		for _, v := range col {
			w.Uint32(v)
		}
	}

	for _, vars := range p.Variables {
		w.Uint32(uint32(len(vars)))
		for _, v := range vars {
			w.String(v)
		}
	}
	return w.Bytes(), nil
}

// decodePayload reverses encodePayload, validating the structural
// invariants: pool and template ids must index their tables.
func decodePayload(data []byte) (*ChunkPayload, error) {
	r := newByteReader(data)

	n, err := r.Count(1)
	if err != nil {
		return nil, fmt.Errorf("record count: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("empty chunk payload")
	}

	poolLen, err := r.Count(4)
	if err != nil {
		return nil, fmt.Errorf("pool length: %w", err)
	}
	p := &ChunkPayload{Pool: make([]string, poolLen)}
	for i := range p.Pool {
		if p.Pool[i], err = r.String(); err != nil {
			return nil, fmt.Errorf("pool entry %d: %w", i, err)
		}
	}

	tmplLen, err := r.Count(4)
	if err != nil {
		return nil, fmt.Errorf("template count: %w", err)
	}
	p.Templates = make([][]string, tmplLen)
	for i := range p.Templates {
		tokenLen, err := r.Count(1)
		if err != nil {
			return nil, fmt.Errorf("template %d: %w", i, err)
		}
		tokens := make([]string, tokenLen)
		for j := range tokens {
			tag, err := r.Uint8()
			if err != nil {
				return nil, fmt.Errorf("template %d token %d: %w", i, j, err)
			}
			switch tag {
			case tokenWildcard:
				tokens[j] = wildcardToken
			case tokenLiteral:
				if tokens[j], err = r.String(); err != nil {
					return nil, fmt.Errorf("template %d token %d: %w", i, j, err)
				}
			default:
				return nil, fmt.Errorf("template %d token %d: bad tag %d", i, j, tag)
			}
		}
		p.Templates[i] = tokens
	}

	if p.BaseMS, err = r.Int64(); err != nil {
		return nil, fmt.Errorf("timestamp base: %w", err)
	}
	p.Deltas = make([]int64, n-1)
	for i := range p.Deltas {
		if p.Deltas[i], err = r.Int64(); err != nil {
			return nil, fmt.Errorf("timestamp delta %d: %w", i, err)
		}
	}

	p.Priorities = make([]uint8, n)
	for i := range p.Priorities {
		if p.Priorities[i], err = r.Uint8(); err != nil {
			return nil, fmt.Errorf("priority %d: %w", i, err)
		}
	}
	p.Versions = make([]uint8, n)
	for i := range p.Versions {
		if p.Versions[i], err = r.Uint8(); err != nil {
			return nil, fmt.Errorf("version %d: %w", i, err)
		}
	}

	cols := []*[]uint32{&p.HostnameIDs, &p.AppNameIDs, &p.ProcIDIDs, &p.MsgIDIDs, &p.SDIDs, &p.TemplateIDs}
	for c, col := range cols {
		*col = make([]uint32, n)
		for i := range *col {
			if (*col)[i], err = r.Uint32(); err != nil {
				return nil, fmt.Errorf("column %d row %d: %w", c, i, err)
			}
		}
	}

	p.Variables = make([][]string, n)
	for i := range p.Variables {
		varLen, err := r.Count(4)
		if err != nil {
			return nil, fmt.Errorf("variables %d: %w", i, err)
		}
		vars := make([]string, varLen)
		for j := range vars {
			if vars[j], err = r.String(); err != nil {
				return nil, fmt.Errorf("variable %d/%d: %w", i, j, err)
			}
		}
		p.Variables[i] = vars
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after payload", r.remaining())
	}

	for i, id := range p.TemplateIDs {
		if int(id) >= len(p.Templates) {
			return nil, fmt.Errorf("record %d: template id %d out of range", i, id)
		}
	}
	for _, col := range [][]uint32{p.HostnameIDs, p.AppNameIDs, p.ProcIDIDs, p.MsgIDIDs, p.SDIDs} {
		for i, id := range col {
			if int(id) > len(p.Pool) {
				return nil, fmt.Errorf("record %d: pool id %d out of range", i, id)
			}
		}
	}
	return p, nil
}
