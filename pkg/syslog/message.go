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

package syslog

import "strings"

// Version identifies the syslog protocol a message was parsed from.
type Version uint8

const (
	VersionRFC3164 Version = 0
	VersionRFC5424 Version = 1
)

func (v Version) String() string {
	switch v {
	case VersionRFC3164:
		return "rfc3164"
	case VersionRFC5424:
		return "rfc5424"
	default:
		return "unknown"
	}
}

// MaxPriority is the largest valid PRI value (facility 23, severity 7).
const MaxPriority = 191

// SDParam is a single structured-data parameter.
type SDParam struct {
	Name  string
	Value string
}

// SDElement is one bracketed SD-ELEMENT. Parameter order is preserved.
type SDElement struct {
	ID     string
	Params []SDParam
}

// Message is the protocol-agnostic parsed form of a syslog message.
// Absent header strings are "". Header fields cannot legitimately be
// empty in either RFC, so no separate presence flag is needed.
type Message struct {
	Priority       uint8
	Version        Version
	TimestampMS    int64
	Hostname       string
	AppName        string
	ProcID         string
	MsgID          string
	StructuredData []SDElement
	Body           string
}

// Facility returns the syslog facility encoded in the priority.
func (m *Message) Facility() uint8 {
	return m.Priority >> 3
}

// Severity returns the syslog severity encoded in the priority.
func (m *Message) Severity() uint8 {
	return m.Priority & 0x07
}

// String renders the element in RFC 5424 SD-ELEMENT form with
// PARAM-VALUE escaping of '"', '\' and ']'.
func (e SDElement) String() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(e.ID)
	for _, p := range e.Params {
		b.WriteByte(' ')
		b.WriteString(p.Name)
		b.WriteString(`="`)
		b.WriteString(escapeSDValue(p.Value))
		b.WriteByte('"')
	}
	b.WriteByte(']')
	return b.String()
}

// RenderStructuredData renders the canonical STRUCTURED-DATA field:
// "-" when empty, otherwise the concatenated SD-ELEMENTs.
func RenderStructuredData(elems []SDElement) string {
	if len(elems) == 0 {
		return "-"
	}
	var b strings.Builder
	for _, e := range elems {
		b.WriteString(e.String())
	}
	return b.String()
}

func escapeSDValue(v string) string {
	if !strings.ContainsAny(v, `"\]`) {
		return v
	}
	var b strings.Builder
	b.Grow(len(v) + 4)
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '"', '\\', ']':
			b.WriteByte('\\')
		}
		b.WriteByte(v[i])
	}
	return b.String()
}
