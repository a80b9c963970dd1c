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

import (
	"strings"
	"time"
)

var rfc3164Months = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// parseRFC3164 parses the remainder after "<PRI>". The format has no
// year; the receive clock's year is assumed. Hostname and TAG[PID]: are
// best-effort: when the remainder does not match, it is all body.
func (p *Parser) parseRFC3164(pri uint8, rest string) (Message, error) {
	msg := Message{
		Priority: pri,
		Version:  VersionRFC3164,
	}

	ts, after, hasTS, err := p.parse3164Timestamp(rest)
	if err != nil {
		return Message{}, err
	}
	if !hasTS {
		msg.TimestampMS = p.now().UnixMilli()
		msg.Body = sanitizeBody(strings.TrimLeft(rest, " "))
		return msg, nil
	}
	msg.TimestampMS = ts

	after = strings.TrimLeft(after, " ")
	sp := strings.IndexByte(after, ' ')
	if sp < 0 {
		// A single trailing token is a bare message, not a hostname.
		msg.Body = sanitizeBody(after)
		return msg, nil
	}
	msg.Hostname = after[:sp]
	content := strings.TrimLeft(after[sp+1:], " ")

	tag, pid, body, ok := split3164Tag(content)
	if ok {
		msg.AppName = tag
		msg.ProcID = pid
		msg.Body = sanitizeBody(body)
	} else {
		msg.Body = sanitizeBody(content)
	}
	return msg, nil
}

// parse3164Timestamp recognizes "Mmm dd HH:MM:SS". hasTS is false when
// the remainder does not open with a month abbreviation; a month
// followed by a malformed rest is an error.
func (p *Parser) parse3164Timestamp(rest string) (ms int64, after string, hasTS bool, err error) {
	if len(rest) < 3 {
		return 0, rest, false, nil
	}
	month, ok := rfc3164Months[rest[:3]]
	if !ok {
		return 0, rest, false, nil
	}

	fields := strings.Fields(rest)
	if len(fields) < 3 {
		return 0, "", false, parseErrorf(ErrInvalidTimestamp, "short timestamp %q", rest)
	}
	t, perr := time.Parse("Jan 2 15:04:05", fields[0]+" "+fields[1]+" "+fields[2])
	if perr != nil {
		return 0, "", false, parseErrorf(ErrInvalidTimestamp, "timestamp %q", strings.Join(fields[:3], " "))
	}

	now := p.now().UTC()
	ts := time.Date(now.Year(), month, t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)

	// Advance past the three consumed fields.
	after = rest
	for i := 0; i < 3; i++ {
		after = strings.TrimLeft(after, " ")
		if sp := strings.IndexByte(after, ' '); sp >= 0 {
			after = after[sp:]
		} else {
			after = ""
		}
	}
	return ts.UnixMilli(), after, true, nil
}

// split3164Tag matches "TAG:", "TAG[PID]:" at the start of content.
// TAG characters follow BSD practice: letters, digits, '_', '.', '-', '/'.
func split3164Tag(content string) (tag, pid, body string, ok bool) {
	i := 0
	for i < len(content) && is3164TagByte(content[i]) {
		i++
	}
	if i == 0 {
		return "", "", "", false
	}
	tag = content[:i]
	rest := content[i:]

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", "", "", false
		}
		pid = rest[1:end]
		rest = rest[end+1:]
	}
	if !strings.HasPrefix(rest, ":") {
		return "", "", "", false
	}
	return tag, pid, strings.TrimLeft(rest[1:], " "), true
}

func is3164TagByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '.' || c == '-' || c == '/':
		return true
	}
	return false
}
