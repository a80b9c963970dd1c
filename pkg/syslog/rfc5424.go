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

const utf8BOM = "\xef\xbb\xbf"

// parseRFC5424 parses the remainder after "<PRI>". The caller has
// already verified the version token.
func (p *Parser) parseRFC5424(pri uint8, rest string) (Message, error) {
	msg := Message{
		Priority: pri,
		Version:  VersionRFC5424,
	}

	// VERSION was validated by dispatch; skip "1 ".
	rest = rest[2:]

	tok, rest, err := headerField(rest, "timestamp")
	if err != nil {
		return Message{}, err
	}
	if tok == "-" {
		msg.TimestampMS = p.now().UnixMilli()
	} else {
		t, perr := time.Parse(time.RFC3339Nano, tok)
		if perr != nil {
			return Message{}, parseErrorf(ErrInvalidTimestamp, "timestamp %q", tok)
		}
		msg.TimestampMS = t.UnixMilli()
	}

	if msg.Hostname, rest, err = headerField(rest, "hostname"); err != nil {
		return Message{}, err
	}
	if msg.AppName, rest, err = headerField(rest, "app-name"); err != nil {
		return Message{}, err
	}
	if msg.ProcID, rest, err = headerField(rest, "procid"); err != nil {
		return Message{}, err
	}
	if msg.MsgID, rest, err = headerField(rest, "msgid"); err != nil {
		return Message{}, err
	}
	msg.Hostname = nilValue(msg.Hostname)
	msg.AppName = nilValue(msg.AppName)
	msg.ProcID = nilValue(msg.ProcID)
	msg.MsgID = nilValue(msg.MsgID)

	elems, rest, err := parseSD(rest)
	if err != nil {
		return Message{}, err
	}
	msg.StructuredData = elems

	if rest != "" {
		if rest[0] != ' ' {
			return Message{}, parseErrorf(ErrInvalidStructuredData, "expected space before msg, got %q", rest[:1])
		}
		body := strings.TrimPrefix(rest[1:], utf8BOM)
		msg.Body = sanitizeBody(body)
	}
	return msg, nil
}

// headerField consumes one space-terminated header token. The final
// field before STRUCTURED-DATA must still be followed by SD, so a
// missing separator is a truncation.
func headerField(rest, name string) (string, string, error) {
	if rest == "" {
		return "", "", parseErrorf(ErrTruncated, "missing %s", name)
	}
	sp := strings.IndexByte(rest, ' ')
	if sp <= 0 {
		return "", "", parseErrorf(ErrTruncated, "missing field after %s", name)
	}
	return rest[:sp], rest[sp+1:], nil
}

func nilValue(tok string) string {
	if tok == "-" {
		return ""
	}
	return tok
}

// ParseStructuredData parses a complete STRUCTURED-DATA field value:
// "-" (or empty) yields nil, otherwise one or more SD-ELEMENTs with
// nothing trailing. It is the exact inverse of RenderStructuredData.
func ParseStructuredData(s string) ([]SDElement, error) {
	if s == "" || s == "-" {
		return nil, nil
	}
	elems, rest, err := parseSD(s)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, parseErrorf(ErrInvalidStructuredData, "trailing bytes %q", rest)
	}
	return elems, nil
}

// parseSD consumes the STRUCTURED-DATA field: either NILVALUE or one or
// more SD-ELEMENTs. It returns the remainder beginning at the byte
// after the field (the space before MSG, if any).
func parseSD(rest string) ([]SDElement, string, error) {
	if rest == "" {
		return nil, "", parseErrorf(ErrTruncated, "missing structured data")
	}
	if rest[0] == '-' {
		return nil, rest[1:], nil
	}
	var elems []SDElement
	for len(rest) > 0 && rest[0] == '[' {
		elem, after, err := parseSDElement(rest)
		if err != nil {
			return nil, "", err
		}
		elems = append(elems, elem)
		rest = after
	}
	if len(elems) == 0 {
		return nil, "", parseErrorf(ErrInvalidStructuredData, "expected '-' or '['")
	}
	return elems, rest, nil
}

func parseSDElement(rest string) (SDElement, string, error) {
	// Opening '[' verified by caller.
	rest = rest[1:]
	i := 0
	for i < len(rest) && rest[i] != ' ' && rest[i] != ']' {
		i++
	}
	if i == 0 {
		return SDElement{}, "", parseErrorf(ErrInvalidStructuredData, "empty sd-id")
	}
	if i == len(rest) {
		return SDElement{}, "", parseErrorf(ErrInvalidStructuredData, "unterminated sd-element")
	}
	elem := SDElement{ID: rest[:i]}
	rest = rest[i:]

	for {
		if rest == "" {
			return SDElement{}, "", parseErrorf(ErrInvalidStructuredData, "unterminated sd-element %q", elem.ID)
		}
		if rest[0] == ']' {
			return elem, rest[1:], nil
		}
		if rest[0] != ' ' {
			return SDElement{}, "", parseErrorf(ErrInvalidStructuredData, "malformed sd-element %q", elem.ID)
		}
		rest = rest[1:]

		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return SDElement{}, "", parseErrorf(ErrInvalidStructuredData, "missing '=' in sd-param")
		}
		name := rest[:eq]
		rest = rest[eq+1:]
		if !strings.HasPrefix(rest, `"`) {
			return SDElement{}, "", parseErrorf(ErrInvalidStructuredData, "sd-param %q value not quoted", name)
		}
		value, after, err := parseSDValue(rest[1:])
		if err != nil {
			return SDElement{}, "", err
		}
		elem.Params = append(elem.Params, SDParam{Name: name, Value: value})
		rest = after
	}
}

// parseSDValue scans a PARAM-VALUE up to the closing quote. '\' escapes
// '"', '\' and ']'; a backslash before any other byte is literal, per
// RFC 5424 §6.3.3.
func parseSDValue(rest string) (string, string, error) {
	var b strings.Builder
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		switch c {
		case '"':
			return b.String(), rest[i+1:], nil
		case '\\':
			if i+1 >= len(rest) {
				return "", "", parseErrorf(ErrInvalidStructuredData, "dangling escape")
			}
			next := rest[i+1]
			if next == '"' || next == '\\' || next == ']' {
				b.WriteByte(next)
				i++
			} else {
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", "", parseErrorf(ErrInvalidStructuredData, "unterminated sd-param value")
}
