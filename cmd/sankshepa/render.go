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

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/novatechflow/sankshepa/pkg/storage"
	"github.com/novatechflow/sankshepa/pkg/syslog"
)

// renderRecord prints a reconstructed record in its original wire
// shape: RFC 5424 records with the full header, RFC 3164 records in
// BSD form.
func renderRecord(rec storage.Record) string {
	msg := rec.Message
	ts := time.UnixMilli(msg.TimestampMS).UTC()

	if msg.Version == syslog.VersionRFC5424 {
		var b strings.Builder
		fmt.Fprintf(&b, "<%d>1 %s %s %s %s %s %s",
			msg.Priority,
			ts.Format(time.RFC3339),
			orNil(msg.Hostname),
			orNil(msg.AppName),
			orNil(msg.ProcID),
			orNil(msg.MsgID),
			syslog.RenderStructuredData(msg.StructuredData),
		)
		if msg.Body != "" {
			b.WriteByte(' ')
			b.WriteString(msg.Body)
		}
		return b.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<%d>%s", msg.Priority, ts.Format("Jan _2 15:04:05"))
	if msg.Hostname != "" {
		b.WriteByte(' ')
		b.WriteString(msg.Hostname)
	}
	if msg.AppName != "" {
		b.WriteByte(' ')
		b.WriteString(msg.AppName)
		if msg.ProcID != "" {
			fmt.Fprintf(&b, "[%s]", msg.ProcID)
		}
		b.WriteByte(':')
	}
	if msg.Body != "" {
		b.WriteByte(' ')
		b.WriteString(msg.Body)
	}
	return b.String()
}

func orNil(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
