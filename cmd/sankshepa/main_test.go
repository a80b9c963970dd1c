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
	"testing"
	"time"

	"github.com/novatechflow/sankshepa/pkg/storage"
	"github.com/novatechflow/sankshepa/pkg/syslog"
)

func TestParseServeOptionsDefaults(t *testing.T) {
	opts, err := parseServeOptions(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.cfg.OutputPath != defaultOutputPath {
		t.Fatalf("output = %q", opts.cfg.OutputPath)
	}
	if opts.cfg.UDPAddr != defaultUDPAddr || opts.cfg.TCPAddr != defaultTCPAddr {
		t.Fatalf("addrs = %q/%q", opts.cfg.UDPAddr, opts.cfg.TCPAddr)
	}
	if opts.cfg.BatchSize != 10 {
		t.Fatalf("batch = %d", opts.cfg.BatchSize)
	}
	if opts.cfg.CompressionLevel != storage.DefaultCompressionLevel {
		t.Fatalf("level = %d", opts.cfg.CompressionLevel)
	}
}

func TestParseServeOptionsOverrides(t *testing.T) {
	opts, err := parseServeOptions([]string{
		"-output", "/var/log/x.skp",
		"-udp", "",
		"-tcp", "127.0.0.1:6514",
		"-batch-size", "500",
		"-compression-level", "9",
		"-flush-interval", "250ms",
		"-shutdown-timeout", "10s",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.cfg.OutputPath != "/var/log/x.skp" || opts.cfg.UDPAddr != "" {
		t.Fatalf("cfg = %+v", opts.cfg)
	}
	if opts.cfg.BatchSize != 500 || opts.cfg.CompressionLevel != 9 {
		t.Fatalf("cfg = %+v", opts.cfg)
	}
	if opts.cfg.FlushInterval != 250*time.Millisecond || opts.cfg.HardTimeout != 10*time.Second {
		t.Fatalf("cfg = %+v", opts.cfg)
	}
}

func TestParseServeOptionsRejectsUnknownFlag(t *testing.T) {
	if _, err := parseServeOptions([]string{"-definitely-not-a-flag"}); err == nil {
		t.Fatalf("expected flag error")
	}
}

func TestRenderRecordRFC5424(t *testing.T) {
	rec := storage.Record{
		Message: syslog.Message{
			Priority:    34,
			Version:     syslog.VersionRFC5424,
			TimestampMS: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
			Hostname:    "host",
			AppName:     "app",
			ProcID:      "1",
			MsgID:       "ID47",
			Body:        "hello",
		},
	}
	want := "<34>1 2024-01-01T00:00:00Z host app 1 ID47 - hello"
	if got := renderRecord(rec); got != want {
		t.Fatalf("rendered = %q, want %q", got, want)
	}
}

func TestRenderRecordRFC5424WithSD(t *testing.T) {
	rec := storage.Record{
		Message: syslog.Message{
			Priority:    165,
			Version:     syslog.VersionRFC5424,
			TimestampMS: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
			StructuredData: []syslog.SDElement{
				{ID: "x@1", Params: []syslog.SDParam{{Name: "k", Value: "v"}}},
			},
			Body: "m",
		},
	}
	want := `<165>1 2024-01-01T00:00:00Z - - - - [x@1 k="v"] m`
	if got := renderRecord(rec); got != want {
		t.Fatalf("rendered = %q, want %q", got, want)
	}
}

func TestRenderRecordRFC3164(t *testing.T) {
	rec := storage.Record{
		Message: syslog.Message{
			Priority:    34,
			Version:     syslog.VersionRFC3164,
			TimestampMS: time.Date(2024, 10, 11, 22, 14, 15, 0, time.UTC).UnixMilli(),
			Hostname:    "mymachine",
			AppName:     "su",
			ProcID:      "123",
			Body:        "'su root' failed",
		},
	}
	want := "<34>Oct 11 22:14:15 mymachine su[123]: 'su root' failed"
	if got := renderRecord(rec); got != want {
		t.Fatalf("rendered = %q, want %q", got, want)
	}
}

func TestThroughputTracker(t *testing.T) {
	tr := newThroughputTracker(time.Minute)
	tr.add(10)
	if rate := tr.rate(); rate <= 0 {
		t.Fatalf("rate = %v, want > 0", rate)
	}
	var nilTracker *throughputTracker
	nilTracker.add(1)
	if nilTracker.rate() != 0 {
		t.Fatalf("nil tracker rate should be 0")
	}
}
