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

package ingest

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/novatechflow/sankshepa/pkg/syslog"
)

func startListeners(t *testing.T, out chan syslog.Message) (*Listeners, context.CancelFunc) {
	t.Helper()
	cfg := Config{
		UDPAddr:     "127.0.0.1:0",
		TCPAddr:     "127.0.0.1:0",
		GracePeriod: time.Second,
	}
	l, err := Listen(cfg, out, nil, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		l.Wait()
	})
	return l, cancel
}

func recvMessage(t *testing.T, out <-chan syslog.Message) syslog.Message {
	t.Helper()
	select {
	case msg := <-out:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for message")
		return syslog.Message{}
	}
}

func TestUDPIngest(t *testing.T) {
	out := make(chan syslog.Message, 16)
	l, _ := startListeners(t, out)

	conn, err := net.Dial("udp", l.UDPAddr())
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("<34>1 2024-01-01T00:00:00Z host app 1 ID47 - hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := recvMessage(t, out)
	if msg.Hostname != "host" || msg.Body != "hello" || msg.Version != syslog.VersionRFC5424 {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestTCPIngestNonTransparent(t *testing.T) {
	out := make(chan syslog.Message, 16)
	l, _ := startListeners(t, out)

	conn, err := net.Dial("tcp", l.TCPAddr())
	if err != nil {
		t.Fatalf("dial tcp: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("<34>Oct 11 22:14:15 m su: one\n<34>Oct 11 22:14:15 m su: two\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	first := recvMessage(t, out)
	second := recvMessage(t, out)
	if first.Body != "one" || second.Body != "two" {
		t.Fatalf("bodies = %q, %q", first.Body, second.Body)
	}
	// Per-connection ordering is preserved.
	if first.AppName != "su" || first.Hostname != "m" {
		t.Fatalf("first = %+v", first)
	}
}

func TestTCPIngestOctetCounting(t *testing.T) {
	out := make(chan syslog.Message, 16)
	l, _ := startListeners(t, out)

	conn, err := net.Dial("tcp", l.TCPAddr())
	if err != nil {
		t.Fatalf("dial tcp: %v", err)
	}
	defer conn.Close()
	payload := "<34>1 2024-01-01T00:00:00Z host app 1 ID47 - counted"
	framed := []byte(nil)
	framed = append(framed, []byte(frameLen(payload))...)
	framed = append(framed, payload...)
	if _, err := conn.Write(framed); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := recvMessage(t, out)
	if msg.Body != "counted" {
		t.Fatalf("body = %q", msg.Body)
	}
}

func frameLen(payload string) string {
	return itoa(len(payload)) + " "
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestDeadLetterDoesNotPropagate(t *testing.T) {
	out := make(chan syslog.Message, 16)
	l, _ := startListeners(t, out)

	conn, err := net.Dial("udp", l.UDPAddr())
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	defer conn.Close()
	// Unparseable, then valid: only the valid one arrives.
	if _, err := conn.Write([]byte("<999>broken priority")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := conn.Write([]byte("<13>ok message")); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := recvMessage(t, out)
	if msg.Body != "ok message" {
		t.Fatalf("body = %q", msg.Body)
	}
}

func TestTapReceivesParsedMessages(t *testing.T) {
	out := make(chan syslog.Message, 16)
	tap := NewTap()
	sub := tap.Subscribe("dashboard", 4)

	cfg := Config{UDPAddr: "127.0.0.1:0", GracePeriod: time.Second}
	l, err := Listen(cfg, out, tap, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.Serve(ctx)
	defer func() {
		cancel()
		l.Wait()
	}()

	conn, err := net.Dial("udp", l.UDPAddr())
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("<13>tapped message")); err != nil {
		t.Fatalf("write: %v", err)
	}

	recvMessage(t, out)
	select {
	case msg := <-sub:
		if msg.Body != "tapped message" {
			t.Fatalf("tap body = %q", msg.Body)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("tap did not receive the message")
	}
}

func TestShutdownStopsListeners(t *testing.T) {
	out := make(chan syslog.Message, 16)
	cfg := Config{
		UDPAddr:     "127.0.0.1:0",
		TCPAddr:     "127.0.0.1:0",
		GracePeriod: 100 * time.Millisecond,
	}
	l, err := Listen(cfg, out, nil, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.Serve(ctx)

	conn, err := net.Dial("tcp", l.TCPAddr())
	if err != nil {
		t.Fatalf("dial tcp: %v", err)
	}
	defer conn.Close()

	cancel()
	done := make(chan struct{})
	go func() {
		l.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("listeners did not shut down within the grace period")
	}
}
