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

package framing

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func collect(t *testing.T, s *Scanner) []string {
	t.Helper()
	var out []string
	for {
		frame, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, string(frame))
	}
}

// The space separates the length prefix from the payload and is not
// counted; the payload length is exactly the decimal value.
func TestOctetCounting(t *testing.T) {
	s := NewScanner(strings.NewReader("5 abcde7 hijklmn"), Config{})
	frames := collect(t, s)
	if len(frames) != 2 || frames[0] != "abcde" || frames[1] != "hijklmn" {
		t.Fatalf("frames = %q", frames)
	}
	if s.Mode() != ModeOctetCounting {
		t.Fatalf("mode = %v", s.Mode())
	}
}

func TestOctetCountingExact(t *testing.T) {
	s := NewScanner(strings.NewReader("5 abcde6 fghijk"), Config{})
	frames := collect(t, s)
	if len(frames) != 2 || frames[0] != "abcde" || frames[1] != "fghijk" {
		t.Fatalf("frames = %q", frames)
	}
}

// Delimited frames.
func TestNonTransparent(t *testing.T) {
	s := NewScanner(strings.NewReader("foo\nbar\n"), Config{})
	frames := collect(t, s)
	if len(frames) != 2 || frames[0] != "foo" || frames[1] != "bar" {
		t.Fatalf("frames = %q", frames)
	}
	if s.Mode() != ModeNonTransparent {
		t.Fatalf("mode = %v", s.Mode())
	}
}

func TestNonTransparentNulDelimiter(t *testing.T) {
	s := NewScanner(strings.NewReader("<13>a\x00<13>b\n"), Config{})
	frames := collect(t, s)
	if len(frames) != 2 || frames[0] != "<13>a" || frames[1] != "<13>b" {
		t.Fatalf("frames = %q", frames)
	}
}

func TestNonTransparentSkipsEmptyFrames(t *testing.T) {
	s := NewScanner(strings.NewReader("\n\nfoo\n\n\nbar\n"), Config{})
	frames := collect(t, s)
	if len(frames) != 2 || frames[0] != "foo" || frames[1] != "bar" {
		t.Fatalf("frames = %q", frames)
	}
}

func TestNonTransparentFinalUnterminatedFrame(t *testing.T) {
	s := NewScanner(strings.NewReader("foo\nbar"), Config{})
	frames := collect(t, s)
	if len(frames) != 2 || frames[1] != "bar" {
		t.Fatalf("frames = %q", frames)
	}
}

func TestBadLengthPrefix(t *testing.T) {
	s := NewScanner(strings.NewReader("5x abcde"), Config{})
	_, err := s.Next()
	if !errors.Is(err, ErrBadLengthPrefix) {
		t.Fatalf("err = %v, want ErrBadLengthPrefix", err)
	}
}

func TestDeclaredLengthOverCap(t *testing.T) {
	s := NewScanner(strings.NewReader("9999999 x"), Config{MaxFrame: 1024})
	_, err := s.Next()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestUndelimitedFrameOverCap(t *testing.T) {
	s := NewScanner(strings.NewReader("<13>"+strings.Repeat("x", 2048)), Config{MaxFrame: 1024})
	_, err := s.Next()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestTruncatedOctetPayload(t *testing.T) {
	s := NewScanner(strings.NewReader("10 abc"), Config{})
	_, err := s.Next()
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want unexpected EOF", err)
	}
}

func TestModeLatchedForConnection(t *testing.T) {
	// After latching octet counting, a later non-digit where a length
	// is expected is an error, not a mode switch.
	s := NewScanner(strings.NewReader("3 abc<13>x\n"), Config{})
	frame, err := s.Next()
	if err != nil || string(frame) != "abc" {
		t.Fatalf("frame = %q err = %v", frame, err)
	}
	if _, err := s.Next(); !errors.Is(err, ErrBadLengthPrefix) {
		t.Fatalf("err = %v, want ErrBadLengthPrefix", err)
	}
}
