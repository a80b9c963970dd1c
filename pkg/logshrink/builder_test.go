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
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/novatechflow/sankshepa/pkg/syslog"
)

func bodyMsg(body string) syslog.Message {
	return syslog.Message{
		Priority:    34,
		Version:     syslog.VersionRFC3164,
		TimestampMS: 1700000000000,
		Hostname:    "host",
		Body:        body,
	}
}

// Two bodies differing in one position share a template.
func TestTemplateMerge(t *testing.T) {
	b := NewBuilder(10)
	b.Add(bodyMsg("User alice failed login"))
	b.Add(bodyMsg("User bob failed login"))

	payload, table := b.Seal()
	if payload == nil {
		t.Fatalf("Seal returned nil")
	}
	if len(table) != 1 {
		t.Fatalf("templates = %d, want 1", len(table))
	}
	want := []string{"User", Wildcard, "failed", "login"}
	if !reflect.DeepEqual(table[0].Tokens, want) {
		t.Fatalf("template = %v, want %v", table[0].Tokens, want)
	}
	if !reflect.DeepEqual(payload.Variables[0], []string{"alice"}) ||
		!reflect.DeepEqual(payload.Variables[1], []string{"bob"}) {
		t.Fatalf("variables = %v", payload.Variables)
	}
}

// Records seen before a merge are migrated: their
// variable lists follow the final template shape.
func TestMigrationOnMerge(t *testing.T) {
	b := NewBuilder(10)
	b.Add(bodyMsg("A B C"))
	b.Add(bodyMsg("A B C"))
	b.Add(bodyMsg("A X C"))

	payload, table := b.Seal()
	if len(table) != 1 {
		t.Fatalf("templates = %d, want 1", len(table))
	}
	want := []string{"A", Wildcard, "C"}
	if !reflect.DeepEqual(table[0].Tokens, want) {
		t.Fatalf("template = %v, want %v", table[0].Tokens, want)
	}
	wantVars := [][]string{{"B"}, {"B"}, {"X"}}
	for i := range wantVars {
		if !reflect.DeepEqual(payload.Variables[i], wantVars[i]) {
			t.Fatalf("variables[%d] = %v, want %v", i, payload.Variables[i], wantVars[i])
		}
	}
}

// Identical bodies produce one concrete template and empty
// variable lists.
func TestIdenticalBodiesSingleTemplate(t *testing.T) {
	b := NewBuilder(10)
	b.Add(bodyMsg("System restart now"))
	b.Add(bodyMsg("System restart now"))

	payload, table := b.Seal()
	if len(table) != 1 {
		t.Fatalf("templates = %d, want 1", len(table))
	}
	for _, tok := range table[0].Tokens {
		if tok == Wildcard {
			t.Fatalf("unexpected wildcard in %v", table[0].Tokens)
		}
	}
	for i, vars := range payload.Variables {
		if len(vars) != 0 {
			t.Fatalf("variables[%d] = %v, want empty", i, vars)
		}
	}
}

func TestDissimilarBodiesGetOwnTemplates(t *testing.T) {
	b := NewBuilder(10)
	b.Add(bodyMsg("alpha beta gamma delta"))
	b.Add(bodyMsg("one two three four"))

	_, table := b.Seal()
	if len(table) != 2 {
		t.Fatalf("templates = %d, want 2", len(table))
	}
}

func TestTokenCountGrouping(t *testing.T) {
	b := NewBuilder(10)
	b.Add(bodyMsg("A B"))
	b.Add(bodyMsg("A B C"))

	_, table := b.Seal()
	// Different token counts never share a template regardless of
	// similarity.
	if len(table) != 2 {
		t.Fatalf("templates = %d, want 2", len(table))
	}
}

// Over a mixed batch, every record's variable arity matches its
// template's wildcard count and every id is valid.
func TestSealInvariants(t *testing.T) {
	b := NewBuilder(100)
	for i := 0; i < 20; i++ {
		m := bodyMsg(fmt.Sprintf("User user%d failed login from 10.0.0.%d", i, i))
		m.AppName = "sshd"
		m.ProcID = fmt.Sprintf("%d", 100+i%3)
		b.Add(m)
	}
	b.Add(bodyMsg("System restart"))

	payload, table := b.Seal()
	for i := 0; i < payload.RecordCount(); i++ {
		id := payload.TemplateIDs[i]
		if int(id) >= len(table) {
			t.Fatalf("record %d: template id %d out of range", i, id)
		}
		tmpl := table[id]
		if len(payload.Variables[i]) != tmpl.VariableCount() {
			t.Fatalf("record %d: %d variables for %d slots", i, len(payload.Variables[i]), tmpl.VariableCount())
		}
		for _, col := range [][]uint32{payload.HostnameIDs, payload.AppNameIDs, payload.ProcIDIDs, payload.MsgIDIDs} {
			if col[i] != 0 && int(col[i]) > len(payload.Pool) {
				t.Fatalf("record %d: pool id %d out of range", i, col[i])
			}
		}
	}
}

// Expanding each record's template with its variables
// reproduces the tokenized body.
func TestTemplateSoundness(t *testing.T) {
	bodies := []string{
		"Connection from 10.0.0.1 port 22",
		"Connection from 10.0.0.2 port 22",
		"Connection from 10.0.0.3 port 8080",
		"disk usage at 81 percent",
		"disk usage at 97 percent",
	}
	b := NewBuilder(100)
	for _, body := range bodies {
		b.Add(bodyMsg(body))
	}
	payload, table := b.Seal()
	for i, body := range bodies {
		tmpl := table[payload.TemplateIDs[i]]
		var out []string
		v := 0
		for _, tok := range tmpl.Tokens {
			if tok == Wildcard {
				out = append(out, payload.Variables[i][v])
				v++
			} else {
				out = append(out, tok)
			}
		}
		if got := strings.Join(out, " "); got != body {
			t.Fatalf("record %d expands to %q, want %q", i, got, body)
		}
	}
}

func TestInterning(t *testing.T) {
	b := NewBuilder(10)
	m1 := bodyMsg("x")
	m1.Hostname = "same-host"
	m1.AppName = "app"
	m2 := bodyMsg("y")
	m2.Hostname = "same-host"
	b.Add(m1)
	b.Add(m2)

	payload, _ := b.Seal()
	if payload.HostnameIDs[0] != payload.HostnameIDs[1] {
		t.Fatalf("same hostname interned twice: %d vs %d", payload.HostnameIDs[0], payload.HostnameIDs[1])
	}
	if payload.AppNameIDs[1] != 0 {
		t.Fatalf("absent app name should be id 0, got %d", payload.AppNameIDs[1])
	}
	if payload.PoolString(payload.HostnameIDs[0]) != "same-host" {
		t.Fatalf("pool lookup = %q", payload.PoolString(payload.HostnameIDs[0]))
	}
}

func TestEmptyBodiesShareEmptyTemplate(t *testing.T) {
	b := NewBuilder(10)
	b.Add(bodyMsg(""))
	b.Add(bodyMsg("   "))

	payload, table := b.Seal()
	if len(table) != 1 || len(table[0].Tokens) != 0 {
		t.Fatalf("table = %v", table)
	}
	if payload.TemplateIDs[0] != payload.TemplateIDs[1] {
		t.Fatalf("empty bodies should share a template")
	}
}

func TestSealResetsBuilder(t *testing.T) {
	b := NewBuilder(10)
	b.Add(bodyMsg("first chunk"))
	if p, _ := b.Seal(); p == nil {
		t.Fatalf("first seal nil")
	}
	if b.Len() != 0 {
		t.Fatalf("builder not reset")
	}
	b.Add(bodyMsg("second chunk"))
	payload, table := b.Seal()
	if payload == nil || len(table) != 1 {
		t.Fatalf("second chunk = %v", table)
	}
	if table[0].ID != 0 {
		t.Fatalf("template ids are chunk-local, got %d", table[0].ID)
	}
	if p, _ := b.Seal(); p != nil {
		t.Fatalf("empty seal should be nil")
	}
}

func TestFeedPublishAndDrop(t *testing.T) {
	f := NewFeed()
	fast := f.Subscribe(8)
	slow := f.Subscribe(1)

	table := []Template{
		{ID: 0, Tokens: []string{"a", Wildcard}},
		{ID: 1, Tokens: []string{"b"}},
	}
	f.Publish(table)

	if len(fast) != 2 {
		t.Fatalf("fast queue = %d, want 2", len(fast))
	}
	// The slow subscriber's queue held one event; the second dropped.
	if len(slow) != 1 {
		t.Fatalf("slow queue = %d, want 1", len(slow))
	}
	ev := <-fast
	if ev.Chunk != 1 || ev.Template.ID != 0 {
		t.Fatalf("event = %+v", ev)
	}
	f.Close()
	if _, ok := <-slow; !ok {
		// Drained the one buffered event or closed; both fine.
		return
	}
	if _, ok := <-slow; ok {
		t.Fatalf("slow channel should be closed")
	}
}
