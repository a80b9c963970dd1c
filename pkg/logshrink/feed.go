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

import "sync"

// TemplateEvent announces one template of a sealed chunk. Chunk
// identifies which seal the template belongs to; IDs restart per chunk.
type TemplateEvent struct {
	Chunk    uint64
	Template Template
}

// Feed is a one-way template delta stream for the cluster layer. It
// never blocks the builder: a subscriber whose queue is full misses
// events.
type Feed struct {
	mu    sync.Mutex
	chunk uint64
	subs  []chan TemplateEvent
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{}
}

// Subscribe registers a queue of the given capacity. The channel is
// closed by Close.
func (f *Feed) Subscribe(buffer int) <-chan TemplateEvent {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan TemplateEvent, buffer)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch
}

// Publish fans out a sealed chunk's template table.
func (f *Feed) Publish(table []Template) {
	if len(table) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunk++
	for _, tmpl := range table {
		ev := TemplateEvent{Chunk: f.chunk, Template: tmpl}
		for _, ch := range f.subs {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Close closes all subscriber channels.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}
