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
	"sync"

	"github.com/novatechflow/sankshepa/internal/metrics"
	"github.com/novatechflow/sankshepa/pkg/syslog"
)

// Tap fans parsed messages out to dashboard-style subscribers. A slow
// subscriber drops messages from its own queue only; the main pipeline
// is never blocked.
type Tap struct {
	mu   sync.Mutex
	subs map[string]chan syslog.Message
}

// NewTap creates an empty tap.
func NewTap() *Tap {
	return &Tap{subs: make(map[string]chan syslog.Message)}
}

// Subscribe registers a named queue of the given capacity. The name
// labels the drop metric. Subscribing twice with one name replaces
// (and closes) the previous queue.
func (t *Tap) Subscribe(name string, buffer int) <-chan syslog.Message {
	if buffer <= 0 {
		buffer = 256
	}
	ch := make(chan syslog.Message, buffer)
	t.mu.Lock()
	if prev, ok := t.subs[name]; ok {
		close(prev)
	}
	t.subs[name] = ch
	t.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber queue.
func (t *Tap) Unsubscribe(name string) {
	t.mu.Lock()
	if ch, ok := t.subs[name]; ok {
		close(ch)
		delete(t.subs, name)
	}
	t.mu.Unlock()
}

// Publish offers a message to every subscriber without blocking.
func (t *Tap) Publish(msg syslog.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, ch := range t.subs {
		select {
		case ch <- msg:
		default:
			metrics.TapDroppedTotal.WithLabelValues(name).Inc()
		}
	}
}

// Close closes all subscriber queues.
func (t *Tap) Close() {
	t.mu.Lock()
	for name, ch := range t.subs {
		close(ch)
		delete(t.subs, name)
	}
	t.mu.Unlock()
}
