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

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/novatechflow/sankshepa/internal/metrics"
)

// archiveQueueDepth bounds chunks waiting for upload. The archive is
// best-effort: a full queue drops the chunk copy, never the write.
const archiveQueueDepth = 16

// archiveUploadTimeout bounds one object upload.
const archiveUploadTimeout = 30 * time.Second

type archiveItem struct {
	key   string
	frame []byte
}

// Archiver mirrors framed chunks to an object store in the background.
// Each object is prefixed with the file magic so it is a complete,
// self-contained chunk file.
type Archiver struct {
	client S3Client
	prefix string
	logger *slog.Logger
	queue  chan archiveItem
	wg     sync.WaitGroup
}

// NewArchiver starts the upload worker. prefix namespaces object keys.
func NewArchiver(client S3Client, prefix string, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Archiver{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "archiver"),
		queue:  make(chan archiveItem, archiveQueueDepth),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Submit enqueues one framed chunk for upload. Never blocks: when the
// queue is full the copy is dropped and counted.
func (a *Archiver) Submit(seq uint64, baseMS int64, frame []byte) {
	key := fmt.Sprintf("%s/chunk-%08d-%d.skp", a.prefix, seq, baseMS)
	object := make([]byte, 0, len(FileMagic)+len(frame))
	object = append(object, FileMagic...)
	object = append(object, frame...)
	select {
	case a.queue <- archiveItem{key: key, frame: object}:
	default:
		metrics.ArchiveOpsTotal.WithLabelValues("upload", "dropped").Inc()
		a.logger.Warn("archive queue full, dropping chunk copy", "key", key)
	}
}

// Close drains pending uploads and stops the worker.
func (a *Archiver) Close() {
	close(a.queue)
	a.wg.Wait()
}

func (a *Archiver) run() {
	defer a.wg.Done()
	for item := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), archiveUploadTimeout)
		err := a.client.UploadChunk(ctx, item.key, item.frame)
		cancel()
		if err != nil {
			metrics.ArchiveOpsTotal.WithLabelValues("upload", "error").Inc()
			a.logger.Warn("chunk archive upload failed", "key", item.key, "error", err)
			continue
		}
		metrics.ArchiveOpsTotal.WithLabelValues("upload", "ok").Inc()
	}
}
