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

// Package engine wires the ingest listeners, the chunk builder and the
// chunk writer into one pipeline. A single builder goroutine owns the
// open chunk and a single writer goroutine owns the output file; the
// stages are connected by bounded channels so backpressure propagates
// from disk to the sockets.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/novatechflow/sankshepa/internal/metrics"
	"github.com/novatechflow/sankshepa/pkg/ingest"
	"github.com/novatechflow/sankshepa/pkg/logshrink"
	"github.com/novatechflow/sankshepa/pkg/storage"
	"github.com/novatechflow/sankshepa/pkg/syslog"
)

const (
	// DefaultGracePeriod bounds socket draining after shutdown begins.
	DefaultGracePeriod = 5 * time.Second

	// DefaultHardTimeout aborts a shutdown that cannot complete,
	// accepting loss of the open (unsealed) chunk.
	DefaultHardTimeout = 30 * time.Second

	// payloadQueueDepth is the builder→writer channel capacity.
	payloadQueueDepth = 2
)

// ErrShutdownTimeout is returned when shutdown exceeds the hard
// timeout; only the open chunk is lost.
var ErrShutdownTimeout = errors.New("engine: shutdown hard timeout exceeded")

// ErrConfig marks an invalid configuration.
var ErrConfig = errors.New("engine: invalid configuration")

// Config carries all tuning; the core reads no environment.
type Config struct {
	OutputPath string
	UDPAddr    string
	TCPAddr    string

	// BatchSize seals the open chunk at this record count. Zero
	// selects logshrink.DefaultBatchSize.
	BatchSize int

	// CompressionLevel is the zstd level (1..22); zero selects the
	// storage default.
	CompressionLevel int

	// FlushInterval seals the open chunk, if non-empty, on a fixed
	// ticker of this period, whether or not messages keep arriving.
	// Zero disables the timer.
	FlushInterval time.Duration

	// MaxFrame caps one TCP-framed message.
	MaxFrame int

	GracePeriod time.Duration
	HardTimeout time.Duration

	// Archive, when set, mirrors every flushed chunk to the object
	// store under ArchivePrefix.
	Archive       storage.S3Client
	ArchivePrefix string

	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.OutputPath == "" {
		return fmt.Errorf("%w: output path required", ErrConfig)
	}
	if c.UDPAddr == "" && c.TCPAddr == "" {
		return fmt.Errorf("%w: at least one listener address required", ErrConfig)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch size %d", ErrConfig, c.BatchSize)
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 22 {
		return fmt.Errorf("%w: compression level %d", ErrConfig, c.CompressionLevel)
	}
	if c.Archive != nil && c.ArchivePrefix == "" {
		return fmt.Errorf("%w: archive prefix required when archiving", ErrConfig)
	}
	return nil
}

// Engine is one assembled pipeline instance.
type Engine struct {
	cfg       Config
	logger    *slog.Logger
	tap       *ingest.Tap
	feed      *logshrink.Feed
	listeners *ingest.Listeners
	writer    *storage.Writer
	archiver  *storage.Archiver
	msgs      chan syslog.Message
	payloads  chan *storage.ChunkPayload
}

// New validates the configuration, opens the output file and binds the
// listeners. Configuration failures wrap ErrConfig; anything else is a
// startup I/O failure.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")

	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.HardTimeout <= 0 {
		cfg.HardTimeout = DefaultHardTimeout
	}
	batch := cfg.BatchSize
	if batch == 0 {
		batch = logshrink.DefaultBatchSize
	}
	cfg.BatchSize = batch

	var archiver *storage.Archiver
	if cfg.Archive != nil {
		archiver = storage.NewArchiver(cfg.Archive, cfg.ArchivePrefix, logger)
	}

	writer, err := storage.NewWriter(cfg.OutputPath, storage.WriterConfig{
		CompressionLevel: cfg.CompressionLevel,
		Archive:          archiver,
	})
	if err != nil {
		if archiver != nil {
			archiver.Close()
		}
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		tap:      ingest.NewTap(),
		feed:     logshrink.NewFeed(),
		writer:   writer,
		archiver: archiver,
		msgs:     make(chan syslog.Message, 4*batch),
		payloads: make(chan *storage.ChunkPayload, payloadQueueDepth),
	}

	listeners, err := ingest.Listen(ingest.Config{
		UDPAddr:     cfg.UDPAddr,
		TCPAddr:     cfg.TCPAddr,
		MaxFrame:    cfg.MaxFrame,
		GracePeriod: cfg.GracePeriod,
	}, e.msgs, e.tap, logger)
	if err != nil {
		writer.Close()
		if archiver != nil {
			archiver.Close()
		}
		return nil, err
	}
	e.listeners = listeners
	return e, nil
}

// Tap exposes the dashboard fan-out.
func (e *Engine) Tap() *ingest.Tap {
	return e.tap
}

// TemplateFeed exposes the one-way template delta stream consumed by
// the cluster layer.
func (e *Engine) TemplateFeed() *logshrink.Feed {
	return e.feed
}

// UDPAddr returns the bound UDP listener address.
func (e *Engine) UDPAddr() string {
	return e.listeners.UDPAddr()
}

// TCPAddr returns the bound TCP listener address.
func (e *Engine) TCPAddr() string {
	return e.listeners.TCPAddr()
}

// Run serves until ctx is cancelled, then drains, force-flushes the
// open chunk, syncs and closes the output file. It returns nil on a
// clean shutdown, the write error on an unrecoverable I/O failure, or
// ErrShutdownTimeout when the hard timeout expires.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.listeners.Serve(runCtx)

	// Once shutdown begins and the framers have drained, no producer
	// can touch the message channel again.
	go func() {
		<-runCtx.Done()
		e.listeners.Wait()
		close(e.msgs)
	}()

	go e.buildLoop()

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- e.writeLoop(cancel)
	}()

	select {
	case err := <-writerDone:
		return err
	case <-ctx.Done():
		select {
		case err := <-writerDone:
			return err
		case <-time.After(e.cfg.HardTimeout):
			e.logger.Error("shutdown hard timeout, abandoning open chunk")
			return ErrShutdownTimeout
		}
	}
}

// buildLoop is the single owner of the open chunk.
func (e *Engine) buildLoop() {
	builder := logshrink.NewBuilder(e.cfg.BatchSize)

	var flushC <-chan time.Time
	var ticker *time.Ticker
	if e.cfg.FlushInterval > 0 {
		ticker = time.NewTicker(e.cfg.FlushInterval)
		flushC = ticker.C
		defer ticker.Stop()
	}

	defer close(e.payloads)
	for {
		select {
		case msg, ok := <-e.msgs:
			if !ok {
				e.seal(builder)
				return
			}
			builder.Add(msg)
			if builder.Full() {
				e.seal(builder)
			}
		case <-flushC:
			e.seal(builder)
		}
	}
}

func (e *Engine) seal(builder *logshrink.Builder) {
	payload, table := builder.Seal()
	if payload == nil {
		return
	}
	e.feed.Publish(table)
	metrics.ChunksFlushedTotal.Inc()
	e.payloads <- payload
}

// writeLoop owns the output file. Encode failures drop the chunk and
// continue; I/O failures cancel the pipeline and surface to Run.
func (e *Engine) writeLoop(cancel context.CancelFunc) error {
	var fatal error
	for payload := range e.payloads {
		if fatal != nil {
			continue
		}
		err := e.writer.WriteChunk(payload)
		switch {
		case err == nil:
		case errors.Is(err, storage.ErrEncode):
			metrics.EncodeErrorsTotal.Inc()
			e.logger.Error("dropping chunk", "records", payload.RecordCount(), "error", err)
		default:
			e.logger.Error("unrecoverable write failure", "error", err)
			fatal = err
			cancel()
		}
	}

	if err := e.writer.Close(); err != nil && fatal == nil {
		fatal = err
	}
	if e.archiver != nil {
		e.archiver.Close()
	}
	e.feed.Close()
	e.tap.Close()
	return fatal
}
