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
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"time"

	"github.com/novatechflow/sankshepa/internal/metrics"
)

// frameHeaderLen is the per-chunk frame overhead: u32 length plus u32
// CRC, both little-endian.
const frameHeaderLen = 8

// ErrEncode wraps serialization and compression failures. These are
// fatal at chunk scope only: the caller drops the chunk and continues.
// Plain I/O errors from WriteChunk are fatal process-wide.
var ErrEncode = errors.New("storage: chunk encode failed")

// WriterConfig controls chunk serialization.
type WriterConfig struct {
	// CompressionLevel is the zstd level; zero means
	// DefaultCompressionLevel.
	CompressionLevel int

	// Archive, when set, receives a copy of every framed chunk.
	// Archive failures never fail the write.
	Archive *Archiver
}

// Writer appends compressed chunk frames to a single output file. It
// is owned by one goroutine; methods must not be called concurrently.
type Writer struct {
	file    *os.File
	comp    *compressor
	archive *Archiver
	seq     uint64
}

// NewWriter opens (or creates) the chunk file at path. A new or empty
// file gets the magic; an existing file must already carry it, and
// frames are appended after its current end.
func NewWriter(path string, cfg WriterConfig) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		if _, err := file.Write([]byte(FileMagic)); err != nil {
			file.Close()
			return nil, fmt.Errorf("write magic: %w", err)
		}
	} else {
		var magic [len(FileMagic)]byte
		if _, err := io.ReadFull(file, magic[:]); err != nil || string(magic[:]) != FileMagic {
			file.Close()
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
		}
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek %s: %w", path, err)
	}

	comp, err := newCompressor(cfg.CompressionLevel)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &Writer{file: file, comp: comp, archive: cfg.Archive}, nil
}

// WriteChunk serializes, compresses and appends one sealed chunk.
func (w *Writer) WriteChunk(p *ChunkPayload) error {
	start := time.Now()

	raw, err := encodePayload(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	compressed := w.comp.Compress(raw)

	frame := make([]byte, frameHeaderLen+len(compressed))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(frame[4:8], crc32.ChecksumIEEE(compressed))
	copy(frame[frameHeaderLen:], compressed)

	if _, err := w.file.Write(frame); err != nil {
		return fmt.Errorf("write chunk frame: %w", err)
	}

	metrics.ChunkBytesTotal.WithLabelValues("raw").Add(float64(len(raw)))
	metrics.ChunkBytesTotal.WithLabelValues("compressed").Add(float64(len(compressed)))
	metrics.FlushDuration.Observe(time.Since(start).Seconds())

	w.seq++
	if w.archive != nil {
		w.archive.Submit(w.seq, p.BaseMS, frame)
	}
	return nil
}

// Sync flushes file contents to stable storage.
func (w *Writer) Sync() error {
	return w.file.Sync()
}

// Close syncs and closes the output file.
func (w *Writer) Close() error {
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.comp.Close()
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}
