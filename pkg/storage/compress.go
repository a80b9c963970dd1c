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
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// DefaultCompressionLevel is the zstd level used when the writer
// config leaves it zero.
const DefaultCompressionLevel = 3

// compressor wraps a zstd encoder/decoder pair. The encoder runs on a
// single goroutine so that output bytes are deterministic for a fixed
// level, and EncodeAll reuses one scratch buffer across chunks.
type compressor struct {
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	scratch []byte
}

func newCompressor(level int) (*compressor, error) {
	if level == 0 {
		level = DefaultCompressionLevel
	}
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &compressor{enc: enc, dec: dec}, nil
}

func (c *compressor) Compress(data []byte) []byte {
	c.scratch = c.enc.EncodeAll(data, c.scratch[:0])
	return c.scratch
}

func (c *compressor) Decompress(data []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

func (c *compressor) Close() {
	c.enc.Close()
	c.dec.Close()
}
