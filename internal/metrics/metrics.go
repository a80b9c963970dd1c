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

package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "sankshepa"

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Parsed messages accepted into the pipeline.",
		},
		[]string{"transport", "format"},
	)
	ParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Messages rejected by the parser, by error kind.",
		},
		[]string{"kind"},
	)
	FramingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "framing_errors_total",
			Help:      "TCP connections terminated by framing errors.",
		},
		[]string{"reason"},
	)
	DatagramsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_dropped_total",
			Help:      "UDP datagrams discarded for exceeding the size cap.",
		},
	)
	DeadLetterTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letter_total",
			Help:      "Unparseable payloads recorded to the dead letter log.",
		},
	)
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Open TCP ingest connections.",
		},
	)
	TapDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tap_dropped_total",
			Help:      "Messages dropped by slow tap subscribers.",
		},
		[]string{"subscriber"},
	)
	TemplatesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "templates_created_total",
			Help:      "New templates minted by the clustering engine.",
		},
	)
	ChunksFlushedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_flushed_total",
			Help:      "Chunks sealed and handed to the writer.",
		},
	)
	ChunkBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_total",
			Help:      "Chunk payload bytes by stage (raw, compressed).",
		},
		[]string{"stage"},
	)
	EncodeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encode_errors_total",
			Help:      "Chunks dropped by serialization or compression failures.",
		},
	)
	FlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Time to encode, compress and write one chunk.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	ReadFramesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_frames_skipped_total",
			Help:      "Chunk frames skipped on read, by reason.",
		},
		[]string{"reason"},
	)
	ArchiveOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_ops_total",
			Help:      "Object store archive operations by result.",
		},
		[]string{"op", "result"},
	)
	IngestRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_rate",
			Help:      "Messages per second over the last minute.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		ParseErrorsTotal,
		FramingErrorsTotal,
		DatagramsDroppedTotal,
		DeadLetterTotal,
		ActiveConnections,
		TapDroppedTotal,
		TemplatesCreatedTotal,
		ChunksFlushedTotal,
		ChunkBytesTotal,
		EncodeErrorsTotal,
		FlushDuration,
		ReadFramesSkippedTotal,
		ArchiveOpsTotal,
		IngestRate,
	)
}
