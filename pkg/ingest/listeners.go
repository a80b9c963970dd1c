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

// Package ingest binds the UDP and TCP syslog listeners and feeds
// parsed messages into the pipeline channel.
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/novatechflow/sankshepa/internal/metrics"
	"github.com/novatechflow/sankshepa/pkg/framing"
	"github.com/novatechflow/sankshepa/pkg/syslog"
)

// maxDatagram caps accepted UDP payloads at 64 KiB; larger datagrams
// are discarded.
const maxDatagram = 64 * 1024

// deadLetterSample bounds the payload prefix kept for dead-letter
// logging.
const deadLetterSample = 256

// Config describes the listener endpoints and limits.
type Config struct {
	// UDPAddr and TCPAddr are listen addresses; an empty address
	// disables that listener.
	UDPAddr string
	TCPAddr string

	// MaxFrame caps one TCP-framed message; zero selects
	// framing.DefaultMaxFrame.
	MaxFrame int

	// GracePeriod bounds socket draining after shutdown begins.
	GracePeriod time.Duration
}

// Listeners owns the ingest sockets. One goroutine runs per listener
// and per accepted TCP connection; all feed the out channel, whose
// blocking sends provide backpressure.
type Listeners struct {
	cfg    Config
	parser *syslog.Parser
	out    chan<- syslog.Message
	tap    *Tap
	logger *slog.Logger

	udp net.PacketConn
	tcp net.Listener

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	wg sync.WaitGroup
}

// Listen binds the configured sockets. Bind failures are returned
// before any goroutine starts, so the caller can treat them as
// startup errors.
func Listen(cfg Config, out chan<- syslog.Message, tap *Tap, logger *slog.Logger) (*Listeners, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listeners{
		cfg:    cfg,
		parser: syslog.NewParser(),
		out:    out,
		tap:    tap,
		logger: logger.With("component", "ingest"),
		conns:  make(map[net.Conn]struct{}),
	}
	if cfg.UDPAddr != "" {
		udp, err := net.ListenPacket("udp", cfg.UDPAddr)
		if err != nil {
			return nil, err
		}
		l.udp = udp
	}
	if cfg.TCPAddr != "" {
		tcp, err := net.Listen("tcp", cfg.TCPAddr)
		if err != nil {
			if l.udp != nil {
				l.udp.Close()
			}
			return nil, err
		}
		l.tcp = tcp
	}
	return l, nil
}

// Serve starts the listener goroutines. When ctx is cancelled the TCP
// listener stops accepting and open sockets get a read deadline of
// GracePeriod to drain.
func (l *Listeners) Serve(ctx context.Context) {
	if l.udp != nil {
		l.logger.Info("udp listener started", "addr", l.udp.LocalAddr().String())
		l.wg.Add(1)
		go l.serveUDP(ctx)
	}
	if l.tcp != nil {
		l.logger.Info("tcp listener started", "addr", l.tcp.Addr().String())
		l.wg.Add(1)
		go l.serveTCP(ctx)
	}
	go func() {
		<-ctx.Done()
		l.beginShutdown()
	}()
}

// Wait blocks until every listener and connection goroutine exits.
func (l *Listeners) Wait() {
	l.wg.Wait()
}

// UDPAddr returns the bound UDP address, for tests using port 0.
func (l *Listeners) UDPAddr() string {
	if l.udp == nil {
		return ""
	}
	return l.udp.LocalAddr().String()
}

// TCPAddr returns the bound TCP address.
func (l *Listeners) TCPAddr() string {
	if l.tcp == nil {
		return ""
	}
	return l.tcp.Addr().String()
}

func (l *Listeners) beginShutdown() {
	grace := l.cfg.GracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}
	deadline := time.Now().Add(grace)
	if l.tcp != nil {
		_ = l.tcp.Close()
	}
	if l.udp != nil {
		_ = l.udp.SetReadDeadline(deadline)
	}
	l.connMu.Lock()
	for conn := range l.conns {
		_ = conn.SetReadDeadline(deadline)
	}
	l.connMu.Unlock()
}

func (l *Listeners) serveUDP(ctx context.Context) {
	defer l.wg.Done()
	defer l.udp.Close()

	buf := make([]byte, maxDatagram+1)
	for {
		n, _, err := l.udp.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return
			}
			l.logger.Warn("udp read error", "error", err)
			continue
		}
		if n > maxDatagram {
			metrics.DatagramsDroppedTotal.Inc()
			continue
		}
		l.deliver("udp", buf[:n])
	}
}

func (l *Listeners) serveTCP(ctx context.Context) {
	defer l.wg.Done()
	for {
		conn, err := l.tcp.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			l.logger.Warn("accept error", "error", err)
			return
		}
		l.connMu.Lock()
		l.conns[conn] = struct{}{}
		l.connMu.Unlock()
		l.wg.Add(1)
		go func(c net.Conn) {
			defer l.wg.Done()
			l.handleConn(c)
		}(conn)
	}
}

func (l *Listeners) handleConn(conn net.Conn) {
	metrics.ActiveConnections.Inc()
	defer func() {
		metrics.ActiveConnections.Dec()
		conn.Close()
		l.connMu.Lock()
		delete(l.conns, conn)
		l.connMu.Unlock()
	}()

	scanner := framing.NewScanner(conn, framing.Config{MaxFrame: l.cfg.MaxFrame})
	for {
		frame, err := scanner.Next()
		if err != nil {
			switch {
			case errors.Is(err, framing.ErrBadLengthPrefix):
				metrics.FramingErrorsTotal.WithLabelValues("bad_length_prefix").Inc()
				l.logger.Warn("closing connection", "remote", conn.RemoteAddr().String(), "error", err)
			case errors.Is(err, framing.ErrFrameTooLarge):
				metrics.FramingErrorsTotal.WithLabelValues("frame_too_large").Inc()
				l.logger.Warn("closing connection", "remote", conn.RemoteAddr().String(), "error", err)
			case errors.Is(err, io.EOF):
			default:
				metrics.FramingErrorsTotal.WithLabelValues("read").Inc()
				l.logger.Debug("connection read ended", "remote", conn.RemoteAddr().String(), "error", err)
			}
			return
		}
		l.deliver("tcp", frame)
	}
}

// deliver parses one payload and forwards it. Unparseable payloads go
// to the dead-letter counter with a truncated sample. The send blocks
// when the pipeline is full; the builder keeps draining until the
// channel closes, so backpressure resolves even during shutdown.
func (l *Listeners) deliver(transport string, payload []byte) {
	msg, err := l.parser.Parse(payload)
	if err != nil {
		kind := "other"
		var perr *syslog.ParseError
		if errors.As(err, &perr) {
			kind = perr.Kind.String()
		}
		metrics.ParseErrorsTotal.WithLabelValues(kind).Inc()
		metrics.DeadLetterTotal.Inc()
		sample := payload
		if len(sample) > deadLetterSample {
			sample = sample[:deadLetterSample]
		}
		l.logger.Warn("dead letter", "transport", transport, "kind", kind, "payload", string(sample))
		return
	}

	metrics.MessagesTotal.WithLabelValues(transport, msg.Version.String()).Inc()
	if l.tap != nil {
		l.tap.Publish(msg)
	}
	l.out <- msg
}
