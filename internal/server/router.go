// Package server exposes an Item Store over a line-oriented TCP protocol.
package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/celerix-dev/safari/pkg/engine"
	"github.com/celerix-dev/safari/pkg/schema"
)

const (
	maxConnections = 100
	readTimeout    = 30 * time.Second
	maxLineBytes   = 1 << 20
)

type Router struct {
	store  engine.ItemStore
	logger *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	cert     *tls.Certificate
	conns    map[net.Conn]struct{}
	stopped  bool
	wg       sync.WaitGroup
}

// NewRouter serves s. PUT is only accepted when s also implements engine.Importer.
func NewRouter(s engine.ItemStore, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{store: s, logger: logger, conns: make(map[net.Conn]struct{})}
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Addr returns the bound address, or nil before Listen has bound.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Listen binds addr and serves until Stop is called. It returns nil after Stop.
func (r *Router) Listen(addr string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}, MinVersion: tls.VersionTLS12}
		listener, err = tls.Listen("tcp", addr, config)
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		listener.Close()
		return nil
	}
	r.listener = listener
	r.mu.Unlock()

	r.logger.Info("store port listening", zap.String("addr", listener.Addr().String()), zap.Bool("tls", r.cert != nil))

	semaphore := make(chan struct{}, maxConnections)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if r.isStopped() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}

		if !r.track(conn) {
			conn.Close()
			return nil
		}

		go func(c net.Conn) {
			defer r.wg.Done()
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				r.untrack(c)
				c.Close()
			}()
			r.handleConnection(c)
		}(conn)
	}
}

// Stop closes the listener and every open connection, then waits for
// in-flight handlers.
func (r *Router) Stop() error {
	r.mu.Lock()
	r.stopped = true
	var err error
	if r.listener != nil {
		err = r.listener.Close()
	}
	for c := range r.conns {
		c.Close()
	}
	r.mu.Unlock()

	r.wg.Wait()
	return err
}

func (r *Router) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Router) track(c net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.conns[c] = struct{}{}
	r.wg.Add(1)
	return true
}

func (r *Router) untrack(c net.Conn) {
	r.mu.Lock()
	delete(r.conns, c)
	r.mu.Unlock()
}

func (r *Router) handleConnection(conn net.Conn) {
	reader := bufio.NewReaderSize(conn, 64*1024)
	ctx := context.Background()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		line, err := readLine(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && !r.isStopped() {
				r.logger.Debug("store connection closed", zap.Error(err))
			}
			return
		}

		command, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		if command == "" {
			continue
		}
		arg = strings.TrimSpace(arg)

		switch strings.ToUpper(command) {
		case "PING":
			fmt.Fprintln(conn, "PONG")

		case "QUIT":
			fmt.Fprintln(conn, "OK")
			return

		case "LIST":
			limit := 0
			if arg != "" {
				if limit, err = strconv.Atoi(arg); err != nil {
					writeErr(conn, fmt.Errorf("%w: limit %q", engine.ErrInvalidInput, arg))
					continue
				}
			}
			items, err := r.store.ListRecent(ctx, limit)
			if err != nil {
				writeErr(conn, err)
				continue
			}
			if items == nil {
				items = []schema.ActionItem{}
			}
			writeJSON(conn, items)

		case "GET":
			if arg == "" {
				writeErr(conn, fmt.Errorf("%w: GET requires an id", engine.ErrInvalidInput))
				continue
			}
			item, err := r.store.Get(ctx, arg)
			if err != nil {
				writeErr(conn, err)
				continue
			}
			writeJSON(conn, item)

		case "CREATE":
			item, ok := decodeItem(conn, arg)
			if !ok {
				continue
			}
			if err := checkCreate(&item); err != nil {
				writeErr(conn, err)
				continue
			}
			if _, err := r.store.Create(ctx, &item); err != nil {
				writeErr(conn, err)
				continue
			}
			writeJSON(conn, item)

		case "UPDATE":
			item, ok := decodeItem(conn, arg)
			if !ok {
				continue
			}
			prev, err := r.store.Get(ctx, item.ID)
			if err != nil {
				writeErr(conn, err)
				continue
			}
			if err := checkUpdate(prev, &item); err != nil {
				writeErr(conn, err)
				continue
			}
			if err := r.store.Update(ctx, item); err != nil {
				writeErr(conn, err)
				continue
			}
			fmt.Fprintln(conn, "OK")

		case "PUT":
			// Migration path: items are stored verbatim.
			importer, isImporter := r.store.(engine.Importer)
			if !isImporter {
				writeErr(conn, fmt.Errorf("%w: store does not accept imports", engine.ErrInvalidInput))
				continue
			}
			item, ok := decodeItem(conn, arg)
			if !ok {
				continue
			}
			if err := importer.Put(ctx, item); err != nil {
				writeErr(conn, err)
				continue
			}
			fmt.Fprintln(conn, "OK")

		default:
			writeErr(conn, fmt.Errorf("%w: unknown command %q", engine.ErrInvalidInput, command))
		}
	}
}

// readLine reads one newline-terminated line, refusing lines over maxLineBytes.
func readLine(reader *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		chunk, isPrefix, err := reader.ReadLine()
		if err != nil {
			return "", err
		}
		sb.Write(chunk)
		if sb.Len() > maxLineBytes {
			return "", fmt.Errorf("command exceeds %d bytes", maxLineBytes)
		}
		if !isPrefix {
			return sb.String(), nil
		}
	}
}

func decodeItem(w io.Writer, payload string) (schema.ActionItem, bool) {
	var item schema.ActionItem
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		writeErr(w, fmt.Errorf("%w: invalid json item", engine.ErrInvalidInput))
		return item, false
	}
	return item, true
}

func writeJSON(w io.Writer, v any) {
	res, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintln(w, "ERR", CodeInternal, "internal error")
		return
	}
	fmt.Fprintln(w, "OK", string(res))
}

func writeErr(w io.Writer, err error) {
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	fmt.Fprintln(w, "ERR", ErrorCode(err), msg)
}
