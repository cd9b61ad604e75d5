// Package sdk provides the client side of the Safari Item Store.
// It supports both remote connections to a safarid store port over TCP/TLS
// and a local embedded backend.
package sdk

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

	"github.com/celerix-dev/safari/internal/server"
	"github.com/celerix-dev/safari/pkg/engine"
	"github.com/celerix-dev/safari/pkg/schema"
)

const (
	maxAttempts    = 3
	dialTimeout    = 10 * time.Second
	commandTimeout = 30 * time.Second
)

// Client is a remote Item Store. It implements engine.Backend and
// engine.Importer, and is safe for concurrent use.
type Client struct {
	addr   string
	useTLS bool
	logger *zap.Logger

	mu     sync.Mutex // serializes commands on the single connection
	conn   net.Conn
	reader *bufio.Reader
}

var (
	_ engine.Backend  = (*Client)(nil)
	_ engine.Importer = (*Client)(nil)
)

// Connect dials a safarid store port. With useTLS the server's self-signed
// certificate is accepted without verification.
func Connect(ctx context.Context, addr string, useTLS bool, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{addr: addr, useTLS: useTLS, logger: logger}
	if err := c.reconnect(ctx); err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", engine.ErrStoreUnavailable, addr, err)
	}
	return c, nil
}

func (c *Client) reconnect(ctx context.Context) error {
	c.closeConn()

	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 60 * time.Second,
	}

	var conn net.Conn
	var err error
	if c.useTLS {
		td := &tls.Dialer{
			NetDialer: dialer,
			Config: &tls.Config{
				InsecureSkipVerify: true, // self-signed certs on the internal store port
			},
		}
		conn, err = td.DialContext(ctx, "tcp", c.addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", c.addr)
	}
	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

func (c *Client) closeConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

// roundTrip sends one command and returns the reply payload.
//
// The command is resent on a fresh connection only while it could not be
// written. Once written, a transport failure is returned as
// ErrStoreUnavailable, because the server may already have applied it.
func (c *Client) roundTrip(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	verb, _, _ := strings.Cut(cmd, " ")
	var err error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		if c.conn == nil {
			if err = c.reconnect(ctx); err != nil {
				c.logger.Warn("store reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
				backoff(ctx, attempt)
				continue
			}
		}

		deadline := time.Now().Add(commandTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		c.conn.SetDeadline(deadline)

		if _, err = io.WriteString(c.conn, cmd+"\n"); err != nil {
			c.logger.Warn("store write failed, reconnecting", zap.String("command", verb), zap.Int("attempt", attempt), zap.Error(err))
			c.closeConn()
			backoff(ctx, attempt)
			continue
		}

		resp, readErr := c.reader.ReadString('\n')
		if readErr != nil {
			c.closeConn()
			return "", fmt.Errorf("%w: %s: %v", engine.ErrStoreUnavailable, verb, readErr)
		}
		return parseReply(strings.TrimRight(resp, "\r\n"))
	}

	return "", fmt.Errorf("%w: %s failed after %d attempts: %v", engine.ErrStoreUnavailable, verb, maxAttempts, err)
}

func backoff(ctx context.Context, attempt int) {
	t := time.NewTimer(time.Duration(attempt*200) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func parseReply(resp string) (string, error) {
	switch {
	case resp == "OK" || resp == "PONG":
		return "", nil
	case strings.HasPrefix(resp, "OK "):
		return strings.TrimPrefix(resp, "OK "), nil
	case strings.HasPrefix(resp, "ERR "):
		code, msg, _ := strings.Cut(strings.TrimPrefix(resp, "ERR "), " ")
		if sentinel := server.SentinelForCode(code); sentinel != nil {
			return "", fmt.Errorf("%w: remote: %s", sentinel, msg)
		}
		return "", fmt.Errorf("remote: %s", msg)
	default:
		return "", fmt.Errorf("unexpected reply %q", resp)
	}
}

// Ping checks that the store port answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.roundTrip(ctx, "PING")
	return err
}

func (c *Client) ListRecent(ctx context.Context, limit int) ([]schema.ActionItem, error) {
	resp, err := c.roundTrip(ctx, "LIST "+strconv.Itoa(limit))
	if err != nil {
		return nil, err
	}
	var items []schema.ActionItem
	if err := json.Unmarshal([]byte(resp), &items); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return items, nil
}

func (c *Client) Get(ctx context.Context, id string) (schema.ActionItem, error) {
	if id == "" || strings.ContainsAny(id, " \r\n") {
		return schema.ActionItem{}, fmt.Errorf("%w: id %q", engine.ErrNotFound, id)
	}
	resp, err := c.roundTrip(ctx, "GET "+id)
	if err != nil {
		return schema.ActionItem{}, err
	}
	var item schema.ActionItem
	if err := json.Unmarshal([]byte(resp), &item); err != nil {
		return schema.ActionItem{}, fmt.Errorf("decode item: %w", err)
	}
	return item, nil
}

func (c *Client) Create(ctx context.Context, item *schema.ActionItem) (string, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return "", err
	}
	resp, err := c.roundTrip(ctx, "CREATE "+string(payload))
	if err != nil {
		return "", err
	}
	var created schema.ActionItem
	if err := json.Unmarshal([]byte(resp), &created); err != nil {
		return "", fmt.Errorf("decode created item: %w", err)
	}
	item.ID = created.ID
	item.TimeCreated = created.TimeCreated
	return created.ID, nil
}

func (c *Client) Update(ctx context.Context, item schema.ActionItem) error {
	return c.send(ctx, "UPDATE", item)
}

func (c *Client) Put(ctx context.Context, item schema.ActionItem) error {
	return c.send(ctx, "PUT", item)
}

func (c *Client) send(ctx context.Context, verb string, item schema.ActionItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}
	_, err = c.roundTrip(ctx, verb+" "+string(payload))
	return err
}

// Close says goodbye to the server and drops the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.SetDeadline(time.Now().Add(time.Second))
	if _, err := io.WriteString(c.conn, "QUIT\n"); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("store quit failed", zap.Error(err))
	}
	c.closeConn()
	return nil
}
