package transport

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	irc "gopkg.in/irc.v4"
)

// IRCDialer connects to a standard IRC server over plain TCP or TLS and
// registers with NICK/USER (plus PASS when set). On welcome (001) it joins the
// configured channels; join confirmations surface as Joined events.
type IRCDialer struct {
	Server   string
	Port     int
	TLS      bool
	Nick     string
	Pass     string
	Channels []string

	// DialTimeout bounds the TCP/TLS handshake. Zero means 15s.
	DialTimeout time.Duration
}

func (d *IRCDialer) Dial(ctx context.Context) (Conn, error) {
	timeout := d.DialTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	addr := net.JoinHostPort(d.Server, strconv.Itoa(d.Port))
	nd := &net.Dialer{Timeout: timeout}
	var (
		conn net.Conn
		err  error
	)
	if d.TLS {
		conn, err = (&tls.Dialer{NetDialer: nd}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = nd.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	return d.wrap(conn), nil
}

// wrap attaches the protocol client to an established connection. Split out of
// Dial so tests can drive the adapter over an in-memory pipe.
func (d *IRCDialer) wrap(conn net.Conn) *ircConn {
	c := &ircConn{
		netConn:  conn,
		channels: d.Channels,
		events:   make(chan Event, 64),
	}
	c.client = irc.NewClient(conn, irc.ClientConfig{
		Nick:    d.Nick,
		Pass:    d.Pass,
		User:    d.Nick,
		Name:    d.Nick,
		Handler: irc.HandlerFunc(c.handle),
	})
	go c.run()
	return c
}

type ircConn struct {
	netConn  net.Conn
	client   *irc.Client
	channels []string
	events   chan Event

	mu      sync.Mutex
	authErr *AuthError
	closed  bool
}

func (c *ircConn) Events() <-chan Event { return c.events }

func (c *ircConn) Send(cmd Command) error {
	return c.client.WriteMessage(&irc.Message{
		Command: "PRIVMSG",
		Params:  []string{cmd.Channel, cmd.Text},
	})
}

func (c *ircConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.netConn.Close()
}

// run drives the protocol loop until the connection drops, then delivers the
// terminal Disconnected event and closes the event channel. It is the only
// closer of c.events.
func (c *ircConn) run() {
	err := c.client.Run()
	c.mu.Lock()
	if c.authErr != nil {
		err = c.authErr
	} else if c.closed {
		err = nil // local close, clean shutdown
	}
	c.mu.Unlock()
	c.events <- Event{Kind: EventDisconnected, Err: err, At: time.Now()}
	close(c.events)
}

func (c *ircConn) handle(client *irc.Client, m *irc.Message) {
	now := time.Now()
	switch m.Command {
	case "001": // registered; join everything we were asked to
		_ = client.WriteMessage(&irc.Message{Command: "JOIN", Params: []string{strings.Join(c.channels, ",")}})
	case "JOIN":
		if m.Prefix != nil && strings.EqualFold(m.Prefix.Name, client.CurrentNick()) && len(m.Params) > 0 {
			c.events <- Event{Kind: EventJoined, Channel: m.Params[0], At: now}
		}
	case "PRIVMSG":
		if len(m.Params) < 2 || m.Prefix == nil {
			return
		}
		target := m.Params[0]
		if !strings.HasPrefix(target, "#") && !strings.HasPrefix(target, "&") {
			return // direct messages are out of scope
		}
		c.events <- Event{Kind: EventMessage, Channel: target, Nick: m.Prefix.Name, Text: m.Trailing(), At: now}
	case "PING":
		// The client library already answered with PONG; surface it for logs.
		c.events <- Event{Kind: EventPing, Token: m.Trailing(), At: now}
	case "464", "465":
		c.fatal("rejected by server: " + m.Trailing())
	case "ERROR":
		// Server-initiated close; Run will return shortly with the reason.
	}
}

func (c *ircConn) fatal(reason string) {
	c.mu.Lock()
	if c.authErr == nil {
		c.authErr = &AuthError{Reason: reason}
	}
	c.mu.Unlock()
	_ = c.netConn.Close()
}
