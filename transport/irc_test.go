package transport

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

// fakeServer speaks just enough IRC over an in-memory pipe to exercise the
// adapter: registration, join, keepalive and one channel message.
func runFakeServer(t *testing.T, conn net.Conn, authFail bool) {
	t.Helper()
	go func() {
		r := bufio.NewReader(conn)
		write := func(s string) {
			_, _ = conn.Write([]byte(s + "\r\n"))
		}
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "USER "):
				if authFail {
					write(":irc.test 464 echo :Password incorrect")
					continue
				}
				write(":irc.test 001 echo :welcome")
			case strings.HasPrefix(line, "JOIN "):
				write(":echo!echo@host JOIN #chat")
				write("PING :keepalive")
			case strings.HasPrefix(line, "PONG"):
				write(":alice!a@host PRIVMSG #chat :hello echo")
				_ = conn.Close()
				return
			}
		}
	}()
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event channel closed early")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestIRCAdapterEventFlow(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	runFakeServer(t, serverSide, false)

	d := &IRCDialer{Nick: "echo", Channels: []string{"#chat"}}
	conn := d.wrap(clientSide)
	events := conn.Events()

	ev := nextEvent(t, events)
	if ev.Kind != EventJoined || ev.Channel != "#chat" {
		t.Fatalf("first event = %+v, want joined #chat", ev)
	}
	ev = nextEvent(t, events)
	if ev.Kind != EventPing || ev.Token != "keepalive" {
		t.Fatalf("second event = %+v, want ping", ev)
	}
	ev = nextEvent(t, events)
	if ev.Kind != EventMessage || ev.Nick != "alice" || ev.Text != "hello echo" || ev.Channel != "#chat" {
		t.Fatalf("third event = %+v, want alice's message", ev)
	}
	ev = nextEvent(t, events)
	if ev.Kind != EventDisconnected {
		t.Fatalf("fourth event = %+v, want disconnected", ev)
	}
	if ev.Err == nil {
		t.Error("remote close should carry a non-nil reason")
	}
	if _, ok := <-events; ok {
		t.Error("event channel should be closed after disconnect")
	}
}

func TestIRCAdapterLocalCloseIsClean(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	go func() {
		// Swallow whatever the client writes; never respond.
		buf := make([]byte, 1024)
		for {
			if _, err := serverSide.Read(buf); err != nil {
				return
			}
		}
	}()

	d := &IRCDialer{Nick: "echo", Channels: []string{"#chat"}}
	conn := d.wrap(clientSide)
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ev := nextEvent(t, conn.Events())
	if ev.Kind != EventDisconnected || ev.Err != nil {
		t.Fatalf("event = %+v, want clean disconnect", ev)
	}
}

func TestIRCAdapterAuthFailure(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	runFakeServer(t, serverSide, true)

	d := &IRCDialer{Nick: "echo", Pass: "wrong", Channels: []string{"#chat"}}
	conn := d.wrap(clientSide)

	ev := nextEvent(t, conn.Events())
	if ev.Kind != EventDisconnected {
		t.Fatalf("event = %+v, want disconnected", ev)
	}
	var ae *AuthError
	if !errors.As(ev.Err, &ae) {
		t.Fatalf("err = %v, want AuthError", ev.Err)
	}
}
