package transport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// TwitchDialer connects to Twitch IRC with a static oauth token. Twitch names
// channels without the leading '#'; the adapter normalizes so the rest of the
// system always sees '#'-prefixed channels.
type TwitchDialer struct {
	Nick       string
	OAuthToken string
	Channels   []string
}

func (d *TwitchDialer) Dial(ctx context.Context) (Conn, error) {
	client := twitch.NewClient(d.Nick, d.OAuthToken)
	c := &twitchConn{
		client: client,
		nick:   strings.ToLower(d.Nick),
		events: make(chan Event, 64),
	}

	client.OnUserJoinMessage(func(m twitch.UserJoinMessage) {
		if strings.EqualFold(m.User, d.Nick) {
			c.events <- Event{Kind: EventJoined, Channel: "#" + m.Channel, At: time.Now()}
		}
	})
	client.OnPrivateMessage(func(m twitch.PrivateMessage) {
		c.events <- Event{Kind: EventMessage, Channel: "#" + m.Channel, Nick: m.User.Name, Text: m.Message, At: time.Now()}
	})

	for _, ch := range d.Channels {
		client.Join(strings.TrimPrefix(ch, "#"))
	}
	go c.run()
	return c, nil
}

type twitchConn struct {
	client *twitch.Client
	nick   string
	events chan Event

	mu     sync.Mutex
	closed bool
}

func (c *twitchConn) Events() <-chan Event { return c.events }

func (c *twitchConn) Send(cmd Command) error {
	c.client.Say(strings.TrimPrefix(cmd.Channel, "#"), cmd.Text)
	return nil
}

func (c *twitchConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.client.Disconnect()
}

func (c *twitchConn) run() {
	err := c.client.Connect()
	if errors.Is(err, twitch.ErrLoginAuthenticationFailed) {
		err = &AuthError{Reason: "twitch rejected oauth token"}
	}
	c.mu.Lock()
	if c.closed && err != nil && !isAuth(err) {
		err = nil // local close, clean shutdown
	}
	c.mu.Unlock()
	c.events <- Event{Kind: EventDisconnected, Err: err, At: time.Now()}
	close(c.events)
}

func isAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
