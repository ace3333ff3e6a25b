// Package session owns the bridge lifecycle for one channel: connect, join,
// drain transport events, decide responses, call the model, reconnect with
// backoff. One supervisor runs one coordinating goroutine; the history buffer,
// loop guard, rate window and coalescer are touched only from that goroutine,
// so none of them lock. Model calls are the only unbounded waits and they are
// strictly serialized: while one is in flight no further trigger evaluation
// happens for the channel.
package session

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/onnwee/chatbridge/config"
	"github.com/onnwee/chatbridge/history"
	"github.com/onnwee/chatbridge/model"
	"github.com/onnwee/chatbridge/policy"
	"github.com/onnwee/chatbridge/telemetry"
	"github.com/onnwee/chatbridge/transport"
)

// ModelClient is the narrow surface the supervisor needs from the model layer.
type ModelClient interface {
	Complete(ctx context.Context, systemPrompt string, w history.Window) (model.GeneratedTurn, error)
}

// Supervisor bridges one channel. Create with New, drive with Run.
type Supervisor struct {
	channel    string
	nick       string
	dialer     transport.Dialer
	modelc     ModelClient
	cfg        *config.Config
	classifier *history.Classifier
	buffer     *history.Buffer
	trigger    *policy.Trigger
	guard      *policy.LoopGuard
	rateWin    *policy.RateWindow
	coalescer  *Coalescer
	pacer      *rate.Limiter

	state atomic.Int32

	now        func() time.Time
	randInt63n func(int64) int64
}

func New(cfg *config.Config, channel string, dialer transport.Dialer, mc ModelClient) *Supervisor {
	guard := policy.NewLoopGuard(cfg.SuspectAfter, cfg.SuppressAfter, cfg.LoopCooldown)
	return &Supervisor{
		channel:    channel,
		nick:       cfg.Nick,
		dialer:     dialer,
		modelc:     mc,
		cfg:        cfg,
		classifier: history.NewClassifier(cfg.Nick, cfg.BotNicks),
		buffer:     history.NewBuffer(cfg.HistoryCap, cfg.HistoryMaxAge),
		trigger:    policy.NewTrigger(cfg.Nick, cfg.Lead, cfg.LeadIdle, cfg.LeadJitter, guard),
		guard:      guard,
		rateWin:    policy.NewRateWindow(cfg.RateCeiling, cfg.RateWindow),
		coalescer:  NewCoalescer(cfg.CoalesceQuiet),
		pacer:      rate.NewLimiter(rate.Every(cfg.SendInterval), 1),
		now:        time.Now,
		randInt63n: rand.Int63n,
	}
}

// Channel returns the channel this supervisor serves.
func (s *Supervisor) Channel() string { return s.channel }

// State returns the current connection state. Safe to call from other
// goroutines (status endpoint).
func (s *Supervisor) State() ConnectionState { return ConnectionState(s.state.Load()) }

func (s *Supervisor) setState(st ConnectionState) {
	s.state.Store(int32(st))
	if telemetry.ConnState != nil {
		telemetry.ConnState.WithLabelValues(s.channel).Set(float64(st))
	}
}

// Run connects and serves until ctx is cancelled or a fatal error occurs.
// Connect-time authentication failures and an unauthorized model credential are
// fatal; every other transport or model error is absorbed here: reconnect with
// capped exponential backoff, or skip the single failed response and log it.
// Nothing transient ever produces output in the channel.
func (s *Supervisor) Run(ctx context.Context) error {
	log := slog.Default().With(slog.String("channel", s.channel))
	attempt := 0
	for {
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return nil
		}
		if attempt > 0 {
			s.setState(StateReconnecting)
			telemetry.Reconnects.Inc()
			delay := backoffDelay(s.cfg.BackoffBase, s.cfg.BackoffCap, attempt)
			if s.cfg.BackoffBase > 0 {
				delay += time.Duration(s.randInt63n(int64(s.cfg.BackoffBase))) // bounded jitter
			}
			log.Info("reconnecting", slog.Int("attempt", attempt), slog.Duration("backoff", delay))
			select {
			case <-ctx.Done():
				s.setState(StateDisconnected)
				return nil
			case <-time.After(delay):
			}
		}

		s.setState(StateConnecting)
		conn, err := s.dialer.Dial(ctx)
		if err != nil {
			var ae *transport.AuthError
			if errors.As(err, &ae) {
				s.setState(StateDisconnected)
				return err
			}
			if ctx.Err() != nil {
				s.setState(StateDisconnected)
				return nil
			}
			log.Warn("connect failed", slog.Any("err", err))
			attempt++
			continue
		}

		s.setState(StateJoining)
		joined, err := s.serve(ctx, log, conn)
		if err != nil {
			var ae *transport.AuthError
			var me *model.Error
			switch {
			case errors.As(err, &ae):
				s.setState(StateDisconnected)
				return err
			case errors.As(err, &me) && !me.Retryable():
				s.setState(StateDisconnected)
				return err
			}
			log.Warn("session ended", slog.Any("err", err))
		}
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return nil
		}
		if joined {
			attempt = 1 // successful connect resets the backoff schedule
		} else {
			attempt++
		}
	}
}

// serve drains one connection until it drops. Returns whether the join
// completed (resets backoff) and the terminal error, if any.
func (s *Supervisor) serve(ctx context.Context, log *slog.Logger, conn transport.Conn) (bool, error) {
	events := conn.Events()
	joined := false

	flushTick := time.NewTicker(100 * time.Millisecond)
	defer flushTick.Stop()

	var leadTimer *time.Timer
	var leadC <-chan time.Time
	stopLead := func() {
		if leadTimer != nil {
			leadTimer.Stop()
			leadTimer = nil
			leadC = nil
		}
	}
	armLead := func(d time.Duration) {
		stopLead()
		leadTimer = time.NewTimer(d)
		leadC = leadTimer.C
	}
	defer stopLead()

	for {
		select {
		case <-ctx.Done():
			// Shutdown order: close the transport first so the producer
			// unblocks, then drain, then let pending timers die with us.
			_ = conn.Close()
			for range events {
			}
			return joined, nil

		case ev, ok := <-events:
			if !ok {
				return joined, errors.New("event stream closed without disconnect")
			}
			switch ev.Kind {
			case transport.EventJoined:
				if strings.EqualFold(ev.Channel, s.channel) {
					joined = true
					s.setState(StateJoined)
					log.Info("joined channel", slog.String("nick", s.nick))
					if d, ok := s.trigger.LeadDelay(); ok {
						armLead(d)
					}
				}
			case transport.EventMessage:
				if !strings.EqualFold(ev.Channel, s.channel) {
					continue
				}
				// Last message wins: any activity cancels a pending lead.
				stopLead()
				s.coalescer.Add(ev.Nick, ev.Text, ev.At)
			case transport.EventPing:
				log.Debug("ping", slog.String("token", ev.Token))
			case transport.EventDisconnected:
				if ev.Err == nil {
					return joined, nil
				}
				return joined, ev.Err
			}

		case now := <-flushTick.C:
			if s.State() != StateJoined {
				continue
			}
			for _, msg := range s.coalescer.Flush(now) {
				if err := s.handleInbound(ctx, log, conn, msg, armLead); err != nil {
					_ = conn.Close()
					for range events {
					}
					return joined, err
				}
			}

		case <-leadC:
			leadTimer, leadC = nil, nil
			if s.State() != StateJoined {
				continue
			}
			if err := s.sendLead(ctx, log, conn); err != nil {
				_ = conn.Close()
				for range events {
				}
				return joined, err
			}
			if d, ok := s.trigger.LeadDelay(); ok {
				armLead(d)
			}
		}
	}
}

// handleInbound records one coalesced message and acts on the trigger
// decision. The returned error is nil unless it is fatal.
func (s *Supervisor) handleInbound(ctx context.Context, log *slog.Logger, conn transport.Conn, msg InboundMessage, armLead func(time.Duration)) error {
	origin := s.classifier.Classify(msg.Nick)
	telemetry.MessagesSeen.WithLabelValues(origin.String()).Inc()
	log.Debug("message", slog.String("nick", msg.Nick), slog.String("origin", origin.String()))

	turn := history.NewTurn(msg.Nick, msg.Text, msg.At, origin)
	s.buffer.Append(turn)

	now := s.now()
	suppressed := origin == history.OriginOtherBot && s.guard.Suppressed(msg.Nick, now)
	s.guard.Observe(msg.Nick, origin != history.OriginHuman, msg.At)

	act := s.trigger.Evaluate(turn, now)
	switch act.Kind {
	case policy.Respond:
		if err := s.respond(ctx, log, conn, false); err != nil {
			return err
		}
		if d, ok := s.trigger.LeadDelay(); ok {
			armLead(d)
		}
	case policy.ScheduleLead:
		armLead(act.After)
	case policy.Ignore:
		if suppressed {
			telemetry.ResponsesSuppressed.Inc()
			log.Info("suppressed bot exchange", slog.String("nick", msg.Nick))
		}
	}
	return nil
}

func (s *Supervisor) sendLead(ctx context.Context, log *slog.Logger, conn transport.Conn) error {
	log.Info("channel idle; sending lead message")
	return s.respond(ctx, log, conn, true)
}

// respond calls the model over the current context window and sends the reply
// in paced chunks. A transient model failure is logged and swallowed: the
// channel stays silent rather than seeing an error message.
func (s *Supervisor) respond(ctx context.Context, log *slog.Logger, conn transport.Conn, lead bool) error {
	// A follower joining a quiet channel should not answer the opening turn;
	// wait until there is an actual exchange to ground on.
	if !lead && !s.cfg.Lead && s.buffer.Len() < 2 {
		log.Debug("skipping first message")
		return nil
	}
	if !s.rateWin.Allow(s.now()) {
		telemetry.ResponsesDropped.Inc()
		log.Warn("outbound ceiling reached; dropping response",
			slog.Int("ceiling", s.cfg.RateCeiling), slog.Duration("window", s.cfg.RateWindow))
		return nil
	}

	prompt := s.cfg.SystemPrompt
	if lead {
		prompt += "\nThe channel has been quiet for a while. Start a fresh topic with one short message."
	}
	window := s.buffer.Window(s.cfg.WindowTurns, s.cfg.WindowMaxAge)

	cctx := telemetry.WithCorrelation(ctx, uuid.NewString()[:8])
	cctx, span := telemetry.StartSpan(cctx, "chatbridge/session", "model.complete",
		attribute.String("channel", s.channel), attribute.Bool("lead", lead))
	var gen model.GeneratedTurn
	var err error
	telemetry.TimeFunc(telemetry.ModelCallDuration, func() {
		gen, err = s.modelc.Complete(cctx, prompt, window)
	})
	telemetry.RecordError(span, err)
	span.End()

	if err != nil {
		var me *model.Error
		if errors.As(err, &me) {
			telemetry.ModelErrors.WithLabelValues(me.Kind.String()).Inc()
			if !me.Retryable() {
				return err
			}
		}
		telemetry.LoggerWithCorr(cctx).Warn("model call failed; skipping response", slog.Any("err", err))
		return nil
	}

	reply := Sanitize(gen.Text)
	if reply == "" {
		return nil
	}
	for _, chunk := range Chunks(reply, s.cfg.ChunkBytes) {
		if err := s.pacer.Wait(ctx); err != nil {
			return nil // shutting down between chunks; never abort mid-chunk
		}
		if err := conn.Send(transport.Command{Channel: s.channel, Text: chunk}); err != nil {
			log.Warn("send failed", slog.Any("err", err))
			return nil // the disconnect event will drive the reconnect
		}
	}

	telemetry.ResponsesSent.Inc()
	if lead {
		telemetry.LeadMessages.Inc()
	}
	sent := history.NewTurn(s.nick, reply, s.now(), history.OriginSelf)
	s.buffer.Append(sent)
	s.guard.Observe(s.nick, true, sent.Timestamp)
	return nil
}

// backoffDelay is the deterministic part of the reconnect schedule:
// base * 2^(attempt-1), capped. Jitter is added by the caller.
func backoffDelay(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 20 {
		shift = 20
	}
	d := base << shift
	if d > ceiling || d <= 0 {
		d = ceiling
	}
	return d
}
