package coap

import (
	"bytes"
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lobaro/coap-engine/coapmsg"
)

const protocolVersion = 1

// Client drives exchanges against one connected peer over one Endpoint.
// A Client owns exactly one Endpoint handle and its own random source;
// Exchange serializes callers with a mutex rather than letting the
// state machine run concurrently for the same peer, mirroring the
// teacher's one-exchange-at-a-time transport_uart.go readResponse loop.
type Client struct {
	ep    Endpoint
	peer  string
	cfg   Config
	rnd   *randomSource
	clock clockwork.Clock
	log   *logrus.Logger

	mu sync.Mutex
}

// NewClient builds a Client against an already-connected Endpoint.
// peer is a human-readable label (address, serial port name, ...) used
// only for logging. Defaults: DefaultConfig, a real-time clock, and a
// discarding logger — override with WithConfig/WithClock/WithLogger.
func NewClient(ep Endpoint, peer string) *Client {
	return &Client{
		ep:    ep,
		peer:  peer,
		cfg:   DefaultConfig(),
		rnd:   newRandomSource(),
		clock: clockwork.NewRealClock(),
		log:   discardLogger,
	}
}

func (c *Client) WithConfig(cfg Config) *Client {
	c.cfg = cfg
	return c
}

func (c *Client) WithClock(clock clockwork.Clock) *Client {
	c.clock = clock
	return c
}

func (c *Client) WithLogger(log *logrus.Logger) *Client {
	if log == nil {
		log = discardLogger
	}
	c.log = log
	return c
}

// Close releases the Client's endpoint. Safe to call once; the Client
// must not be used afterward.
func (c *Client) Close() error {
	return c.ep.Close()
}

// Exchange sends req to the peer and runs the retransmission and
// separate-response state machine described in spec.md section 4.5 to
// completion, returning the matched response or an *ExchangeError.
// req's Type must be CON or NON and its Code must be a request method;
// the message-id and token are assigned by Exchange and any values set
// by the caller are discarded.
func (c *Client) Exchange(ctx context.Context, req *coapmsg.Message) (*coapmsg.Message, error) {
	if req.Type != coapmsg.CON && req.Type != coapmsg.NON {
		return nil, newExchangeError(InvalidArgument, errors.New("request type must be CON or NON"))
	}
	if !req.Code.IsRequest() {
		return nil, newExchangeError(InvalidArgument, errors.New("request code must be a request method"))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out := &coapmsg.Message{
		Version:   protocolVersion,
		Type:      req.Type,
		Code:      req.Code,
		Token:     c.rnd.nextToken(),
		MessageID: c.rnd.nextMessageID(),
		Options:   req.Options,
		Payload:   req.Payload,
	}

	raw, err := out.Bytes()
	if err != nil {
		return nil, newExchangeError(InvalidArgument, err)
	}
	if len(raw) > c.cfg.MaxBuffer {
		return nil, newExchangeError(InvalidArgument, coapmsg.ErrBufferTooSmall)
	}

	entry := exchangeLog(c.log, c.peer, out)
	entry.Debug("sending request")

	if _, err := c.ep.Send(raw); err != nil {
		return nil, newExchangeError(IoError, err)
	}

	if out.Type == coapmsg.NON {
		return c.respWait(ctx, out, entry)
	}
	return c.ackWait(ctx, out, raw, entry)
}

// ackOutcome is classifyAckWait's verdict for one received datagram.
type ackOutcome int

const (
	ackContinue ackOutcome = iota
	ackToRespWait
	ackDone
	ackFail
)

// ackWait implements the ACK_WAIT state: retransmit req on an
// exponentially doubling timer, seeded with a jittered initial
// interval, until MaxRetransmit is exhausted, the exchange completes,
// or ctx is cancelled.
func (c *Client) ackWait(ctx context.Context, req *coapmsg.Message, raw []byte, entry *logrus.Entry) (*coapmsg.Message, error) {
	initial := jitteredAckTimeout(c.rnd, c.cfg.AckTimeout, c.cfg.AckRandomFactor)
	b := ackBackoff(initial)
	tm := newTimer(c.clock)
	defer tm.stop()
	tm.arm(b.NextBackOff())

	retransmits := 0

	for {
		switch multiplex(ctx, tm, c.ep) {
		case wakeCancelled:
			return nil, newExchangeError(Cancelled, ctx.Err())

		case wakeTimer:
			if retransmits >= c.cfg.MaxRetransmit {
				return nil, newExchangeError(Timeout, nil)
			}
			retransmits++
			entry.WithField("attempt", retransmits).Debug("retransmitting")
			if _, err := c.ep.Send(raw); err != nil {
				return nil, newExchangeError(IoError, err)
			}
			tm.arm(b.NextBackOff())

		case wakeEndpoint:
			msg, data, err := c.recv()
			if err != nil {
				return nil, newExchangeError(IoError, err)
			}
			if msg == nil {
				c.handleFormatError(data, entry)
				continue
			}

			outcome, resp, ferr := c.classifyAckWait(req, msg, entry)
			switch outcome {
			case ackFail:
				return nil, ferr
			case ackDone:
				return resp, nil
			case ackToRespWait:
				return c.respWait(ctx, req, entry)
			case ackContinue:
				// fall through to the next multiplex wait
			}
		}
	}
}

// classifyAckWait applies spec.md section 4.5's ACK_WAIT transition
// table to one parsed datagram.
func (c *Client) classifyAckWait(req, msg *coapmsg.Message, entry *logrus.Entry) (ackOutcome, *coapmsg.Message, error) {
	if msg.MessageID == req.MessageID {
		switch msg.Type {
		case coapmsg.ACK:
			if msg.IsEmpty() {
				return ackToRespWait, nil, nil
			}
			if bytes.Equal(msg.Token, req.Token) {
				return ackDone, msg, nil
			}
			// Piggy-backed ACK whose token doesn't match our request:
			// the response can't be trusted, so it's rejected outright
			// rather than folded into the generic otherwise-bucket.
			c.sendRST(msg.MessageID, entry)
			return ackContinue, nil, nil
		case coapmsg.RST:
			return ackFail, nil, newExchangeError(PeerReset, nil)
		default:
			c.rejectByType(msg.Type, msg.MessageID, entry)
			return ackContinue, nil, nil
		}
	}

	if bytes.Equal(msg.Token, req.Token) {
		switch msg.Type {
		case coapmsg.CON:
			// Separate response overtaking its own ACK: accept it and
			// ACK it in turn.
			c.sendAck(msg.MessageID, entry)
			return ackDone, msg, nil
		case coapmsg.NON:
			return ackDone, msg, nil
		default:
			c.rejectByType(msg.Type, msg.MessageID, entry)
			return ackContinue, nil, nil
		}
	}

	c.rejectByType(msg.Type, msg.MessageID, entry)
	return ackContinue, nil, nil
}

// respWait implements the RESP_WAIT state: wait up to RespTimeout for
// a separate response carrying req's token.
func (c *Client) respWait(ctx context.Context, req *coapmsg.Message, entry *logrus.Entry) (*coapmsg.Message, error) {
	tm := newTimer(c.clock)
	defer tm.stop()
	tm.arm(c.cfg.RespTimeout)

	for {
		switch multiplex(ctx, tm, c.ep) {
		case wakeCancelled:
			return nil, newExchangeError(Cancelled, ctx.Err())

		case wakeTimer:
			return nil, newExchangeError(Timeout, nil)

		case wakeEndpoint:
			msg, data, err := c.recv()
			if err != nil {
				return nil, newExchangeError(IoError, err)
			}
			if msg == nil {
				c.handleFormatError(data, entry)
				continue
			}

			if !bytes.Equal(msg.Token, req.Token) {
				c.rejectByType(msg.Type, msg.MessageID, entry)
				continue
			}

			switch msg.Type {
			case coapmsg.CON:
				c.sendAck(msg.MessageID, entry)
				return msg, nil
			case coapmsg.NON:
				return msg, nil
			case coapmsg.RST:
				return nil, newExchangeError(PeerReset, nil)
			default:
				// Duplicate or unexpected ACK carrying our token; the
				// real answer hasn't arrived yet.
				continue
			}
		}
	}
}

// recv reads one datagram and attempts to decode it. A nil *Message
// with a nil error means the datagram was read but failed to parse;
// the raw bytes are returned so the caller can recover a message-id
// via ParsePartial.
func (c *Client) recv() (*coapmsg.Message, []byte, error) {
	buf := make([]byte, c.cfg.MaxBuffer)
	n, err := c.ep.Recv(buf)
	if err != nil {
		return nil, nil, err
	}
	data := buf[:n]
	msg, perr := coapmsg.Parse(data)
	if perr != nil {
		return nil, data, nil
	}
	return msg, data, nil
}

// rejectByType applies the engine's rejection policy: a message of
// type CON is reset, anything else is silently dropped and logged.
func (c *Client) rejectByType(t coapmsg.Type, mid uint16, entry *logrus.Entry) {
	if t == coapmsg.CON {
		c.sendRST(mid, entry)
		return
	}
	entry.WithField("rejectedMessageId", mid).Debug("dropping unsolicited message")
}

// handleFormatError absorbs an undecodable datagram: if enough of the
// header survived to recover a message-id and it claims to be CON, the
// engine resets it; otherwise it's dropped silently. Either way the
// exchange's own state is untouched, per spec.md's format-error
// absorption rule.
func (c *Client) handleFormatError(raw []byte, entry *logrus.Entry) {
	t, mid, err := coapmsg.ParsePartial(raw)
	if err != nil {
		entry.Debug("dropping undecodable datagram")
		return
	}
	if t == coapmsg.CON {
		c.sendRST(mid, entry)
	}
}

func (c *Client) sendAck(mid uint16, entry *logrus.Entry) {
	c.sendEmpty(coapmsg.ACK, mid, entry)
}

func (c *Client) sendRST(mid uint16, entry *logrus.Entry) {
	c.sendEmpty(coapmsg.RST, mid, entry)
}

func (c *Client) sendEmpty(t coapmsg.Type, mid uint16, entry *logrus.Entry) {
	raw, err := coapmsg.NewEmpty(t, mid).Bytes()
	if err != nil {
		entry.WithError(err).Warn("failed to build empty message")
		return
	}
	if _, err := c.ep.Send(raw); err != nil {
		entry.WithError(err).Warn("failed to send empty message")
	}
}

// Get issues a CON GET for path.
func (c *Client) Get(ctx context.Context, path string) (*coapmsg.Message, error) {
	return c.request(ctx, coapmsg.GET, path, nil, 0)
}

// Post issues a CON POST for path carrying payload tagged with format.
func (c *Client) Post(ctx context.Context, path string, format coapmsg.MediaType, payload []byte) (*coapmsg.Message, error) {
	return c.request(ctx, coapmsg.POST, path, payload, format)
}

// Put issues a CON PUT for path carrying payload tagged with format.
func (c *Client) Put(ctx context.Context, path string, format coapmsg.MediaType, payload []byte) (*coapmsg.Message, error) {
	return c.request(ctx, coapmsg.PUT, path, payload, format)
}

// Delete issues a CON DELETE for path.
func (c *Client) Delete(ctx context.Context, path string) (*coapmsg.Message, error) {
	return c.request(ctx, coapmsg.DELETE, path, nil, 0)
}

func (c *Client) request(ctx context.Context, code coapmsg.Code, path string, payload []byte, format coapmsg.MediaType) (*coapmsg.Message, error) {
	req := &coapmsg.Message{Type: coapmsg.CON, Code: code}
	req.Options.SetPath(path)
	if len(payload) > 0 {
		if format != 0 {
			req.Options.SetContentFormat(format)
		}
		req.Payload = payload
	}
	return c.Exchange(ctx, req)
}
