package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yhaddad/go-relay/pkg/wire"
)

// MessageHandler is the callback executed for each fully-assembled payload.
type MessageHandler func(ctx context.Context, connID uuid.UUID, payload []byte)

type OnCloseHandler func(connID uuid.UUID, err error)

// Stream is the byte-stream a Connection frames over. net.Conn satisfies it
// directly; the WebSocket gateway adapts through websocket.NetConn.
type Stream interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

type ConnectionConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// SendTimeout bounds how long an enqueue may wait on a full send buffer,
	// so one stalled peer cannot stall a broadcaster indefinitely.
	SendTimeout  time.Duration
	MaxFrameSize uint32
}

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrSendTimeout      = errors.New("send buffer full, peer too slow")
)

// Connection owns a single framed byte-stream connection. The read pump is
// the only reader; the write pump is the only writer, so concurrent senders
// (the handler loop and broadcasters on other goroutines) are serialized
// through the send channel.
type Connection struct {
	id      uuid.UUID
	stream  Stream
	config  ConnectionConfig
	send    chan []byte
	pending *PendingTable

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, stream Stream, config ConnectionConfig, onMessage MessageHandler, onClose OnCloseHandler, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	connLogger := logger.With(slog.String("connID", id.String()))

	if config.SendTimeout <= 0 {
		config.SendTimeout = 5 * time.Second
	}

	// The waitgroup is balanced in Close, which may run before Run when
	// registration fails, so the Add happens here.
	wg.Add(1)

	return &Connection{
		id:        id,
		stream:    stream,
		config:    config,
		onMessage: onMessage,
		onClose:   onClose,
		send:      make(chan []byte, 256),
		pending:   NewPendingTable(),
		done:      make(chan struct{}),
		ctx:       connCtx,
		cancel:    cancel,
		wg:        wg,
		logger:    connLogger,
	}
}

func (c *Connection) Run() {
	go c.readPump()
	go c.writePump()

	c.logger.Info("connection established")
}

// readPump feeds raw chunks through the frame decoder and hands every
// complete payload to the message handler. A framing violation is not
// recoverable: the connection closes without attempting to resynchronize.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	decoder := wire.NewDecoder(c.config.MaxFrameSize)
	buf := make([]byte, 4096)

	for {
		if c.config.ReadTimeout > 0 {
			if err := c.stream.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
				readErr = err
				return
			}
		}
		n, err := c.stream.Read(buf)
		if n > 0 {
			payloads, ferr := decoder.Feed(buf[:n])
			for _, payload := range payloads {
				c.onMessage(c.ctx, c.id, payload)
			}
			if ferr != nil {
				c.logger.Warn("protocol violation, closing connection", slog.Any("error", ferr))
				readErr = ferr
				return
			}
		}
		if err != nil {
			readErr = err
			return
		}
	}
}

// writePump is the sole writer on the stream.
func (c *Connection) writePump() {
	var writeErr error
	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case frame := <-c.send:
			if c.config.WriteTimeout > 0 {
				if err := c.stream.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
					writeErr = err
					return
				}
			}
			if _, err := c.stream.Write(frame); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send frames a payload and enqueues it. Safe for concurrent use. The wait
// on a full buffer is bounded by SendTimeout.
func (c *Connection) Send(payload []byte) error {
	frame := wire.Encode(payload)

	timer := time.NewTimer(c.config.SendTimeout)
	defer timer.Stop()

	select {
	case c.send <- frame:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	case <-timer.C:
		c.logger.Warn("send timed out, dropping message")
		return ErrSendTimeout
	}
}

// SendMessage encodes a typed message and sends it.
func (c *Connection) SendMessage(msg wire.Message) error {
	payload, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return c.Send(payload)
}

// Request sends a message and blocks for the single reply of the given
// kind-class. A second in-flight request of the same class fails fast with
// ErrWaiterExists instead of stealing the first caller's reply.
func (c *Connection) Request(msg wire.Message, replyClass string, timeout time.Duration) (wire.Message, error) {
	if err := c.pending.Register(replyClass); err != nil {
		return nil, err
	}
	if err := c.SendMessage(msg); err != nil {
		c.pending.Cancel(replyClass)
		return nil, err
	}
	return c.pending.Await(c.ctx, replyClass, timeout)
}

// Pending exposes the waiter table so the read-side dispatcher can resolve
// replies before falling through to ordinary handlers.
func (c *Connection) Pending() *PendingTable {
	return c.pending
}

// Close tears the connection down exactly once: cancels both pumps, fails
// every outstanding waiter, and fires the onClose callback so owners can
// release session and group state before anything else can write here.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		c.logger.Info("connection closing", slog.Any("reason", err))

		c.cancel()
		c.pending.FailAll(ErrConnectionClosed)
		c.stream.Close()
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

// Done returns a channel closed when the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

func (c *Connection) SetOnCloseHandler(handler OnCloseHandler) {
	c.onClose = handler
}
