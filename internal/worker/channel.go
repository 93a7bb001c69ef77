package worker

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// MaxMessageSize bounds a single frame read from a plugin.
const MaxMessageSize = 16 * 1024 * 1024

// Channel is the single bidirectional message channel to one plugin.
// Messages sent are delivered to the plugin in send order.
type Channel interface {
	Send(msg Message) error
	// Receive yields inbound frames and is closed when the channel ends.
	Receive() <-chan Message
	Done() <-chan struct{}
	// Err reports why the channel ended; nil after a clean close or EOF.
	Err() error
	Close() error
}

// StreamChannel speaks newline-delimited JSON over a reader/writer pair.
type StreamChannel struct {
	label     string
	r         io.Reader
	w         io.WriteCloser
	interrupt func()
	release   func() error

	writeMu sync.Mutex
	msgs    chan Message
	done    chan struct{}
	closing chan struct{}

	closeOnce sync.Once
	closeErr  error
	err       error
}

// Interface guard for StreamChannel
var _ Channel = &StreamChannel{}

// NewStreamChannel starts reading frames from r. Closing the channel closes w
// and r, which must unblock any pending read.
func NewStreamChannel(label string, r io.ReadCloser, w io.WriteCloser) *StreamChannel {
	return newStreamChannel(label, r, w, func() { _ = r.Close() }, nil)
}

// newStreamChannel is the shared constructor. interrupt must unblock the
// reader; release runs once after the reader has stopped.
func newStreamChannel(label string, r io.Reader, w io.WriteCloser, interrupt func(), release func() error) *StreamChannel {
	c := &StreamChannel{
		label:     label,
		r:         r,
		w:         w,
		interrupt: interrupt,
		release:   release,
		msgs:      make(chan Message, 64),
		done:      make(chan struct{}),
		closing:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *StreamChannel) readLoop() {
	defer close(c.done)
	defer close(c.msgs)

	scanner := bufio.NewScanner(c.r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxMessageSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			zap.L().Warn("Dropping malformed plugin message",
				zap.String("plugin", c.label),
				zap.Error(err))
			continue
		}

		select {
		case c.msgs <- msg:
		case <-c.closing:
			c.finish(nil)
			return
		}
	}

	c.finish(scanner.Err())
}

func (c *StreamChannel) finish(readErr error) {
	if c.isClosing() {
		readErr = nil
	}
	if c.release != nil {
		if err := c.release(); err != nil && !c.isClosing() && readErr == nil {
			readErr = err
		}
	}
	c.err = readErr
}

func (c *StreamChannel) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

// Send writes one frame.
func (c *StreamChannel) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrWorkerTerminated
	default:
	}

	if _, err := c.w.Write(data); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return ErrWorkerTerminated
		}
		return fmt.Errorf("failed to write message to plugin %s: %w", c.label, err)
	}
	return nil
}

func (c *StreamChannel) Receive() <-chan Message {
	return c.msgs
}

func (c *StreamChannel) Done() <-chan struct{} {
	return c.done
}

// Err must only be trusted after Done is closed.
func (c *StreamChannel) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close stops the channel and waits for the reader to finish. It is idempotent.
func (c *StreamChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
		// Closing w unblocks a Send stuck on a plugin that stopped reading.
		c.closeErr = c.w.Close()
		if c.interrupt != nil {
			c.interrupt()
		}
	})
	<-c.done
	return c.closeErr
}

// NewPipe creates an in-memory channel. The returned reader and writer are
// the plugin's ends: it reads requests from pluginIn and writes frames to pluginOut.
func NewPipe(label string) (*StreamChannel, io.ReadCloser, io.WriteCloser) {
	hostToPluginR, hostToPluginW := io.Pipe()
	pluginToHostR, pluginToHostW := io.Pipe()

	ch := newStreamChannel(label, pluginToHostR, hostToPluginW, func() {
		_ = pluginToHostR.Close()
	}, nil)
	return ch, hostToPluginR, pluginToHostW
}
