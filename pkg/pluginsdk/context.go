package pluginsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dorcha-inc/hookhost/internal/events"
	"github.com/dorcha-inc/hookhost/internal/worker"
)

// Context is handed to every hook. It carries the request's cancellation and
// lets the plugin talk back to the host.
type Context struct {
	context.Context
	s *server
}

func (s *server) newContext(ctx context.Context) *Context {
	return &Context{Context: ctx, s: s}
}

// Log forwards a log line to the host logger.
func (c *Context) Log(level string, message string) error {
	payload, err := json.Marshal(worker.LogRecord{Level: level, Message: message})
	if err != nil {
		return err
	}
	return c.s.send(worker.Message{Name: worker.MessageLog, Payload: payload})
}

// ShowToast asks the host to display a notification.
func (c *Context) ShowToast(message string, variant ToastVariant) error {
	return c.notify(&events.ShowToastRequest{Message: message, Variant: variant})
}

// CopyText asks the host to put text on the clipboard.
func (c *Context) CopyText(text string) error {
	return c.notify(&events.CopyTextRequest{Text: text})
}

func (c *Context) notify(p Payload) error {
	msg, err := worker.NewEventMessage(events.NewEnvelope(p))
	if err != nil {
		return err
	}
	return c.s.send(msg)
}

// Request sends p to the host and waits for the reply payload.
func (c *Context) Request(p Payload) (Payload, error) {
	env := events.NewEnvelope(p)
	msg, err := worker.NewEventMessage(env)
	if err != nil {
		return nil, err
	}

	waiter := make(chan *events.EventEnvelope, 1)
	c.s.pending.Store(env.ID, waiter)
	defer c.s.pending.Delete(env.ID)

	if err := c.s.send(msg); err != nil {
		return nil, err
	}

	select {
	case reply := <-waiter:
		if reply.Error != nil {
			return nil, fmt.Errorf("host rejected %s: %s", p.PayloadType(), *reply.Error)
		}
		return reply.Payload, nil
	case <-c.Done():
		return nil, errors.Join(ErrNoReply, c.Err())
	}
}
