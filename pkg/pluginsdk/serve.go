package pluginsdk

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hookhost/internal/core"
	"github.com/dorcha-inc/hookhost/internal/events"
	"github.com/dorcha-inc/hookhost/internal/worker"
)

type server struct {
	module  any
	w       io.Writer
	writeMu sync.Mutex
	pending *xsync.MapOf[string, chan *events.EventEnvelope]
	wg      sync.WaitGroup
}

// Serve speaks the plugin side of the wire protocol over r and w until r is
// exhausted or ctx is done. It sends the hello handshake first.
func Serve(ctx context.Context, module any, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &server{
		module:  module,
		w:       w,
		pending: xsync.NewMapOf[string, chan *events.EventEnvelope](),
	}
	defer s.wg.Wait()

	if err := s.sendHello(); err != nil {
		return err
	}

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), worker.MaxMessageSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				cancel()
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if len(line) == 0 {
				continue
			}
			var msg worker.Message
			if err := json.Unmarshal(line, &msg); err != nil {
				zap.L().Warn("Dropping malformed host message", zap.Error(err))
				continue
			}
			s.route(ctx, msg)
		}
	}
}

func (s *server) sendHello() error {
	hello := worker.Hello{Exports: Exports(s.module), Concurrent: isConcurrent(s.module)}
	if d, ok := s.module.(Describer); ok {
		hello.Name = d.Name()
		hello.Version = d.Version()
	}
	payload, err := json.Marshal(hello)
	if err != nil {
		return fmt.Errorf("failed to marshal hello: %w", err)
	}
	return s.send(worker.Message{Name: worker.MessageHello, Payload: payload})
}

func (s *server) send(msg worker.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("failed to write message to host: %w", err)
	}
	return nil
}

func (s *server) route(ctx context.Context, msg worker.Message) {
	switch {
	case msg.Name == worker.MessageEvent:
		s.handleEvent(msg)
	case msg.Name == worker.RequestModelChanged && msg.CallbackID == "":
		s.spawn(func() { s.notifyModelChanged(ctx, msg) })
	case msg.Name != "" && msg.CallbackID != "":
		s.spawn(func() { s.answer(ctx, msg) })
	default:
		zap.L().Debug("Ignoring host message", zap.String("name", msg.Name), zap.String("callback_id", msg.CallbackID))
	}
}

func (s *server) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *server) handleEvent(msg worker.Message) {
	env, err := worker.DecodeEvent(msg)
	if err != nil {
		zap.L().Warn("Dropping malformed host event", zap.Error(err))
		return
	}
	if !env.IsReply() {
		zap.L().Debug("Ignoring host event", zap.String("type", string(env.Type())))
		return
	}
	waiter, ok := s.pending.LoadAndDelete(*env.CallbackID)
	if !ok {
		zap.L().Debug("Dropping host reply with no pending request", zap.String("callback_id", *env.CallbackID))
		return
	}
	waiter <- env
}

func (s *server) notifyModelChanged(ctx context.Context, msg worker.Message) {
	observer, ok := s.module.(ModelObserver)
	if !ok {
		return
	}
	var ev ChangeEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		zap.L().Warn("Dropping malformed model change", zap.Error(err))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			core.LogPanicRecovery("pluginsdk.ModelChanged", r)
		}
	}()
	observer.ModelChanged(s.newContext(ctx), ev)
}

func (s *server) answer(ctx context.Context, req worker.Message) {
	reply := worker.Message{CallbackID: req.CallbackID}

	result, err := s.invoke(s.newContext(ctx), req)
	if err == nil {
		reply.Payload, err = json.Marshal(result)
	}
	if err != nil {
		reply.Payload = nil
		reply.Error = err.Error()
	}

	if err := s.send(reply); err != nil {
		zap.L().Debug("Failed to send reply", zap.String("request", req.Name), zap.Error(err))
	}
}

func (s *server) invoke(ctx *Context, req worker.Message) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			core.LogPanicRecovery("pluginsdk."+req.Name, r)
			err = fmt.Errorf("plugin panicked handling %s: %v", req.Name, r)
		}
	}()

	switch req.Name {
	case worker.RequestInfo:
		return s.info(), nil
	case worker.RequestImport:
		importer, ok := s.module.(Importer)
		if !ok {
			return nil, notImplemented(req.Name)
		}
		var in ImportRequest
		if err := decodeRequest(req, &in); err != nil {
			return nil, err
		}
		return importer.Import(ctx, &in)
	case worker.RequestExport:
		exporter, ok := s.module.(Exporter)
		if !ok {
			return nil, notImplemented(req.Name)
		}
		var in ExportHTTPRequestRequest
		if err := decodeRequest(req, &in); err != nil {
			return nil, err
		}
		return exporter.Export(ctx, &in)
	case worker.RequestFilter:
		filter, ok := s.module.(ResponseFilter)
		if !ok {
			return nil, notImplemented(req.Name)
		}
		var in FilterRequest
		if err := decodeRequest(req, &in); err != nil {
			return nil, err
		}
		return filter.Filter(ctx, &in)
	}

	zap.L().Warn("Unknown request from host", zap.String("request", req.Name))
	return nil, fmt.Errorf("unknown request %q", req.Name)
}

func (s *server) info() *worker.PluginInfo {
	caps, _ := worker.ProbeCapabilities(Exports(s.module))
	info := &worker.PluginInfo{Capabilities: caps, Concurrent: isConcurrent(s.module)}
	if d, ok := s.module.(Describer); ok {
		info.Name = d.Name()
		info.Version = d.Version()
	}
	return info
}

func decodeRequest(req worker.Message, target any) error {
	if len(req.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Payload, target); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", req.Name, err)
	}
	return nil
}

func notImplemented(request string) error {
	return fmt.Errorf("plugin does not implement %s", request)
}

// ErrNoReply is returned by Context.Request when the host went away first.
var ErrNoReply = errors.New("host did not reply")
