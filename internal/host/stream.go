package host

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hookhost/internal/events"
	"github.com/dorcha-inc/hookhost/internal/models"
	"github.com/dorcha-inc/hookhost/internal/worker"
)

// envelopeWriter serializes newline-delimited envelopes onto w.
type envelopeWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (ew *envelopeWriter) write(env *events.EventEnvelope) error {
	data, err := events.Encode(env)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	ew.mu.Lock()
	defer ew.mu.Unlock()
	if _, err := ew.w.Write(data); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}
	return nil
}

// ServeStream reads newline-delimited envelopes from r and writes replies,
// plus anything plugins forward to the GUI, to w. Frames carrying a "change"
// field instead of an envelope are model changes and go to the bridge.
// It returns when r is exhausted or ctx is done, after in-flight requests finish.
func (h *Host) ServeStream(ctx context.Context, r io.Reader, w io.Writer) error {
	out := &envelopeWriter{w: w}
	h.SetEmitter(out.write)
	defer h.SetEmitter(nil)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var inflight sync.WaitGroup
	defer inflight.Wait()

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
		var line []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			line = l
		}
		if len(line) == 0 {
			continue
		}

		if isModelChange(line) {
			h.publishModelChange(line)
			continue
		}

		env, err := events.Decode(line)
		if err != nil {
			h.rejectFrame(line, err, out)
			continue
		}
		if env.IsReply() {
			zap.L().Debug("Ignoring reply from GUI", zap.String("callback_id", *env.CallbackID))
			continue
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			if err := out.write(h.Handle(ctx, env)); err != nil {
				zap.L().Error("Failed to reply to GUI", zap.String("type", string(env.Type())), zap.Error(err))
			}
		}()
	}
}

func isModelChange(line []byte) bool {
	return gjson.GetBytes(line, "change").Exists() && !gjson.GetBytes(line, "id").Exists()
}

func (h *Host) publishModelChange(line []byte) {
	if h.opts.Models == nil {
		zap.L().Debug("Ignoring model change without a bridge")
		return
	}
	var ev models.ChangeEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		zap.L().Warn("Dropping malformed model change", zap.Error(err))
		return
	}
	h.opts.Models.Publish(ev)
}

// rejectFrame logs an undecodable frame and, when it carries an id, answers
// it with an error reply so the sender is not left waiting.
func (h *Host) rejectFrame(line []byte, err error, out *envelopeWriter) {
	fields := []zap.Field{zap.Error(err)}
	if t, ok := events.PeekType([]byte(gjson.GetBytes(line, "payload").Raw)); ok {
		fields = append(fields, zap.String("type", string(t)))
	}
	zap.L().Warn("Rejecting GUI frame", fields...)

	id := gjson.GetBytes(line, "id").String()
	if id == "" {
		return
	}
	reply := events.NewErrorReply(&events.EventEnvelope{ID: id, PluginRefID: gjson.GetBytes(line, "pluginRefId").String()}, err.Error())
	if werr := out.write(reply); werr != nil {
		zap.L().Error("Failed to reject GUI frame", zap.Error(werr))
	}
}
