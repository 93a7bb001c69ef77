package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dorcha-inc/hookhost/internal/manifest"
	hhtesting "github.com/dorcha-inc/hookhost/internal/testing"
)

// fakePlugin is the plugin end of an in-memory channel driven by the test.
type fakePlugin struct {
	in       *bufio.Scanner
	out      io.WriteCloser
	writeMu  sync.Mutex
	requests chan Message
}

func (p *fakePlugin) run() {
	defer close(p.requests)
	for p.in.Scan() {
		var msg Message
		if err := json.Unmarshal(p.in.Bytes(), &msg); err != nil {
			continue
		}
		p.requests <- msg
	}
}

func (p *fakePlugin) writeLine(line []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := p.out.Write(append(line, '\n'))
	return err
}

func (p *fakePlugin) send(t *testing.T, msg Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, p.writeLine(data))
}

func (p *fakePlugin) reply(t *testing.T, req Message, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	p.send(t, Message{CallbackID: req.CallbackID, Payload: data})
}

func (p *fakePlugin) replyError(t *testing.T, req Message, msg string) {
	t.Helper()
	p.send(t, Message{CallbackID: req.CallbackID, Error: msg})
}

func (p *fakePlugin) next(t *testing.T) Message {
	t.Helper()
	select {
	case msg, ok := <-p.requests:
		require.True(t, ok, "plugin input closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a request")
		return Message{}
	}
}

func (p *fakePlugin) expectIdle(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case msg := <-p.requests:
		t.Fatalf("unexpected request %q", msg.Name)
	case <-time.After(wait):
	}
}

// fakeLauncher starts a fakePlugin for every launch.
type fakeLauncher struct {
	hello    *Hello
	launched chan *fakePlugin
}

func newFakeLauncher(hello *Hello) *fakeLauncher {
	return &fakeLauncher{hello: hello, launched: make(chan *fakePlugin, 4)}
}

func (l *fakeLauncher) Launch(_ context.Context, m *manifest.Manifest) (Channel, error) {
	ch, pluginIn, pluginOut := NewPipe(m.Name)
	p := &fakePlugin{in: bufio.NewScanner(pluginIn), out: pluginOut, requests: make(chan Message, 16)}
	go p.run()

	if l.hello != nil {
		payload, err := json.Marshal(l.hello)
		if err != nil {
			return nil, err
		}
		frame, err := json.Marshal(Message{Name: MessageHello, Payload: payload})
		if err != nil {
			return nil, err
		}
		go func() { _ = p.writeLine(frame) }()
	}

	l.launched <- p
	return ch, nil
}

func (l *fakeLauncher) plugin(t *testing.T) *fakePlugin {
	t.Helper()
	select {
	case p := <-l.launched:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("plugin was never launched")
		return nil
	}
}

// bootFake boots a handle for a fixture directory against a fake plugin.
func bootFake(t *testing.T, hello *Hello, opts ...Option) (*Handle, *fakePlugin) {
	t.Helper()
	dir := hhtesting.WritePluginDir(t, t.TempDir(), hhtesting.PluginFixture{Name: "fake", Version: "1.0.0"})
	launcher := newFakeLauncher(hello)

	h := NewHandle(dir, append([]Option{WithLauncher(launcher)}, opts...)...)
	_, err := h.Boot(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Shutdown() })

	return h, launcher.plugin(t)
}
