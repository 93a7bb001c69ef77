package pluginsdk

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorcha-inc/hookhost/internal/events"
	"github.com/dorcha-inc/hookhost/internal/models"
	hhtesting "github.com/dorcha-inc/hookhost/internal/testing"
	"github.com/dorcha-inc/hookhost/internal/worker"
)

type described struct{}

func (described) Name() string { return "described" }

func (described) Version() string { return "0.4.2" }

func (described) Concurrent() bool { return true }

func (described) Import(_ *Context, req *ImportRequest) (*ImportResponse, error) {
	return &ImportResponse{Resources: ImportResources{
		Folders: []models.Folder{{ID: "fl_1", Model: models.KindFolder, Name: req.Content}},
	}}, nil
}

func (described) ModelChanged(*Context, ChangeEvent) {}

type panicky struct{}

func (panicky) Filter(*Context, *FilterRequest) (*FilterResponse, error) {
	panic("boom")
}

// lookup asks the host for a request before exporting it.
type lookup struct{}

func (lookup) Export(ctx *Context, req *ExportHTTPRequestRequest) (*ExportHTTPRequestResponse, error) {
	reply, err := ctx.Request(&GetHTTPRequestByIDRequest{ID: req.HTTPRequest.ID})
	if err != nil {
		return nil, err
	}
	found, ok := reply.(*GetHTTPRequestByIDResponse)
	if !ok || found.HTTPRequest == nil {
		return nil, errors.New("request not found")
	}
	return &ExportHTTPRequestResponse{Content: "curl " + found.HTTPRequest.URL}, nil
}

// notifier raises a toast and reports what the host answered with.
type notifier struct{}

func (notifier) Export(ctx *Context, req *ExportHTTPRequestRequest) (*ExportHTTPRequestResponse, error) {
	reply, err := ctx.Request(&ShowToastRequest{Message: "exported " + req.HTTPRequest.ID, Variant: ToastSuccess})
	if err != nil {
		return nil, err
	}
	if _, ok := reply.(*EmptyResponse); !ok {
		return nil, errors.New("unexpected reply")
	}
	return &ExportHTTPRequestResponse{Content: string(reply.PayloadType())}, nil
}

func bootModule(t *testing.T, name string, module any, opts ...worker.Option) *worker.Handle {
	t.Helper()
	launcher := NewLauncher()
	launcher.Register(name, module)
	dir := hhtesting.WritePluginDir(t, t.TempDir(), hhtesting.PluginFixture{Name: name, Version: "1.0.0"})

	h := worker.NewHandle(dir, append([]worker.Option{worker.WithLauncher(launcher)}, opts...)...)
	_, err := h.Boot(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Shutdown() })
	return h
}

func TestExports(t *testing.T) {
	assert.Equal(t, []string{"pluginHookImport", "pluginHookModelChanged"}, Exports(described{}))
	assert.Equal(t, []string{"pluginHookResponseFilter"}, Exports(panicky{}))
	assert.Equal(t, []string{}, Exports(struct{}{}))
}

// TestServe_Handshake tests that hello carries the module's hooks
func TestServe_Handshake(t *testing.T) {
	h := bootModule(t, "described", described{})

	info := h.Info()
	require.NotNil(t, info)
	assert.Equal(t, []string{"import", "model_events"}, info.CapabilityNames())
	assert.True(t, info.Concurrent)

	queried, err := h.QueryInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "described", queried.Name)
	assert.Equal(t, "0.4.2", queried.Version)
	assert.Equal(t, []string{"import", "model_events"}, queried.CapabilityNames())
}

// TestServe_AnswersHook tests a request round trip through the in-process launcher
func TestServe_AnswersHook(t *testing.T) {
	h := bootModule(t, "described", described{})

	data, err := h.Invoke(context.Background(), worker.RequestImport, &events.ImportRequest{Content: "Imported"}, 0)
	require.NoError(t, err)

	var resp events.ImportResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	require.Len(t, resp.Resources.Folders, 1)
	assert.Equal(t, "Imported", resp.Resources.Folders[0].Name)
}

// TestServe_ErrorReplies tests that failures become error replies and the plugin keeps serving
func TestServe_ErrorReplies(t *testing.T) {
	h := bootModule(t, "panicky", panicky{})

	tests := []struct {
		name    string
		request string
		want    string
	}{
		{name: "panic", request: worker.RequestFilter, want: "panicked"},
		{name: "not implemented", request: worker.RequestImport, want: "does not implement run-import"},
		{name: "unknown request", request: "run-nonsense", want: `unknown request "run-nonsense"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Invoke(context.Background(), tt.request, struct{}{}, 0)
			var invocationErr *worker.InvocationError
			require.True(t, errors.As(err, &invocationErr))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.Equal(t, worker.StateReady, h.GetState())
}

// TestContext_Request tests a plugin-originated request answered by the host
func TestContext_Request(t *testing.T) {
	h := bootModule(t, "lookup", lookup{}, worker.OnMessage(func(from *worker.Handle, msg worker.Message) {
		env, err := worker.DecodeEvent(msg)
		if err != nil {
			return
		}
		req, ok := env.Payload.(*events.GetHTTPRequestByIDRequest)
		if !ok {
			return
		}
		found := &models.HTTPRequest{ID: req.ID, Model: models.KindHTTPRequest, URL: "https://example.com/" + req.ID}
		reply, err := worker.NewEventMessage(events.NewReply(env, &events.GetHTTPRequestByIDResponse{HTTPRequest: found}))
		if err == nil {
			_ = from.Post(reply)
		}
	}))

	data, err := h.Invoke(context.Background(), worker.RequestExport, &events.ExportHTTPRequestRequest{HTTPRequest: models.HTTPRequest{ID: "rq_1"}}, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"curl https://example.com/rq_1"}`, string(data))
}

// TestContext_RequestToast tests a toast raised through the exported payload types
func TestContext_RequestToast(t *testing.T) {
	toasts := make(chan *ShowToastRequest, 1)
	h := bootModule(t, "notifier", notifier{}, worker.OnMessage(func(from *worker.Handle, msg worker.Message) {
		env, err := worker.DecodeEvent(msg)
		if err != nil {
			return
		}
		toast, ok := env.Payload.(*ShowToastRequest)
		if !ok {
			return
		}
		toasts <- toast
		reply, err := worker.NewEventMessage(events.NewReply(env, &EmptyResponse{}))
		if err == nil {
			_ = from.Post(reply)
		}
	}))

	data, err := h.Invoke(context.Background(), worker.RequestExport, &ExportHTTPRequestRequest{HTTPRequest: HTTPRequest{ID: "rq_7"}}, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"empty_response"}`, string(data))

	toast := <-toasts
	assert.Equal(t, "exported rq_7", toast.Message)
	assert.Equal(t, ToastSuccess, toast.Variant)
}

// TestContext_RequestRejected tests that an error reply from the host fails the request
func TestContext_RequestRejected(t *testing.T) {
	h := bootModule(t, "lookup", lookup{}, worker.OnMessage(func(from *worker.Handle, msg worker.Message) {
		env, err := worker.DecodeEvent(msg)
		if err != nil {
			return
		}
		reply, err := worker.NewEventMessage(events.NewErrorReply(env, "store unavailable"))
		if err == nil {
			_ = from.Post(reply)
		}
	}))

	_, err := h.Invoke(context.Background(), worker.RequestExport, &events.ExportHTTPRequestRequest{}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
}

// TestServe_EndsWhenHostCloses tests that Serve returns once its input is exhausted
func TestServe_EndsWhenHostCloses(t *testing.T) {
	hostR, pluginW := io.Pipe()
	pluginR, hostW := io.Pipe()

	done := make(chan error, 1)
	go func() { done <- Serve(context.Background(), described{}, pluginR, pluginW) }()

	scanner := bufio.NewScanner(hostR)
	require.True(t, scanner.Scan())
	var hello worker.Message
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &hello))
	assert.Equal(t, worker.MessageHello, hello.Name)

	require.NoError(t, hostW.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

// TestServe_StopsOnCancel tests that cancelling the context stops Serve
func TestServe_StopsOnCancel(t *testing.T) {
	hostR, pluginW := io.Pipe()
	pluginR, _ := io.Pipe()
	go func() { _, _ = io.Copy(io.Discard, hostR) }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, described{}, pluginR, pluginW) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	_ = pluginR.Close()
}

// TestLauncher_Kill tests that killing an instance looks like a crash to the host
func TestLauncher_Kill(t *testing.T) {
	exited := make(chan error, 1)
	launcher := NewLauncher()
	launcher.Register("described", described{})
	dir := hhtesting.WritePluginDir(t, t.TempDir(), hhtesting.PluginFixture{Name: "described", Version: "1.0.0"})

	h := worker.NewHandle(dir, worker.WithLauncher(launcher), worker.OnExit(func(_ *worker.Handle, err error) { exited <- err }))
	_, err := h.Boot(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Shutdown() })

	require.True(t, launcher.Kill("described"))
	select {
	case err := <-exited:
		assert.ErrorIs(t, err, worker.ErrWorkerTerminated)
	case <-time.After(2 * time.Second):
		t.Fatal("exit was not reported")
	}
	assert.False(t, launcher.Kill("described"))
}

// TestLauncher_UnknownModule tests launching a plugin with no registered module
func TestLauncher_UnknownModule(t *testing.T) {
	dir := hhtesting.WritePluginDir(t, t.TempDir(), hhtesting.PluginFixture{Name: "ghost", Version: "1.0.0"})
	h := worker.NewHandle(dir, worker.WithLauncher(NewLauncher()))

	_, err := h.Boot(context.Background())
	var loadErr *worker.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Contains(t, err.Error(), "no in-process module registered for ghost")
}
