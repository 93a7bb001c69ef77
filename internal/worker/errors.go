package worker

import (
	"errors"
	"fmt"
	"time"
)

// ErrWorkerTerminated is returned for calls on a plugin whose execution
// context has ended, including calls still pending when it ended.
var ErrWorkerTerminated = errors.New("worker terminated")

// LoadError reports a plugin that could not be booted. The plugin must not
// be registered.
type LoadError struct {
	Dir    string `json:"dir"`
	Plugin string `json:"plugin,omitempty"`
	Err    error  `json:"-"`
}

// NewLoadError creates a new LoadError
func NewLoadError(dir string, plugin string, err error) *LoadError {
	return &LoadError{Dir: dir, Plugin: plugin, Err: err}
}

func (e *LoadError) Error() string {
	if e.Plugin != "" {
		return fmt.Sprintf("failed to load plugin %s from %s: %v", e.Plugin, e.Dir, e.Err)
	}
	return fmt.Sprintf("failed to load plugin from %s: %v", e.Dir, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Interface guard for LoadError
var _ error = &LoadError{}

// InvocationError carries the error a plugin hook reported. The plugin stays usable.
type InvocationError struct {
	Plugin  string `json:"plugin"`
	Hook    string `json:"hook"`
	Message string `json:"message"`
}

// NewInvocationError creates a new InvocationError
func NewInvocationError(plugin string, hook string, message string) *InvocationError {
	return &InvocationError{Plugin: plugin, Hook: hook, Message: message}
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("plugin %s failed %s: %s", e.Plugin, e.Hook, e.Message)
}

// Interface guard for InvocationError
var _ error = &InvocationError{}

// TimeoutError reports a call that got no reply within its deadline.
// The plugin stays usable and a late reply is discarded.
type TimeoutError struct {
	Plugin     string        `json:"plugin"`
	Hook       string        `json:"hook"`
	CallbackID string        `json:"callback_id"`
	Timeout    time.Duration `json:"timeout"`
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(plugin string, hook string, callbackID string, timeout time.Duration) *TimeoutError {
	return &TimeoutError{Plugin: plugin, Hook: hook, CallbackID: callbackID, Timeout: timeout}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("plugin %s did not answer %s within %v", e.Plugin, e.Hook, e.Timeout)
}

// Interface guard for TimeoutError
var _ error = &TimeoutError{}
