package testing

import (
	"bytes"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// CapturedOutput redirects os.Stdout and os.Stderr into pipes that are
// drained concurrently, so large writes never block the code under test.
type CapturedOutput struct {
	origStdout *os.File
	origStderr *os.File
	stdoutW    *os.File
	stderrW    *os.File

	drained sync.WaitGroup
	stdout  bytes.Buffer
	stderr  bytes.Buffer

	once           sync.Once
	stdoutContents string
	stderrContents string
}

// CaptureOutput starts capturing. The original streams are restored by Stop
// or, at the latest, when the test ends.
func CaptureOutput(t testing.TB) *CapturedOutput {
	t.Helper()

	stdoutR, stdoutW, err := os.Pipe()
	require.NoError(t, err)
	stderrR, stderrW, err := os.Pipe()
	require.NoError(t, err)

	c := &CapturedOutput{
		origStdout: os.Stdout,
		origStderr: os.Stderr,
		stdoutW:    stdoutW,
		stderrW:    stderrW,
	}
	c.drain(stdoutR, &c.stdout)
	c.drain(stderrR, &c.stderr)

	os.Stdout = stdoutW
	os.Stderr = stderrW
	t.Cleanup(func() { c.Stop() })
	return c
}

func (c *CapturedOutput) drain(r *os.File, into *bytes.Buffer) {
	c.drained.Add(1)
	go func() {
		defer c.drained.Done()
		_, _ = io.Copy(into, r)
		_ = r.Close()
	}()
}

// Stop restores the original streams and returns everything written to
// stdout and stderr. Later calls return the same output.
func (c *CapturedOutput) Stop() (stdout string, stderr string) {
	c.once.Do(func() {
		os.Stdout = c.origStdout
		os.Stderr = c.origStderr
		_ = c.stdoutW.Close()
		_ = c.stderrW.Close()
		c.drained.Wait()
		c.stdoutContents = c.stdout.String()
		c.stderrContents = c.stderr.String()
	})
	return c.stdoutContents, c.stderrContents
}
