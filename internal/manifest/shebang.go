package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrNoShebang means the entrypoint does not start with "#!".
	ErrNoShebang = errors.New("no #! line")
	// ErrEmptyShebang means the #! line names no interpreter.
	ErrEmptyShebang = errors.New("#! line names no interpreter")
)

// maxShebangLine caps how much of an entrypoint is read looking for "#!".
const maxShebangLine = 512

// InterpreterError reports an entrypoint whose interpreter could not be
// taken from its #! line.
type InterpreterError struct {
	Entrypoint string `json:"entrypoint"`
	Line       string `json:"line,omitempty"`
	Err        error  `json:"-"`
}

func (e *InterpreterError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("%s: %v", e.Entrypoint, e.Err)
	}
	return fmt.Sprintf("%s: %v: %q", e.Entrypoint, e.Err, e.Line)
}

func (e *InterpreterError) Unwrap() error { return e.Err }

var _ error = &InterpreterError{}

// ReadInterpreter returns the interpreter and leading arguments named by the
// #! line of entrypoint, which is resolved inside root.
func ReadInterpreter(root *os.Root, entrypoint string) (string, []string, error) {
	f, err := root.Open(entrypoint)
	if err != nil {
		return "", nil, &InterpreterError{Entrypoint: entrypoint, Err: err}
	}
	defer func() { _ = f.Close() }()

	line, err := bufio.NewReaderSize(io.LimitReader(f, maxShebangLine), maxShebangLine).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", nil, &InterpreterError{Entrypoint: entrypoint, Err: err}
	}
	line = strings.TrimSpace(line)

	rest, ok := strings.CutPrefix(line, "#!")
	if !ok {
		return "", nil, &InterpreterError{Entrypoint: entrypoint, Line: line, Err: ErrNoShebang}
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", nil, &InterpreterError{Entrypoint: entrypoint, Line: line, Err: ErrEmptyShebang}
	}
	return fields[0], fields[1:], nil
}
