package pluginsdk

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dorcha-inc/hookhost/internal/core"
)

// Main serves module over stdin and stdout and exits when the host closes
// the pipe. Plugin binaries call it from their main function.
func Main(module any) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Serve(ctx, module, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		core.MustFprintf(os.Stderr, "plugin exited: %v\n", err)
		stop()
		os.Exit(1)
	}
}
