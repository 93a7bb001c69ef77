package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hookhost/internal/plugin"
	"github.com/dorcha-inc/hookhost/internal/worker"
)

// newCallCmd creates a command that invokes one capability of one plugin
func newCallCmd(flags *globalFlags) *cobra.Command {
	var (
		payload     string
		payloadFile string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call PLUGIN CAPABILITY",
		Short: "Invoke a plugin capability and print its reply",
		Long: `Boot every plugin, invoke one capability of the named plugin with a JSON
payload, and print the reply.

Capabilities: import, export, filter, model_events.`,
		Example: `  # Run a response filter
  hookhost call jsonpath filter --payload '{"content":"{\"a\":1}","filter":"$.a"}'

  # Import a file
  hookhost call postman import --payload-file collection-request.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			capability, err := worker.ParseCapability(args[1])
			if err != nil {
				return err
			}

			body, err := readPayload(payload, payloadFile)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if err := initLogger(cfg, flags.prettyLog); err != nil {
				return err
			}
			defer zap.L().Sync() //nolint:errcheck // Ignore sync errors on stderr

			rt := newRuntime(cfg)
			defer func() {
				if err := rt.close(); err != nil {
					zap.L().Warn("Failed to shut down plugins", zap.Error(err))
				}
			}()
			if err := rt.boot(cmd.Context()); err != nil {
				return err
			}

			var opts []plugin.CallOption
			if timeout > 0 {
				opts = append(opts, plugin.WithTimeout(timeout))
			}
			reply, err := rt.manager.CallCapability(cmd.Context(), args[0], capability, body, opts...)
			if err != nil {
				return err
			}
			return printJSON(cmd, reply)
		},
	}

	cmd.Flags().StringVarP(&payload, "payload", "p", "{}", "Request payload as JSON")
	cmd.Flags().StringVarP(&payloadFile, "payload-file", "f", "", "Read the request payload from a file")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Reply deadline (default: call_timeout_ms from config)")

	return cmd
}

// readPayload returns the payload from the file when one is given, else the
// inline JSON. Either way it must be valid JSON.
func readPayload(inline string, path string) (json.RawMessage, error) {
	data := []byte(inline)
	if path != "" {
		// #nosec G304 -- the payload file is chosen by the user invoking the command
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		data = fileData
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func printJSON(cmd *cobra.Command, data json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		// not every reply is an object; print it as it came
		buf.Reset()
		buf.Write(data)
	}
	buf.WriteByte('\n')
	_, err := cmd.OutOrStdout().Write(buf.Bytes())
	return err
}
