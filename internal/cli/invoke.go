package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/atvault/lexhost/internal/config"
	"github.com/atvault/lexhost/internal/engine"
	"github.com/atvault/lexhost/internal/sandbox"
	"github.com/atvault/lexhost/internal/store"
	"github.com/atvault/lexhost/internal/xrpc"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Params string
	Input  string
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <method>",
		Short: "Invoke an XRPC method against the local database",
		Long: `Invoke an XRPC method directly against the local database, without
a running server. Queries take --params, procedures take --input.

Example:
  lexhost invoke com.example.listNotes --params '{"limit":"5"}'
  lexhost invoke com.example.createNote --input '{"text":"hello"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeMethod(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Params, "params", "", "query parameters as a JSON object of strings")
	cmd.Flags().StringVar(&opts.Input, "input", "", "procedure input as a JSON object")

	return cmd
}

func invokeMethod(opts *InvokeOptions, method string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Params != "" && opts.Input != "" {
		return WrapExitError(ExitCommandError, "--params and --input are mutually exclusive", nil)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer st.Close()

	ctx := context.Background()
	e, err := engine.New(ctx, st, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "start engine", err)
	}
	rt := sandbox.New(e, logger, cfg.ScriptTimeout.Std())
	e.SetScriptValidator(rt.CheckScript)
	dispatcher := xrpc.NewDispatcher(e, rt, logger, cfg.ServiceDID)

	var out any
	if opts.Input != "" {
		input := map[string]any{}
		if err := json.Unmarshal([]byte(opts.Input), &input); err != nil {
			return WrapExitError(ExitCommandError, "invalid --input JSON", err)
		}
		out, err = dispatcher.Procedure(ctx, method, input)
	} else {
		params := map[string]string{}
		if opts.Params != "" {
			if err := json.Unmarshal([]byte(opts.Params), &params); err != nil {
				return WrapExitError(ExitCommandError, "invalid --params JSON", err)
			}
		}
		out, err = dispatcher.Query(ctx, method, params)
	}
	if err != nil {
		we := xrpc.MapError(err)
		formatter.Error(we.Name, we.Message, nil)
		return WrapExitError(ExitFailure, we.Name, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(out)
	}
	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return WrapExitError(ExitFailure, "encode result", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
	return nil
}
