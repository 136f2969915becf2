package xrpc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/atvault/lexhost/internal/engine"
	"github.com/atvault/lexhost/internal/lexicon"
	"github.com/atvault/lexhost/internal/sandbox"
)

// Dispatcher routes XRPC method calls to handler scripts or built-in
// handlers, after validating parameters and input against the method's
// lexicon.
type Dispatcher struct {
	engine  *engine.Engine
	runtime *sandbox.Runtime
	logger  *slog.Logger
	// serviceDID is the repo records are written under when the caller
	// is anonymous.
	serviceDID string
}

// NewDispatcher wires a dispatcher over an engine and a script runtime.
func NewDispatcher(e *engine.Engine, rt *sandbox.Runtime, logger *slog.Logger, serviceDID string) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{engine: e, runtime: rt, logger: logger, serviceDID: serviceDID}
}

// Query dispatches a GET /xrpc/{method} call. rawParams are the query
// string values before coercion.
func (d *Dispatcher) Query(ctx context.Context, method string, rawParams map[string]string) (any, error) {
	lex := d.engine.Registry().Get(method)
	if lex == nil || lex.Type != lexicon.TypeQuery {
		return nil, NewError(NameMethodNotFound, "query %s not found", method)
	}

	params, err := lexicon.CoerceParams(lex.Parameters, rawParams)
	if err != nil {
		var pe *lexicon.PayloadError
		if errors.As(err, &pe) {
			return nil, NewError(NameInvalidParams, "%s: %s", pe.Field, pe.Message)
		}
		return nil, NewError(NameInvalidParams, "%s", err.Error())
	}

	if lex.Script != "" {
		out, err := d.runtime.Invoke(ctx, lex.Script, sandbox.Invocation{
			Method:     method,
			CallerDID:  d.serviceDID,
			Collection: lex.TargetCollection,
			Params:     params,
		})
		if err != nil {
			return nil, MapError(err)
		}
		return out, nil
	}

	if lex.TargetCollection != "" {
		return d.builtinQuery(ctx, lex, params)
	}

	return nil, NewError(NameMissingScript,
		"query %s has no script and no target collection", method)
}

// Procedure dispatches a POST /xrpc/{method} call with a decoded JSON
// body.
func (d *Dispatcher) Procedure(ctx context.Context, method string, input map[string]any) (any, error) {
	lex := d.engine.Registry().Get(method)
	if lex == nil || lex.Type != lexicon.TypeProcedure {
		return nil, NewError(NameMethodNotFound, "procedure %s not found", method)
	}

	if err := validateInput(lex, input); err != nil {
		return nil, err
	}

	if lex.Script != "" {
		out, err := d.runtime.Invoke(ctx, lex.Script, sandbox.Invocation{
			Method:     method,
			CallerDID:  d.serviceDID,
			Collection: lex.TargetCollection,
			Input:      input,
		})
		if err != nil {
			return nil, MapError(err)
		}
		return out, nil
	}

	if lex.TargetCollection != "" {
		return d.builtinProcedure(ctx, lex, input)
	}

	return nil, NewError(NameMissingScript,
		"procedure %s has no script and no target collection", method)
}

// validateInput checks a procedure body against the lexicon's input
// schema when one is declared as an inline object. ref and union schemas
// are accepted as-is.
func validateInput(lex *lexicon.ParsedLexicon, input map[string]any) error {
	if lex.Input == nil {
		return nil
	}
	schema, _ := lex.Input["schema"].(map[string]any)
	if schema == nil {
		return nil
	}
	if kind, _ := schema["type"].(string); kind != "object" {
		return nil
	}
	if err := lexicon.ValidateRecordPayload(schema, input); err != nil {
		var pe *lexicon.PayloadError
		if errors.As(err, &pe) {
			return NewError(NameInvalidInput, "%s: %s", pe.Field, pe.Message)
		}
		return NewError(NameInvalidInput, "%s", err.Error())
	}
	return nil
}
