package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atvault/lexhost/internal/lexicon"
	"github.com/atvault/lexhost/internal/store"
)

// Engine coordinates lexicon and record operations over a single store.
//
// Thread-safety model:
//   - the registry is internally locked
//   - the store serializes writes on its single connection
//
// so Engine methods are safe from any goroutine.
type Engine struct {
	store    *store.Store
	registry *lexicon.Registry
	logger   *slog.Logger

	// scriptCheck vets handler scripts at put time. Injected by the
	// process wiring; the script runtime sits above this package.
	scriptCheck func(script string) error
}

// New builds an engine over the given store and loads the registry from
// the lexicons table.
func New(ctx context.Context, st *store.Store, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:    st,
		registry: lexicon.NewRegistry(),
		logger:   logger,
	}
	if err := e.reload(ctx); err != nil {
		return nil, err
	}
	logger.Info("engine starting", "lexicons", e.registry.Count())
	return e, nil
}

// SetScriptValidator installs the hook PutLexicon uses to reject
// lexicons whose handler script does not load or defines no handle
// function. Must be called before the engine serves puts.
func (e *Engine) SetScriptValidator(fn func(script string) error) {
	e.scriptCheck = fn
}

// Registry exposes the live lexicon registry for dispatch lookups.
func (e *Engine) Registry() *lexicon.Registry {
	return e.registry
}

// Store exposes the underlying store for read paths that need no engine
// logic (admin browsing, stats).
func (e *Engine) Store() *store.Store {
	return e.store
}

// reload replaces the registry contents from the store.
func (e *Engine) reload(ctx context.Context) error {
	lexicons, err := e.store.ListLexicons(ctx, "")
	if err != nil {
		return fmt.Errorf("load lexicons: %w", err)
	}
	e.registry.Replace(lexicons)
	return nil
}

// LexiconUpsert is the input to PutLexicon.
type LexiconUpsert struct {
	// Doc is the raw lexicon document.
	Doc map[string]any
	// TargetCollection backs scriptless queries and procedures.
	TargetCollection string
	// Action is the built-in behavior for scriptless procedures.
	Action lexicon.Action
	// Script is optional Lua handler source.
	Script string

	Source        lexicon.Source
	AuthorityDID  string
	Backfill      bool
	LastFetchedAt *time.Time
}

// PutLexicon validates, stores and registers a lexicon document.
// The stored revision is bumped; concurrent puts for the same id are
// serialized by the store's compare-and-swap.
func (e *Engine) PutLexicon(ctx context.Context, put LexiconUpsert) (*lexicon.ParsedLexicon, error) {
	if err := lexicon.Validate(put.Doc); err != nil {
		var ve *lexicon.ValidationError
		if errors.As(err, &ve) {
			return nil, newError(ErrCodeSchemaInvalid, ve.Path, "%s", ve.Message)
		}
		return nil, newError(ErrCodeSchemaInvalid, "", "%s", err.Error())
	}

	if put.TargetCollection != "" && !lexicon.IsNSID(put.TargetCollection) {
		return nil, newError(ErrCodeSchemaInvalid, "target_collection",
			"%q is not a valid NSID", put.TargetCollection)
	}

	action := put.Action
	if action == "" {
		action = lexicon.ActionUpsert
	}
	source := put.Source
	if source == "" {
		source = lexicon.SourceManual
	}

	if put.Script != "" && e.scriptCheck != nil {
		if err := e.scriptCheck(put.Script); err != nil {
			return nil, newError(ErrCodeSchemaInvalid, "script", "%s", err.Error())
		}
	}

	p, err := lexicon.Parse(put.Doc, 0, put.TargetCollection, action, put.Script)
	if err != nil {
		return nil, newError(ErrCodeSchemaInvalid, "", "%s", err.Error())
	}
	if p.Invokable() && p.Script == "" && p.TargetCollection == "" {
		return nil, newError(ErrCodeMissingScript, p.ID,
			"lexicon has neither a handler script nor a target collection")
	}
	p.Source = source
	p.AuthorityDID = put.AuthorityDID
	p.Backfill = put.Backfill
	p.LastFetchedAt = put.LastFetchedAt

	if err := e.store.PutLexicon(ctx, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, newError(ErrCodeConflict, p.ID, "lexicon was updated concurrently")
		}
		return nil, err
	}
	e.registry.Upsert(p)

	e.logger.Info("lexicon stored",
		"id", p.ID, "type", string(p.Type), "revision", p.Revision,
		"source", string(p.Source))
	return p, nil
}

// GetLexicon returns a lexicon by NSID from the registry.
func (e *Engine) GetLexicon(id string) (*lexicon.ParsedLexicon, error) {
	if p := e.registry.Get(id); p != nil {
		return p, nil
	}
	return nil, newError(ErrCodeNotFound, id, "lexicon not found")
}

// ListLexicons returns stored lexicons, optionally filtered by source.
func (e *Engine) ListLexicons(ctx context.Context, source lexicon.Source) ([]*lexicon.ParsedLexicon, error) {
	return e.store.ListLexicons(ctx, source)
}

// DeleteLexicon removes a lexicon from the store and the registry.
func (e *Engine) DeleteLexicon(ctx context.Context, id string) error {
	if err := e.store.DeleteLexicon(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newError(ErrCodeNotFound, id, "lexicon not found")
		}
		return err
	}
	e.registry.Remove(id)
	e.logger.Info("lexicon deleted", "id", id)
	return nil
}
