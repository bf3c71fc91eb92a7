// Package function maps HTTP endpoints to declarative action pipelines.
// A Definition is an immutable template declared at startup: a route, an
// ordered list of actions, and optionally a custom handler for flows the
// default pipeline cannot express. Every request runs against an
// Invocation, a request-scoped clone of the definition's actions.
package function

import (
	"context"
	"database/sql"
	"io"

	"github.com/pitabwire/formbase/internal/query"
	"github.com/pitabwire/formbase/model"
)

// SpaceParam is the reserved system parameter carrying the caller's space
// id. Invoke binds it from the request context; request input never
// overwrites it.
const SpaceParam = "id_space"

// HandlerFunc is the custom orchestration hook. It receives the
// request-scoped invocation and returns exactly one response.
type HandlerFunc func(ctx context.Context, inv *Invocation) (*Response, error)

// Definition declares one endpoint.
type Definition struct {
	Method string
	Path   string

	handler HandlerFunc
	actions []*query.Action
}

// NewDefinition declares an endpoint template.
func NewDefinition(method, path string) *Definition {
	return &Definition{Method: method, Path: path}
}

// Action appends an action template and returns the definition for
// chaining.
func (d *Definition) Action(a *query.Action) *Definition {
	d.actions = append(d.actions, a)
	return d
}

// Handle installs a custom handler. Definitions with a handler skip the
// default pipeline entirely; the handler drives its actions itself.
func (d *Definition) Handle(h HandlerFunc) *Definition {
	d.handler = h
	return d
}

// Invoke creates the request-scoped invocation: cloned actions, the
// caller's input, and the database handle. The definition itself is never
// mutated after startup.
func (d *Definition) Invoke(db *sql.DB, rc model.RequestContext) *Invocation {
	inv := &Invocation{
		DB:      db,
		Request: rc,
		Input:   map[string]model.Value{},
	}
	inv.actions = make([]*query.Action, len(d.actions))
	for i, a := range d.actions {
		inv.actions[i] = a.Clone()
		if p := inv.actions[i].Parameter(SpaceParam); p != nil && p.System {
			p.Value = model.String(rc.SpaceID)
		}
	}
	return inv
}

// Execute runs the definition for one request: the custom handler when
// installed, the default pipeline otherwise.
func (d *Definition) Execute(ctx context.Context, inv *Invocation) (*Response, error) {
	if d.handler != nil {
		return d.handler(ctx, inv)
	}
	inv.BindAll()
	results, err := inv.Run(ctx)
	if err != nil {
		return nil, err
	}
	return JSON(map[string]any{
		"status":  "OK",
		"message": "",
		"data":    results.Records(),
	}), nil
}

// Upload is one file received with a multipart request, keyed by the form
// field naming the column it belongs to.
type Upload struct {
	Field    string
	Filename string
	Content  io.Reader
}

// Invocation is the request-scoped execution state of a definition.
type Invocation struct {
	DB      *sql.DB
	Request model.RequestContext
	Input   map[string]model.Value
	Uploads []Upload

	actions []*query.Action
}

// Action returns the cloned action with the given id, or nil.
func (inv *Invocation) Action(id string) *query.Action {
	for _, a := range inv.actions {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// Append adds a request-time action to the end of the pipeline. Used by
// handlers that synthesize statements from metadata resolved during the
// request.
func (inv *Invocation) Append(a *query.Action) {
	inv.actions = append(inv.actions, a)
}

// Upload returns the upload for the named field, or nil.
func (inv *Invocation) Upload(field string) *Upload {
	for i := range inv.Uploads {
		if inv.Uploads[i].Field == field {
			return &inv.Uploads[i]
		}
	}
	return nil
}

// BindAll binds the request input into every action.
func (inv *Invocation) BindAll() {
	for _, a := range inv.actions {
		a.Bind(inv.Input)
	}
}

// Run executes the pipeline in declaration order, stopping at the first
// failure. It returns the results of the last final action; a pipeline
// whose actions are all intermediate yields empty results.
func (inv *Invocation) Run(ctx context.Context) (*query.Results, error) {
	var final *query.Results
	for _, a := range inv.actions {
		if err := a.Run(ctx, inv.DB); err != nil {
			return nil, err
		}
		if a.Final {
			final = a.Results
		}
	}
	if final == nil {
		final = &query.Results{}
	}
	return final, nil
}
