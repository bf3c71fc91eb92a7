package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pitabwire/formbase/model"
)

// ActionCondition is a named validator keyed by the action's result set.
// It runs after the statement executes and can override success with a
// custom error (uniqueness and referential pre-checks).
type ActionCondition struct {
	ID    string
	Check func(a *Action) bool
}

// Action is one parameterized SQL statement plus its bound parameters and
// conditions. Declared actions are immutable templates; each request runs
// against a clone, so a single Run populates a fresh result set that never
// leaks across requests.
type Action struct {
	ID  string
	SQL string

	// Final marks the action whose results form the terminal response of a
	// default pipeline. Non-final actions only feed later steps.
	Final bool

	Params      []*Parameter
	Results     *Results
	CustomError string

	conditions []ActionCondition
}

// NewAction declares an action. Actions are final unless marked otherwise.
func NewAction(id, sqlText string) *Action {
	return &Action{ID: id, SQL: sqlText, Final: true}
}

// NonFinal marks the action as an intermediate step and returns it.
func (a *Action) NonFinal() *Action {
	a.Final = false
	return a
}

// Param declares a request-bindable parameter and returns it for condition
// chaining.
func (a *Action) Param(name string, value model.Value, required bool) *Parameter {
	p := &Parameter{Name: name, Value: value, Required: required}
	a.Params = append(a.Params, p)
	return p
}

// SystemParam declares a parameter bound from server state; request input
// never overwrites it.
func (a *Action) SystemParam(name string, value model.Value) *Parameter {
	p := &Parameter{Name: name, Value: value, System: true}
	a.Params = append(a.Params, p)
	return p
}

// Condition appends an action-level condition and returns the action for
// chaining during declaration.
func (a *Action) Condition(id string, check func(*Action) bool) *Action {
	a.conditions = append(a.conditions, ActionCondition{ID: id, Check: check})
	return a
}

// Param lookup by name, or nil.
func (a *Action) Parameter(name string) *Parameter {
	for _, p := range a.Params {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Clone produces a request-scoped copy with cloned parameters and no
// results. Condition lists are shared; they are immutable after startup.
func (a *Action) Clone() *Action {
	cp := &Action{
		ID:         a.ID,
		SQL:        a.SQL,
		Final:      a.Final,
		conditions: a.conditions,
	}
	cp.Params = make([]*Parameter, len(a.Params))
	for i, p := range a.Params {
		cp.Params[i] = p.clone()
	}
	return cp
}

// Bind overwrites non-system parameter values from request input, matching
// by name. Absent names leave the declared default in place.
func (a *Action) Bind(input map[string]model.Value) {
	for _, p := range a.Params {
		if p.System {
			continue
		}
		if v, ok := input[p.Name]; ok {
			p.Value = v
		}
	}
}

// Run executes the action exactly once: parameter conditions, binding,
// statement execution, result capture, then action-level conditions.
// Failures are reported as *model.ErrorEnvelope for caller-facing errors;
// raw errors indicate infrastructure failure and map to INTERNAL_ERROR
// upstream. Prior results are cleared, so an action may be re-run within
// one request.
func (a *Action) Run(ctx context.Context, db *sql.DB) error {
	a.Results = nil
	a.CustomError = ""

	args := make([]any, 0, len(a.Params))
	for _, p := range a.Params {
		if !p.evaluate() {
			return model.NewValidationError(p.fieldError())
		}
		args = append(args, p.Value.Arg())
	}

	if isRowQuery(a.SQL) {
		rows, err := db.QueryContext(ctx, a.SQL, args...)
		if err != nil {
			return fmt.Errorf("action %s: query: %w", a.ID, err)
		}
		defer rows.Close()

		res, err := scanResults(rows)
		if err != nil {
			return fmt.Errorf("action %s: scan: %w", a.ID, err)
		}
		a.Results = res
	} else {
		res, err := db.ExecContext(ctx, a.SQL, args...)
		if err != nil {
			return fmt.Errorf("action %s: exec: %w", a.ID, err)
		}
		affected, _ := res.RowsAffected()
		lastID, _ := res.LastInsertId()
		a.Results = &Results{RowsAffected: affected, LastInsertID: lastID}
	}

	for _, c := range a.conditions {
		if !c.Check(a) {
			if a.CustomError == "" {
				a.CustomError = "condition " + c.ID + " failed"
			}
			return model.NewIntegrityError(a.CustomError)
		}
	}
	return nil
}

// isRowQuery reports whether the statement produces a row set.
func isRowQuery(sqlText string) bool {
	head := strings.ToUpper(strings.TrimSpace(sqlText))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH") ||
		strings.HasPrefix(head, "PRAGMA")
}
