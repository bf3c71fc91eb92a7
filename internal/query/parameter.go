// Package query implements the parameterized SQL action engine: typed
// parameters, their validation conditions, actions, and typed result sets.
package query

import (
	"github.com/pitabwire/formbase/model"
)

// Condition is a named validator attached to a Parameter. Check runs
// immediately before the owning action binds its statement; it may rewrite
// the parameter value (defaults) or reject it by calling Fail and returning
// false. Conditions evaluate in declaration order and the first failure
// short-circuits the rest of the list.
type Condition struct {
	ID    string
	Check func(p *Parameter) bool
}

// Parameter is a named, typed input to a SQL action. The declared instance
// is an immutable template; requests bind values only on clones.
type Parameter struct {
	Name     string
	Value    model.Value
	Required bool

	// System parameters carry server state (the space id) and are never
	// overwritten by request input.
	System bool

	// Error and ErrorCode are set by a failing condition.
	Error     string
	ErrorCode string

	conditions []Condition
}

// Condition appends a named condition and returns the parameter for
// chaining during declaration.
func (p *Parameter) Condition(id string, check func(*Parameter) bool) *Parameter {
	p.conditions = append(p.conditions, Condition{ID: id, Check: check})
	return p
}

// Fail records a validation failure on the parameter. A condition that
// returns false must have called Fail first. Returns false so conditions
// can end with "return p.Fail(...)".
func (p *Parameter) Fail(code, msg string) bool {
	p.ErrorCode = code
	p.Error = msg
	return false
}

// evaluate runs the condition list in order. Returns false on the first
// failing condition, leaving Error/ErrorCode set.
func (p *Parameter) evaluate() bool {
	for _, c := range p.conditions {
		if !c.Check(p) {
			if p.Error == "" {
				// Contract: a failing condition sets its message first.
				p.Fail(model.FieldInvalid, "parameter "+p.Name+" is invalid")
			}
			return false
		}
	}
	if p.Required && p.Value.IsEmpty() {
		return p.Fail(model.FieldRequired, "parameter "+p.Name+" is required")
	}
	return true
}

// clone returns a request-scoped copy sharing the condition list (conditions
// are immutable after declaration) but nothing mutable.
func (p *Parameter) clone() *Parameter {
	cp := *p
	cp.Error = ""
	cp.ErrorCode = ""
	return &cp
}

// fieldError converts the recorded failure into a FieldError.
func (p *Parameter) fieldError() model.FieldError {
	code := p.ErrorCode
	if code == "" {
		code = model.FieldInvalid
	}
	return model.FieldError{Field: p.Name, Code: code, Message: p.Error}
}
