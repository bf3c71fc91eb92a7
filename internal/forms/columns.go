package forms

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pitabwire/formbase/internal/function"
	"github.com/pitabwire/formbase/internal/query"
	"github.com/pitabwire/formbase/internal/schema"
	"github.com/pitabwire/formbase/model"
)

// columnsRead lists a form's data columns. The synthetic primary key is
// metadata-managed and stays hidden.
func (s *Service) columnsRead() *function.Definition {
	return function.NewDefinition(http.MethodGet, "/api/forms/columns/read").Handle(
		func(ctx context.Context, inv *function.Invocation) (*function.Response, error) {
			form, err := s.resolveForm(ctx, inv)
			if err != nil {
				return nil, err
			}
			return function.JSON(ok(columnsMeta(form.DataColumns()))), nil
		})
}

// columnsAdd creates a column: metadata row plus ALTER TABLE. A failing
// ALTER after the committed insert is partial state.
func (s *Service) columnsAdd() *function.Definition {
	return function.NewDefinition(http.MethodPost, "/api/forms/columns/add").Handle(
		func(ctx context.Context, inv *function.Invocation) (*function.Response, error) {
			form, err := s.resolveForm(ctx, inv)
			if err != nil {
				return nil, err
			}

			identifier := inv.Input["identifier"].String()
			if !query.IdentifierValid(identifier) {
				return nil, model.NewValidationError(model.FieldError{
					Field: "identifier", Code: model.FieldInvalid,
					Message: "identifier must be 3-64 characters of a-z, A-Z, 0-9, \"-\" and \"_\"",
				})
			}
			if form.Column(identifier) != nil {
				return nil, model.NewIntegrityError(
					"a column with this identifier already exists")
			}

			columnType := inv.Input["column_type"].String()
			typeID, err := s.resolver.TypeID(ctx, columnType)
			if err != nil {
				return nil, err
			}

			var linkTo model.Value
			if columnType == "link" {
				targetID, err := inputID(inv, "link_to")
				if err != nil {
					return nil, err
				}
				target, err := s.resolver.FormByID(ctx, inv.Request.SpaceID, targetID)
				if err != nil {
					return nil, err
				}
				if len(target.Columns) < 2 {
					return nil, model.NewConfigurationError(fmt.Sprintf(
						"form %s has no display column for links", target.Identifier))
				}
				linkTo = model.Int(target.ID)
			}

			name := inv.Input["name"]
			if name.IsEmpty() {
				name = model.String(identifier)
			}

			insert := query.NewAction("columns_add_insert",
				`INSERT INTO forms_columns
				 (id_form, identifier, name, id_column_type, length, required, default_value, link_to)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
			insert.SystemParam("id_form", model.Int(form.ID))
			insert.SystemParam("identifier", model.String(identifier))
			insert.SystemParam("name", name)
			insert.SystemParam("id_column_type", model.Int(typeID))
			insert.Param("length", model.Int(0), false)
			insert.Param("required", model.Bool(false), false)
			insert.Param("default_value", model.String(""), false)
			insert.SystemParam("link_to", linkTo)
			inv.Append(insert)
			insert.Bind(inv.Input)
			if err := s.run(ctx, insert); err != nil {
				return nil, err
			}
			columnID := insert.Results.LastInsertID

			alter := query.NewAction("columns_add_alter",
				schema.BuildAddColumn(form.ID, columnID, columnType))
			inv.Append(alter)
			if err := s.run(ctx, alter); err != nil {
				s.partialState(ctx, "columns_add", err,
					zap.Int64("form_id", form.ID), zap.Int64("column_id", columnID))
				return nil, err
			}

			if s.metrics != nil {
				s.metrics.RecordColumnCreated(columnType)
			}
			return function.JSON(ok(map[string]any{"id": columnID})), nil
		})
}

// columnsModify updates a column's metadata. The stored type and the
// physical column never change; length, required, default, name, and
// identifier do.
func (s *Service) columnsModify() *function.Definition {
	return function.NewDefinition(http.MethodPut, "/api/forms/columns/modify").Handle(
		func(ctx context.Context, inv *function.Invocation) (*function.Response, error) {
			form, err := s.resolveForm(ctx, inv)
			if err != nil {
				return nil, err
			}
			columnID, err := inputID(inv, "id")
			if err != nil {
				return nil, err
			}
			current := columnByID(form, columnID)
			if current == nil {
				return nil, model.NewNotFoundError("column not found")
			}
			if current.ID == form.PK().ID {
				return nil, model.NewBadRequestError(
					"the primary key column cannot be modified")
			}

			identifier := inv.Input["identifier"].String()
			if identifier == "" {
				identifier = current.Identifier
			}
			if !query.IdentifierValid(identifier) {
				return nil, model.NewValidationError(model.FieldError{
					Field: "identifier", Code: model.FieldInvalid,
					Message: "identifier must be 3-64 characters of a-z, A-Z, 0-9, \"-\" and \"_\"",
				})
			}
			if other := form.Column(identifier); other != nil && other.ID != current.ID {
				return nil, model.NewIntegrityError(
					"a column with this identifier already exists")
			}

			name := inv.Input["name"]
			if name.IsEmpty() {
				name = model.String(current.Name)
			}

			update := query.NewAction("columns_modify_update",
				`UPDATE forms_columns SET identifier = ?, name = ?, length = ?, required = ?, default_value = ?
				 WHERE id = ? AND id_form = ?`)
			update.SystemParam("identifier", model.String(identifier))
			update.SystemParam("name", name)
			update.Param("length", model.Int(current.Length), false)
			update.Param("required", model.Bool(current.Required), false)
			update.Param("default_value", model.String(current.Default), false)
			update.SystemParam("id", model.Int(current.ID))
			update.SystemParam("id_form", model.Int(form.ID))
			inv.Append(update)
			update.Bind(inv.Input)
			if err := s.run(ctx, update); err != nil {
				return nil, err
			}
			return function.JSON(ok(map[string]any{
				"rows_affected": update.Results.RowsAffected,
			})), nil
		})
}

// columnsDelete removes a column's metadata and its physical column. Files
// referenced by a deleted file column stay on disk; they are cleaned up
// with the form.
func (s *Service) columnsDelete() *function.Definition {
	return function.NewDefinition(http.MethodDelete, "/api/forms/columns/delete").Handle(
		func(ctx context.Context, inv *function.Invocation) (*function.Response, error) {
			form, err := s.resolveForm(ctx, inv)
			if err != nil {
				return nil, err
			}
			columnID, err := inputID(inv, "id")
			if err != nil {
				return nil, err
			}
			current := columnByID(form, columnID)
			if current == nil {
				return nil, model.NewNotFoundError("column not found")
			}
			if current.ID == form.PK().ID {
				return nil, model.NewBadRequestError(
					"the primary key column cannot be deleted")
			}

			del := query.NewAction("columns_delete_row",
				"DELETE FROM forms_columns WHERE id = ? AND id_form = ?")
			del.SystemParam("id", model.Int(current.ID))
			del.SystemParam("id_form", model.Int(form.ID))
			inv.Append(del)
			if err := s.run(ctx, del); err != nil {
				return nil, err
			}

			alter := query.NewAction("columns_delete_alter",
				schema.BuildDropColumn(form.ID, current.ID))
			inv.Append(alter)
			if err := s.run(ctx, alter); err != nil {
				s.partialState(ctx, "columns_delete", err,
					zap.Int64("form_id", form.ID), zap.Int64("column_id", current.ID))
				return nil, err
			}
			return function.JSON(ok(map[string]any{"id": current.ID})), nil
		})
}

func columnByID(form *schema.FormRef, id int64) *schema.Column {
	for i := range form.Columns {
		if form.Columns[i].ID == id {
			return &form.Columns[i]
		}
	}
	return nil
}
