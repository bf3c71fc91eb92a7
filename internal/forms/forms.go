package forms

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/pitabwire/formbase/internal/function"
	"github.com/pitabwire/formbase/internal/query"
	"github.com/pitabwire/formbase/internal/schema"
	"github.com/pitabwire/formbase/model"
)

// formsRead lists the forms of the caller's space. Pure declared pipeline.
func (s *Service) formsRead() *function.Definition {
	list := query.NewAction("forms_read",
		`SELECT id, identifier, name, state, privacy, description, created_at
		 FROM forms WHERE id_space = ? ORDER BY id`)
	list.SystemParam(function.SpaceParam, model.Empty())

	return function.NewDefinition(http.MethodGet, "/api/forms/read").Action(list)
}

// formsReadByID returns one form with its column metadata.
func (s *Service) formsReadByID() *function.Definition {
	return function.NewDefinition(http.MethodGet, "/api/forms/read/id").Handle(
		func(ctx context.Context, inv *function.Invocation) (*function.Response, error) {
			id, err := inputID(inv, "id")
			if err != nil {
				return nil, err
			}
			form, err := s.resolver.FormByID(ctx, inv.Request.SpaceID, id)
			if err != nil {
				return nil, err
			}
			return function.JSON(ok(map[string]any{
				"id":          form.ID,
				"identifier":  form.Identifier,
				"name":        form.Name,
				"state":       form.State,
				"privacy":     form.Privacy,
				"description": form.Description,
				"columns":     columnsMeta(form.DataColumns()),
			})), nil
		})
}

// formsAdd creates a form: a uniqueness pre-check, the metadata row, the
// synthetic primary key column, and the physical table. The steps after the
// first insert are not transactional; a failure there leaves the metadata
// committed and is logged as partial state.
func (s *Service) formsAdd() *function.Definition {
	check := query.NewAction("forms_add_check",
		"SELECT id FROM forms WHERE id_space = ? AND identifier = ?").NonFinal()
	check.SystemParam(function.SpaceParam, model.Empty())
	check.Param("identifier", model.Empty(), true).
		Condition("identifier-format", query.Identifier("identifier"))
	check.Condition("identifier-unique", func(a *query.Action) bool {
		if a.Results.Len() > 0 {
			a.CustomError = "a form with this identifier already exists"
			return false
		}
		return true
	})

	insert := query.NewAction("forms_add_insert",
		`INSERT INTO forms (identifier, name, state, privacy, description, id_space)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	insert.Param("identifier", model.Empty(), true)
	insert.Param("name", model.Empty(), true).
		Condition("name-not-empty", query.NotEmpty("name"))
	insert.Param("state", model.String("active"), false).
		Condition("state-default", defaultTo("active"))
	insert.Param("privacy", model.String("private"), false).
		Condition("privacy-default", defaultTo("private"))
	insert.Param("description", model.Empty(), false)
	insert.SystemParam(function.SpaceParam, model.Empty())

	return function.NewDefinition(http.MethodPost, "/api/forms/add").
		Action(check).Action(insert).Handle(
		func(ctx context.Context, inv *function.Invocation) (*function.Response, error) {
			inv.BindAll()

			if err := s.run(ctx, inv.Action("forms_add_check")); err != nil {
				return nil, err
			}

			insert := inv.Action("forms_add_insert")
			if err := s.run(ctx, insert); err != nil {
				return nil, err
			}
			formID := insert.Results.LastInsertID

			// The metadata row is committed from here on.
			typeID, err := s.resolver.TypeID(ctx, "integer")
			if err != nil {
				s.partialState(ctx, "forms_add", err, zap.Int64("form_id", formID))
				return nil, err
			}

			pk := query.NewAction("forms_add_pk_column",
				`INSERT INTO forms_columns (id_form, identifier, name, id_column_type, required)
				 VALUES (?, 'id', 'ID', ?, 1)`)
			pk.SystemParam("id_form", model.Int(formID))
			pk.SystemParam("id_column_type", model.Int(typeID))
			inv.Append(pk)
			if err := s.run(ctx, pk); err != nil {
				s.partialState(ctx, "forms_add", err, zap.Int64("form_id", formID))
				return nil, err
			}
			pkColumnID := pk.Results.LastInsertID

			create := query.NewAction("forms_add_create_table",
				schema.BuildCreateTable(formID, pkColumnID))
			inv.Append(create)
			if err := s.run(ctx, create); err != nil {
				s.partialState(ctx, "forms_add", err, zap.Int64("form_id", formID))
				return nil, err
			}

			if s.metrics != nil {
				s.metrics.RecordFormCreated()
			}
			return function.JSON(ok(map[string]any{"id": formID})), nil
		})
}

// formsModify updates a form's metadata. The uniqueness check excludes the
// form's own row so saving without renaming succeeds. Pure declared
// pipeline.
func (s *Service) formsModify() *function.Definition {
	check := query.NewAction("forms_modify_check",
		"SELECT id FROM forms WHERE id_space = ? AND identifier = ? AND id != ?").NonFinal()
	check.SystemParam(function.SpaceParam, model.Empty())
	check.Param("identifier", model.Empty(), true).
		Condition("identifier-format", query.Identifier("identifier"))
	check.Param("id", model.Empty(), true)
	check.Condition("identifier-unique", func(a *query.Action) bool {
		if a.Results.Len() > 0 {
			a.CustomError = "a form with this identifier already exists"
			return false
		}
		return true
	})

	update := query.NewAction("forms_modify_update",
		`UPDATE forms SET identifier = ?, name = ?, state = ?, privacy = ?, description = ?
		 WHERE id_space = ? AND id = ?`)
	update.Param("identifier", model.Empty(), true)
	update.Param("name", model.Empty(), true).
		Condition("name-not-empty", query.NotEmpty("name"))
	update.Param("state", model.String("active"), false).
		Condition("state-default", defaultTo("active"))
	update.Param("privacy", model.String("private"), false).
		Condition("privacy-default", defaultTo("private"))
	update.Param("description", model.Empty(), false)
	update.SystemParam(function.SpaceParam, model.Empty())
	update.Param("id", model.Empty(), true)

	return function.NewDefinition(http.MethodPut, "/api/forms/modify").
		Action(check).Action(update).Handle(
		func(ctx context.Context, inv *function.Invocation) (*function.Response, error) {
			inv.BindAll()

			if err := s.run(ctx, inv.Action("forms_modify_check")); err != nil {
				return nil, err
			}
			update := inv.Action("forms_modify_update")
			if err := s.run(ctx, update); err != nil {
				return nil, err
			}
			if update.Results.RowsAffected == 0 {
				return nil, model.NewNotFoundError("form not found")
			}
			return function.JSON(ok(map[string]any{
				"rows_affected": update.Results.RowsAffected,
			})), nil
		})
}

// formsDelete removes a form: column metadata, the form row, the physical
// table, and the upload directory. Later steps failing after the metadata
// delete leave partial state, logged as such.
func (s *Service) formsDelete() *function.Definition {
	return function.NewDefinition(http.MethodDelete, "/api/forms/delete").Handle(
		func(ctx context.Context, inv *function.Invocation) (*function.Response, error) {
			id, err := inputID(inv, "id")
			if err != nil {
				return nil, err
			}
			form, err := s.resolver.FormByID(ctx, inv.Request.SpaceID, id)
			if err != nil {
				return nil, err
			}

			columns := query.NewAction("forms_delete_columns",
				"DELETE FROM forms_columns WHERE id_form = ?")
			columns.SystemParam("id_form", model.Int(form.ID))
			inv.Append(columns)
			if err := s.run(ctx, columns); err != nil {
				return nil, err
			}

			row := query.NewAction("forms_delete_row",
				"DELETE FROM forms WHERE id_space = ? AND id = ?")
			row.SystemParam(function.SpaceParam, model.String(inv.Request.SpaceID))
			row.SystemParam("id", model.Int(form.ID))
			inv.Append(row)
			if err := s.run(ctx, row); err != nil {
				s.partialState(ctx, "forms_delete", err, zap.Int64("form_id", form.ID))
				return nil, err
			}

			drop := query.NewAction("forms_delete_drop_table",
				schema.BuildDropTable(form.ID))
			inv.Append(drop)
			if err := s.run(ctx, drop); err != nil {
				s.partialState(ctx, "forms_delete", err, zap.Int64("form_id", form.ID))
				return nil, err
			}

			if err := s.files.RemoveAll(inv.Request.SpaceID, form.ID); err != nil {
				s.recordFileOp("remove_all", err)
				s.partialState(ctx, "forms_delete", err, zap.Int64("form_id", form.ID))
				return nil, err
			}
			s.recordFileOp("remove_all", nil)

			if s.metrics != nil {
				s.metrics.RecordFormDeleted()
			}
			return function.JSON(ok(map[string]any{"id": form.ID})), nil
		})
}

// defaultTo rewrites an empty parameter value to a fixed default.
func defaultTo(value string) func(*query.Parameter) bool {
	return func(p *query.Parameter) bool {
		if p.Value.IsEmpty() {
			p.Value = model.String(value)
		}
		return true
	}
}

// columnsMeta renders column metadata for responses.
func columnsMeta(cols []schema.Column) []map[string]any {
	out := make([]map[string]any, 0, len(cols))
	for _, c := range cols {
		out = append(out, map[string]any{
			"id":            c.ID,
			"identifier":    c.Identifier,
			"name":          c.Name,
			"type":          c.Type,
			"length":        c.Length,
			"required":      c.Required,
			"default_value": c.Default,
			"link_to":       c.LinkTo,
		})
	}
	return out
}
