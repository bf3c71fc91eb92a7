package forms

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pitabwire/formbase/internal/files"
	"github.com/pitabwire/formbase/internal/function"
	"github.com/pitabwire/formbase/internal/observability"
	"github.com/pitabwire/formbase/internal/query"
	"github.com/pitabwire/formbase/internal/schema"
	"github.com/pitabwire/formbase/model"
)

// recordsRead lists a form's records through its projection: every data
// column plus the display value of each link column.
func (s *Service) recordsRead() *function.Definition {
	return function.NewDefinition(http.MethodGet, "/api/forms/data/read").Handle(
		func(ctx context.Context, inv *function.Invocation) (*function.Response, error) {
			return s.readRecords(ctx, inv, false)
		})
}

// recordsReadByID returns one record by primary key.
func (s *Service) recordsReadByID() *function.Definition {
	return function.NewDefinition(http.MethodGet, "/api/forms/data/read/id").Handle(
		func(ctx context.Context, inv *function.Invocation) (*function.Response, error) {
			return s.readRecords(ctx, inv, true)
		})
}

func (s *Service) readRecords(ctx context.Context, inv *function.Invocation, byID bool) (*function.Response, error) {
	form, err := s.resolveForm(ctx, inv)
	if err != nil {
		return nil, err
	}
	projection, err := s.resolver.Projection(ctx, form)
	if err != nil {
		return nil, err
	}

	sel := query.NewAction("records_read", projection.Select(byID))
	if byID {
		id, err := inputID(inv, "id")
		if err != nil {
			return nil, err
		}
		sel.SystemParam("id", model.Int(id))
	}
	inv.Append(sel)
	if err := s.run(ctx, sel); err != nil {
		return nil, err
	}
	// An id that matches no row yields an empty result set, not an error.
	return function.JSON(map[string]any{
		"status":       "OK",
		"message":      "",
		"data":         sel.Results.Records(),
		"columns_meta": columnsMeta(form.DataColumns()),
	}), nil
}

// recordsAdd inserts a record. Scalar columns run through the per-column
// validators; file columns are correlated with the request's uploads and
// store the generated file name. Files already saved are removed again when
// a later step fails.
func (s *Service) recordsAdd() *function.Definition {
	return function.NewDefinition(http.MethodPost, "/api/forms/data/add").Handle(
		func(ctx context.Context, inv *function.Invocation) (*function.Response, error) {
			form, err := s.resolveForm(ctx, inv)
			if err != nil {
				return nil, err
			}

			var saved []string
			cleanup := func() {
				for _, name := range saved {
					if err := s.files.Delete(inv.Request.SpaceID, form.ID, name); err != nil &&
						!errors.Is(err, files.ErrNotFound) {
						s.log.Warn("orphaned upload after failed insert",
							zap.String("file", name), zap.Error(err))
					}
				}
			}

			var columnIDs []int64
			type binding struct {
				col   schema.Column
				value model.Value
				file  bool
			}
			var bindings []binding

			for _, col := range form.DataColumns() {
				if isFileColumn(col) {
					upload := inv.Upload(col.Identifier)
					if upload == nil {
						if col.Required {
							cleanup()
							return nil, model.NewValidationError(model.FieldError{
								Field: col.Identifier, Code: model.FieldRequired,
								Message: "field " + col.Identifier + " requires a file",
							})
						}
						continue
					}
					name, size, err := s.files.Save(inv.Request.SpaceID, form.ID,
						upload.Filename, upload.Content)
					s.recordFileOp("save", err)
					if err != nil {
						cleanup()
						return nil, err
					}
					if s.metrics != nil {
						s.metrics.RecordFileSize(size)
					}
					saved = append(saved, name)
					columnIDs = append(columnIDs, col.ID)
					bindings = append(bindings, binding{col: col, value: model.String(name), file: true})
					continue
				}
				columnIDs = append(columnIDs, col.ID)
				bindings = append(bindings, binding{col: col, value: inv.Input[col.Identifier]})
			}

			sqlText, err := schema.BuildInsert(form.ID, columnIDs)
			if err != nil {
				cleanup()
				return nil, model.NewConfigurationError(
					"form " + form.Identifier + " has no storable columns")
			}

			insert := query.NewAction("records_add_insert", sqlText)
			for _, b := range bindings {
				if b.file {
					insert.SystemParam(b.col.Identifier, b.value)
					continue
				}
				insert.Param(b.col.Identifier, b.value, false).
					Condition("field-"+b.col.Identifier, query.VerifyField(b.col.Identifier, fieldSpec(b.col)))
			}
			inv.Append(insert)
			if err := s.run(ctx, insert); err != nil {
				cleanup()
				return nil, err
			}

			return function.JSON(ok(map[string]any{
				"id": insert.Results.LastInsertID,
			})), nil
		})
}

// recordsModify updates a record. Every scalar column is rewritten; file
// columns change only when the request carries a replacement upload, and
// the old file is deleted before the new one is stored.
func (s *Service) recordsModify() *function.Definition {
	return function.NewDefinition(http.MethodPut, "/api/forms/data/modify").Handle(
		func(ctx context.Context, inv *function.Invocation) (*function.Response, error) {
			form, err := s.resolveForm(ctx, inv)
			if err != nil {
				return nil, err
			}
			id, err := inputID(inv, "id")
			if err != nil {
				return nil, err
			}

			current, err := s.fetchFileValues(ctx, inv, form, id)
			if err != nil {
				return nil, err
			}
			if current == nil {
				return nil, model.NewNotFoundError("record not found")
			}

			var columnIDs []int64
			update := query.NewAction("records_modify_update", "")
			var saved []string
			cleanup := func() {
				for _, name := range saved {
					if err := s.files.Delete(inv.Request.SpaceID, form.ID, name); err != nil &&
						!errors.Is(err, files.ErrNotFound) {
						s.log.Warn("orphaned upload after failed update",
							zap.String("file", name), zap.Error(err))
					}
				}
			}

			for _, col := range form.DataColumns() {
				if isFileColumn(col) {
					upload := inv.Upload(col.Identifier)
					if upload == nil {
						// Untouched file columns keep their stored value.
						continue
					}
					if old := current[col.Identifier]; old != "" {
						err := s.files.Delete(inv.Request.SpaceID, form.ID, old)
						s.recordFileOp("delete", err)
						if err != nil && !errors.Is(err, files.ErrNotFound) {
							cleanup()
							return nil, err
						}
					}
					name, size, err := s.files.Save(inv.Request.SpaceID, form.ID,
						upload.Filename, upload.Content)
					s.recordFileOp("save", err)
					if err != nil {
						cleanup()
						return nil, err
					}
					if s.metrics != nil {
						s.metrics.RecordFileSize(size)
					}
					saved = append(saved, name)
					columnIDs = append(columnIDs, col.ID)
					update.SystemParam(col.Identifier, model.String(name))
					continue
				}
				columnIDs = append(columnIDs, col.ID)
				update.Param(col.Identifier, inv.Input[col.Identifier], false).
					Condition("field-"+col.Identifier, query.VerifyField(col.Identifier, fieldSpec(col)))
			}

			sqlText, err := schema.BuildUpdate(form.ID, form.PK().ID, columnIDs)
			if err != nil {
				cleanup()
				return nil, model.NewConfigurationError(
					"form " + form.Identifier + " has no storable columns")
			}
			update.SQL = sqlText
			update.SystemParam("id", model.Int(id))
			inv.Append(update)
			if err := s.run(ctx, update); err != nil {
				cleanup()
				return nil, err
			}

			return function.JSON(ok(map[string]any{
				"rows_affected": update.Results.RowsAffected,
			})), nil
		})
}

// recordsDelete removes a record. Stored files are deleted first and the
// cascade is fail-closed: an I/O failure aborts before the row disappears,
// so no file is ever orphaned by a half-done delete.
func (s *Service) recordsDelete() *function.Definition {
	return function.NewDefinition(http.MethodDelete, "/api/forms/data/delete").Handle(
		func(ctx context.Context, inv *function.Invocation) (*function.Response, error) {
			form, err := s.resolveForm(ctx, inv)
			if err != nil {
				return nil, err
			}
			id, err := inputID(inv, "id")
			if err != nil {
				return nil, err
			}

			current, err := s.fetchFileValues(ctx, inv, form, id)
			if err != nil {
				return nil, err
			}
			if current == nil {
				// Deleting an absent record is not an error.
				return function.JSON(ok(map[string]any{"rows_affected": int64(0)})), nil
			}

			for identifier, name := range current {
				if name == "" {
					continue
				}
				err := s.files.Delete(inv.Request.SpaceID, form.ID, name)
				s.recordFileOp("delete", err)
				if err != nil && !errors.Is(err, files.ErrNotFound) {
					observability.RequestLogger(ctx, s.log).Error("file delete failed, record kept",
						zap.String("column", identifier), zap.String("file", name), zap.Error(err))
					return nil, err
				}
			}

			del := query.NewAction("records_delete_row",
				schema.BuildDeleteRecord(form.ID, form.PK().ID))
			del.SystemParam("id", model.Int(id))
			inv.Append(del)
			if err := s.run(ctx, del); err != nil {
				return nil, err
			}

			return function.JSON(ok(map[string]any{
				"rows_affected": del.Results.RowsAffected,
			})), nil
		})
}

// recordsFileRead streams a stored file. The name is the stored column
// value; resolution never leaves the form's upload directory.
func (s *Service) recordsFileRead() *function.Definition {
	return function.NewDefinition(http.MethodGet, "/api/forms/data/file/read").Handle(
		func(ctx context.Context, inv *function.Invocation) (*function.Response, error) {
			form, err := s.resolveForm(ctx, inv)
			if err != nil {
				return nil, err
			}
			name := inv.Input["file"].String()
			if name == "" {
				return nil, model.NewValidationError(model.FieldError{
					Field: "file", Code: model.FieldRequired, Message: "file name is required",
				})
			}

			f, err := s.files.Open(inv.Request.SpaceID, form.ID, name)
			s.recordFileOp("read", err)
			if errors.Is(err, files.ErrNotFound) {
				return nil, model.NewNotFoundError("file not found")
			}
			if err != nil {
				return nil, err
			}

			contentType := mime.TypeByExtension(filepath.Ext(name))
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			return function.File(name, contentType, f), nil
		})
}

// fetchFileValues returns the stored file names of a record's file columns,
// keyed by column identifier. A nil map means the record does not exist; an
// empty map means the form has no file columns but the record is present.
func (s *Service) fetchFileValues(ctx context.Context, inv *function.Invocation,
	form *schema.FormRef, id int64) (map[string]string, error) {

	var fileCols []schema.Column
	for _, col := range form.DataColumns() {
		if isFileColumn(col) {
			fileCols = append(fileCols, col)
		}
	}

	// Without file columns, existence is checked on the primary key alone.
	columnIDs := []int64{form.PK().ID}
	for _, col := range fileCols {
		columnIDs = append(columnIDs, col.ID)
	}

	sqlText, err := schema.BuildSelectValues(form.ID, form.PK().ID, columnIDs)
	if err != nil {
		return nil, model.NewConfigurationError(err.Error())
	}
	sel := query.NewAction("records_file_values", sqlText)
	sel.SystemParam("id", model.Int(id))
	inv.Append(sel)
	if err := s.run(ctx, sel); err != nil {
		return nil, err
	}
	if sel.Results.Len() == 0 {
		return nil, nil
	}

	out := make(map[string]string, len(fileCols))
	for i, col := range fileCols {
		out[col.Identifier] = sel.Results.Field(0, i+1).String()
	}
	return out, nil
}

func isFileColumn(col schema.Column) bool {
	return col.Type == "file" || col.Type == "image"
}

func fieldSpec(col schema.Column) query.FieldSpec {
	return query.FieldSpec{
		Type:     col.Type,
		Required: col.Required,
		Default:  col.DefaultValue(),
		Length:   col.Length,
	}
}
