package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pitabwire/formbase/model"
)

// Column is one form column's metadata row joined with its type name.
type Column struct {
	ID         int64
	FormID     int64
	Identifier string
	Name       string
	Type       string
	Length     int64
	Required   bool
	Default    string
	LinkTo     int64
}

// Physical returns the backing column name.
func (c Column) Physical() string { return ColumnName(c.ID) }

// IsLink reports whether the column references another form.
func (c Column) IsLink() bool { return c.Type == "link" }

// DefaultValue returns the declared default as a typed value, Empty when
// none is declared.
func (c Column) DefaultValue() model.Value {
	if c.Default == "" {
		return model.Empty()
	}
	return model.String(c.Default)
}

// FormRef is a fully resolved form: its metadata row plus all column rows
// in declaration order. The first column is always the synthetic primary
// key created alongside the form.
type FormRef struct {
	ID          int64
	Identifier  string
	Name        string
	State       string
	Privacy     string
	Description string
	SpaceID     string
	Columns     []Column
}

// Table returns the form's physical table name.
func (f *FormRef) Table() string { return TableName(f.ID) }

// PK returns the synthetic primary key column.
func (f *FormRef) PK() Column { return f.Columns[0] }

// DataColumns returns every column after the synthetic primary key.
func (f *FormRef) DataColumns() []Column {
	return f.Columns[1:]
}

// Column looks a data column up by identifier, or nil.
func (f *FormRef) Column(identifier string) *Column {
	for i := range f.Columns {
		if f.Columns[i].Identifier == identifier {
			return &f.Columns[i]
		}
	}
	return nil
}

// Resolver loads form and column metadata and turns it into projections.
// All lookups are space-filtered; a form in another space is indistinguishable
// from a form that does not exist.
type Resolver struct {
	db *sql.DB
}

// NewResolver returns a resolver over the metadata store.
func NewResolver(db *sql.DB) *Resolver {
	return &Resolver{db: db}
}

const formQuery = `SELECT id, identifier, name, state, privacy, description, id_space
FROM forms WHERE id_space = ? AND identifier = ?`

const formByIDQuery = `SELECT id, identifier, name, state, privacy, description, id_space
FROM forms WHERE id_space = ? AND id = ?`

const columnsQuery = `SELECT c.id, c.id_form, c.identifier, c.name, t.identifier,
c.length, c.required, COALESCE(c.default_value, ''), COALESCE(c.link_to, 0)
FROM forms_columns c
JOIN forms_columns_types t ON t.id = c.id_column_type
WHERE c.id_form = ? ORDER BY c.id`

// Form resolves a form by identifier within a space, columns included.
func (r *Resolver) Form(ctx context.Context, spaceID, identifier string) (*FormRef, error) {
	return r.load(ctx, formQuery, spaceID, identifier)
}

// FormByID resolves a form by numeric id within a space, columns included.
func (r *Resolver) FormByID(ctx context.Context, spaceID string, id int64) (*FormRef, error) {
	return r.load(ctx, formByIDQuery, spaceID, id)
}

func (r *Resolver) load(ctx context.Context, q string, spaceID string, key any) (*FormRef, error) {
	f := &FormRef{}
	row := r.db.QueryRowContext(ctx, q, spaceID, key)
	err := row.Scan(&f.ID, &f.Identifier, &f.Name, &f.State, &f.Privacy,
		&f.Description, &f.SpaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("form not found")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve form: %w", err)
	}

	f.Columns, err = r.columns(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	if len(f.Columns) == 0 {
		return nil, model.NewConfigurationError(
			fmt.Sprintf("form %s has no primary key column", f.Identifier))
	}
	return f, nil
}

func (r *Resolver) columns(ctx context.Context, formID int64) ([]Column, error) {
	rows, err := r.db.QueryContext(ctx, columnsQuery, formID)
	if err != nil {
		return nil, fmt.Errorf("resolve columns: %w", err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.ID, &c.FormID, &c.Identifier, &c.Name, &c.Type,
			&c.Length, &c.Required, &c.Default, &c.LinkTo); err != nil {
			return nil, fmt.Errorf("resolve columns: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// TypeID maps a column type identifier to its metadata row id.
func (r *Resolver) TypeID(ctx context.Context, identifier string) (int64, error) {
	var id int64
	row := r.db.QueryRowContext(ctx,
		"SELECT id FROM forms_columns_types WHERE identifier = ?", identifier)
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.NewValidationError(model.FieldError{
			Field:   "column_type",
			Code:    model.FieldInvalid,
			Message: fmt.Sprintf("unknown column type %q", identifier),
		})
	}
	if err != nil {
		return 0, fmt.Errorf("resolve column type: %w", err)
	}
	return id, nil
}

// Projection is the read shape of a form: one select expression per column
// with link columns joined against their target form's display column.
type Projection struct {
	Form   *FormRef
	fields []string
	joins  []string
}

// Projection builds the read projection for a resolved form. Link columns
// LEFT JOIN the target form and surface its display column (the first data
// column) alongside the stored id; a target form without a display column
// is a configuration error, as is a dangling link.
func (r *Resolver) Projection(ctx context.Context, form *FormRef) (*Projection, error) {
	p := &Projection{Form: form}

	pk := form.PK()
	p.fields = append(p.fields,
		fmt.Sprintf("t.%s AS %s", pk.Physical(), pk.Identifier),
		"t.created_at AS created_at")

	for _, c := range form.DataColumns() {
		p.fields = append(p.fields,
			fmt.Sprintf("t.%s AS %s", c.Physical(), c.Identifier))
		if !c.IsLink() {
			continue
		}

		target, err := r.FormByID(ctx, form.SpaceID, c.LinkTo)
		if err != nil {
			var env *model.ErrorEnvelope
			if errors.As(err, &env) && env.Code == model.ErrNotFound {
				return nil, model.NewConfigurationError(fmt.Sprintf(
					"column %s links to a form that does not exist", c.Identifier))
			}
			return nil, err
		}
		if len(target.Columns) < 2 {
			return nil, model.NewConfigurationError(fmt.Sprintf(
				"form %s has no display column for links", target.Identifier))
		}

		alias := JoinAlias(c.ID)
		display := target.Columns[1]
		p.fields = append(p.fields, fmt.Sprintf("%s.%s AS %s_display",
			alias, display.Physical(), c.Identifier))
		p.joins = append(p.joins, fmt.Sprintf("LEFT JOIN %s %s ON %s.%s = t.%s",
			target.Table(), alias, alias, target.PK().Physical(), c.Physical()))
	}
	return p, nil
}

// Select returns the projection's SELECT statement. With byID the statement
// takes one bound parameter, the record's primary key.
func (p *Projection) Select(byID bool) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(p.fields, ", "))
	b.WriteString(" FROM ")
	b.WriteString(p.Form.Table())
	b.WriteString(" t")
	for _, j := range p.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if byID {
		fmt.Fprintf(&b, " WHERE t.%s = ?", p.Form.PK().Physical())
	}
	fmt.Fprintf(&b, " ORDER BY t.%s", p.Form.PK().Physical())
	return b.String()
}
