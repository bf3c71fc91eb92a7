// Package forms declares the HTTP endpoints of the dynamic forms engine:
// form and column metadata CRUD and the record operations that run against
// the dynamically created tables.
package forms

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/formbase/internal/files"
	"github.com/pitabwire/formbase/internal/function"
	"github.com/pitabwire/formbase/internal/observability"
	"github.com/pitabwire/formbase/internal/query"
	"github.com/pitabwire/formbase/internal/schema"
	"github.com/pitabwire/formbase/model"
)

// Service declares every forms endpoint and carries their shared
// dependencies.
type Service struct {
	db       *sql.DB
	resolver *schema.Resolver
	files    *files.Manager
	log      *zap.Logger
	metrics  *observability.Metrics
}

// NewService wires the forms service. metrics may be nil when metrics are
// disabled.
func NewService(db *sql.DB, resolver *schema.Resolver, fm *files.Manager,
	log *zap.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		db:       db,
		resolver: resolver,
		files:    fm,
		log:      log,
		metrics:  metrics,
	}
}

// Register declares every endpoint on the registry.
func (s *Service) Register(reg *function.Registry) {
	// Forms metadata.
	reg.Register(s.formsRead())
	reg.Register(s.formsReadByID())
	reg.Register(s.formsAdd())
	reg.Register(s.formsModify())
	reg.Register(s.formsDelete())

	// Columns metadata.
	reg.Register(s.columnsRead())
	reg.Register(s.columnsAdd())
	reg.Register(s.columnsModify())
	reg.Register(s.columnsDelete())

	// Records.
	reg.Register(s.recordsRead())
	reg.Register(s.recordsReadByID())
	reg.Register(s.recordsAdd())
	reg.Register(s.recordsModify())
	reg.Register(s.recordsDelete())
	reg.Register(s.recordsFileRead())
}

// run executes one action with a span and action metrics around it.
func (s *Service) run(ctx context.Context, a *query.Action) error {
	ctx, span := observability.StartSpan(ctx, "action "+a.ID,
		observability.AttrActionID.String(a.ID))
	start := time.Now()

	err := a.Run(ctx, s.db)

	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
			var env *model.ErrorEnvelope
			if errors.As(err, &env) && env.Code == model.ErrValidation {
				s.metrics.RecordActionValidationFailure(a.ID)
			}
		}
		s.metrics.RecordActionRun(a.ID, status, time.Since(start))
		if err == nil && a.Results != nil {
			s.metrics.RecordActionRows(a.ID, a.Results.Len())
		}
	}
	observability.EndSpanWithError(span, err)
	return err
}

// partialState marks a multi-step operation that failed after an earlier
// step was committed. The metadata and the physical schema may now
// disagree; operators find these through the log marker and the counter.
func (s *Service) partialState(ctx context.Context, operation string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("operation", operation), zap.Error(err))
	observability.RequestLogger(ctx, s.log).Warn("partial state", fields...)
	if s.metrics != nil {
		s.metrics.RecordPartialState(operation)
	}
}

func (s *Service) recordFileOp(operation string, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordFileOperation(operation, status)
}

// ok wraps a payload in the standard response envelope.
func ok(data any) map[string]any {
	return map[string]any{"status": "OK", "message": "", "data": data}
}

// resolveForm resolves the form named by the "form" input key.
func (s *Service) resolveForm(ctx context.Context, inv *function.Invocation) (*schema.FormRef, error) {
	identifier := inv.Input["form"].String()
	if identifier == "" {
		return nil, model.NewValidationError(model.FieldError{
			Field: "form", Code: model.FieldRequired, Message: "form identifier is required",
		})
	}
	return s.resolver.Form(ctx, inv.Request.SpaceID, identifier)
}

// inputID reads a required positive integer id from the request input.
func inputID(inv *function.Invocation, key string) (int64, error) {
	v := inv.Input[key]
	if id, ok := v.AsInt(); ok && id > 0 {
		return id, nil
	}
	if s, ok := v.AsString(); ok {
		if id, err := strconv.ParseInt(s, 10, 64); err == nil && id > 0 {
			return id, nil
		}
	}
	return 0, model.NewValidationError(model.FieldError{
		Field: key, Code: model.FieldInvalid, Message: key + " must be a positive integer",
	})
}
