package sqlite

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/models"
)

type auditLogsRepo struct{ c conn }

func (r *auditLogsRepo) Create(ctx context.Context, l models.AuditLog) error {
	details, err := json.Marshal(l.Details)
	if err != nil {
		return errors.Annotate(err, "encoding audit details")
	}
	var entityID any
	if l.EntityID != nil {
		entityID = *l.EntityID
	}
	_, err = r.c.q.ExecContext(ctx,
		`INSERT INTO audit_logs(id, entity_type, entity_id, action, details, created_at) VALUES(?,?,?,?,?,?)`,
		uuid.NewString(), l.EntityType, entityID, l.Action, string(details), now(),
	)
	return errors.Annotate(err, "inserting audit log")
}

