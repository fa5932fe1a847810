package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"salesauto.org/internal/audit"
)

// AuditStore implements audit.Store. Before/after snapshots are stored as
// jsonb columns.
type AuditStore struct {
	db *sql.DB
}

var _ audit.Store = (*AuditStore)(nil)

const auditColumns = `id, actor_id, action, resource_type, resource_id,
	description, ip, user_agent, old_values, new_values, created_at`

func (s *AuditStore) Append(ctx context.Context, e *audit.Event) error {
	oldVals, err := marshalValues(e.OldValues)
	if err != nil {
		return err
	}
	newVals, err := marshalValues(e.NewValues)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into audit_log(id, actor_id, action, resource_type, resource_id,
		   description, ip, user_agent, old_values, new_values, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, nullIfEmpty(e.ActorID), e.Action, e.ResourceType, nullIfEmpty(e.ResourceID),
		nullIfEmpty(e.Description), nullIfEmpty(e.IP), nullIfEmpty(e.UserAgent),
		oldVals, newVals, e.CreatedAt)
	return err
}

func (s *AuditStore) ListByResource(ctx context.Context, resourceType, resourceID string, page audit.Page) ([]audit.Event, error) {
	return s.list(ctx,
		`select `+auditColumns+` from audit_log
		 where resource_type=$1 and resource_id=$2
		 order by created_at desc, id desc offset $3 limit $4`,
		resourceType, resourceID, page.Offset, page.Limit)
}

func (s *AuditStore) ListByActor(ctx context.Context, actorID string, page audit.Page) ([]audit.Event, error) {
	return s.list(ctx,
		`select `+auditColumns+` from audit_log
		 where actor_id=$1
		 order by created_at desc, id desc offset $2 limit $3`,
		actorID, page.Offset, page.Limit)
}

func (s *AuditStore) ListByAction(ctx context.Context, action string, page audit.Page) ([]audit.Event, error) {
	return s.list(ctx,
		`select `+auditColumns+` from audit_log
		 where action=$1
		 order by created_at desc, id desc offset $2 limit $3`,
		action, page.Offset, page.Limit)
}

func (s *AuditStore) ListByTimeRange(ctx context.Context, from, to time.Time, page audit.Page) ([]audit.Event, error) {
	return s.list(ctx,
		`select `+auditColumns+` from audit_log
		 where created_at >= $1 and created_at < $2
		 order by created_at desc, id desc offset $3 limit $4`,
		from, to, page.Offset, page.Limit)
}

func (s *AuditStore) list(ctx context.Context, query string, args ...any) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []audit.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (*audit.Event, error) {
	var (
		e                audit.Event
		actorID          sql.NullString
		resourceID       sql.NullString
		description      sql.NullString
		ip               sql.NullString
		userAgent        sql.NullString
		oldVals, newVals []byte
	)
	if err := rows.Scan(&e.ID, &actorID, &e.Action, &e.ResourceType, &resourceID,
		&description, &ip, &userAgent, &oldVals, &newVals, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.ActorID = actorID.String
	e.ResourceID = resourceID.String
	e.Description = description.String
	e.IP = ip.String
	e.UserAgent = userAgent.String
	if len(oldVals) > 0 {
		if err := json.Unmarshal(oldVals, &e.OldValues); err != nil {
			return nil, err
		}
	}
	if len(newVals) > 0 {
		if err := json.Unmarshal(newVals, &e.NewValues); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func marshalValues(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}
