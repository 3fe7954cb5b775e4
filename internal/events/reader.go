package events

import (
	"context"
	"database/sql"
	"strings"
)

// Record is a persisted event row.
type Record struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Latest returns the most recent events, newest first.
func Latest(ctx context.Context, db *sql.DB, limit int, projectID, evtType string) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events ` + where + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var r Record
		var projectID, entityID, payload sql.NullString
		if err := rows.Scan(&r.ID, &r.TS, &r.Type, &projectID, &r.EntityKind, &entityID, &r.ActorID, &payload); err != nil {
			return nil, err
		}
		if projectID.Valid {
			r.ProjectID = projectID.String
		}
		if entityID.Valid {
			r.EntityID = entityID.String
		}
		if payload.Valid {
			r.Payload = payload.String
		}
		res = append(res, r)
	}
	return res, rows.Err()
}
