package db

import (
	"context"

	"github.com/google/uuid"
)

const insertAcceptance = `-- name: InsertAcceptance :exec
INSERT INTO consent_acceptances (session_id, owner_id, document_type, document_id, version, consent_context, document_title)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_id, document_id, version) DO NOTHING
`

type InsertAcceptanceParams struct {
	SessionID      uuid.UUID
	OwnerID        string
	DocumentType   string
	DocumentID     string
	Version        int32
	ConsentContext string
	DocumentTitle  string
}

func (q *Queries) InsertAcceptance(ctx context.Context, arg InsertAcceptanceParams) error {
	_, err := q.db.Exec(ctx, insertAcceptance,
		arg.SessionID,
		arg.OwnerID,
		arg.DocumentType,
		arg.DocumentID,
		arg.Version,
		arg.ConsentContext,
		arg.DocumentTitle,
	)
	return err
}

const listAcceptances = `-- name: ListAcceptances :many
SELECT session_id, owner_id, document_type, document_id, version, consent_context, document_title, accepted_at
FROM consent_acceptances
WHERE session_id = $1
ORDER BY accepted_at, document_type
`

func (q *Queries) ListAcceptances(ctx context.Context, sessionID uuid.UUID) ([]ConsentAcceptance, error) {
	rows, err := q.db.Query(ctx, listAcceptances, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ConsentAcceptance
	for rows.Next() {
		var i ConsentAcceptance
		if err := rows.Scan(
			&i.SessionID,
			&i.OwnerID,
			&i.DocumentType,
			&i.DocumentID,
			&i.Version,
			&i.ConsentContext,
			&i.DocumentTitle,
			&i.AcceptedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
