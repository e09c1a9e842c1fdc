package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const deleteSession = `-- name: DeleteSession :execresult
DELETE
FROM checkout_sessions
WHERE id = $1
`

func (q *Queries) DeleteSession(ctx context.Context, id uuid.UUID) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, deleteSession, id)
}

const getSession = `-- name: GetSession :one
SELECT id, order_ref, owner_id, stage, snapshot, version, created_at, updated_at
FROM checkout_sessions
WHERE id = $1
`

func (q *Queries) GetSession(ctx context.Context, id uuid.UUID) (CheckoutSession, error) {
	row := q.db.QueryRow(ctx, getSession, id)
	var i CheckoutSession
	err := row.Scan(
		&i.ID,
		&i.OrderRef,
		&i.OwnerID,
		&i.Stage,
		&i.Snapshot,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertSession = `-- name: InsertSession :one
INSERT INTO checkout_sessions (id, order_ref, owner_id, stage, snapshot)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_ref, owner_id, stage, snapshot, version, created_at, updated_at
`

type InsertSessionParams struct {
	ID       uuid.UUID
	OrderRef string
	OwnerID  string
	Stage    string
	Snapshot []byte
}

func (q *Queries) InsertSession(ctx context.Context, arg InsertSessionParams) (CheckoutSession, error) {
	row := q.db.QueryRow(ctx, insertSession,
		arg.ID,
		arg.OrderRef,
		arg.OwnerID,
		arg.Stage,
		arg.Snapshot,
	)
	var i CheckoutSession
	err := row.Scan(
		&i.ID,
		&i.OrderRef,
		&i.OwnerID,
		&i.Stage,
		&i.Snapshot,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const lockSessionVersion = `-- name: LockSessionVersion :one
SELECT version
FROM checkout_sessions
WHERE id = $1
FOR UPDATE
`

func (q *Queries) LockSessionVersion(ctx context.Context, id uuid.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, lockSessionVersion, id)
	var version int64
	err := row.Scan(&version)
	return version, err
}

const searchSessions = `-- name: SearchSessions :many
SELECT id, order_ref, owner_id, stage, snapshot, version, created_at, updated_at
FROM checkout_sessions
WHERE ($1::uuid[] IS NULL OR id = ANY ($1::uuid[]))
  AND ($2::text[] IS NULL OR owner_id = ANY ($2::text[]))
  AND ($3::text[] IS NULL OR order_ref = ANY ($3::text[]))
  AND ($4::text[] IS NULL OR stage = ANY ($4::text[]))
  AND ($5::timestamptz IS NULL OR created_at >= $5)
  AND ($6::timestamptz IS NULL OR created_at <= $6)
  AND ($7::timestamptz IS NULL OR updated_at >= $7)
  AND ($8::timestamptz IS NULL OR updated_at <= $8)
ORDER BY created_at
`

type SearchSessionsParams struct {
	Ids           []uuid.UUID
	OwnerIds      []string
	OrderRefs     []string
	Stages        []string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time
}

func (q *Queries) SearchSessions(ctx context.Context, arg SearchSessionsParams) ([]CheckoutSession, error) {
	rows, err := q.db.Query(ctx, searchSessions,
		arg.Ids,
		arg.OwnerIds,
		arg.OrderRefs,
		arg.Stages,
		arg.CreatedAfter,
		arg.CreatedBefore,
		arg.UpdatedAfter,
		arg.UpdatedBefore,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CheckoutSession
	for rows.Next() {
		var i CheckoutSession
		if err := rows.Scan(
			&i.ID,
			&i.OrderRef,
			&i.OwnerID,
			&i.Stage,
			&i.Snapshot,
			&i.Version,
			&i.CreatedAt,
			&i.UpdatedAt,
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

const updateSession = `-- name: UpdateSession :one
UPDATE checkout_sessions
SET stage      = $2,
    snapshot   = $3,
    version    = version + 1,
    updated_at = NOW()
WHERE id = $1
  AND version = $4
RETURNING version
`

type UpdateSessionParams struct {
	ID       uuid.UUID
	Stage    string
	Snapshot []byte
	Version  int64
}

func (q *Queries) UpdateSession(ctx context.Context, arg UpdateSessionParams) (int64, error) {
	row := q.db.QueryRow(ctx, updateSession,
		arg.ID,
		arg.Stage,
		arg.Snapshot,
		arg.Version,
	)
	var version int64
	err := row.Scan(&version)
	return version, err
}
