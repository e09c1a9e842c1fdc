package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/checkoutflow/internal/db"
	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/port"
	"github.com/samber/lo"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrVersionConflict = errors.New("session version conflict")
)

type sessionRepository struct {
	q    *db.Queries
	dbtx db.DBTX
}

func NewSession(pool *pgxpool.Pool) (port.SessionRepository, error) {
	if pool == nil {
		return nil, errors.New("pool is nil")
	}

	return &sessionRepository{
		q:    db.New(pool),
		dbtx: pool,
	}, nil
}

func NewSessionWithTx(tx pgx.Tx) port.SessionRepository {
	return &sessionRepository{
		q:    db.New(tx),
		dbtx: tx,
	}
}

func (r *sessionRepository) GetSession(ctx context.Context, id uuid.UUID) (domain.CheckoutRecord, error) {
	var rec domain.CheckoutRecord

	row, err := r.q.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, fmt.Errorf("q.GetSession: %w", ErrNotFound)
		}
		return rec, fmt.Errorf("q.GetSession: %w", err)
	}

	rec, err = mapDBSessionToDomain(row)
	if err != nil {
		return rec, fmt.Errorf("mapDBSessionToDomain: %w", err)
	}

	return rec, nil
}

func (r *sessionRepository) SearchSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.CheckoutRecord, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter.Validate: %w", err)
	}

	rows, err := r.q.SearchSessions(ctx, mapDomainSessionFilterToDBFilter(filter))
	if err != nil {
		return nil, fmt.Errorf("q.SearchSessions: %w", err)
	}

	records := make([]domain.CheckoutRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := mapDBSessionToDomain(row)
		if err != nil {
			return nil, fmt.Errorf("mapDBSessionToDomain: %w", err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func (r *sessionRepository) InsertSession(ctx context.Context, record domain.CheckoutRecord) (domain.CheckoutRecord, error) {
	var rec domain.CheckoutRecord

	if record.ID == uuid.Nil {
		return rec, errors.New("id is empty")
	}
	if record.OrderRef == "" {
		return rec, errors.New("orderRef is empty")
	}
	if _, err := domain.ToCheckoutStage(string(record.Stage)); err != nil {
		return rec, fmt.Errorf("stage[%s]: %w", record.Stage, err)
	}

	row, err := r.q.InsertSession(ctx, db.InsertSessionParams{
		ID:       record.ID,
		OrderRef: record.OrderRef,
		OwnerID:  record.OwnerID,
		Stage:    string(record.Stage),
		Snapshot: emptyJSONIfNil(record.Snapshot),
	})
	if err != nil {
		return rec, fmt.Errorf("q.InsertSession: %w", err)
	}

	rec, err = mapDBSessionToDomain(row)
	if err != nil {
		return rec, fmt.Errorf("mapDBSessionToDomain: %w", err)
	}

	return rec, nil
}

func (r *sessionRepository) UpdateSession(ctx context.Context, record domain.CheckoutRecord) (int64, error) {
	if _, err := domain.ToCheckoutStage(string(record.Stage)); err != nil {
		return 0, fmt.Errorf("stage[%s]: %w", record.Stage, err)
	}

	version, err := withTx(ctx, r.dbtx, func(q *db.Queries) (int64, error) {
		current, err := q.LockSessionVersion(ctx, record.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, fmt.Errorf("q.LockSessionVersion: %w", ErrNotFound)
			}
			return 0, fmt.Errorf("q.LockSessionVersion: %w", err)
		}

		if current != record.Version {
			return 0, fmt.Errorf("stored %d, given %d: %w", current, record.Version, ErrVersionConflict)
		}

		version, err := q.UpdateSession(ctx, db.UpdateSessionParams{
			ID:       record.ID,
			Stage:    string(record.Stage),
			Snapshot: emptyJSONIfNil(record.Snapshot),
			Version:  record.Version,
		})
		if err != nil {
			return 0, fmt.Errorf("q.UpdateSession: %w", err)
		}

		return version, nil
	})
	if err != nil {
		return 0, fmt.Errorf("withTx: %w", err)
	}

	return version, nil
}

func (r *sessionRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errors.New("id is empty")
	}

	cmdTag, err := r.q.DeleteSession(ctx, id)
	if err != nil {
		return fmt.Errorf("q.DeleteSession: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("q.DeleteSession: %w", ErrNotFound)
	}

	return nil
}

func (r *sessionRepository) RecordAcceptances(ctx context.Context, sessionID uuid.UUID, ownerID string, acceptances []domain.ConsentAcceptance) error {
	if sessionID == uuid.Nil {
		return errors.New("sessionID is empty")
	}
	if len(acceptances) == 0 {
		return nil
	}

	_, err := withTx(ctx, r.dbtx, func(q *db.Queries) (struct{}, error) {
		// TODO: batch with pgx.Batch once acceptance sets grow beyond a handful of documents
		for _, a := range acceptances {
			if err := q.InsertAcceptance(ctx, db.InsertAcceptanceParams{
				SessionID:      sessionID,
				OwnerID:        ownerID,
				DocumentType:   a.DocumentType,
				DocumentID:     a.DocumentID,
				Version:        int32(a.Version),
				ConsentContext: a.ConsentContext,
				DocumentTitle:  a.DocumentTitle,
			}); err != nil {
				return struct{}{}, fmt.Errorf("q.InsertAcceptance[%s]: %w", a.DocumentType, err)
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("withTx: %w", err)
	}

	return nil
}

func (r *sessionRepository) ListAcceptances(ctx context.Context, sessionID uuid.UUID) ([]domain.AcceptanceRecord, error) {
	rows, err := r.q.ListAcceptances(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("q.ListAcceptances: %w", err)
	}

	return lo.Map(rows, func(row db.ConsentAcceptance, _ int) domain.AcceptanceRecord {
		return domain.AcceptanceRecord{
			SessionID: row.SessionID,
			OwnerID:   row.OwnerID,
			Acceptance: domain.ConsentAcceptance{
				DocumentType:   row.DocumentType,
				DocumentID:     row.DocumentID,
				Version:        int(row.Version),
				ConsentContext: row.ConsentContext,
				DocumentTitle:  row.DocumentTitle,
			},
			AcceptedAt: row.AcceptedAt,
		}
	}), nil
}

func mapDBSessionToDomain(row db.CheckoutSession) (domain.CheckoutRecord, error) {
	stage, err := domain.ToCheckoutStage(row.Stage)
	if err != nil {
		return domain.CheckoutRecord{}, fmt.Errorf("domain.ToCheckoutStage[%s]: %w", row.Stage, err)
	}

	return domain.CheckoutRecord{
		ID:        row.ID,
		OrderRef:  row.OrderRef,
		OwnerID:   row.OwnerID,
		Stage:     stage,
		Snapshot:  row.Snapshot,
		Version:   row.Version,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func mapDomainSessionFilterToDBFilter(filter domain.SessionFilter) db.SearchSessionsParams {
	stages := lo.Map(filter.Stages, func(s domain.CheckoutStage, _ int) string {
		return string(s)
	})

	var createdAfter, createdBefore, updatedAfter, updatedBefore *time.Time

	if filter.CreatedAt != nil {
		createdAfter = filter.CreatedAt.After
		createdBefore = filter.CreatedAt.Before
	}

	if filter.UpdatedAt != nil {
		updatedAfter = filter.UpdatedAt.After
		updatedBefore = filter.UpdatedAt.Before
	}

	return db.SearchSessionsParams{
		Ids:           nilSliceIfEmpty(filter.IDs),
		OwnerIds:      nilSliceIfEmpty(filter.OwnerIDs),
		OrderRefs:     nilSliceIfEmpty(filter.OrderRefs),
		Stages:        nilSliceIfEmpty(stages),
		CreatedAfter:  createdAfter,
		CreatedBefore: createdBefore,
		UpdatedAfter:  updatedAfter,
		UpdatedBefore: updatedBefore,
	}
}

func emptyJSONIfNil(j []byte) []byte {
	if j == nil {
		return []byte(`{}`)
	}
	return j
}

func nilSliceIfEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}
