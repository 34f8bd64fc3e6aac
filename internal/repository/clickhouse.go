package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"ResourceAPI/internal/model"
)

// EventRepo записывает журнал изменений ресурсов в ClickHouse пакетами
type EventRepo struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// NewEventRepo создаёт репозиторий журнала событий
func NewEventRepo(db *sql.DB, log logrus.FieldLogger) *EventRepo {
	return &EventRepo{db: db, log: log}
}

// BatchInsertEvents записывает пакет событий в resource_events.
// clickhouse-go собирает все Exec подготовленного выражения в один блок и отправляет его на Commit
func (r *EventRepo) BatchInsertEvents(ctx context.Context, events []model.ResourceEvent) error {
	if len(events) == 0 {
		return nil
	}
	// все строки пакета уходят одним блоком на Commit
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin clickhouse batch")
	}
	query := `INSERT INTO resource_events (ResourceId, Action, Name, Description, Status, CreatedAt, UpdatedAt, EventTime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "failed to prepare clickhouse batch")
	}
	defer func() { _ = stmt.Close() }()
	for _, e := range events {
		eventTime := e.OccurredAt
		if eventTime.IsZero() {
			eventTime = time.Now()
		}
		// события без состояния записи не должны давать 1970-01-01 в журнале
		createdAt, updatedAt := e.Resource.CreatedAt, e.Resource.UpdatedAt
		if createdAt.IsZero() {
			createdAt = eventTime
		}
		if updatedAt.IsZero() {
			updatedAt = eventTime
		}
		_, err := stmt.ExecContext(ctx,
			uint64(e.Resource.ID), string(e.Action), e.Resource.Name,
			e.Resource.Description, string(e.Resource.Status),
			createdAt, updatedAt, eventTime,
		)
		if err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "failed to append event to batch")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit clickhouse batch")
	}
	r.log.WithField("count", len(events)).Debug("resource events written to clickhouse")
	return nil
}
