package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

type emailLogRow struct {
	ID        string         `db:"id"`
	OrderID   sql.NullString `db:"order_id"`
	Kind      string         `db:"kind"`
	Recipient string         `db:"recipient"`
	Provider  sql.NullString `db:"provider"`
	Success   bool           `db:"success"`
	Error     sql.NullString `db:"error"`
	CreatedAt time.Time      `db:"created_at"`
}

func NewEmailLogRepository(db *sqlx.DB) model.EmailLogRepository {
	return &emailLogRepository{db: db}
}

type emailLogRepository struct {
	db *sqlx.DB
}

func (r *emailLogRepository) Append(ctx context.Context, entry *model.EmailLogEntry) error {
	if entry.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return errors.Wrap(err, "generate email log id")
		}
		entry.ID = id
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	row := emailLogRow{
		ID:        entry.ID.String(),
		Kind:      string(entry.Kind),
		Recipient: entry.Recipient,
		Provider:  nullString(entry.Provider),
		Success:   entry.Success,
		Error:     nullString(entry.Error),
		CreatedAt: entry.CreatedAt.UTC(),
	}
	if entry.OrderID != nil {
		row.OrderID = nullString(entry.OrderID.String())
	}
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO email_log (id, order_id, kind, recipient, provider, success, error, created_at)
		VALUES (:id, :order_id, :kind, :recipient, :provider, :success, :error, :created_at)`, row)
	return errors.Wrap(err, "insert email log entry")
}

func (r *emailLogRepository) RecentFailures(ctx context.Context, limit int) ([]model.EmailLogEntry, error) {
	var rows []emailLogRow
	err := r.db.SelectContext(ctx, &rows, `SELECT id, order_id, kind, recipient, provider, success, error, created_at
		FROM email_log WHERE success = ? ORDER BY created_at DESC LIMIT ?`, false, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select email failures")
	}

	entries := make([]model.EmailLogEntry, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "parse email log id %q", row.ID)
		}
		entry := model.EmailLogEntry{
			ID:        id,
			Kind:      model.EmailKind(row.Kind),
			Recipient: row.Recipient,
			Provider:  row.Provider.String,
			Success:   row.Success,
			Error:     row.Error.String,
			CreatedAt: row.CreatedAt.UTC(),
		}
		if row.OrderID.Valid {
			orderID, err := uuid.Parse(row.OrderID.String)
			if err != nil {
				return nil, errors.Wrapf(err, "parse order id of email log %s", row.ID)
			}
			entry.OrderID = &orderID
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
