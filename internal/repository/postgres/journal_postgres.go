package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"outboxapi/internal/model"
	"outboxapi/internal/repository"
)

const uniqueViolation = "23505"

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// JournalPostgres is a PostgreSQL implementation of repository.JournalRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type JournalPostgres struct {
	db   DBTX
	conn *sql.DB // nil when bound to a transaction
}

// NewJournalPostgres creates a new JournalPostgres repository.
func NewJournalPostgres(db *sql.DB) *JournalPostgres {
	return &JournalPostgres{db: db, conn: db}
}

var _ repository.JournalRepository = (*JournalPostgres)(nil)

const entryColumns = `id, sequence_number, formatted_number, issue_date, recipient, executor,
		executor_code, content_summary, source_reference, folder_path, scope_year, scope_executor, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*model.JournalEntry, error) {
	var e model.JournalEntry
	if err := row.Scan(
		&e.ID,
		&e.SequenceNumber,
		&e.FormattedNumber,
		&e.IssueDate,
		&e.Recipient,
		&e.Executor,
		&e.ExecutorCode,
		&e.ContentSummary,
		&e.SourceReference,
		&e.FolderPath,
		&e.Scope.Year,
		&e.Scope.Executor,
		&e.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new journal row and returns the stored record.
func (r *JournalPostgres) Create(ctx context.Context, e *model.JournalEntry) (*model.JournalEntry, error) {
	q := `
		INSERT INTO outbox_journal (sequence_number, formatted_number, issue_date, recipient, executor,
			executor_code, content_summary, source_reference, folder_path, scope_year, scope_executor,
			artifact_name, signed_artifact, signature_blob, attachments_archive)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING ` + entryColumns

	art := e.Artifacts
	if art == nil {
		art = &model.JournalArtifacts{}
	}
	row := r.db.QueryRowContext(ctx, q,
		e.SequenceNumber,
		e.FormattedNumber,
		e.IssueDate,
		e.Recipient,
		e.Executor,
		e.ExecutorCode,
		e.ContentSummary,
		e.SourceReference,
		e.FolderPath,
		e.Scope.Year,
		e.Scope.Executor,
		art.ArtifactName,
		nullBytes(art.SignedArtifact),
		nullBytes(art.SignatureBlob),
		nullBytes(art.AttachmentsArchive),
	)
	out, err := scanEntry(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return out, nil
}

// FindByID fetches entry metadata by id.
func (r *JournalPostgres) FindByID(ctx context.Context, id int64) (*model.JournalEntry, error) {
	q := `SELECT ` + entryColumns + ` FROM outbox_journal WHERE id = $1`
	e, err := scanEntry(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// FindArtifacts loads the binary columns of an entry.
func (r *JournalPostgres) FindArtifacts(ctx context.Context, id int64) (*model.JournalArtifacts, error) {
	const q = `
		SELECT artifact_name, signed_artifact, signature_blob, attachments_archive
		FROM outbox_journal
		WHERE id = $1
	`
	var a model.JournalArtifacts
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&a.ArtifactName,
		&a.SignedArtifact,
		&a.SignatureBlob,
		&a.AttachmentsArchive,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// List returns entries using LIMIT/OFFSET pagination and the filtered total.
func (r *JournalPostgres) List(ctx context.Context, f repository.JournalFilter, pq repository.PageQuery) (*repository.PageResult[model.JournalEntry], error) {
	where, args := filterClause(f)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_journal`+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	q := `SELECT ` + entryColumns + ` FROM outbox_journal` + where + ` ORDER BY issue_date DESC, id DESC`
	if pq.Limit > 0 {
		args = append(args, pq.Limit, pq.Offset)
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.JournalEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.JournalEntry]{
		Items: items,
		Total: total,
	}, nil
}

// Update rewrites the correctable columns and returns the stored record.
func (r *JournalPostgres) Update(ctx context.Context, e *model.JournalEntry) (*model.JournalEntry, error) {
	q := `
		UPDATE outbox_journal
		SET sequence_number = $2, formatted_number = $3, issue_date = $4, recipient = $5,
			executor = $6, folder_path = $7, scope_year = $8
		WHERE id = $1
		RETURNING ` + entryColumns

	out, err := scanEntry(r.db.QueryRowContext(ctx, q,
		e.ID,
		e.SequenceNumber,
		e.FormattedNumber,
		e.IssueDate,
		e.Recipient,
		e.Executor,
		e.FolderPath,
		e.Scope.Year,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapWriteError(err)
	}
	return out, nil
}

// Delete removes an entry by id.
func (r *JournalPostgres) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM outbox_journal WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MaxSequence returns the highest sequence number committed within scope.
func (r *JournalPostgres) MaxSequence(ctx context.Context, scope model.Scope) (int, error) {
	var (
		conds []string
		args  []any
	)
	if scope.Year > 0 {
		args = append(args, scope.Year)
		conds = append(conds, "EXTRACT(YEAR FROM issue_date) = $"+strconv.Itoa(len(args)))
	}
	if scope.Executor != "" {
		args = append(args, scope.Executor)
		conds = append(conds, "scope_executor = $"+strconv.Itoa(len(args)))
	}
	q := `SELECT COALESCE(MAX(sequence_number), 0) FROM outbox_journal`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}

	var n int
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// NumberTaken reports whether a different entry already holds formatted.
func (r *JournalPostgres) NumberTaken(ctx context.Context, formatted string, excludeID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM outbox_journal WHERE formatted_number = $1 AND id <> $2)`
	var taken bool
	if err := r.db.QueryRowContext(ctx, q, formatted, excludeID).Scan(&taken); err != nil {
		return false, err
	}
	return taken, nil
}

// WithinTx runs fn in a transaction. Nested calls reuse the outer transaction.
func (r *JournalPostgres) WithinTx(ctx context.Context, fn func(tx repository.JournalRepository) error) error {
	if r.conn == nil {
		return fn(r)
	}
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&JournalPostgres{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", mapWriteError(err))
	}
	return nil
}

func filterClause(f repository.JournalFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Year > 0 {
		args = append(args, f.Year)
		conds = append(conds, "EXTRACT(YEAR FROM issue_date) = $"+strconv.Itoa(len(args)))
	}
	if f.Month > 0 {
		args = append(args, f.Month)
		conds = append(conds, "EXTRACT(MONTH FROM issue_date) = $"+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", repository.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
