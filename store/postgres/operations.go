package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zlnvch/canvasync/models"
	"github.com/zlnvch/canvasync/store"
)

const operationColumns = `id, room_id, sequence_number, user_id, user_color, tool, color, width, points, is_undone, created_at`

type PostgresOperationStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewPostgresOperationStore(db *pgxpool.Pool) *PostgresOperationStore {
	return &PostgresOperationStore{db: db, now: time.Now}
}

func scanOperation(row pgx.Row) (models.Operation, error) {
	var op models.Operation
	var tool string
	err := row.Scan(
		&op.Id,
		&op.RoomId,
		&op.SequenceNumber,
		&op.UserId,
		&op.UserColor,
		&tool,
		&op.Color,
		&op.Width,
		&op.Points,
		&op.IsUndone,
		&op.Created,
	)
	op.Tool = models.Tool(tool)
	return op, err
}

// Append bumps the room's row in room_sequences and inserts the operation in
// one transaction. The upsert holds the row lock until commit, so appenders
// for the same room queue behind each other; a rollback gives the number back.
func (s *PostgresOperationStore) Append(ctx context.Context, newOp models.NewOperation) (models.Operation, error) {
	newOp, err := store.Validate(newOp)
	if err != nil {
		return models.Operation{}, err
	}
	id, err := store.NewOperationId()
	if err != nil {
		return models.Operation{}, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return models.Operation{}, err
	}
	defer tx.Rollback(ctx)

	var seq int64
	err = tx.QueryRow(ctx, `
		INSERT INTO room_sequences (room_id, last_sequence)
		VALUES ($1, 1)
		ON CONFLICT (room_id) DO UPDATE SET last_sequence = room_sequences.last_sequence + 1
		RETURNING last_sequence
	`, newOp.RoomId).Scan(&seq)
	if err != nil {
		return models.Operation{}, err
	}

	op := models.Operation{
		Id:             id,
		RoomId:         newOp.RoomId,
		SequenceNumber: seq,
		UserId:         newOp.UserId,
		UserColor:      newOp.UserColor,
		Tool:           newOp.Tool,
		Color:          newOp.Color,
		Width:          newOp.Width,
		Points:         newOp.Points,
		Created:        s.now().UTC().Truncate(time.Microsecond),
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO operations (`+operationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10)
	`, op.Id, op.RoomId, op.SequenceNumber, op.UserId, op.UserColor, string(op.Tool), op.Color, op.Width, op.Points, op.Created)
	if err != nil {
		return models.Operation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Operation{}, err
	}
	return op, nil
}

func (s *PostgresOperationStore) ListActive(ctx context.Context, roomId string) ([]models.Operation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE room_id=$1 AND is_undone=FALSE ORDER BY sequence_number ASC`,
		roomId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ops := []models.Operation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (s *PostgresOperationStore) SetUndone(ctx context.Context, operationId string, undone bool) (models.Operation, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE operations SET is_undone=$2 WHERE id=$1 RETURNING `+operationColumns,
		operationId, undone)
	op, err := scanOperation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Operation{}, store.ErrNotFound
	}
	return op, err
}

func (s *PostgresOperationStore) LatestActive(ctx context.Context, roomId string) (models.Operation, bool, error) {
	return s.latest(ctx, roomId, false)
}

func (s *PostgresOperationStore) LatestUndone(ctx context.Context, roomId string) (models.Operation, bool, error) {
	return s.latest(ctx, roomId, true)
}

func (s *PostgresOperationStore) latest(ctx context.Context, roomId string, undone bool) (models.Operation, bool, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE room_id=$1 AND is_undone=$2 ORDER BY sequence_number DESC LIMIT 1`,
		roomId, undone)
	op, err := scanOperation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Operation{}, false, nil
	}
	if err != nil {
		return models.Operation{}, false, err
	}
	return op, true, nil
}
