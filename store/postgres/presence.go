package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zlnvch/canvasync/models"
)

// PostgresPresenceRegistry keeps presence rows in the presence table. The
// cutoff is computed from the registry clock rather than the database clock so
// that last_seen writes and staleness reads agree.
type PostgresPresenceRegistry struct {
	db         *pgxpool.Pool
	staleAfter time.Duration
	now        func() time.Time
}

func NewPostgresPresenceRegistry(db *pgxpool.Pool, staleAfter time.Duration) *PostgresPresenceRegistry {
	return &PostgresPresenceRegistry{db: db, staleAfter: staleAfter, now: time.Now}
}

func (r *PostgresPresenceRegistry) Join(ctx context.Context, roomId string, userId string, userName string, userColor string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO presence (room_id, user_id, user_name, user_color, cursor_x, cursor_y, is_drawing, last_seen)
		VALUES ($1, $2, $3, $4, 0, 0, FALSE, $5)
		ON CONFLICT (room_id, user_id) DO UPDATE
		SET user_name=EXCLUDED.user_name, user_color=EXCLUDED.user_color,
		    cursor_x=0, cursor_y=0, is_drawing=FALSE, last_seen=EXCLUDED.last_seen
	`, roomId, userId, userName, userColor, r.now())
	return err
}

func (r *PostgresPresenceRegistry) UpdateCursor(ctx context.Context, update models.CursorUpdate) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO presence (room_id, user_id, user_name, user_color, cursor_x, cursor_y, is_drawing, last_seen)
		VALUES ($1, $2, '', '', $3, $4, $5, $6)
		ON CONFLICT (room_id, user_id) DO UPDATE
		SET cursor_x=EXCLUDED.cursor_x, cursor_y=EXCLUDED.cursor_y,
		    is_drawing=EXCLUDED.is_drawing, last_seen=EXCLUDED.last_seen
	`, update.RoomId, update.UserId, update.X, update.Y, update.IsDrawing, r.now())
	return err
}

func (r *PostgresPresenceRegistry) Leave(ctx context.Context, roomId string, userId string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM presence WHERE room_id=$1 AND user_id=$2`, roomId, userId)
	return err
}

func (r *PostgresPresenceRegistry) ListLive(ctx context.Context, roomId string) ([]models.Presence, error) {
	cutoff := r.now().Add(-r.staleAfter)

	rows, err := r.db.Query(ctx, `
		SELECT room_id, user_id, user_name, user_color, cursor_x, cursor_y, is_drawing, last_seen
		FROM presence
		WHERE room_id=$1 AND last_seen > $2
		ORDER BY user_id ASC
	`, roomId, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Presence, 0, 16)
	for rows.Next() {
		var p models.Presence
		if err := rows.Scan(&p.RoomId, &p.UserId, &p.UserName, &p.UserColor, &p.CursorX, &p.CursorY, &p.IsDrawing, &p.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
