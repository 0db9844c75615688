package db

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"groupchat/internal/app/store"
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// NewStore wraps an initialized pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// --- Accounts ---

const userColumns = `user_id, username, email, password_hash, is_admin, created_at`

func scanUser(row pgx.Row) (*store.User, error) {
	var u store.User
	if err := row.Scan(&u.UserID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.UserID, u.Username, strings.ToLower(u.Email), u.PasswordHash, u.IsAdmin, u.CreatedAt)
	return translate(err)
}

func (s *Store) FindUserByID(ctx context.Context, userID string) (*store.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
}

func (s *Store) FindUserByName(ctx context.Context, username string) (*store.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (s *Store) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var admin bool
	err := s.pool.QueryRow(ctx, `SELECT is_admin FROM users WHERE user_id = $1`, userID).Scan(&admin)
	return admin, translate(err)
}

// --- Rooms ---

const roomColumns = `name, display_name, kind, members, created_by, created_at`

func scanRoom(row pgx.Row) (*store.Room, error) {
	var (
		r    store.Room
		kind string
	)
	if err := row.Scan(&r.Name, &r.DisplayName, &kind, &r.Members, &r.CreatedBy, &r.CreatedAt); err != nil {
		return nil, translate(err)
	}
	r.Kind = store.RoomKind(kind)
	if len(r.Members) == 0 {
		r.Members = nil
	}
	return &r, nil
}

func (s *Store) InsertRoom(ctx context.Context, room *store.Room) error {
	members := room.Members
	if members == nil {
		members = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rooms (`+roomColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		room.Name, room.DisplayName, string(room.Kind), members, room.CreatedBy, room.CreatedAt)
	return translate(err)
}

func (s *Store) FindRoom(ctx context.Context, name string) (*store.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE name = $1`, name))
}

func (s *Store) ListRoomsVisibleTo(ctx context.Context, userID string) ([]store.Room, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+roomColumns+` FROM rooms
		 WHERE kind = 'public' OR $1 = ANY(members)
		 ORDER BY (kind <> 'public'), name COLLATE "C"`, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []store.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, translate(rows.Err())
}

func (s *Store) DeleteRoom(ctx context.Context, name string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE name = $1 AND kind = 'public'`, name)
	if err != nil {
		return false, translate(err)
	}
	return tag.RowsAffected() > 0, nil
}

// --- Messages ---

func (s *Store) InsertMessage(ctx context.Context, msg *store.Message) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, room, user_id, display_name, text, is_private, is_group, timestamp, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID, msg.Room, msg.UserID, msg.DisplayName, msg.Text, msg.Private, msg.Group, msg.Timestamp, msg.CreatedAt)
	return translate(err)
}

func (s *Store) ListMessages(ctx context.Context, room string, limit int) ([]store.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, room, user_id, display_name, text, is_private, is_group, timestamp, created_at
		 FROM (
		     SELECT * FROM messages WHERE room = $1 ORDER BY seq DESC LIMIT $2
		 ) recent
		 ORDER BY seq ASC`, room, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.Room, &m.UserID, &m.DisplayName, &m.Text, &m.Private, &m.Group, &m.Timestamp, &m.CreatedAt); err != nil {
			return nil, translate(err)
		}
		out = append(out, m)
	}
	return out, translate(rows.Err())
}

func (s *Store) DeleteMessagesByRoom(ctx context.Context, room string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE room = $1`, room)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) PurgeOrphanMessages(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM messages m WHERE NOT EXISTS (SELECT 1 FROM rooms r WHERE r.name = m.room)`)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

// --- Friends ---

func (s *Store) InsertFriendship(ctx context.Context, f store.Friendship) error {
	f = store.NewFriendship(f.UserA, f.UserB, f.CreatedAt)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO friendships (user_a, user_b, created_at) VALUES ($1, $2, $3)`,
		f.UserA, f.UserB, f.CreatedAt)
	return translate(err)
}

func (s *Store) FindFriendshipBetween(ctx context.Context, a, b string) (*store.Friendship, error) {
	key := store.NewFriendship(a, b, time.Time{})

	var f store.Friendship
	err := s.pool.QueryRow(ctx,
		`SELECT user_a, user_b, created_at FROM friendships WHERE user_a = $1 AND user_b = $2`,
		key.UserA, key.UserB).Scan(&f.UserA, &f.UserB, &f.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &f, nil
}

func (s *Store) ListFriendships(ctx context.Context, userID string) ([]store.Friendship, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_a, user_b, created_at FROM friendships
		 WHERE user_a = $1 OR user_b = $1
		 ORDER BY (CASE WHEN user_a = $1 THEN user_b ELSE user_a END) COLLATE "C"`, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []store.Friendship
	for rows.Next() {
		var f store.Friendship
		if err := rows.Scan(&f.UserA, &f.UserB, &f.CreatedAt); err != nil {
			return nil, translate(err)
		}
		out = append(out, f)
	}
	return out, translate(rows.Err())
}

const requestColumns = `id, from_id, from_name, to_id, to_name, status, created_at, responded_at`

func scanRequest(row pgx.Row) (*store.FriendRequest, error) {
	var (
		fr     store.FriendRequest
		status string
	)
	err := row.Scan(&fr.ID, &fr.FromID, &fr.FromName, &fr.ToID, &fr.ToName, &status, &fr.CreatedAt, &fr.RespondedAt)
	if err != nil {
		return nil, translate(err)
	}
	fr.Status = store.RequestStatus(status)
	return &fr, nil
}

func (s *Store) InsertFriendRequest(ctx context.Context, fr *store.FriendRequest) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO friend_requests (`+requestColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		fr.ID, fr.FromID, fr.FromName, fr.ToID, fr.ToName, string(fr.Status), fr.CreatedAt, fr.RespondedAt)
	return translate(err)
}

func (s *Store) FindFriendRequest(ctx context.Context, id string) (*store.FriendRequest, error) {
	return scanRequest(s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM friend_requests WHERE id = $1`, id))
}

func (s *Store) FindPendingRequest(ctx context.Context, fromID, toID string) (*store.FriendRequest, error) {
	return scanRequest(s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM friend_requests WHERE from_id = $1 AND to_id = $2 AND status = 'pending'`,
		fromID, toID))
}

func (s *Store) UpdateRequestStatus(ctx context.Context, id string, from, to store.RequestStatus, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE friend_requests SET status = $3, responded_at = $4 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), respondedAt(to, at))
	if err != nil {
		return false, translate(err)
	}
	return tag.RowsAffected() == 1, nil
}

// respondedAt is nil for a request moved back to pending.
func respondedAt(to store.RequestStatus, at time.Time) *time.Time {
	if to == store.RequestPending {
		return nil
	}
	return &at
}

func (s *Store) ListPendingRequestsFor(ctx context.Context, userID string) ([]store.FriendRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+requestColumns+` FROM friend_requests
		 WHERE to_id = $1 AND status = 'pending'
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []store.FriendRequest
	for rows.Next() {
		fr, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *fr)
	}
	return out, translate(rows.Err())
}

func (s *Store) CountPendingRequestsFor(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM friend_requests WHERE to_id = $1 AND status = 'pending'`, userID).Scan(&count)
	return count, translate(err)
}
