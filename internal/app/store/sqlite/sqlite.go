/*
Package sqlite implements store.Store on an embedded SQLite database through GORM.

It is meant for single-node deployments (STORE_DRIVER=sqlite). The schema is created
with AutoMigrate plus one partial unique index that keeps at most one pending friend
request per ordered pair.
*/
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"groupchat/internal/app/store"
	"groupchat/internal/pkg/logx"
)

// Storage implements store.Store on SQLite.
type Storage struct {
	db *gorm.DB
}

var _ store.Store = (*Storage)(nil)

// New opens (or creates) the SQLite database at dsn and migrates the schema.
func New(dsn string) (*Storage, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		logx.Error(err, "storage: Failed to open SQLite database", "dsn", dsn)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql.DB: %w", err)
	}
	// SQLite allows one writer; a single connection serializes access instead of
	// surfacing "database is locked".
	sqlDB.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) migrate() error {
	err := s.db.AutoMigrate(&userRow{}, &roomRow{}, &roomMemberRow{}, &messageRow{}, &friendshipRow{}, &friendRequestRow{})
	if err != nil {
		logx.Error(err, "storage: Failed to migrate database")
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	err = s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_friend_requests_pending_pair
		ON friend_requests (from_id, to_id) WHERE status = 'pending'`).Error
	if err != nil {
		return fmt.Errorf("failed to create pending request index: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate maps GORM errors to the store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return store.ErrDuplicate
	}
	return err
}

// --- Accounts ---

func (s *Storage) CreateUser(ctx context.Context, u *store.User) error {
	row := userRow{
		UserID:       u.UserID,
		Username:     u.Username,
		Email:        strings.ToLower(u.Email),
		PasswordHash: u.PasswordHash,
		IsAdmin:      u.IsAdmin,
		CreatedAt:    u.CreatedAt,
	}
	return translate(s.db.WithContext(ctx).Create(&row).Error)
}

func (s *Storage) FindUserByID(ctx context.Context, userID string) (*store.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		return nil, translate(err)
	}
	return row.toModel(), nil
}

func (s *Storage) FindUserByName(ctx context.Context, username string) (*store.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&row).Error; err != nil {
		return nil, translate(err)
	}
	return row.toModel(), nil
}

func (s *Storage) IsAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := s.FindUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}

// --- Rooms ---

func (s *Storage) InsertRoom(ctx context.Context, room *store.Room) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := roomRow{
			Name:        room.Name,
			DisplayName: room.DisplayName,
			Kind:        string(room.Kind),
			CreatedBy:   room.CreatedBy,
			CreatedAt:   room.CreatedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		if len(room.Members) == 0 {
			return nil
		}
		members := make([]roomMemberRow, 0, len(room.Members))
		for _, m := range room.Members {
			members = append(members, roomMemberRow{RoomName: room.Name, UserID: m})
		}
		return tx.Create(&members).Error
	})
	return translate(err)
}

func (s *Storage) FindRoom(ctx context.Context, name string) (*store.Room, error) {
	var row roomRow
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error; err != nil {
		return nil, translate(err)
	}

	rooms, err := s.withMembers(ctx, []roomRow{row})
	if err != nil {
		return nil, err
	}
	return &rooms[0], nil
}

func (s *Storage) ListRoomsVisibleTo(ctx context.Context, userID string) ([]store.Room, error) {
	var public []roomRow
	err := s.db.WithContext(ctx).
		Where("kind = ?", string(store.RoomPublic)).
		Order("name").
		Find(&public).Error
	if err != nil {
		return nil, translate(err)
	}

	var member []roomRow
	err = s.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.room_name = rooms.name").
		Where("room_members.user_id = ? AND rooms.kind <> ?", userID, string(store.RoomPublic)).
		Order("rooms.name").
		Find(&member).Error
	if err != nil {
		return nil, translate(err)
	}

	return s.withMembers(ctx, append(public, member...))
}

// withMembers converts rows to models and loads the member sets of non-public rooms.
func (s *Storage) withMembers(ctx context.Context, rows []roomRow) ([]store.Room, error) {
	var names []string
	for _, r := range rows {
		if r.Kind != string(store.RoomPublic) {
			names = append(names, r.Name)
		}
	}

	membersByRoom := make(map[string][]string)
	if len(names) > 0 {
		var members []roomMemberRow
		if err := s.db.WithContext(ctx).Where("room_name IN ?", names).Order("user_id").Find(&members).Error; err != nil {
			return nil, translate(err)
		}
		for _, m := range members {
			membersByRoom[m.RoomName] = append(membersByRoom[m.RoomName], m.UserID)
		}
	}

	out := make([]store.Room, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.Room{
			Name:        r.Name,
			DisplayName: r.DisplayName,
			Kind:        store.RoomKind(r.Kind),
			Members:     membersByRoom[r.Name],
			CreatedBy:   r.CreatedBy,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}

func (s *Storage) DeleteRoom(ctx context.Context, name string) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("name = ? AND kind = ?", name, string(store.RoomPublic)).
		Delete(&roomRow{})
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// --- Messages ---

func (s *Storage) InsertMessage(ctx context.Context, msg *store.Message) error {
	row := messageRow{
		ID:          msg.ID,
		Room:        msg.Room,
		UserID:      msg.UserID,
		DisplayName: msg.DisplayName,
		Text:        msg.Text,
		Private:     msg.Private,
		Group:       msg.Group,
		Timestamp:   msg.Timestamp,
		CreatedAt:   msg.CreatedAt,
	}
	return translate(s.db.WithContext(ctx).Create(&row).Error)
}

func (s *Storage) ListMessages(ctx context.Context, room string, limit int) ([]store.Message, error) {
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("room = ?", room).
		Order("seq DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}

	out := make([]store.Message, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r.toModel()
	}
	return out, nil
}

func (s *Storage) DeleteMessagesByRoom(ctx context.Context, room string) (int64, error) {
	result := s.db.WithContext(ctx).Where("room = ?", room).Delete(&messageRow{})
	return result.RowsAffected, translate(result.Error)
}

func (s *Storage) PurgeOrphanMessages(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("room NOT IN (?)", s.db.Model(&roomRow{}).Select("name")).
		Delete(&messageRow{})
	return result.RowsAffected, translate(result.Error)
}

// --- Friends ---

func (s *Storage) InsertFriendship(ctx context.Context, f store.Friendship) error {
	f = store.NewFriendship(f.UserA, f.UserB, f.CreatedAt)
	row := friendshipRow{UserA: f.UserA, UserB: f.UserB, CreatedAt: f.CreatedAt}
	return translate(s.db.WithContext(ctx).Create(&row).Error)
}

func (s *Storage) FindFriendshipBetween(ctx context.Context, a, b string) (*store.Friendship, error) {
	key := store.NewFriendship(a, b, time.Time{})

	var row friendshipRow
	err := s.db.WithContext(ctx).Where("user_a = ? AND user_b = ?", key.UserA, key.UserB).First(&row).Error
	if err != nil {
		return nil, translate(err)
	}
	return &store.Friendship{UserA: row.UserA, UserB: row.UserB, CreatedAt: row.CreatedAt}, nil
}

func (s *Storage) ListFriendships(ctx context.Context, userID string) ([]store.Friendship, error) {
	var rows []friendshipRow
	err := s.db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", userID, userID).
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}

	out := make([]store.Friendship, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.Friendship{UserA: r.UserA, UserB: r.UserB, CreatedAt: r.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Other(userID) < out[j].Other(userID) })
	return out, nil
}

func (s *Storage) InsertFriendRequest(ctx context.Context, fr *store.FriendRequest) error {
	row := friendRequestRow{
		ID:          fr.ID,
		FromID:      fr.FromID,
		FromName:    fr.FromName,
		ToID:        fr.ToID,
		ToName:      fr.ToName,
		Status:      string(fr.Status),
		CreatedAt:   fr.CreatedAt,
		RespondedAt: fr.RespondedAt,
	}
	return translate(s.db.WithContext(ctx).Create(&row).Error)
}

func (s *Storage) FindFriendRequest(ctx context.Context, id string) (*store.FriendRequest, error) {
	var row friendRequestRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translate(err)
	}
	return row.toModel(), nil
}

func (s *Storage) FindPendingRequest(ctx context.Context, fromID, toID string) (*store.FriendRequest, error) {
	var row friendRequestRow
	err := s.db.WithContext(ctx).
		Where("from_id = ? AND to_id = ? AND status = ?", fromID, toID, string(store.RequestPending)).
		First(&row).Error
	if err != nil {
		return nil, translate(err)
	}
	return row.toModel(), nil
}

func (s *Storage) UpdateRequestStatus(ctx context.Context, id string, from, to store.RequestStatus, at time.Time) (bool, error) {
	var respondedAt *time.Time
	if to != store.RequestPending {
		respondedAt = &at
	}

	result := s.db.WithContext(ctx).
		Model(&friendRequestRow{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{"status": string(to), "responded_at": respondedAt})
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *Storage) ListPendingRequestsFor(ctx context.Context, userID string) ([]store.FriendRequest, error) {
	var rows []friendRequestRow
	err := s.db.WithContext(ctx).
		Where("to_id = ? AND status = ?", userID, string(store.RequestPending)).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}

	out := make([]store.FriendRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.toModel())
	}
	return out, nil
}

func (s *Storage) CountPendingRequestsFor(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&friendRequestRow{}).
		Where("to_id = ? AND status = ?", userID, string(store.RequestPending)).
		Count(&count).Error
	return count, translate(err)
}
