package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"story-server/internal/model"
)

// DefaultListLimit - сколько историй возвращается, если лимит не задан.
const DefaultListLimit = 100

// StoryStore - хранилище историй, разбитое по владельцам.
// ownerKey - идентификатор пользователя (удаленное хранилище)
// или клиента (локальное хранилище).
type StoryStore interface {
	// Save сохраняет историю; существующая история с тем же ID перезаписывается.
	Save(ctx context.Context, ownerKey string, story model.Story) error
	// Update заменяет существующую историю. Если ее нет - model.ErrNotFound.
	Update(ctx context.Context, ownerKey string, story model.Story) error
	// Delete удаляет историю. Если ее нет - model.ErrNotFound.
	Delete(ctx context.Context, ownerKey string, storyID string) error
	// List возвращает истории владельца, новые первыми.
	List(ctx context.Context, ownerKey string, limit int) ([]model.Story, error)
	// Clear удаляет все истории владельца.
	Clear(ctx context.Context, ownerKey string) error
}

// DBTX - общий интерфейс для *pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
