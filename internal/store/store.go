package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS shopping_items (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id           TEXT NOT NULL,
    user_name         TEXT NOT NULL,
    product_title     TEXT NOT NULL,
    quantity          INTEGER NOT NULL DEFAULT 1,
    price             REAL,
    product_url       TEXT NOT NULL DEFAULT '',
    product_image_url TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'active',
    added_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_shopping_items_status ON shopping_items(status);
CREATE INDEX IF NOT EXISTS idx_shopping_items_user ON shopping_items(user_id);
`

// Store is the sqlite-backed shopping list.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New opens (creating if needed) the sqlite database at path and ensures the
// schema exists. The parent directory is created for containerized volumes.
func New(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=10000&_loc=UTC")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// sqlite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent Slack events.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	logger.Info("shopping list database ready", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddItem inserts an active item and returns its ID.
func (s *Store) AddItem(ctx context.Context, userID, userName, title string, quantity int, price *float64, url, imageURL string) (int64, error) {
	if title == "" {
		return 0, fmt.Errorf("%w: product title is required", domain.ErrInvalidRequest)
	}
	if quantity < 1 {
		quantity = 1
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO shopping_items (user_id, user_name, product_title, quantity, price, product_url, product_image_url, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, userName, title, quantity, price, url, imageURL, domain.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("inserting item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted id: %w", err)
	}

	s.logger.Info("item added",
		zap.Int64("id", id),
		zap.String("title", title),
		zap.Int("quantity", quantity),
		zap.String("user_id", userID))
	return id, nil
}

// GetActiveItems returns every active item, newest first.
func (s *Store) GetActiveItems(ctx context.Context) ([]domain.ShoppingItem, error) {
	var items []domain.ShoppingItem
	err := s.db.SelectContext(ctx, &items,
		`SELECT * FROM shopping_items WHERE status = ? ORDER BY added_at DESC, id DESC`,
		domain.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("selecting active items: %w", err)
	}
	return items, nil
}

// GetItem fetches one item by ID, ErrItemNotFound when absent.
func (s *Store) GetItem(ctx context.Context, id int64) (*domain.ShoppingItem, error) {
	var item domain.ShoppingItem
	err := s.db.GetContext(ctx, &item, `SELECT * FROM shopping_items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("selecting item %d: %w", id, err)
	}
	return &item, nil
}

// FindItemsByDescription returns the requesting user's active items whose
// title contains text, case-insensitively, newest first.
func (s *Store) FindItemsByDescription(ctx context.Context, userID, text string) ([]domain.ShoppingItem, error) {
	var items []domain.ShoppingItem
	err := s.db.SelectContext(ctx, &items,
		`SELECT * FROM shopping_items
		 WHERE user_id = ? AND status = ? AND LOWER(product_title) LIKE LOWER(?)
		 ORDER BY added_at DESC, id DESC`,
		userID, domain.StatusActive, "%"+text+"%")
	if err != nil {
		return nil, fmt.Errorf("searching items: %w", err)
	}
	return items, nil
}

// DeleteItem removes an item. When requestingUserID is non-empty it must match
// the item's owner or the call fails with ErrPermissionDenied.
func (s *Store) DeleteItem(ctx context.Context, id int64, requestingUserID string) error {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if requestingUserID != "" && item.UserID != requestingUserID {
		s.logger.Warn("delete refused, requester does not own item",
			zap.Int64("id", id),
			zap.String("owner", item.UserID),
			zap.String("requester", requestingUserID))
		return domain.ErrPermissionDenied
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM shopping_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrItemNotFound
	}

	s.logger.Info("item deleted", zap.Int64("id", id), zap.String("requester", requestingUserID))
	return nil
}

// UpdateItemQuantity sets a new quantity, with the same ownership rule as
// DeleteItem. A quantity of zero or less removes the item.
func (s *Store) UpdateItemQuantity(ctx context.Context, id int64, quantity int, requestingUserID string) error {
	if quantity <= 0 {
		return s.DeleteItem(ctx, id, requestingUserID)
	}

	item, err := s.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if requestingUserID != "" && item.UserID != requestingUserID {
		s.logger.Warn("quantity update refused, requester does not own item",
			zap.Int64("id", id),
			zap.String("owner", item.UserID),
			zap.String("requester", requestingUserID))
		return domain.ErrPermissionDenied
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE shopping_items SET quantity = ? WHERE id = ?`, quantity, id); err != nil {
		return fmt.Errorf("updating quantity for item %d: %w", id, err)
	}

	s.logger.Info("item quantity updated", zap.Int64("id", id), zap.Int("quantity", quantity))
	return nil
}

// MarkAllOrdered transitions every active item to ordered, invoking trigger
// with the items before committing. A trigger failure rolls the transition
// back so the list survives a failed order run intact. Returns the number of
// items transitioned.
func (s *Store) MarkAllOrdered(ctx context.Context, trigger func([]domain.ShoppingItem) error) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var items []domain.ShoppingItem
	err = tx.SelectContext(ctx, &items,
		`SELECT * FROM shopping_items WHERE status = ? ORDER BY added_at DESC, id DESC`,
		domain.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("selecting active items: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	if trigger != nil {
		if err := trigger(items); err != nil {
			s.logger.Error("order trigger failed, keeping items active",
				zap.Int("items", len(items)), zap.Error(err))
			return 0, fmt.Errorf("%w: %v", domain.ErrAutomationFailed, err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE shopping_items SET status = ? WHERE status = ?`,
		domain.StatusOrdered, domain.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("marking items ordered: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting ordered items: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing order transition: %w", err)
	}

	s.logger.Info("marked all items ordered", zap.Int64("count", count))
	return int(count), nil
}
