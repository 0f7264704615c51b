// Package journal persists terminal execution outcomes so operators can audit
// past actions after the in-memory tracker has moved on.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fydai/services/execution"
)

// ErrPathRequired is returned when no DSN is configured.
var ErrPathRequired = errors.New("journal: dsn must be configured")

// Entry is one terminal action.
type Entry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Account   string    `gorm:"size:42;index" json:"account"`
	Verb      string    `gorm:"size:32;index" json:"verb"`
	Maturity  *int64    `gorm:"index" json:"maturity,omitempty"`
	State     string    `gorm:"size:16;index" json:"state"`
	Amount    string    `gorm:"size:96" json:"amount"`
	Limit     string    `gorm:"size:96" json:"limit,omitempty"`
	TxHash    string    `gorm:"size:66" json:"txHash,omitempty"`
	Error     string    `gorm:"size:512" json:"error,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	CreatedAt time.Time `gorm:"index" json:"recordedAt"`
}

// TableName pins the table name.
func (Entry) TableName() string { return "action_journal" }

// Journal writes and queries entries.
type Journal struct {
	db *gorm.DB
}

// Open connects to dsn. postgres:// URLs use the Postgres driver, anything
// else is treated as a SQLite path or file: URI.
func Open(dsn string) (*Journal, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Journal, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores a finished action. Actions whose tracking was stopped after
// broadcast are stored in the broadcasting state with their hash.
func (j *Journal) Record(ctx context.Context, account string, action execution.PendingAction) error {
	if action.State == execution.Signing {
		return fmt.Errorf("journal: action %s has not been submitted", action.ID)
	}
	entry := Entry{
		ID:        action.ID,
		Account:   strings.ToLower(account),
		Verb:      string(action.Verb),
		Maturity:  action.Maturity,
		State:     action.State.String(),
		Amount:    action.Bounds.Amount.String(),
		Error:     action.Error,
		StartedAt: action.CreatedAt.UTC(),
	}
	if action.Bounds.Bounded {
		entry.Limit = action.Bounds.Limit.String()
	}
	if action.TxHash != (common.Hash{}) {
		entry.TxHash = action.TxHash.Hex()
	}
	if len(entry.Error) > 512 {
		entry.Error = entry.Error[:512]
	}
	if err := j.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("journal: insert %s: %w", action.ID, err)
	}
	return nil
}

// Filter narrows Recent.
type Filter struct {
	Account string
	Verb    string
	Limit   int
}

// Recent returns entries newest first by action start time.
func (j *Journal) Recent(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := j.db.WithContext(ctx).Model(&Entry{})
	if f.Account != "" {
		q = q.Where("account = ?", strings.ToLower(f.Account))
	}
	if f.Verb != "" {
		q = q.Where("verb = ?", f.Verb)
	}
	var out []Entry
	if err := q.Order("started_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	return out, nil
}
