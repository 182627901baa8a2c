package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/overseer/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CHECKPOINT STORE - Durable session state with optimistic versioning
// ═══════════════════════════════════════════════════════════════════════════════
//
// One record per session key holds the full serialized SessionState plus its
// version. A save is a single transaction guarded by the expected version, so
// a crash mid-write never leaves a torn record and a concurrent writer gets
// ErrVersionConflict instead of silently clobbering state.
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNotFound means no checkpoint exists for the session key.
	ErrNotFound = errors.New("checkpoint: session not found")
	// ErrVersionConflict means another writer committed first; reload and retry.
	ErrVersionConflict = errors.New("checkpoint: version conflict")
)

// Store is the persistence contract the supervisor depends on.
type Store interface {
	Load(sessionKey string) (*types.SessionState, error)
	Save(state *types.SessionState, expectedVersion int64) error
	AppendTransition(t *Transition) error
	Transitions(sessionKey string, limit int) ([]Transition, error)
}

// SessionRecord is the durable row for one session.
type SessionRecord struct {
	SessionKey string `gorm:"primaryKey"`
	Version    int64  `gorm:"not null"`
	State      string `gorm:"type:text;not null"` // JSON SessionState
	UpdatedAt  time.Time
}

// Transition is one row of the append-only audit log.
type Transition struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	SessionKey string `gorm:"index"`
	FromMode   string
	ToMode     string
	Reason     string
	Version    int64
	At         time.Time
}

// DB is the gorm-backed Store.
type DB struct {
	db *gorm.DB
}

// New opens the checkpoint database. A postgres:// DSN selects PostgreSQL,
// anything else is treated as a SQLite file path.
func New(dbPath string) (*DB, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Checkpoint store connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Checkpoint store initialized (SQLite)")
	}

	if err := db.AutoMigrate(&SessionRecord{}, &Transition{}); err != nil {
		return nil, err
	}

	return &DB{db: db}, nil
}

// Load returns the last committed state for the session key.
func (d *DB) Load(sessionKey string) (*types.SessionState, error) {
	var rec SessionRecord
	err := d.db.First(&rec, "session_key = ?", sessionKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", sessionKey, err)
	}

	var state types.SessionState
	if err := json.Unmarshal([]byte(rec.State), &state); err != nil {
		return nil, fmt.Errorf("load %s: corrupt checkpoint: %w", sessionKey, err)
	}
	state.Version = rec.Version
	return &state, nil
}

// Save commits the state if and only if the stored version still equals
// expectedVersion. The committed record carries expectedVersion+1.
func (d *DB) Save(state *types.SessionState, expectedVersion int64) error {
	next := expectedVersion + 1
	state.Version = next

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("save %s: %w", state.SessionKey, err)
	}

	return d.db.Transaction(func(tx *gorm.DB) error {
		if expectedVersion == 0 {
			rec := SessionRecord{
				SessionKey: state.SessionKey,
				Version:    next,
				State:      string(payload),
				UpdatedAt:  time.Now(),
			}
			if err := tx.Create(&rec).Error; err != nil {
				// Primary key collision: someone created version 1 first.
				return ErrVersionConflict
			}
			return nil
		}

		res := tx.Model(&SessionRecord{}).
			Where("session_key = ? AND version = ?", state.SessionKey, expectedVersion).
			Updates(map[string]interface{}{
				"version":    next,
				"state":      string(payload),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
		return nil
	})
}

// AppendTransition records one state transition in the audit log.
func (d *DB) AppendTransition(t *Transition) error {
	if t.At.IsZero() {
		t.At = time.Now()
	}
	return d.db.Create(t).Error
}

// Transitions returns the most recent audit entries for a session.
func (d *DB) Transitions(sessionKey string, limit int) ([]Transition, error) {
	var out []Transition
	err := d.db.Where("session_key = ?", sessionKey).
		Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}
