// Package gormstore implements the session, message, clarification and
// analysis stores on PostgreSQL through gorm.
package gormstore

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/user/ledgerclaw/internal/types"
)

var _ types.SessionStore = (*SessionStore)(nil)
var _ types.MessageStore = (*MessageStore)(nil)
var _ types.ClarificationStore = (*ClarificationStore)(nil)
var _ types.AnalysisStore = (*AnalysisStore)(nil)

func gormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
		},
	)
}

// Open connects to dsn, sizes the pool and migrates the ledgerclaw tables.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the tables used by the stores.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&sessionRow{}, &messageRow{}, &clarificationRow{}, &analysisRow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Stores bundles the four gorm-backed stores over one connection.
type Stores struct {
	Sessions       *SessionStore
	Messages       *MessageStore
	Clarifications *ClarificationStore
	Analyses       *AnalysisStore
}

// New returns all stores sharing db.
func New(db *gorm.DB) *Stores {
	return &Stores{
		Sessions:       &SessionStore{db: db},
		Messages:       &MessageStore{db: db},
		Clarifications: &ClarificationStore{db: db},
		Analyses:       &AnalysisStore{db: db},
	}
}
