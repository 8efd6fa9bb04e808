// Package sqlite is the embedded conversation store, backed by gorm and a
// pure-Go SQLite driver. It serves single-node deployments and tests.
package sqlite

import (
	"fmt"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type userRow struct {
	ID           uuid.UUID `gorm:"type:text;primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	Name         string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	AvatarURL    *string
	CreatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

type conversationRow struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	Type      string    `gorm:"not null"`
	DirectKey *string   `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

func (conversationRow) TableName() string { return "conversations" }

type participantRow struct {
	ConversationID uuid.UUID `gorm:"type:text;primaryKey"`
	UserID         uuid.UUID `gorm:"type:text;primaryKey;index"`
	JoinedAt       time.Time
}

func (participantRow) TableName() string { return "conversation_participants" }

// messageRow keys on Seq so rowid order is insertion order.
type messageRow struct {
	Seq            int64      `gorm:"primaryKey;autoIncrement"`
	ID             uuid.UUID  `gorm:"type:text;uniqueIndex;not null"`
	ConversationID uuid.UUID  `gorm:"type:text;index;not null"`
	SenderID       *uuid.UUID `gorm:"type:text"`
	Content        string     `gorm:"not null"`
	IsAIMessage    bool       `gorm:"not null;default:false"`
	CreatedAt      time.Time
}

func (messageRow) TableName() string { return "messages" }

// Open opens the database at path. A path starting with "file:" is passed
// through untouched, which lets tests use named in-memory databases.
func Open(path string) (*gorm.DB, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)"

	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection turns every transaction
	// into a critical section.
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&userRow{}, &conversationRow{}, &participantRow{}, &messageRow{}); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
