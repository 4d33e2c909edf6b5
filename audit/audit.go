package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/stockvault/backup/database"
)

// Entry describes one recorded action.
type Entry struct {
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Changes    map[string]interface{}
}

// Sink records actions. Fire-and-forget: implementations must never fail the
// calling operation.
type Sink interface {
	LogAction(ctx context.Context, entry Entry)
}

// DBSink writes audit entries to the audit_log table. Write failures are
// logged and swallowed.
type DBSink struct {
	Cli    *gorm.DB
	Logger zerolog.Logger
	DryRun bool
}

func (s *DBSink) LogAction(ctx context.Context, entry Entry) {
	changes := ""
	if entry.Changes != nil {
		raw, err := json.Marshal(entry.Changes)
		if err != nil {
			s.Logger.Warn().Err(err).Str("action", entry.Action).Msg("could not encode audit changes")
		} else {
			changes = string(raw)
		}
	}

	if s.DryRun {
		s.Logger.Info().Str("action", entry.Action).Str("entity_id", entry.EntityID).Msg("would record audit entry (dry run)")
		return
	}

	record := database.AuditLog{
		ID:         uuid.NewString(),
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Changes:    changes,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.Cli.WithContext(ctx).Create(&record).Error; err != nil {
		s.Logger.Warn().Err(err).
			Str("action", entry.Action).
			Str("entity_id", entry.EntityID).
			Msg("could not record audit entry")
		return
	}

	s.Logger.Debug().
		Str("action", entry.Action).
		Str("entity_type", entry.EntityType).
		Str("entity_id", entry.EntityID).
		Msg("recorded audit entry")
}

// Nop discards all entries, used in dry runs and tests.
type Nop struct{}

func (Nop) LogAction(context.Context, Entry) {}
