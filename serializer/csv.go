package serializer

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/stockvault/backup/database"
	"github.com/stockvault/backup/fault"
)

// Section marker lines. The reader side (not implemented yet) will rely on
// these to locate section boundaries, so they must stay stable.
const (
	sectionItems     = "## ITEMS"
	sectionAuditLogs = "## AUDIT_LOGS"
	sectionUsers     = "## USERS"
	sectionSettings  = "## SETTINGS"
)

type csvFormat struct{}

func (csvFormat) Name() database.BackupFormat { return database.FormatCSV }
func (csvFormat) Ext() string                 { return "csv" }

func (csvFormat) Serialize(snap *database.Snapshot, inc database.Inclusions) ([]byte, error) {
	buf := &bytes.Buffer{}

	if err := writeSection(buf, sectionItems,
		[]string{"id", "sku", "name", "category", "location", "quantity", "unit_price_cents", "notes", "created_at", "updated_at"},
		len(snap.Items), func(i int) []string {
			it := snap.Items[i]
			return []string{
				it.ID, it.SKU, it.Name, it.Category, it.Location,
				strconv.FormatInt(it.Quantity, 10),
				strconv.FormatInt(it.UnitPriceCents, 10),
				it.Notes,
				formatTime(it.CreatedAt), formatTime(it.UpdatedAt),
			}
		}); err != nil {
		return nil, err
	}

	if inc.AuditLogs {
		if err := writeSection(buf, sectionAuditLogs,
			[]string{"id", "actor_id", "action", "entity_type", "entity_id", "changes", "created_at"},
			len(snap.AuditLogs), func(i int) []string {
				l := snap.AuditLogs[i]
				return []string{l.ID, l.ActorID, l.Action, l.EntityType, l.EntityID, l.Changes, formatTime(l.CreatedAt)}
			}); err != nil {
			return nil, err
		}
	}

	if inc.Users {
		if err := writeSection(buf, sectionUsers,
			[]string{"id", "email", "name", "role", "created_at"},
			len(snap.Users), func(i int) []string {
				u := snap.Users[i]
				return []string{u.ID, u.Email, u.Name, u.Role, formatTime(u.CreatedAt)}
			}); err != nil {
			return nil, err
		}
	}

	if inc.Settings {
		if err := writeSection(buf, sectionSettings,
			[]string{"key", "value", "updated_at"},
			len(snap.Settings), func(i int) []string {
				s := snap.Settings[i]
				return []string{s.Key, s.Value, formatTime(s.UpdatedAt)}
			}); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Deserialize is not implemented: restoring from the tabular format needs a
// section-aware reader that does not exist yet. Fails loudly instead of
// silently restoring nothing.
func (csvFormat) Deserialize([]byte) (*database.Snapshot, error) {
	return nil, fault.New(fault.InvalidFormat, "restore from csv backups is not implemented")
}

func writeSection(buf *bytes.Buffer, marker string, header []string, n int, row func(i int) []string) error {
	buf.WriteString(marker)
	buf.WriteByte('\n')

	w := csv.NewWriter(buf)
	if err := w.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
