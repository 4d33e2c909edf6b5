package serializer

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/stockvault/backup/database"
	"github.com/stockvault/backup/fault"
)

type sqlFormat struct{}

func (sqlFormat) Name() database.BackupFormat { return database.FormatSQL }
func (sqlFormat) Ext() string                 { return "sql" }

func (sqlFormat) Serialize(snap *database.Snapshot, inc database.Inclusions) ([]byte, error) {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "-- stockvault backup, generated %s\n", snap.FetchedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(buf, "-- records: %d\n", snap.IncludedCount(inc))
	buf.WriteString("BEGIN TRANSACTION;\n")

	for _, it := range snap.Items {
		writeInsert(buf, "item",
			[]string{"id", "sku", "name", "category", "location", "quantity", "unit_price_cents", "notes", "created_at", "updated_at"},
			quoteStr(it.ID), quoteStr(it.SKU), quoteStr(it.Name), quoteStr(it.Category), quoteStr(it.Location),
			fmt.Sprintf("%d", it.Quantity), fmt.Sprintf("%d", it.UnitPriceCents),
			quoteStr(it.Notes), quoteTime(it.CreatedAt), quoteTime(it.UpdatedAt))
	}

	if inc.AuditLogs {
		for _, l := range snap.AuditLogs {
			writeInsert(buf, "audit_log",
				[]string{"id", "actor_id", "action", "entity_type", "entity_id", "changes", "created_at"},
				quoteStr(l.ID), quoteStr(l.ActorID), quoteStr(l.Action), quoteStr(l.EntityType),
				quoteStr(l.EntityID), quoteStr(l.Changes), quoteTime(l.CreatedAt))
		}
	}

	if inc.Users {
		for _, u := range snap.Users {
			writeInsert(buf, "user",
				[]string{"id", "email", "name", "role", "created_at"},
				quoteStr(u.ID), quoteStr(u.Email), quoteStr(u.Name), quoteStr(u.Role), quoteTime(u.CreatedAt))
		}
	}

	if inc.Settings {
		for _, s := range snap.Settings {
			writeInsert(buf, "setting",
				[]string{"key", "value", "updated_at"},
				quoteStr(s.Key), quoteStr(s.Value), quoteTime(s.UpdatedAt))
		}
	}

	buf.WriteString("COMMIT;\n")
	return buf.Bytes(), nil
}

// Deserialize is not implemented: the script format is write-only until a
// statement parser exists.
func (sqlFormat) Deserialize([]byte) (*database.Snapshot, error) {
	return nil, fault.New(fault.InvalidFormat, "restore from sql backups is not implemented")
}

func writeInsert(buf *bytes.Buffer, table string, columns []string, values ...string) {
	fmt.Fprintf(buf, "INSERT INTO %s (%s) VALUES (%s);\n",
		table, strings.Join(columns, ", "), strings.Join(values, ", "))
}

// quoteStr escapes a text value per SQL rules: single quotes are doubled.
func quoteStr(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteTime(t time.Time) string {
	return quoteStr(t.UTC().Format(time.RFC3339Nano))
}
