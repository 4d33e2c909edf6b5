package serializer

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/stockvault/backup/database"
	"github.com/stockvault/backup/fault"
)

// documentVersion is bumped when the document layout changes incompatibly.
const documentVersion = "1.0"

type jsonFormat struct{}

type document struct {
	Metadata  documentMetadata    `json:"metadata"`
	Items     []database.Item     `json:"items"`
	AuditLogs []database.AuditLog `json:"auditLogs,omitempty"`
	Users     []database.User     `json:"users,omitempty"`
	Settings  []database.Setting  `json:"settings,omitempty"`
}

type documentMetadata struct {
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"generatedAt"`
	RecordCount int64     `json:"recordCount"`
}

func (jsonFormat) Name() database.BackupFormat { return database.FormatJSON }
func (jsonFormat) Ext() string                 { return "json" }

func (jsonFormat) Serialize(snap *database.Snapshot, inc database.Inclusions) ([]byte, error) {
	doc := document{
		Metadata: documentMetadata{
			Version:     documentVersion,
			GeneratedAt: snap.FetchedAt,
			RecordCount: snap.IncludedCount(inc),
		},
		Items: snap.Items,
	}
	if inc.AuditLogs {
		doc.AuditLogs = snap.AuditLogs
	}
	if inc.Users {
		doc.Users = snap.Users
	}
	if inc.Settings {
		doc.Settings = snap.Settings
	}

	return json.MarshalIndent(doc, "", "  ")
}

func (jsonFormat) Deserialize(data []byte) (*database.Snapshot, error) {
	doc := document{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fault.Wrap(fault.InvalidFormat, "could not parse backup document", err)
	}
	if doc.Metadata.Version == "" {
		return nil, fault.New(fault.InvalidFormat, "backup document has no metadata block")
	}

	return &database.Snapshot{
		Items:     doc.Items,
		AuditLogs: doc.AuditLogs,
		Users:     doc.Users,
		Settings:  doc.Settings,
		FetchedAt: doc.Metadata.GeneratedAt,
	}, nil
}
