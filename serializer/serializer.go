package serializer

import (
	"github.com/stockvault/backup/database"
	"github.com/stockvault/backup/fault"
)

// Format encodes a dataset snapshot into bytes and back. Implementations own
// all quoting and escaping rules of their target format.
type Format interface {
	Name() database.BackupFormat
	// Ext is the file extension, without the dot.
	Ext() string
	Serialize(snap *database.Snapshot, inc database.Inclusions) ([]byte, error)
	// Deserialize parses data back into a snapshot. Formats without a
	// reader return an InvalidFormat fault.
	Deserialize(data []byte) (*database.Snapshot, error)
}

// ForFormat returns the codec for f.
func ForFormat(f database.BackupFormat) (Format, error) {
	switch f {
	case database.FormatCSV:
		return csvFormat{}, nil
	case database.FormatJSON:
		return jsonFormat{}, nil
	case database.FormatSQL:
		return sqlFormat{}, nil
	default:
		return nil, fault.Newf(fault.InvalidFormat, "unknown backup format %q", f)
	}
}

// All returns every codec, in the order used for format=all backups.
func All() []Format {
	return []Format{csvFormat{}, jsonFormat{}, sqlFormat{}}
}

// Expand resolves a requested format into the list of codecs to run.
func Expand(f database.BackupFormat) ([]Format, error) {
	if f == database.FormatAll {
		return All(), nil
	}
	codec, err := ForFormat(f)
	if err != nil {
		return nil, err
	}
	return []Format{codec}, nil
}
