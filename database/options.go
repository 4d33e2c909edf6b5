package database

import "time"

type listOptions struct {
	backupType *BackupType
	format     *BackupFormat
	status     *BackupStatus
	olderThan  *time.Time
	since      *time.Time
	limit      int
}

type ListOption func(*listOptions)

// Limit the number of backups returned.
func WithListLimit(limit int) ListOption {
	return func(o *listOptions) {
		o.limit = limit
	}
}

// Only backups of the given type.
func WithListType(t BackupType) ListOption {
	return func(o *listOptions) {
		o.backupType = &t
	}
}

// Only backups in the given format.
func WithListFormat(f BackupFormat) ListOption {
	return func(o *listOptions) {
		o.format = &f
	}
}

// Only backups with the given status.
func WithListStatus(st BackupStatus) ListOption {
	return func(o *listOptions) {
		o.status = &st
	}
}

// Only backups created strictly before cutoff.
func WithListOlderThan(cutoff time.Time) ListOption {
	return func(o *listOptions) {
		o.olderThan = &cutoff
	}
}

// Only backups created at or after since.
func WithListSince(since time.Time) ListOption {
	return func(o *listOptions) {
		o.since = &since
	}
}
