package main

type Command struct {
	Version struct{} `cmd:"" help:"Print version information."`
	Backup  struct {
		Name             string `help:"backup name used in the filename" short:"n" default:"backup"`
		Format           string `help:"backup format: csv, json, sql or all" short:"f" default:"json"`
		Config           string `help:"config file path" short:"c" required:""`
		Database         string `help:"database path" short:"d" required:""`
		IncludeAuditLogs bool   `help:"include audit logs in the backup"`
		IncludeUsers     bool   `help:"include user data in the backup"`
		IncludeSettings  bool   `help:"include application settings in the backup"`
		From             string `help:"only records created at or after this RFC 3339 time"`
		To               string `help:"only records created at or before this RFC 3339 time"`
		Encrypt          bool   `help:"encrypt the backup file with the master password from the environment"`
		Notes            string `help:"free-text notes stored with the backup"`
		Actor            string `help:"acting user identity" default:"cli"`
		DryRun           bool   `help:"don't write any files, just print the output"`
	} `cmd:"" help:"Create a backup of the inventory dataset."`
	Restore struct {
		ID       string `help:"backup identifier" required:""`
		Mode     string `help:"restore mode: full, merge or preview" default:"preview"`
		Config   string `help:"config file path" short:"c" required:""`
		Database string `help:"database path" short:"d" required:""`
		Actor    string `help:"acting user identity" default:"cli"`
		DryRun   bool   `help:"don't write any files, just print the output"`
	} `cmd:"" help:"Restore the dataset from a backup."`
	List struct {
		Database string `help:"database path" short:"d" required:""`
		Type     string `help:"only backups of this type: manual, automatic or pre_restore"`
		Status   string `help:"only backups with this status"`
		Limit    int    `help:"maximum number of backups to list"`
	} `cmd:"" help:"List backup records, newest first."`
	Validate struct {
		ID       string `help:"backup identifier" required:""`
		Config   string `help:"config file path" short:"c" required:""`
		Database string `help:"database path" short:"d" required:""`
		Actor    string `help:"acting user identity" default:"cli"`
	} `cmd:"" help:"Re-verify the stored checksum of a backup."`
	Delete struct {
		ID       string `help:"backup identifier" required:""`
		Config   string `help:"config file path" short:"c" required:""`
		Database string `help:"database path" short:"d" required:""`
		Actor    string `help:"acting user identity" default:"cli"`
		DryRun   bool   `help:"don't delete anything, just print the output"`
	} `cmd:"" help:"Delete a backup record and its files."`
	Clean struct {
		Config   string `help:"config file path" short:"c" required:""`
		Database string `help:"database path" short:"d" required:""`
		DryRun   bool   `help:"don't delete anything, just print the output"`
	} `cmd:"" help:"Apply retention policies to automatic backups."`
	Health struct {
		Config   string `help:"config file path" short:"c" required:""`
		Database string `help:"database path" short:"d" required:""`
	} `cmd:"" help:"Report backup health metrics and alerts."`
	Daemon struct {
		Config   string `help:"config file path" short:"c" required:""`
		Database string `help:"database path" short:"d" required:""`
		DryRun   bool   `help:"don't write any files, just print the output"`
	} `cmd:"" help:"Run the automatic backup service."`
}
