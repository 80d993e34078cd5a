package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create kv",
		SQL: `
			CREATE TABLE kv (
				key        TEXT PRIMARY KEY,
				value      BLOB NOT NULL,
				updated_at TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 2,
		Name:    "create activity log",
		SQL: `
			CREATE TABLE activities (
				seq             INTEGER PRIMARY KEY AUTOINCREMENT,
				activity_id     TEXT NOT NULL DEFAULT '',
				direction       TEXT NOT NULL,
				type            TEXT NOT NULL,
				conversation_id TEXT NOT NULL,
				from_id         TEXT NOT NULL DEFAULT '',
				text            TEXT NOT NULL DEFAULT '',
				payload         TEXT NOT NULL,
				created_at      TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_activities_conversation ON activities (conversation_id, seq);
		`,
	},
}
