package storage

// schema.go defines the database schema and migration handling.

// currentSchemaVersion is bumped whenever the schema changes.
// Migrations run in order from the stored version to the current one.
const currentSchemaVersion = 1

// initSchema creates tables if they don't exist and records the schema
// version. The devices table holds display metadata for paired devices;
// no credentials are stored.
func (s *SQLiteStore) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const schema = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS devices (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			last_seen  TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Seed the version row on first run.
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
			return err
		}
	}

	return nil
}
