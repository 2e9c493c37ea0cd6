package store

import "fmt"

// migrate applies the schema at boot. Table creation uses "create table if
// not exists"; additive columns are applied by checking PRAGMA table_info
// before issuing "alter table ... add column", so every step is safe to
// run again on an already-migrated database.
func (c *conn) migrate() error {
	if _, err := c.db.Exec(`
		create table if not exists devices (
			account_address   text not null,
			device_id         text not null,
			device_name       text not null,
			device_type       text not null,

			credential_id     text not null,
			raw_id            text not null,
			public_key_x      text not null,
			public_key_y      text not null,

			attestation_object text,
			client_data_json    text,

			is_active integer not null default 0,

			proposal_hash     text,
			proposal_tx_hash  text,

			attestation_meta text not null default '{}',
			mds_meta         text not null default '{}',

			created_at  timestamp not null,
			updated_at  timestamp not null,
			last_used_at timestamp,

			primary key (account_address, device_id)
		);
	`); err != nil {
		return fmt.Errorf("create devices: %w", err)
	}

	if _, err := c.db.Exec(`
		create table if not exists sessions (
			session_id      text not null primary key,
			account_address text not null,
			owner_address   text not null,
			signature       text not null,
			status          text not null,
			device_data     text,
			created_at      timestamp not null,
			completed_at    timestamp,
			expires_at      timestamp not null
		);
	`); err != nil {
		return fmt.Errorf("create sessions: %w", err)
	}

	if _, err := c.db.Exec(`
		create table if not exists mds_cache (
			id           integer primary key autoincrement,
			payload      blob not null,
			last_updated timestamp not null,
			next_update  timestamp not null,
			blob_number  integer not null,
			is_current   integer not null default 0
		);
	`); err != nil {
		return fmt.Errorf("create mds_cache: %w", err)
	}

	indices := []string{
		`create index if not exists idx_devices_account on devices (account_address);`,
		`create index if not exists idx_devices_account_active on devices (account_address, is_active);`,
		`create index if not exists idx_devices_credential on devices (credential_id);`,
		`create index if not exists idx_devices_proposal on devices (proposal_hash);`,
		`create index if not exists idx_sessions_status on sessions (status);`,
		`create index if not exists idx_sessions_expires on sessions (expires_at);`,
	}
	for _, stmt := range indices {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	return c.addColumnsIfMissing()
}

// columnMigration describes one additive column to apply if it doesn't
// already exist on table.
type columnMigration struct {
	table  string
	column string
	ddl    string
}

// additiveColumns lists columns introduced after the original table
// definitions above. New columns should be appended here rather than
// added to the create-table statements, so existing databases pick them
// up idempotently at boot.
var additiveColumns = []columnMigration{
	// (none yet -- the base schema above already includes every column
	// the current data model needs. This list exists so future schema
	// growth has a place to land without touching the create-table DDL.)
}

func (c *conn) addColumnsIfMissing() error {
	for _, m := range additiveColumns {
		exists, err := c.columnExists(m.table, m.column)
		if err != nil {
			return fmt.Errorf("check column %s.%s: %w", m.table, m.column, err)
		}
		if exists {
			continue
		}
		stmt := fmt.Sprintf("alter table %s add column %s;", m.table, m.ddl)
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", m.table, m.column, err)
		}
	}
	return nil
}

func (c *conn) columnExists(table, column string) (bool, error) {
	rows, err := c.db.Query(fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notnull    int
			dfltValue  interface{}
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
