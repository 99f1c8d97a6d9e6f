package store

// migrations are applied in order; index i is schema version i+1.
var migrations = []string{
	`CREATE TABLE versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		protocol INTEGER NOT NULL DEFAULT 47
	);
	CREATE TABLE categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);
	CREATE TABLE servers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		user_id INTEGER NOT NULL,
		is_premium INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX idx_servers_name ON servers (lower(name));
	CREATE INDEX idx_servers_user ON servers (user_id);
	CREATE TABLE servers_info (
		server_id INTEGER PRIMARY KEY REFERENCES servers (id) ON DELETE CASCADE,
		address TEXT NOT NULL,
		min_version INTEGER NOT NULL REFERENCES versions (id),
		max_version INTEGER NOT NULL REFERENCES versions (id)
	);
	CREATE TABLE server_categories (
		server_id INTEGER NOT NULL REFERENCES servers (id) ON DELETE CASCADE,
		category_id INTEGER NOT NULL REFERENCES categories (id) ON DELETE CASCADE,
		PRIMARY KEY (server_id, category_id)
	);`,

	`CREATE TABLE players_graph (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		server_id INTEGER NOT NULL REFERENCES servers (id) ON DELETE CASCADE,
		players_online INTEGER NOT NULL,
		date TEXT NOT NULL
	);
	CREATE INDEX idx_players_graph_server ON players_graph (server_id, date);`,
}
