package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS chargers (
	id_charger         TEXT PRIMARY KEY,
	owner_address      TEXT NOT NULL,
	wallet_address     TEXT NOT NULL,
	wallet_private_key TEXT NOT NULL,
	status             TEXT NOT NULL,
	transactions       INTEGER NOT NULL DEFAULT 0,
	income_generated   TEXT NOT NULL DEFAULT '0',
	cost_generated     TEXT NOT NULL DEFAULT '0',
	balance_total      TEXT NOT NULL DEFAULT '0',
	created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS logs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	charger_id       TEXT NOT NULL,
	message          TEXT NOT NULL,
	timestamp        TEXT NOT NULL,
	transactions     INTEGER NOT NULL,
	income_generated TEXT NOT NULL,
	cost_generated   TEXT NOT NULL,
	balance_total    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_logs_charger ON logs(charger_id, id);
`
