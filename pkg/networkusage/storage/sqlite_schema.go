package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the audit database schema.
const Schema = `
CREATE TABLE IF NOT EXISTS network_usage (
    id INTEGER PRIMARY KEY AUTOINCREMENT,

    -- Connection details
    connection_type TEXT NOT NULL,
    connection_key TEXT NOT NULL DEFAULT '',
    package_name TEXT NOT NULL,

    -- Outcome
    url TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    download_size INTEGER NOT NULL DEFAULT 0,
    upload_size INTEGER NOT NULL DEFAULT 0,

    creation_time_ms INTEGER NOT NULL,

    -- Federated compute
    fc_run_id INTEGER NOT NULL DEFAULT -1,
    policy_proto BLOB
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_network_usage_creation_time ON network_usage(creation_time_ms);
CREATE INDEX IF NOT EXISTS idx_network_usage_type ON network_usage(connection_type);
CREATE INDEX IF NOT EXISTS idx_network_usage_package ON network_usage(package_name);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const insertEntity = `
INSERT INTO network_usage (
    connection_type, connection_key, package_name,
    url, status, download_size, upload_size,
    creation_time_ms, fc_run_id, policy_proto
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectColumns = `
SELECT id, connection_type, connection_key, package_name,
    url, status, download_size, upload_size,
    creation_time_ms, fc_run_id, policy_proto
FROM network_usage
`
