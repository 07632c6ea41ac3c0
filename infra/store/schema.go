package store

// Dates are stored as YYYY-MM-DD text and instants as unix nanoseconds so
// the same statements run on SQLite and PostgreSQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
        doc_type INTEGER NOT NULL,
        sequence_number BIGINT NOT NULL,
        participant_domain TEXT NOT NULL,
        direction INTEGER NOT NULL,
        period TEXT NOT NULL,
        connection_group_id TEXT NOT NULL,
        status INTEGER NOT NULL,
        creation_time BIGINT NOT NULL,
        origin_sequence_number BIGINT NOT NULL DEFAULT 0,
        conversation_id TEXT NOT NULL DEFAULT '',
        message_id TEXT,
        ptu_rows TEXT NOT NULL,
        PRIMARY KEY (doc_type, sequence_number, participant_domain)
    )`,
	`CREATE UNIQUE INDEX IF NOT EXISTS documents_message_id ON documents (message_id)`,
	`CREATE INDEX IF NOT EXISTS documents_group_period ON documents (connection_group_id, period)`,
	`CREATE TABLE IF NOT EXISTS connection_group_states (
        group_id TEXT NOT NULL,
        connection_id TEXT NOT NULL,
        valid_from BIGINT NOT NULL,
        valid_until BIGINT NOT NULL DEFAULT 0
    )`,
	`CREATE TABLE IF NOT EXISTS settlements (
        id TEXT PRIMARY KEY,
        flex_order_sequence BIGINT NOT NULL,
        participant_domain TEXT NOT NULL,
        flex_offer_sequence BIGINT NOT NULL,
        flex_request_sequence BIGINT NOT NULL DEFAULT 0,
        connection_group_id TEXT NOT NULL,
        period TEXT NOT NULL,
        created_at BIGINT NOT NULL,
        UNIQUE (flex_order_sequence, participant_domain, period)
    )`,
	`CREATE TABLE IF NOT EXISTS ptu_settlements (
        settlement_id TEXT NOT NULL REFERENCES settlements (id),
        ptu_index INTEGER NOT NULL,
        ordered_power TEXT NOT NULL,
        delivered_power TEXT NOT NULL,
        price TEXT NOT NULL,
        PRIMARY KEY (settlement_id, ptu_index)
    )`,
}
