package history

// Schema creates the message table. Messages of one key are ordered by seq.
const Schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	conv_key   TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (conv_key, seq)
);

CREATE INDEX IF NOT EXISTS idx_messages_key ON messages (conv_key, seq);
`
