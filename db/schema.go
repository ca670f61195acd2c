package db

// schema is executed by InitDB. Every natural key that guards idempotent
// replay is enforced here rather than in application code.
const schema = `
CREATE TABLE IF NOT EXISTS sync_cursors (
	contract_name     TEXT PRIMARY KEY,
	last_synced_block BIGINT NOT NULL DEFAULT 0,
	status            TEXT NOT NULL DEFAULT 'idle',
	error_message     TEXT NOT NULL DEFAULT '',
	last_sync_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS agents (
	id              TEXT PRIMARY KEY,
	agent_id        BIGINT NOT NULL UNIQUE,
	name            TEXT NOT NULL,
	wallet          TEXT NOT NULL,
	metadata_uri    TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	reputation      BIGINT NOT NULL,
	tasks_completed BIGINT NOT NULL DEFAULT 0,
	tasks_failed    BIGINT NOT NULL DEFAULT 0,
	total_revenue   NUMERIC(78,0) NOT NULL DEFAULT 0,
	shares_contract TEXT NOT NULL DEFAULT '',
	share_price     NUMERIC(78,0) NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS reputation_history (
	id           TEXT PRIMARY KEY,
	agent_id     BIGINT NOT NULL,
	old_score    BIGINT NOT NULL,
	new_score    BIGINT NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	tx_hash      TEXT NOT NULL,
	block_number BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (tx_hash, agent_id, new_score)
);

CREATE TABLE IF NOT EXISTS agent_holdings (
	id         TEXT PRIMARY KEY,
	agent_id   BIGINT NOT NULL,
	holder     TEXT NOT NULL,
	shares     NUMERIC(78,0) NOT NULL DEFAULT 0,
	cost_basis NUMERIC(78,0) NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (agent_id, holder)
);

CREATE TABLE IF NOT EXISTS share_transactions (
	id           TEXT PRIMARY KEY,
	agent_id     BIGINT NOT NULL,
	trader       TEXT NOT NULL,
	kind         TEXT NOT NULL,
	shares       NUMERIC(78,0) NOT NULL,
	value        NUMERIC(78,0) NOT NULL,
	tx_hash      TEXT NOT NULL,
	log_index    BIGINT NOT NULL,
	block_number BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS profit_distributions (
	id           TEXT PRIMARY KEY,
	agent_id     BIGINT NOT NULL,
	total        NUMERIC(78,0) NOT NULL,
	agent_share  NUMERIC(78,0) NOT NULL,
	holder_share NUMERIC(78,0) NOT NULL,
	tx_hash      TEXT NOT NULL,
	log_index    BIGINT NOT NULL,
	block_number BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS profit_claims (
	id           TEXT PRIMARY KEY,
	agent_id     BIGINT NOT NULL,
	claimer      TEXT NOT NULL,
	amount       NUMERIC(78,0) NOT NULL,
	tx_hash      TEXT NOT NULL,
	log_index    BIGINT NOT NULL,
	block_number BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	task_id        BIGINT NOT NULL UNIQUE,
	creator        TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	reward         NUMERIC(78,0) NOT NULL,
	status         TEXT NOT NULL,
	winning_bid_id BIGINT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS task_bids (
	id         TEXT PRIMARY KEY,
	task_id    BIGINT NOT NULL,
	bid_id     BIGINT NOT NULL,
	bidder     TEXT NOT NULL,
	amount     NUMERIC(78,0) NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (task_id, bid_id)
);

CREATE TABLE IF NOT EXISTS service_requests (
	id                TEXT PRIMARY KEY,
	request_id        BIGINT NOT NULL UNIQUE,
	consumer          TEXT NOT NULL,
	spec              TEXT NOT NULL DEFAULT '',
	budget            NUMERIC(78,0) NOT NULL,
	status            TEXT NOT NULL,
	accepted_offer_id BIGINT,
	dispute_reason    TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS service_offers (
	id         TEXT PRIMARY KEY,
	request_id BIGINT NOT NULL,
	offer_id   BIGINT NOT NULL,
	seller     TEXT NOT NULL,
	price      NUMERIC(78,0) NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (request_id, offer_id)
);

CREATE TABLE IF NOT EXISTS partnership_proposals (
	id           TEXT PRIMARY KEY,
	proposal_id  BIGINT NOT NULL UNIQUE,
	initiator_id BIGINT NOT NULL,
	target_id    BIGINT NOT NULL,
	split_bps    BIGINT NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	status       TEXT NOT NULL,
	counter_of   BIGINT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS partnerships (
	id                TEXT PRIMARY KEY,
	partnership_id    BIGINT NOT NULL UNIQUE,
	agent_a           BIGINT NOT NULL,
	agent_b           BIGINT NOT NULL,
	split_bps         BIGINT NOT NULL,
	status            TEXT NOT NULL,
	total_revenue     NUMERIC(78,0) NOT NULL DEFAULT 0,
	available_balance NUMERIC(78,0) NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS economy_events (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	participants TEXT[] NOT NULL DEFAULT '{}',
	amount       NUMERIC(78,0),
	tx_hash      TEXT NOT NULL DEFAULT '',
	block_number BIGINT NOT NULL DEFAULT 0,
	metadata     JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (tx_hash, block_number, type)
);

CREATE TABLE IF NOT EXISTS processed_logs (
	tx_hash    TEXT NOT NULL,
	log_index  BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS balance_cache (
	address    TEXT PRIMARY KEY,
	balance    NUMERIC(78,0) NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_task_bids_task ON task_bids (task_id);
CREATE INDEX IF NOT EXISTS idx_service_offers_request ON service_offers (request_id);
CREATE INDEX IF NOT EXISTS idx_economy_events_created ON economy_events (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reputation_history_agent ON reputation_history (agent_id);
`
