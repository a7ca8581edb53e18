package database

// Schemas are embedded here rather than shipped as loose .sql files so a
// deployed binary can always bootstrap its databases. All DDL is idempotent
// (IF NOT EXISTS) and Migrate may be called on every startup.

// analyticsSchema holds the append-only metric history (ProfileLedger).
// sortino and omega are nullable: both ratios are unbounded when a lookback
// window contains no losses, and NULL records that state.
const analyticsSchema = `
CREATE TABLE IF NOT EXISTS metric_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    portfolio_id INTEGER NOT NULL,
    date TEXT NOT NULL,
    volatility REAL NOT NULL DEFAULT 0,
    sharpe REAL NOT NULL DEFAULT 0,
    sortino REAL,
    calmar REAL NOT NULL DEFAULT 0,
    omega REAL,
    var_95 REAL NOT NULL DEFAULT 0,
    cvar_95 REAL NOT NULL DEFAULT 0,
    max_drawdown REAL NOT NULL DEFAULT 0,
    annualized_return REAL NOT NULL DEFAULT 0,
    beta REAL NOT NULL DEFAULT 0,
    alpha REAL NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE (portfolio_id, date)
);

CREATE INDEX IF NOT EXISTS idx_metric_snapshots_portfolio_date
    ON metric_snapshots (portfolio_id, date);
`

// configSchema holds portfolio definitions and runtime settings (ProfileStandard).
const configSchema = `
CREATE TABLE IF NOT EXISTS portfolios (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    benchmark_symbol TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS portfolio_weights (
    portfolio_id INTEGER NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
    symbol TEXT NOT NULL,
    weight REAL NOT NULL,
    PRIMARY KEY (portfolio_id, symbol)
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// cacheSchema holds ephemeral operational state (ProfileCache).
const cacheSchema = `
CREATE TABLE IF NOT EXISTS job_runs (
    id TEXT PRIMARY KEY,
    job_name TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    success INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_job_runs_name_started
    ON job_runs (job_name, started_at DESC);

CREATE TABLE IF NOT EXISTS sync_state (
    symbol TEXT PRIMARY KEY,
    last_synced_at TEXT NOT NULL,
    bars INTEGER NOT NULL DEFAULT 0
);
`

// schemaByName maps a database's configured name to its DDL.
var schemaByName = map[string]string{
	"analytics": analyticsSchema,
	"config":    configSchema,
	"cache":     cacheSchema,
}
