package store

// Schema contains the complete DDL for the ledger tables.
const Schema = `
-- One row per pipeline invocation
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    baseline_branch TEXT NOT NULL,
    baseline_commit TEXT NOT NULL DEFAULT '',
    feature_branch  TEXT NOT NULL,
    feature_commit  TEXT NOT NULL DEFAULT '',
    threshold       REAL NOT NULL,
    status          TEXT NOT NULL DEFAULT 'running',
    error           TEXT NOT NULL DEFAULT '',
    started_at      INTEGER NOT NULL,
    finished_at     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

-- Capture of one side (baseline or feature) of a run
CREATE TABLE IF NOT EXISTS branch_runs (
    id              TEXT PRIMARY KEY,
    run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    side            TEXT NOT NULL CHECK (side IN ('baseline', 'feature')),
    branch          TEXT NOT NULL,
    commit_hash     TEXT NOT NULL,
    version         TEXT NOT NULL DEFAULT '',
    discovered      INTEGER NOT NULL DEFAULT 0,
    unprocessed     TEXT NOT NULL DEFAULT '[]',
    started_at      INTEGER NOT NULL,
    finished_at     INTEGER NOT NULL,
    UNIQUE (run_id, side)
);

-- Processed components of a branch run
CREATE TABLE IF NOT EXISTS captures (
    branch_run_id   TEXT NOT NULL REFERENCES branch_runs(id) ON DELETE CASCADE,
    component_id    TEXT NOT NULL,
    attempts        INTEGER NOT NULL,
    degraded        INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (branch_run_id, component_id)
);

-- Changeset entries, kept in changeset order
CREATE TABLE IF NOT EXISTS changes (
    run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position        INTEGER NOT NULL,
    component_id    TEXT NOT NULL,
    status          TEXT NOT NULL CHECK (status IN ('ok', 'added', 'deleted', 'changed')),
    pixel_diff      INTEGER NOT NULL DEFAULT 0,
    error           TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, component_id)
);
CREATE INDEX IF NOT EXISTS idx_changes_status ON changes(run_id, status);
`
