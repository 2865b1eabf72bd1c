package history

const schema = `
CREATE TABLE IF NOT EXISTS waves (
    id TEXT PRIMARY KEY,
    armed_at INTEGER NOT NULL,
    executed_at INTEGER NOT NULL,
    removed_count INTEGER NOT NULL,
    removed_bytes INTEGER NOT NULL,
    failed_count INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_waves_executed_at ON waves(executed_at);

CREATE TABLE IF NOT EXISTS wave_directories (
    wave_id TEXT NOT NULL REFERENCES waves(id),
    path TEXT NOT NULL,
    size INTEGER NOT NULL,
    mod_time INTEGER NOT NULL,
    removed INTEGER NOT NULL,
    reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_wave_directories_wave ON wave_directories(wave_id);

CREATE TABLE IF NOT EXISTS wave_volumes (
    wave_id TEXT NOT NULL REFERENCES waves(id),
    volume TEXT NOT NULL,
    total_bytes INTEGER NOT NULL,
    free_before INTEGER NOT NULL,
    free_after INTEGER,
    probe_error TEXT NOT NULL DEFAULT ''
);
`
