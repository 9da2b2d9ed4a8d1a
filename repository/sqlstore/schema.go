package sqlstore

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS scrape_jobs (
    id TEXT PRIMARY KEY,
    source_account TEXT NOT NULL,
    min_score INTEGER NOT NULL DEFAULT 0,
    sweep BOOLEAN NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    videos_found INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS videos (
    id TEXT PRIMARY KEY,
    source_video_id TEXT NOT NULL UNIQUE,
    source_url TEXT NOT NULL,
    source_account TEXT NOT NULL DEFAULT '',
    caption TEXT NOT NULL DEFAULT '',
    view_count INTEGER NOT NULL DEFAULT 0,
    score INTEGER,
    status TEXT NOT NULL,
    raw_file_path TEXT NOT NULL DEFAULT '',
    composed_file_path TEXT NOT NULL DEFAULT '',
    hook_text TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    destination_url TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_jobs (
    id TEXT PRIMARY KEY,
    video_id TEXT NOT NULL REFERENCES videos(id),
    status TEXT NOT NULL,
    current_step TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS source_accounts (
    id TEXT PRIMARY KEY,
    handle TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS destination_channels (
    id TEXT PRIMARY KEY,
    channel_id TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL DEFAULT '',
    access_token TEXT NOT NULL DEFAULT '',
    refresh_token TEXT NOT NULL DEFAULT '',
    token_expiry DATETIME NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_scrape_jobs_created ON scrape_jobs(created_at);
CREATE INDEX IF NOT EXISTS idx_videos_status ON videos(status);
CREATE INDEX IF NOT EXISTS idx_videos_created ON videos(created_at);
CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_video ON pipeline_jobs(video_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_pipeline_jobs_active
    ON pipeline_jobs(video_id) WHERE status IN ('pending', 'running');
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS scrape_jobs (
    id TEXT PRIMARY KEY,
    source_account TEXT NOT NULL,
    min_score INTEGER NOT NULL DEFAULT 0,
    sweep BOOLEAN NOT NULL DEFAULT FALSE,
    status TEXT NOT NULL,
    videos_found INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS videos (
    id TEXT PRIMARY KEY,
    source_video_id TEXT NOT NULL UNIQUE,
    source_url TEXT NOT NULL,
    source_account TEXT NOT NULL DEFAULT '',
    caption TEXT NOT NULL DEFAULT '',
    view_count BIGINT NOT NULL DEFAULT 0,
    score INTEGER,
    status TEXT NOT NULL,
    raw_file_path TEXT NOT NULL DEFAULT '',
    composed_file_path TEXT NOT NULL DEFAULT '',
    hook_text TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    destination_url TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_jobs (
    id TEXT PRIMARY KEY,
    video_id TEXT NOT NULL REFERENCES videos(id),
    status TEXT NOT NULL,
    current_step TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS source_accounts (
    id TEXT PRIMARY KEY,
    handle TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS destination_channels (
    id TEXT PRIMARY KEY,
    channel_id TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL DEFAULT '',
    access_token TEXT NOT NULL DEFAULT '',
    refresh_token TEXT NOT NULL DEFAULT '',
    token_expiry TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scrape_jobs_created ON scrape_jobs(created_at);
CREATE INDEX IF NOT EXISTS idx_videos_status ON videos(status);
CREATE INDEX IF NOT EXISTS idx_videos_created ON videos(created_at);
CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_video ON pipeline_jobs(video_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_pipeline_jobs_active
    ON pipeline_jobs(video_id) WHERE status IN ('pending', 'running');
`
