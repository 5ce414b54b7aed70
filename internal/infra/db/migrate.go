package db

import (
	"database/sql"
)

// MigrateUp creates the schema if it does not exist. The uniqueness
// constraints on articles back the deduplicator: a fingerprint collision
// or a repeated (competitor, url) pair is rejected at the database level
// regardless of how many processes are inserting.
func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS articles (
    id           SERIAL PRIMARY KEY,
    competitor   TEXT NOT NULL,
    url          TEXT NOT NULL,
    title        TEXT NOT NULL,
    content      TEXT,
    source       TEXT NOT NULL,
    published_at TIMESTAMPTZ NOT NULL,
    fingerprint  CHAR(64) NOT NULL UNIQUE,
    collected_at TIMESTAMPTZ DEFAULT now(),
    UNIQUE (competitor, url)
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS summaries (
    id             SERIAL PRIMARY KEY,
    article_id     INTEGER NOT NULL REFERENCES articles(id),
    text           TEXT NOT NULL,
    category       VARCHAR(30) NOT NULL,
    priority_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    fallback       BOOLEAN NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    id            UUID PRIMARY KEY,
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ,
    status        VARCHAR(20) NOT NULL,
    collected     INTEGER NOT NULL DEFAULT 0,
    new_articles  INTEGER NOT NULL DEFAULT 0,
    duplicates    INTEGER NOT NULL DEFAULT 0,
    summarized    INTEGER NOT NULL DEFAULT 0,
    fallback_used INTEGER NOT NULL DEFAULT 0,
    delivered     INTEGER NOT NULL DEFAULT 0,
    errors        JSONB NOT NULL DEFAULT '[]'
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS reports (
    id            SERIAL PRIMARY KEY,
    run_id        UUID REFERENCES runs(id),
    period_start  TIMESTAMPTZ NOT NULL,
    period_end    TIMESTAMPTZ NOT NULL,
    article_count INTEGER NOT NULL DEFAULT 0,
    artifact_path TEXT NOT NULL,
    status        VARCHAR(10) NOT NULL DEFAULT 'pending',
    error_message TEXT,
    created_at    TIMESTAMPTZ DEFAULT now(),
    sent_at       TIMESTAMPTZ
)`); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_competitor ON articles(competitor)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_article_id ON summaries(article_id)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_priority ON summaries(priority_score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	return nil
}
