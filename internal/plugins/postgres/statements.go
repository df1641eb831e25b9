package postgres

import (
	"fmt"

	"github.com/lib/pq"
	"github.com/lychee-technology/assetio"
)

// statements are rendered once per plugin from the configured table names.
type statements struct {
	createEntities      string
	createRelationships string
	createDefaults      string

	resolve      string
	exists       string
	latestTraits string
	state        string
	lock         string
	insert       string
	related      string
	defaultRef   string
}

func newStatements(tables assetio.PostgresTableNames) (*statements, error) {
	if tables.Entities == "" || tables.Relationships == "" || tables.Defaults == "" {
		return nil, fmt.Errorf("postgres table names cannot be empty")
	}
	entities := pq.QuoteIdentifier(tables.Entities)
	relationships := pq.QuoteIdentifier(tables.Relationships)
	defaults := pq.QuoteIdentifier(tables.Defaults)

	return &statements{
		createEntities: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			path TEXT NOT NULL,
			version INTEGER NOT NULL,
			traits JSONB NOT NULL,
			restricted BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (path, version))`, entities),
		createRelationships: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			source_path TEXT NOT NULL,
			target_path TEXT NOT NULL,
			relationship JSONB NOT NULL,
			position INTEGER NOT NULL DEFAULT 0)`, relationships),
		createDefaults: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			trait_key TEXT NOT NULL,
			access TEXT NOT NULL,
			path TEXT NOT NULL,
			PRIMARY KEY (trait_key, access))`, defaults),

		resolve: fmt.Sprintf(`SELECT version, traits, restricted FROM %s
			WHERE path = $1 AND ($2 = 0 OR version = $2)
			ORDER BY version DESC LIMIT 1`, entities),
		exists: fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE path = $1)`, entities),
		latestTraits: fmt.Sprintf(`SELECT traits FROM %s WHERE path = $1
			ORDER BY version DESC LIMIT 1`, entities),
		state: fmt.Sprintf(`SELECT COUNT(*) > 0, COALESCE(BOOL_OR(restricted), FALSE), COALESCE(MAX(version), 0)
			FROM %s WHERE path = $1`, entities),
		lock:   `SELECT pg_advisory_xact_lock(hashtext($1))`,
		insert: fmt.Sprintf(`INSERT INTO %s (path, version, traits) VALUES ($1, $2, $3)`, entities),
		related: fmt.Sprintf(`SELECT r.target_path, e.traits FROM %s r
			JOIN LATERAL (SELECT traits FROM %s WHERE path = r.target_path ORDER BY version DESC LIMIT 1) e ON TRUE
			WHERE r.source_path = $1 AND r.relationship @> $2::jsonb
			ORDER BY r.position, r.target_path`, relationships, entities),
		defaultRef: fmt.Sprintf(`SELECT path FROM %s WHERE trait_key = $1 AND access = $2`, defaults),
	}, nil
}
