// Package testutil builds SQLite fixture databases for tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// FixtureSchema is the schema and data of the standard fixture database.
//
//   - simple_primary_key: id + content; content is chosen as label column
//     only through metadata.
//   - cities: id + name; "name" is picked as label column by heuristic.
//   - tags: id + tag; a two-column table with an id column.
//   - wide: three columns and no label candidate.
//   - addresses: foreign keys into cities, tags and wide.
//   - seq: n = 1..20 for row-cap tests.
var FixtureSchema = []string{
	`CREATE TABLE simple_primary_key (id INTEGER PRIMARY KEY, content TEXT)`,
	`INSERT INTO simple_primary_key VALUES (1, 'hello'), (2, 'world'), (3, '')`,

	`CREATE TABLE cities (id INTEGER PRIMARY KEY, name TEXT, population INTEGER)`,
	`INSERT INTO cities VALUES (1, 'San Francisco', 815000), (2, 'Los Angeles', 3900000), (3, 'Detroit', 670000)`,

	`CREATE TABLE tags (id INTEGER PRIMARY KEY, tag TEXT)`,
	`INSERT INTO tags VALUES (1, 'red'), (2, 'blue')`,

	`CREATE TABLE wide (id INTEGER PRIMARY KEY, a TEXT, b TEXT)`,
	`INSERT INTO wide VALUES (1, 'a1', 'b1'), (2, 'a2', 'b2')`,

	`CREATE TABLE addresses (
		id INTEGER PRIMARY KEY,
		street TEXT,
		city_id INTEGER REFERENCES cities(id),
		tag_id INTEGER REFERENCES tags(id),
		wide_id INTEGER REFERENCES wide(id)
	)`,
	`INSERT INTO addresses VALUES
		(1, '1 Main St', 1, 1, 1),
		(2, '2 Main St', 2, 2, 2),
		(3, '3 Main St', 1, 1, 1),
		(4, '4 Main St', 3, NULL, 2)`,

	`CREATE TABLE seq (n INTEGER PRIMARY KEY)`,
	`WITH RECURSIVE c(n) AS (SELECT 1 UNION ALL SELECT n + 1 FROM c WHERE n < 20)
		INSERT INTO seq SELECT n FROM c`,
}

// CreateDB creates a SQLite file named name in dir and runs statements
// against it. Returns the file path.
func CreateDB(t testing.TB, dir, name string, statements ...string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open fixture %s: %v", path, err)
	}
	defer db.Close()

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("fixture %s: %v\n%s", name, err, stmt)
		}
	}
	return path
}

// Fixtures creates the standard fixture database "fixtures.db" in a fresh
// temporary directory and returns its path.
func Fixtures(t testing.TB) string {
	t.Helper()
	return CreateDB(t, t.TempDir(), "fixtures.db", FixtureSchema...)
}

// SlowQuery never finishes on its own; it only ends when interrupted.
const SlowQuery = `WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c) SELECT count(*) FROM c`
