package shared

import (
	"testing"
)

func TestMigrationRunner(t *testing.T) {
	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		if len(migrations) == 0 {
			t.Fatal("expected at least one migration")
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}

		for _, m := range migrations {
			if m.Up == "" {
				t.Errorf("migration version %d missing up SQL", m.Version)
			}
			if m.Down == "" {
				t.Errorf("migration version %d missing down SQL", m.Version)
			}
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()
		ConfigureDatabase(db, 1, 1)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		if err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}
		if count == 0 {
			t.Error("expected at least one migration to be applied")
		}

		_, err = db.Exec("SELECT 1 FROM records LIMIT 1")
		if err != nil {
			t.Errorf("records table should exist after migrations: %v", err)
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		var newCount int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&newCount)
		if err != nil {
			t.Fatalf("failed to query schema_migrations after rollback: %v", err)
		}
		if newCount >= count {
			t.Errorf("expected migration count to decrease after rollback, got %d (was %d)", newCount, count)
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()
		ConfigureDatabase(db, 1, 1)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations first time: %v", err)
		}

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations second time: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		if err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}

		migrations, _ := loadMigrations()
		if count != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), count)
		}
	})

	t.Run("Migrations Status", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()
		ConfigureDatabase(db, 1, 1)

		before, err := Migrations(db)
		if err != nil {
			t.Fatalf("failed to list migrations: %v", err)
		}
		for _, m := range before {
			if m.Applied {
				t.Errorf("migration %d should not be applied yet", m.Version)
			}
			if m.Name == "" {
				t.Errorf("migration %d should carry a name", m.Version)
			}
		}

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		after, err := Migrations(db)
		if err != nil {
			t.Fatalf("failed to list migrations: %v", err)
		}
		for _, m := range after {
			if !m.Applied {
				t.Errorf("migration %d should be applied", m.Version)
			}
		}
	})

	t.Run("OpenDatabase In Memory", func(t *testing.T) {
		db, err := OpenDatabase(DatabaseConfig{Path: ":memory:"})
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		var value int
		if err := db.QueryRow("SELECT value FROM records_sequence WHERE id = 1").Scan(&value); err != nil {
			t.Fatalf("expected seeded sequence row: %v", err)
		}
		if value != 0 {
			t.Errorf("expected sequence to start at 0, got %d", value)
		}
	})

	t.Run("Comment With Semicolon", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		script := `-- two tables; the second one references nothing
CREATE TABLE a (id INTEGER PRIMARY KEY); -- trailing; comment
-- rowid is not stable; keep a column
CREATE TABLE b (id INTEGER PRIMARY KEY);`

		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("failed to begin: %v", err)
		}
		if err := execStatements(tx, script); err != nil {
			tx.Rollback()
			t.Fatalf("expected script to run, got %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("failed to commit: %v", err)
		}

		for _, table := range []string{"a", "b"} {
			var name string
			err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
			if err != nil {
				t.Errorf("expected table %s to exist: %v", table, err)
			}
		}
	})
}
