package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/preop/intake/internal/domain/patient"
	"github.com/preop/intake/internal/platform/db"
)

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	ConnStr       string
	Admin         *pgxpool.Pool
	MigrationsDir string
}

var globalDB *testDB

// TestMain uses TEST_DATABASE_URL when set and otherwise starts a throwaway
// container. Without either the suite is skipped.
func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr := os.Getenv("TEST_DATABASE_URL")
	cleanup := func() {}
	if connStr == "" && os.Getenv("PREOP_INTEGRATION_DOCKER") != "" {
		var err error
		connStr, cleanup, err = startPostgresContainer(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
			os.Exit(1)
		}
	}
	if connStr == "" {
		fmt.Fprintln(os.Stderr, "skipping integration tests: TEST_DATABASE_URL not set")
		os.Exit(0)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "create pool: %v\n", err)
		os.Exit(1)
	}

	globalDB = &testDB{ConnStr: connStr, Admin: pool, MigrationsDir: findMigrationsDir()}
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// newSchemaPool creates an isolated schema, migrates it and returns a pool
// whose connections resolve unqualified tables there.
func newSchemaPool(t *testing.T, prefix string) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	schema := fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(uuid.New().String()[:8], "-", ""))

	if _, err := globalDB.Admin.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema %s: %v", schema, err)
	}
	t.Cleanup(func() {
		if _, err := globalDB.Admin.Exec(context.Background(),
			"DROP SCHEMA IF EXISTS "+pgx.Identifier{schema}.Sanitize()+" CASCADE"); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, err)
		}
	})

	if _, err := db.NewMigrator(globalDB.Admin, globalDB.MigrationsDir).Up(ctx, schema); err != nil {
		t.Fatalf("migrate %s: %v", schema, err)
	}

	cfg, err := pgxpool.ParseConfig(globalDB.ConnStr)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("schema pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func createTestPatient(t *testing.T, ctx context.Context, repo patient.Repository, name, regID, date string) *patient.Patient {
	t.Helper()
	p := &patient.Patient{
		Name:           name,
		RegistrationID: regID,
		Phone:          "010-1234-5678",
		Gender:         "F",
		Age:            "45",
		DoctorName:     "이의사",
		SurgeryName:    "Arthroscopy",
		SurgeryDate:    date,
		Token:          patient.NewToken(),
	}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create test patient: %v", err)
	}
	return p
}
