package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/josh-kwaku/payout-ledger/internal/repository"
	"github.com/josh-kwaku/payout-ledger/migrations"
)

const (
	templateDB = "payouts_template"
	dbUser     = "test"
	dbPassword = "test"
)

// One container per test binary. Each test gets its own database cloned
// from a migrated template, so tests never see each other's rows.
var (
	serverOnce sync.Once
	server     *pgServer
	serverErr  error
)

type pgServer struct {
	host  string
	port  string
	admin *sql.DB
}

func (s *pgServer) dsn(dbName string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPassword, s.host, s.port, dbName)
}

func startServer() (*pgServer, error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase(templateDB),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return nil, fmt.Errorf("container port: %w", err)
	}
	s := &pgServer{host: host, port: port.Port()}

	tmpl, err := sql.Open("postgres", s.dsn(templateDB))
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	_, err = repository.Migrate(ctx, tmpl, migrations.FS)
	tmpl.Close()
	if err != nil {
		return nil, fmt.Errorf("migrate template: %w", err)
	}

	// CREATE DATABASE ... TEMPLATE needs the template to have no sessions,
	// so admin work happens from the maintenance database.
	s.admin, err = sql.Open("postgres", s.dsn("postgres"))
	if err != nil {
		return nil, fmt.Errorf("open admin: %w", err)
	}
	s.admin.SetMaxOpenConns(1)
	return s, nil
}

// SetupTestDB returns a connection to a fresh, fully migrated database.
// The database is dropped when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test: needs docker")
	}

	serverOnce.Do(func() { server, serverErr = startServer() })
	if serverErr != nil {
		t.Fatalf("postgres: %v", serverErr)
	}

	name := "t_" + randomSuffix(t)
	if _, err := server.admin.Exec(fmt.Sprintf(`CREATE DATABASE %s TEMPLATE %s`, name, templateDB)); err != nil {
		t.Fatalf("create database %s: %v", name, err)
	}

	db, err := sql.Open("postgres", server.dsn(name))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
		if _, err := server.admin.Exec(fmt.Sprintf(`DROP DATABASE IF EXISTS %s WITH (FORCE)`, name)); err != nil {
			t.Logf("drop database %s: %v", name, err)
		}
	})

	return db
}

func randomSuffix(t *testing.T) string {
	t.Helper()
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("random suffix: %v", err)
	}
	return hex.EncodeToString(b)
}
