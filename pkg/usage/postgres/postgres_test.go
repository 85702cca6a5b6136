package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/polygate-dev/polygate/pkg/usage"
)

func init() {
	// Configure testcontainers to use podman when no Docker host is set.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a connected Store.
// Tests are skipped when no container runtime is available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if testing.Short() {
		t.Skip("short mode, skipping PostgreSQL integration tests")
	}
	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	// Verify a container runtime is available.
	if _, err := exec.LookPath("podman"); err != nil {
		if _, err := exec.LookPath("docker"); err != nil {
			t.Skip("no container runtime found, skipping integration tests")
		}
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("polygate_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	t.Cleanup(store.Close)
	return store
}

func record(i int) usage.Record {
	return usage.Record{
		ID:           fmt.Sprintf("chatcmpl-%024d", i),
		Model:        "openai:gpt-4o",
		InputTokens:  i,
		OutputTokens: i * 2,
		Stream:       i%2 == 0,
		CreatedAt:    time.Unix(int64(1700000000+i), 0).UTC(),
	}
}

func TestSaveAndList(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for i := range 3 {
		if err := store.Save(ctx, record(i)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != record(2).ID {
		t.Errorf("newest = %s, want %s", got[0].ID, record(2).ID)
	}
	if got[2].InputTokens != 0 || got[2].OutputTokens != 0 {
		t.Errorf("tokens = %+v", got[2])
	}
}

func TestSaveReplayIgnored(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rec := record(1)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	replay := rec
	replay.OutputTokens = 999
	if err := store.Save(ctx, replay); err != nil {
		t.Fatalf("Save replay: %v", err)
	}

	got, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OutputTokens != rec.OutputTokens {
		t.Errorf("replay overwrote record: %+v", got)
	}
}

func TestGetNotFound(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.Get(context.Background(), "chatcmpl-missing")
	if !errors.Is(err, usage.ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestListLimit(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for i := range 5 {
		if err := store.Save(ctx, record(i)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != record(4).ID {
		t.Errorf("List(2) = %v", got)
	}
}
