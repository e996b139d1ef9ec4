package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("uncanny_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close()

	// --- Test Scenarios ---

	id, err := s.RecordRun(ctx, Run{
		Source:   "/tmp/portrait.png",
		ImageID:  "abc",
		Width:    640,
		Height:   480,
		Faces:    2,
		Skipped:  1,
		Output:   "/tmp/modified_0.png",
		Duration: 1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("Expected a generated run ID")
	}

	fixed := uuid.New()
	if _, err := s.RecordRun(ctx, Run{ID: fixed, Source: "https://example.com/a.jpg", ImageID: "abc", Width: 200, Height: 200}); err != nil {
		t.Fatalf("RecordRun with explicit ID failed: %v", err)
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}

	var first *Run
	for i := range runs {
		if runs[i].ID == id {
			first = &runs[i]
		}
	}
	if first == nil {
		t.Fatalf("Run %s not listed", id)
	}
	if first.Faces != 2 || first.Skipped != 1 || first.Width != 640 {
		t.Errorf("Unexpected run contents: %+v", *first)
	}
	if first.Duration != 1500*time.Millisecond {
		t.Errorf("Expected duration 1.5s, got %s", first.Duration)
	}

	limited, err := s.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("ListRuns(1) failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected 1 run with limit, got %d", len(limited))
	}

	n, err := s.CountByImage(ctx, "abc")
	if err != nil {
		t.Fatalf("CountByImage failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 runs for image, got %d", n)
	}

	// gin handlers and batch workers record at the same time
	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.RecordRun(ctx, Run{Source: fmt.Sprintf("upload-%d", i), ImageID: "burst", Width: 300, Height: 300})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent RecordRun failed: %v", err)
		}
	}
	if n, err := s.CountByImage(ctx, "burst"); err != nil || n != writers {
		t.Errorf("Expected %d concurrent runs, got %d (err: %v)", writers, n, err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListRuns(ctx, 0); err == nil {
		t.Error("Expected ListRuns to fail after the table was dropped")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
