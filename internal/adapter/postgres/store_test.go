package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planforge/planforge/internal/adapter/postgres"
	"github.com/planforge/planforge/internal/domain/session"
)

func setupStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}
	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return postgres.NewStore(pool)
}

func createTestSession(t *testing.T, store *postgres.Store) *session.Session {
	t.Helper()
	ctx := context.Background()
	sess := &session.Session{
		IssueKey:    "PROJ-901",
		RAGStoreIDs: []string{"docs"},
		Status:      session.StatusPending,
	}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	t.Cleanup(func() { _ = store.DeleteSession(context.Background(), sess.ID) })
	return sess
}

func TestStore_SessionLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	sess := createTestSession(t, store)

	got, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.IssueKey != "PROJ-901" || got.Status != session.StatusPending {
		t.Fatalf("got %q/%q, want PROJ-901/pending", got.IssueKey, got.Status)
	}

	if err := store.UpdateSessionStatus(ctx, sess.ID, session.StatusProcessing, "retrieving context", ""); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, err = store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Status != session.StatusProcessing || got.ProgressMessage != "retrieving context" {
		t.Fatalf("got %q/%q after update", got.Status, got.ProgressMessage)
	}

	for i, content := range []string{"analyzing ticket", "drafting refinement"} {
		stored, err := store.AppendMessage(ctx, &session.Message{
			SessionID: sess.ID,
			Role:      session.RoleAgent,
			Content:   content,
		})
		if err != nil {
			t.Fatalf("append message %d: %v", i, err)
		}
		if stored.Seq != i+1 {
			t.Fatalf("message %d got seq %d, want %d", i, stored.Seq, i+1)
		}
	}

	_, delta, total, err := store.UpdatesSince(ctx, sess.ID, 1)
	if err != nil {
		t.Fatalf("updates since: %v", err)
	}
	if total != 2 || len(delta) != 1 || delta[0].Seq != 2 {
		t.Fatalf("got total=%d len=%d, want total=2 len=1 seq=2", total, len(delta))
	}

	if err := store.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.GetSession(ctx, sess.ID); err == nil {
		t.Fatal("expected not-found after delete")
	}
}

// The watermark poll must see the message count and the log tail from one
// snapshot: a delta that runs past the reported total would make a client
// advance its watermark beyond messages it was never delivered.
func TestStore_UpdatesSinceSnapshotConsistent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	sess := createTestSession(t, store)

	const want = 120
	done := make(chan error, 1)
	go func() {
		for i := 0; i < want; i++ {
			_, err := store.AppendMessage(ctx, &session.Message{
				SessionID: sess.ID,
				Role:      session.RoleAgent,
				Content:   "progress update",
			})
			if err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	seen := map[int]bool{}
	afterSeq := 0
	deadline := time.After(30 * time.Second)
	for afterSeq < want {
		select {
		case <-deadline:
			t.Fatalf("poll stalled at seq %d of %d", afterSeq, want)
		default:
		}
		_, delta, total, err := store.UpdatesSince(ctx, sess.ID, afterSeq)
		if err != nil {
			t.Fatalf("updates since %d: %v", afterSeq, err)
		}
		if len(delta) == 0 {
			continue
		}
		// Seq is gap-free, so inside one snapshot the tail ends exactly
		// at the count.
		if last := delta[len(delta)-1].Seq; last != total {
			t.Fatalf("delta ends at seq %d but total is %d", last, total)
		}
		for _, m := range delta {
			if seen[m.Seq] {
				t.Fatalf("seq %d delivered twice", m.Seq)
			}
			seen[m.Seq] = true
		}
		afterSeq = total
	}
	if err := <-done; err != nil {
		t.Fatalf("append: %v", err)
	}
	for i := 1; i <= want; i++ {
		if !seen[i] {
			t.Fatalf("seq %d never delivered", i)
		}
	}
}
