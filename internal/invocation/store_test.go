package invocation

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"testing"
	"time"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/internal/storage/sqltest"
)

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)
	invocations := []*Invocation{
		{ID: "i1", Tool: "get_address", Status: StatusPending},
		{ID: "i2", Tool: "sign_message", Status: StatusPending},
		{ID: "i3", Tool: "sign_message", Status: StatusPending},
	}
	for _, inv := range invocations {
		if err := store.Create(ctx, inv); err != nil {
			t.Fatalf("create %s: %v", inv.ID, err)
		}
	}
	if err := store.Create(ctx, &Invocation{ID: "i1"}); err != ErrConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	if err := store.MarkFailed(ctx, "i2", xerrors.CodeWalletFailure, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "i3", json.RawMessage(`"0xsig"`)); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.items["i1"].UpdatedAt = base.Unix()
	store.items["i2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.items["i3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil || len(all) != 3 || all[0].ID != "i3" {
		t.Fatalf("expected newest first, got %+v %v", all, err)
	}

	asc, _ := store.List(ctx, BuildListOptions(WithSortOrder(SortByUpdatedAsc), WithLimit(2)))
	if len(asc) != 2 || asc[0].ID != "i1" || asc[1].ID != "i2" {
		t.Fatalf("unexpected ascending page %+v", asc)
	}

	signs, _ := store.List(ctx, BuildListOptions(WithTool("sign_message"), WithStatuses(StatusFailed, "bogus")))
	if len(signs) != 1 || signs[0].ID != "i2" {
		t.Fatalf("unexpected filtered list %+v", signs)
	}

	recent, _ := store.List(ctx, BuildListOptions(WithUpdatedSince(base.Add(45*time.Second))))
	if len(recent) != 1 || recent[0].ID != "i3" {
		t.Fatalf("unexpected recent list %+v", recent)
	}

	paged, _ := store.List(ctx, BuildListOptions(WithOffset(5)))
	if len(paged) != 0 {
		t.Fatalf("offset past end should be empty, got %d", len(paged))
	}

	stats, _ := store.Stats(ctx, BuildListOptions())
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.OldestUpdatedAt != base.Unix() || stats.NewestUpdatedAt != base.Add(60*time.Second).Unix() {
		t.Fatalf("unexpected stats range %+v", stats)
	}
}

func TestMemoryStoreClaim(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Claim(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	_ = store.Create(ctx, &Invocation{ID: "i1", Tool: "echo", Status: StatusPending})

	inv, err := store.Claim(ctx, "i1")
	if err != nil || inv.Status != StatusRunning || inv.Attempts != 1 {
		t.Fatalf("unexpected claim %+v %v", inv, err)
	}
	if _, err := store.Claim(ctx, "i1"); err != ErrConflict {
		t.Fatalf("running invocation must not be claimed twice, got %v", err)
	}
	_ = store.MarkSucceeded(ctx, "i1", nil)
	if _, err := store.Claim(ctx, "i1"); err != ErrFinished {
		t.Fatalf("finished invocation must not be claimed, got %v", err)
	}
}

var invocationColumns = []string{"id", "tool", "params", "status", "attempts", "last_error", "error_code", "result", "created_at", "updated_at"}

func row(id, status string, attempts int64, result []byte) []driver.Value {
	return []driver.Value{id, "sign_message", []byte(`{"message":"hi"}`), status, attempts, "", "", result, int64(100), int64(200)}
}

func TestMySQLStoreCreateAndClaim(t *testing.T) {
	db, script := sqltest.Open(t,
		sqltest.Exec(`INSERT INTO invocations
        (id, tool, params, status, attempts, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, '', '', ?, ?)`, 1),
		sqltest.Exec(`UPDATE invocations SET status = ?, attempts = attempts + 1, updated_at = ? WHERE id = ? AND status = ?`, 1),
		sqltest.Query(selectColumns+` WHERE id = ?`, invocationColumns, row("inv-1", "running", 1, nil)),
		sqltest.Exec(`UPDATE invocations SET status = ?, result = ?, last_error = '', error_code = '', updated_at = ? WHERE id = ?`, 1),
		sqltest.Exec(`UPDATE invocations SET status = ?, attempts = attempts + 1, updated_at = ? WHERE id = ? AND status = ?`, 0),
		sqltest.Query(selectColumns+` WHERE id = ?`, invocationColumns, row("inv-1", "succeeded", 1, []byte(`"0xsig"`))),
	)
	store, err := NewMySQLStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	store.now = func() time.Time { return time.Unix(200, 0) }
	ctx := context.Background()

	if err := store.Create(ctx, &Invocation{ID: "inv-1", Tool: "sign_message", Status: StatusPending}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if args := script.Args(0); len(args) != 7 || args[2] != "{}" || args[3] != "pending" {
		t.Fatalf("unexpected insert args %v", args)
	}

	inv, err := store.Claim(ctx, "inv-1")
	if err != nil || inv.Status != StatusRunning || string(inv.Params) != `{"message":"hi"}` || inv.Result != nil {
		t.Fatalf("unexpected claim %+v %v", inv, err)
	}
	if err := store.MarkSucceeded(ctx, "inv-1", json.RawMessage(`"0xsig"`)); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	inv, err = store.Claim(ctx, "inv-1")
	if err != ErrFinished || string(inv.Result) != `"0xsig"` {
		t.Fatalf("expected finished invocation, got %+v %v", inv, err)
	}
	script.AssertConsumed(t)
}

func TestMySQLStoreGetMissingAndStats(t *testing.T) {
	db, script := sqltest.Open(t,
		sqltest.Query(selectColumns+` WHERE id = ?`, invocationColumns),
		sqltest.Query("", []string{"total", "pending", "running", "succeeded", "failed", "oldest", "newest"},
			[]driver.Value{int64(3), int64(1), int64(0), int64(1), int64(1), int64(10), int64(30)}),
	)
	store, _ := NewMySQLStore(db)
	ctx := context.Background()

	if _, err := store.Get(ctx, "nope"); err != ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	stats, err := store.Stats(ctx, BuildListOptions(WithTool("sign_message"), WithStatuses(StatusFailed)))
	if err != nil || stats.Total != 3 || stats.NewestUpdatedAt != 30 {
		t.Fatalf("unexpected stats %+v %v", stats, err)
	}
	if args := script.Args(1); len(args) != 6 || args[4] != "failed" || args[5] != "sign_message" {
		t.Fatalf("unexpected stats args %v", args)
	}
	script.AssertConsumed(t)
}

func TestBuildFilterClause(t *testing.T) {
	clause, args := buildFilterClause(BuildListOptions(
		WithStatuses(StatusPending, StatusRunning),
		WithTool("get_balance"),
		WithUpdatedSince(time.Unix(10, 0)),
		WithUpdatedUntil(time.Unix(20, 0)),
	))
	want := "status IN (?,?) AND tool = ? AND updated_at >= ? AND updated_at <= ?"
	if clause != want {
		t.Fatalf("unexpected clause %q", clause)
	}
	if len(args) != 5 || args[2] != "get_balance" || args[3] != int64(10) {
		t.Fatalf("unexpected args %v", args)
	}
	if clause, args := buildFilterClause(BuildListOptions()); clause != "" || args != nil {
		t.Fatalf("expected empty clause")
	}
}
