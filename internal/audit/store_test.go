package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/joeblack2k/openclaw-studio-sub002/internal/approval"

	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(db)
}

func record(id string, decidedAtMS int64) approval.DecisionRecord {
	return approval.DecisionRecord{
		ApprovalID:  id,
		AgentID:     "agent-1",
		Command:     "rm -rf ./build",
		Decision:    approval.DecisionAllowOnce,
		Outcome:     "applied",
		DecidedAtMS: decidedAtMS,
	}
}

func TestStore_RecordAndList(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	for _, rec := range []approval.DecisionRecord{
		record("a1", 1000),
		record("a2", 3000),
		record("a3", 2000),
	} {
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("Record(%s): %v", rec.ApprovalID, err)
		}
	}

	records, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	// Newest first.
	if records[0].ApprovalID != "a2" || records[2].ApprovalID != "a1" {
		t.Fatalf("order = [%s %s %s], want [a2 a3 a1]",
			records[0].ApprovalID, records[1].ApprovalID, records[2].ApprovalID)
	}
	if records[0].Decision != approval.DecisionAllowOnce || records[0].Outcome != "applied" {
		t.Fatalf("record = %+v, want allow-once applied", records[0])
	}
}

func TestStore_ListLimit(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		if err := s.Record(ctx, record("a", 1000+i)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	records, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}

	if records, _ := s.List(ctx, 0); records != nil {
		t.Fatal("List(0) returned records")
	}
}

func TestStore_DeleteOlderThan(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	for _, rec := range []approval.DecisionRecord{
		record("a1", 1000),
		record("a2", 2000),
		record("a3", 3000),
	} {
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	n, err := s.DeleteOlderThan(ctx, 2500)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted = %d, want 2", n)
	}

	records, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 || records[0].ApprovalID != "a3" {
		t.Fatalf("remaining = %v, want only a3", records)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := migrate(db); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := migrate(db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
