package headerstore

import (
	"testing"

	"bptreeidx/storage"
)

func TestInsertGetUpdateRoundTrip(t *testing.T) {
	pager := storage.NewMemPager()
	s, err := Open(pager)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.InsertRecord("employees_pk", storage.PageID(5)); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	got, ok := s.GetRootPageID("employees_pk")
	if !ok || got != 5 {
		t.Fatalf("GetRootPageID = %d, %v; want 5, true", got, ok)
	}

	if err := s.UpdateRecord("employees_pk", storage.PageID(9)); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	got, _ = s.GetRootPageID("employees_pk")
	if got != 9 {
		t.Errorf("after update, GetRootPageID = %d, want 9", got)
	}
}

func TestSurvivesReopen(t *testing.T) {
	pager := storage.NewMemPager()
	s, err := Open(pager)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.InsertRecord("orders_pk", storage.PageID(42)); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	reopened, err := Open(pager)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.GetRootPageID("orders_pk")
	if !ok || got != 42 {
		t.Errorf("GetRootPageID after reopen = %d, %v; want 42, true", got, ok)
	}
}

func TestInsertDuplicateFails(t *testing.T) {
	pager := storage.NewMemPager()
	s, _ := Open(pager)
	if err := s.InsertRecord("idx", storage.PageID(1)); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	if err := s.InsertRecord("idx", storage.PageID(2)); err == nil {
		t.Errorf("expected error inserting duplicate record name")
	}
}

func TestUpdateUnknownFails(t *testing.T) {
	pager := storage.NewMemPager()
	s, _ := Open(pager)
	if err := s.UpdateRecord("missing", storage.PageID(1)); err == nil {
		t.Errorf("expected error updating unknown record")
	}
}

func TestDeleteRecord(t *testing.T) {
	pager := storage.NewMemPager()
	s, _ := Open(pager)
	s.InsertRecord("idx", storage.PageID(1))

	if err := s.DeleteRecord("idx"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if _, ok := s.GetRootPageID("idx"); ok {
		t.Errorf("record still present after delete")
	}
}
