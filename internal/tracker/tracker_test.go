package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sillyreader/internal/status"
	"sillyreader/internal/storage"
	logx "sillyreader/pkg/logx"
)

type memStore struct {
	key      string
	writes   int
	writeErr error
}

func (m *memStore) ReadLastState(context.Context) (string, error) { return m.key, nil }
func (m *memStore) WriteLastState(_ context.Context, key string) error {
	m.writes++
	if m.writeErr != nil {
		return m.writeErr
	}
	m.key = key
	return nil
}
func (m *memStore) Close() error { return nil }

func TestIsNovelAndCommit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := &memStore{key: "Inactive"}
	tr := New(store, logx.Nop())
	if err := tr.Load(ctx); err != nil {
		t.Fatal(err)
	}

	inactive := status.New("Inactive", nil, "", now, now.Add(time.Hour))
	active := status.New("Active", []string{"Double Jellybeans"}, "", now, now.Add(time.Hour))

	if tr.IsNovel(inactive) {
		t.Fatal("persisted state reported as novel")
	}
	if !tr.IsNovel(active) {
		t.Fatal("transition not reported as novel")
	}
	if err := tr.Commit(ctx, active); err != nil {
		t.Fatal(err)
	}
	if store.key != "Active" || tr.Last() != "Active" {
		t.Fatalf("store=%q last=%q", store.key, tr.Last())
	}
	if tr.IsNovel(active) {
		t.Fatal("committed state still novel")
	}
}

func TestFetchErrorCodesAreDistinct(t *testing.T) {
	now := time.Now()
	tr := New(&memStore{}, logx.Nop())
	_ = tr.Load(context.Background())
	e503 := status.Failed(503, errors.New("unavailable"), now)
	e502 := status.Failed(502, errors.New("bad gateway"), now)

	_ = tr.Commit(context.Background(), e503)
	if tr.IsNovel(e503) {
		t.Fatal("same error code should not be novel")
	}
	if !tr.IsNovel(e502) {
		t.Fatal("different error code should be novel")
	}
}

func TestCommitWriteFailureStillAdvances(t *testing.T) {
	store := &memStore{writeErr: errors.New("disk full")}
	tr := New(store, logx.Nop())
	st := status.New("Reward", nil, "Double Jellybeans", time.Now(), time.Now().Add(time.Hour))

	if err := tr.Commit(context.Background(), st); err == nil {
		t.Fatal("expected write error")
	}
	if tr.IsNovel(st) {
		t.Fatal("in-memory key should advance despite write failure")
	}
}

func TestSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lastState")
	open := func() (*Tracker, storage.StateStore) {
		st, err := storage.Open(ctx, storage.Config{Driver: "file", Path: path}, logx.Nop())
		if err != nil {
			t.Fatal(err)
		}
		tr := New(st, logx.Nop())
		if err := tr.Load(ctx); err != nil {
			t.Fatal(err)
		}
		return tr, st
	}

	tr, st := open()
	cooling := status.New("Inactive", []string{"Double Drop"}, "", time.Now(), time.Now().Add(time.Hour))
	if err := tr.Commit(ctx, cooling); err != nil {
		t.Fatal(err)
	}
	_ = st.Close()

	tr2, st2 := open()
	defer st2.Close()
	if tr2.IsNovel(cooling) {
		t.Fatal("state lost across restart")
	}
}
