package upload

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/agentboard-ai/agentboard/internal/event"
)

// testClock is an injectable clock advanced by hand.
type testClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newTestClock() *testClock {
	return &testClock{cur: time.Now()}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, clock *testClock) (*Manager, *event.Bus) {
	t.Helper()
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	opts := Options{
		BaseDir:     t.TempDir(),
		Bus:         bus,
		IdleTimeout: time.Hour,
		// Long interval: tests drive evictIdle directly.
		SweepInterval: time.Hour,
	}
	if clock != nil {
		opts.Now = clock.now
	}

	m, err := NewManager(opts)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(m.Close)
	return m, bus
}

func stage(t *testing.T, dir string, files ...string) {
	t.Helper()
	for _, f := range files {
		path := filepath.Join(dir, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestManager_CreateAndGet(t *testing.T) {
	m, _ := newTestManager(t, nil)

	s, err := m.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if s.ID == "" {
		t.Error("session has no ID")
	}
	if _, err := os.Stat(s.Dir); err != nil {
		t.Errorf("staging directory not created: %v", err)
	}

	got, ok := m.Get(s.ID)
	if !ok || got.ID != s.ID {
		t.Errorf("Get returned %v, %v", got, ok)
	}
	if _, ok := m.Get("absent"); ok {
		t.Error("Get returned a session for an unknown id")
	}
}

func TestManager_ListFiles(t *testing.T) {
	m, _ := newTestManager(t, nil)

	s, _ := m.Create()
	stage(t, s.Dir, "main.go", "internal/util.go", "README.md")

	all, err := m.ListFiles(s.ID, "")
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	want := []string{"README.md", filepath.FromSlash("internal/util.go"), "main.go"}
	if !reflect.DeepEqual(all, want) {
		t.Errorf("ListFiles = %v, want %v", all, want)
	}

	goFiles, err := m.ListFiles(s.ID, "**/*.go")
	if err != nil {
		t.Fatalf("ListFiles with pattern failed: %v", err)
	}
	wantGo := []string{filepath.FromSlash("internal/util.go"), "main.go"}
	if !reflect.DeepEqual(goFiles, wantGo) {
		t.Errorf("ListFiles(**/*.go) = %v, want %v", goFiles, wantGo)
	}
}

func TestManager_ReleaseKeepsFiles(t *testing.T) {
	m, _ := newTestManager(t, nil)

	s, _ := m.Create()
	stage(t, s.Dir, "kept.txt")

	dir, ok := m.Release(s.ID)
	if !ok || dir != s.Dir {
		t.Fatalf("Release returned %q, %v", dir, ok)
	}

	// The session is gone but the files survive for the claimer.
	if _, ok := m.Get(s.ID); ok {
		t.Error("released session still tracked")
	}
	if _, err := os.Stat(filepath.Join(dir, "kept.txt")); err != nil {
		t.Errorf("released files deleted: %v", err)
	}

	if _, ok := m.Release(s.ID); ok {
		t.Error("double release succeeded")
	}
}

func TestManager_CancelDeletesFiles(t *testing.T) {
	m, _ := newTestManager(t, nil)

	s, _ := m.Create()
	stage(t, s.Dir, "doomed.txt")

	if !m.Cancel(s.ID) {
		t.Fatal("Cancel returned false")
	}
	if _, err := os.Stat(s.Dir); !os.IsNotExist(err) {
		t.Errorf("staging directory survived cancel: %v", err)
	}
	if m.Cancel(s.ID) {
		t.Error("double cancel succeeded")
	}
}

func TestManager_EvictsIdleSessions(t *testing.T) {
	clock := newTestClock()
	m, bus := newTestManager(t, clock)

	evicted := make(chan string, 4)
	unsub := bus.SubscribeAll(func(e event.Event) {
		if e.Type == event.UploadEvicted {
			evicted <- e.SessionKey
		}
	})
	defer unsub()

	stale, _ := m.Create()
	fresh, _ := m.Create()

	// Touching one session inside the window keeps only it alive.
	clock.advance(50 * time.Minute)
	if !m.Touch(fresh.ID) {
		t.Fatal("Touch returned false")
	}
	clock.advance(30 * time.Minute)
	m.evictIdle()

	select {
	case id := <-evicted:
		if id != stale.ID {
			t.Errorf("evicted %q, want %q", id, stale.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no eviction event published")
	}

	if _, ok := m.Get(stale.ID); ok {
		t.Error("stale session survived eviction")
	}
	if _, err := os.Stat(stale.Dir); !os.IsNotExist(err) {
		t.Error("stale staging directory survived eviction")
	}
	if _, ok := m.Get(fresh.ID); !ok {
		t.Error("fresh session was evicted")
	}
}

func TestManager_CloseDeletesEverything(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	m, err := NewManager(Options{BaseDir: t.TempDir(), Bus: bus})
	if err != nil {
		t.Fatal(err)
	}

	a, _ := m.Create()
	b, _ := m.Create()
	m.Close()

	for _, s := range []*Session{a, b} {
		if _, err := os.Stat(s.Dir); !os.IsNotExist(err) {
			t.Errorf("directory %s survived Close", s.Dir)
		}
	}
}
