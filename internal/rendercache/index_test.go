package rendercache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/afero"
)

// recordingRefresher checks that bytes and index are in place at the moment
// the refresh is requested.
type recordingRefresher struct {
	mu    sync.Mutex
	cache *Cache
	kinds []string
	seen  []map[string]bool
}

func (r *recordingRefresher) Refresh(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)

	state := make(map[string]bool)
	for _, rec := range r.cache.LoadIndex() {
		state[rec.ID] = r.cache.Exists(rec.ID, Thumbnail)
	}
	r.seen = append(r.seen, state)
}

func (r *recordingRefresher) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.kinds)
}

func newIndexedCache(t *testing.T) (*Cache, *recordingRefresher, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	ref := &recordingRefresher{}
	c := New(Config{Fs: fs, Root: "/cache", Category: "keyrings", Refresher: ref}, WithWidgetKind("keyring"))
	ref.cache = c
	return c, ref, fs
}

func TestLoadIndex_MissingOrCorrupt(t *testing.T) {
	c, _, fs := newIndexedCache(t)

	if got := c.LoadIndex(); got == nil || len(got) != 0 {
		t.Errorf("LoadIndex() on missing file = %#v, want empty non-nil", got)
	}

	if err := fs.MkdirAll(c.Dir(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, c.IndexPath(), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := c.LoadIndex(); len(got) != 0 {
		t.Errorf("LoadIndex() on corrupt file = %#v, want empty", got)
	}
}

func TestSaveIndex_RoundTrip(t *testing.T) {
	c, _, _ := newIndexedCache(t)

	records := []MetadataRecord{
		{ID: "a", Name: "Alpha", RelativePath: "keyrings/a.png"},
		{ID: "b", Name: "Beta", RelativePath: "keyrings/b.png"},
	}
	if err := c.SaveIndex(records); err != nil {
		t.Fatalf("SaveIndex() error = %v", err)
	}

	got := c.LoadIndex()
	if len(got) != 2 || got[0] != records[0] || got[1] != records[1] {
		t.Errorf("LoadIndex() = %+v, want %+v", got, records)
	}
}

func TestSaveIndex_JSONFieldNames(t *testing.T) {
	c, _, fs := newIndexedCache(t)
	if err := c.SaveIndex([]MetadataRecord{{ID: "a", Name: "Alpha", RelativePath: "keyrings/a.png"}}); err != nil {
		t.Fatal(err)
	}
	data, err := afero.ReadFile(fs, c.IndexPath())
	if err != nil {
		t.Fatal(err)
	}
	want := `[
  {
    "id": "a",
    "name": "Alpha",
    "relativePath": "keyrings/a.png"
  }
]`
	if string(data) != want {
		t.Errorf("index.json = %s, want %s", data, want)
	}
}

func TestSync_UpsertsAndOrdersWrites(t *testing.T) {
	c, ref, _ := newIndexedCache(t)

	c.Sync("a", "Alpha", []byte("png-a"))
	c.Sync("b", "Beta", []byte("png-b"))
	c.Sync("a", "Alpha Renamed", []byte("png-a2"))

	got := c.LoadIndex()
	if len(got) != 2 {
		t.Fatalf("LoadIndex() = %+v, want 2 records", got)
	}
	if got[0].ID != "a" || got[0].Name != "Alpha Renamed" || got[0].RelativePath != "keyrings/a.png" {
		t.Errorf("record a = %+v", got[0])
	}

	data, ok := c.Load("a", Thumbnail)
	if !ok || string(data) != "png-a2" {
		t.Errorf("Load(a) = (%q, %v), want png-a2", data, ok)
	}

	if ref.calls() != 3 {
		t.Fatalf("Refresh called %d times, want 3", ref.calls())
	}
	for i, kind := range ref.kinds {
		if kind != "keyring" {
			t.Errorf("refresh %d kind = %q, want keyring", i, kind)
		}
	}
	for i, state := range ref.seen {
		for id, exists := range state {
			if !exists {
				t.Errorf("refresh %d: index lists %q before its bytes exist", i, id)
			}
		}
	}
}

func TestSync_ConcurrentEntities(t *testing.T) {
	c, ref, _ := newIndexedCache(t)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("e%02d", i)
			c.Sync(id, id, []byte(id))
		}(i)
	}
	wg.Wait()

	records := c.LoadIndex()
	if len(records) != n {
		t.Errorf("LoadIndex() has %d records, want %d", len(records), n)
	}
	if ref.calls() != n {
		t.Errorf("Refresh called %d times, want %d", ref.calls(), n)
	}
}

func TestRemove(t *testing.T) {
	c, ref, _ := newIndexedCache(t)

	c.Sync("a", "Alpha", []byte("a"))
	c.Save([]byte("gift"), "a", Gift)
	c.Sync("b", "Beta", []byte("b"))

	c.Remove("a")

	if c.Exists("a", Thumbnail) || c.Exists("a", Gift) {
		t.Error("Remove() left cached bytes behind")
	}
	records := c.LoadIndex()
	if len(records) != 1 || records[0].ID != "b" {
		t.Errorf("LoadIndex() after Remove = %+v, want only b", records)
	}
	if ref.calls() != 3 {
		t.Errorf("Refresh called %d times, want 3", ref.calls())
	}

	// Removing an unknown entity still notifies.
	c.Remove("zzz")
	if ref.calls() != 4 {
		t.Errorf("Refresh called %d times, want 4", ref.calls())
	}
}

func TestSync_NilRefresher(t *testing.T) {
	c := New(Config{Fs: afero.NewMemMapFs(), Root: "/r", Category: "keyrings"})
	c.Sync("a", "Alpha", []byte("a"))
	if len(c.LoadIndex()) != 1 {
		t.Error("Sync() without refresher did not update index")
	}
}

func TestDiscard(t *testing.T) {
	c, ref, _ := newIndexedCache(t)

	c.Sync("a", "Alpha", []byte("a"))
	c.Save([]byte("gift"), "a", Gift)
	c.Sync("b", "Beta", []byte("b"))

	c.Discard("a", Gift)
	if c.Exists("a", Gift) {
		t.Error("Discard(Gift) left bytes behind")
	}
	if len(c.LoadIndex()) != 2 || ref.calls() != 2 {
		t.Errorf("Discard(Gift) touched the index: records=%d refreshes=%d", len(c.LoadIndex()), ref.calls())
	}

	c.Discard("a", Thumbnail)
	if c.Exists("a", Thumbnail) {
		t.Error("Discard(Thumbnail) left bytes behind")
	}
	records := c.LoadIndex()
	if len(records) != 1 || records[0].ID != "b" {
		t.Errorf("LoadIndex() after Discard = %+v, want only b", records)
	}
	if ref.calls() != 3 {
		t.Errorf("Refresh called %d times, want 3", ref.calls())
	}
	for _, seen := range ref.seen {
		for id, exists := range seen {
			if !exists {
				t.Errorf("index referenced %s without bytes at refresh time", id)
			}
		}
	}

	// Unindexed thumbnails do not trigger a refresh.
	c.Save([]byte("c"), "c", Thumbnail)
	c.Discard("c", Thumbnail)
	if ref.calls() != 3 {
		t.Errorf("Refresh called %d times after unindexed discard, want 3", ref.calls())
	}
}
