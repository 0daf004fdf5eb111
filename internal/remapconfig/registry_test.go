package remapconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func noopEmit(code uint16, pressed bool) {}
func noopLayer(name string, active bool) {}

func writeConfDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, contents := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadSkipsNonConfFiles(t *testing.T) {
	dir := writeConfDir(t, map[string]string{
		"a.conf": "[ids]\n0001:0001 rank=1\n",
		"README": "not a config",
	})

	r := New()
	if err := r.Load(dir, noopEmit, noopLayer); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(r.Entries()) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(r.Entries()))
	}
}

func TestLoadPushesToFront(t *testing.T) {
	dir := writeConfDir(t, map[string]string{
		"a.conf": "[ids]\n0001:0001 rank=1\n",
		"b.conf": "[ids]\n0002:0002 rank=1\n",
	})

	r := New()
	if err := r.Load(dir, noopEmit, noopLayer); err != nil {
		t.Fatalf("Load: %v", err)
	}
	entries := r.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// b.conf sorts after a.conf in directory order, so it is loaded last
	// and ends up first once pushed to the front.
	if filepath.Base(entries[0].Path) != "b.conf" {
		t.Errorf("expected b.conf pushed to front, got %s", entries[0].Path)
	}
}

func TestLoadAbortsOnParseError(t *testing.T) {
	dir := writeConfDir(t, map[string]string{
		"a.conf": "[ids]\n0001:0001 rank=1\n",
		"b.conf": "not a valid line",
	})

	r := New()
	if err := r.Load(dir, noopEmit, noopLayer); err == nil {
		t.Fatal("expected an error from the bad file")
	}
	if len(r.Entries()) != 0 {
		t.Errorf("expected registry untouched after a failed load, got %d entries", len(r.Entries()))
	}
}

func TestLoadThenReloadStagesBeforeSwapping(t *testing.T) {
	dir := writeConfDir(t, map[string]string{
		"a.conf": "[ids]\n0001:0001 rank=1\n",
	})

	r := New()
	if err := r.Load(dir, noopEmit, noopLayer); err != nil {
		t.Fatalf("initial Load: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "b.conf"), []byte("garbage"), 0644); err != nil {
		t.Fatalf("write b.conf: %v", err)
	}

	if err := r.Load(dir, noopEmit, noopLayer); err == nil {
		t.Fatal("expected the second Load to fail")
	}
	if len(r.Entries()) != 1 {
		t.Errorf("expected the original entry to survive a failed reload, got %d entries", len(r.Entries()))
	}
}

func TestLookupRankAndTieBreak(t *testing.T) {
	dir := writeConfDir(t, map[string]string{
		// 0.conf ties with b.conf at rank 2 but sorts first, so it is
		// loaded first and is encountered after b.conf in iteration order.
		"0.conf": "[ids]\n0001:0001 rank=2\n",
		"a.conf": "[ids]\n0001:0001 rank=1\n",
		"b.conf": "[ids]\n0001:0001 rank=2\n",
		"c.conf": "[ids]\n0002:0002 rank=2\n",
	})

	r := New()
	if err := r.Load(dir, noopEmit, noopLayer); err != nil {
		t.Fatalf("Load: %v", err)
	}

	id := uint32(0x0001)<<16 | uint32(0x0001)
	rank, ent := r.Lookup(id)
	if rank != 2 {
		t.Errorf("expected rank 2 (highest among matches), got %d", rank)
	}
	if ent == nil || filepath.Base(ent.Path) != "b.conf" {
		t.Errorf("expected b.conf to win, got %v", ent)
	}

	if rank, ent := r.Lookup(0xffffffff); rank != 0 || ent != nil {
		t.Errorf("expected no match for an unknown id, got (%d, %v)", rank, ent)
	}
}

func TestFree(t *testing.T) {
	dir := writeConfDir(t, map[string]string{"a.conf": "[ids]\n0001:0001 rank=1\n"})
	r := New()
	if err := r.Load(dir, noopEmit, noopLayer); err != nil {
		t.Fatalf("Load: %v", err)
	}
	r.Free()
	if len(r.Entries()) != 0 {
		t.Errorf("expected Free to empty the registry, got %d entries", len(r.Entries()))
	}
}

func TestEntryOwnsALiveKeyboard(t *testing.T) {
	dir := writeConfDir(t, map[string]string{"a.conf": "[ids]\n0001:0001 rank=1\n[main]\n30=48\n"})
	r := New()
	if err := r.Load(dir, noopEmit, noopLayer); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ent := r.Entries()[0]
	if ent.Kbd == nil {
		t.Fatal("expected Load to build a keyboard instance for the entry")
	}
	if delay := ent.Kbd.ProcessKeyEvent(30, true); delay != 0 {
		t.Errorf("expected ProcessKeyEvent to return 0, got %d", delay)
	}
}
