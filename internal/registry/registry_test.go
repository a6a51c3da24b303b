package registry

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/antsh3k/codex-cv/internal/subagent"
)

func writeSpec(t *testing.T, dir, name, description string) string {
	t.Helper()
	doc := "---\nname: " + name + "\ndescription: " + description + "\nkeywords:\n  - " + name + "\n---\nInstructions for " + name + ".\n"
	path := filepath.Join(dir, name+".md")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestReloadIdempotent(t *testing.T) {
	project := t.TempDir()
	writeSpec(t, project, "reviewer", "Reviews changes")
	writeSpec(t, project, "tester", "Runs tests")

	reg := New(Options{ProjectDir: project})

	first := reg.Reload()
	if len(first.Loaded) != 2 {
		t.Fatalf("expected 2 loaded, got %v", first.Loaded)
	}
	if len(first.Removed) != 0 || len(first.Errors) != 0 {
		t.Fatalf("unexpected removed/errors on first reload: %+v", first)
	}

	second := reg.Reload()
	if len(second.Loaded) != 0 {
		t.Errorf("expected no fresh loads on unchanged reload, got %v", second.Loaded)
	}
	if len(second.Removed) != 0 {
		t.Errorf("expected no removals on unchanged reload, got %v", second.Removed)
	}
	if len(second.Errors) != 0 {
		t.Errorf("expected no errors on unchanged reload, got %v", second.Errors)
	}
	if reg.Count() != 2 {
		t.Errorf("expected 2 records, got %d", reg.Count())
	}
}

func TestProjectTierShadowsUserTier(t *testing.T) {
	user := t.TempDir()
	project := t.TempDir()
	writeSpec(t, user, "reviewer", "user-tier reviewer")
	writeSpec(t, project, "reviewer", "project-tier reviewer")

	reg := New(Options{UserDir: user, ProjectDir: project})
	report := reg.Reload()

	// Both files parse fresh, but only one record survives.
	if len(report.Loaded) != 1 || report.Loaded[0] != "reviewer" {
		t.Errorf("unexpected loaded set: %v", report.Loaded)
	}
	if len(report.Errors) != 0 {
		t.Errorf("shadowing must not produce errors: %v", report.Errors)
	}

	rec, ok := reg.Get("reviewer")
	if !ok {
		t.Fatal("expected reviewer record")
	}
	if rec.Tier != subagent.SourceProject {
		t.Errorf("expected project tier, got %s", rec.Tier)
	}
	if rec.Spec.Description() != "project-tier reviewer" {
		t.Errorf("expected project description, got %q", rec.Spec.Description())
	}
}

func TestRemovedNames(t *testing.T) {
	project := t.TempDir()
	path := writeSpec(t, project, "tester", "Runs tests")
	writeSpec(t, project, "reviewer", "Reviews changes")

	reg := New(Options{ProjectDir: project})
	reg.Reload()

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove fixture: %v", err)
	}

	report := reg.Reload()
	if len(report.Removed) != 1 || report.Removed[0] != "tester" {
		t.Errorf("expected removed=[tester], got %v", report.Removed)
	}
	if _, ok := reg.Get("tester"); ok {
		t.Error("removed definition must not resolve")
	}
	if _, ok := reg.Get("reviewer"); !ok {
		t.Error("surviving definition must still resolve")
	}
}

func TestParseFailuresReportedAndStable(t *testing.T) {
	project := t.TempDir()
	bad := filepath.Join(project, "broken.md")
	if err := os.WriteFile(bad, []byte("no front matter here"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	writeSpec(t, project, "reviewer", "Reviews changes")

	reg := New(Options{ProjectDir: project})

	first := reg.Reload()
	if len(first.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", first.Errors)
	}
	if first.Errors[0].Path != bad {
		t.Errorf("expected error path %s, got %s", bad, first.Errors[0].Path)
	}
	if len(first.Loaded) != 1 {
		t.Errorf("good file must still load: %v", first.Loaded)
	}

	// The cached failure reappears identically on an unchanged reload.
	second := reg.Reload()
	if !reflect.DeepEqual(first.Errors, second.Errors) {
		t.Errorf("error set changed across unchanged reloads: %v vs %v", first.Errors, second.Errors)
	}
	if len(second.Loaded) != 0 {
		t.Errorf("expected no fresh loads, got %v", second.Loaded)
	}
}

func TestMissingDirectoryIsEmpty(t *testing.T) {
	reg := New(Options{
		UserDir:    filepath.Join(t.TempDir(), "does", "not", "exist"),
		ProjectDir: "",
	})
	report := reg.Reload()
	if len(report.Loaded) != 0 || len(report.Removed) != 0 || len(report.Errors) != 0 {
		t.Errorf("missing directories must be empty, got %+v", report)
	}
	if reg.Count() != 0 {
		t.Errorf("expected 0 records, got %d", reg.Count())
	}
}

func TestNestedAndNonMarkdownSkipped(t *testing.T) {
	project := t.TempDir()
	writeSpec(t, project, "reviewer", "Reviews changes")
	if err := os.WriteFile(filepath.Join(project, "notes.txt"), []byte("not a spec"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	nested := filepath.Join(project, "nested")
	if err := os.Mkdir(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeSpec(t, nested, "hidden", "Nested, must be skipped")

	reg := New(Options{ProjectDir: project})
	report := reg.Reload()

	if len(report.Errors) != 0 {
		t.Errorf("skipped entries must not error: %v", report.Errors)
	}
	if reg.Count() != 1 {
		t.Errorf("expected 1 record, got %d", reg.Count())
	}
	if _, ok := reg.Get("hidden"); ok {
		t.Error("nested definition must not be discovered")
	}
}

func TestMtimeChangeTriggersReparse(t *testing.T) {
	project := t.TempDir()
	path := writeSpec(t, project, "reviewer", "Reviews changes")

	reg := New(Options{ProjectDir: project})
	reg.Reload()

	// Push the mtime forward; content is unchanged but the cache must miss.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	report := reg.Reload()
	if len(report.Loaded) != 1 || report.Loaded[0] != "reviewer" {
		t.Errorf("expected reparse after mtime change, got %v", report.Loaded)
	}
}

func TestBuiltinsRegisteredAndShadowed(t *testing.T) {
	project := t.TempDir()
	writeSpec(t, project, "reviewer", "project reviewer override")

	reg := New(Options{ProjectDir: project, Builtins: true})
	reg.Reload()

	if reg.Count() != 4 {
		t.Fatalf("expected 4 records (3 builtins + 1 override), got %d", reg.Count())
	}

	rec, ok := reg.Get("reviewer")
	if !ok {
		t.Fatal("expected reviewer record")
	}
	if rec.Tier != subagent.SourceProject {
		t.Errorf("on-disk definition must shadow the builtin, got tier %s", rec.Tier)
	}

	rec, ok = reg.Get("spec-parser")
	if !ok {
		t.Fatal("expected builtin spec-parser record")
	}
	if rec.Tier != subagent.SourceBuiltin {
		t.Errorf("expected builtin tier, got %s", rec.Tier)
	}
}

func TestListStableOrder(t *testing.T) {
	project := t.TempDir()
	writeSpec(t, project, "zeta-agent", "last")
	writeSpec(t, project, "alpha-agent", "first")
	writeSpec(t, project, "mid-agent", "middle")

	reg := New(Options{ProjectDir: project})
	reg.Reload()

	records := reg.List()
	want := []string{"alpha-agent", "mid-agent", "zeta-agent"}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(records))
	}
	for i, rec := range records {
		if rec.Spec.Name() != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], rec.Spec.Name())
		}
	}
}

func TestConcurrentReadsDuringReload(t *testing.T) {
	project := t.TempDir()
	writeSpec(t, project, "reviewer", "Reviews changes")
	writeSpec(t, project, "tester", "Runs tests")

	reg := New(Options{ProjectDir: project})
	reg.Reload()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				// Readers must always observe a complete generation.
				if n := len(reg.List()); n != 2 {
					t.Errorf("observed partial registry: %d records", n)
					return
				}
				if _, ok := reg.Get("reviewer"); !ok {
					t.Error("reviewer missing mid-reload")
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		reg.Reload()
	}
	close(stop)
	wg.Wait()
}
