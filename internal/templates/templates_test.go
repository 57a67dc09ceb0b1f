package templates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/PromptForge/internal/models"
	"github.com/spf13/afero"
)

func TestDefaultCatalogInvariants(t *testing.T) {
	wantCounts := map[string]int{
		"code-generation":  9,
		"content-creation": 8,
		"general":          6,
	}

	catalog := DefaultTemplates()
	if len(catalog) != len(wantCounts) {
		t.Fatalf("len(DefaultTemplates()) = %d, want %d", len(catalog), len(wantCounts))
	}
	for _, tp := range catalog {
		if err := tp.Validate(); err != nil {
			t.Errorf("built-in %s invalid: %v", tp.ID, err)
		}
		if got := len(tp.Questions); got != wantCounts[tp.ID] {
			t.Errorf("%s has %d questions, want %d", tp.ID, got, wantCounts[tp.ID])
		}
		seen := map[string]bool{}
		for _, q := range tp.Questions {
			if seen[q.ID] {
				t.Errorf("%s: duplicate question id %s", tp.ID, q.ID)
			}
			seen[q.ID] = true
			if q.Type == models.QuestionTypeSelect && len(q.Options) == 0 {
				t.Errorf("%s/%s: select without options", tp.ID, q.ID)
			}
		}
	}
}

func TestDefaultTemplatesReturnsFreshCopies(t *testing.T) {
	a := DefaultTemplates()
	a[0].Questions[0].Label = "changed"
	b := DefaultTemplates()
	if b[0].Questions[0].Label == "changed" {
		t.Error("DefaultTemplates shares question slices between calls")
	}
}

func TestStoreRegisterFirstWriterWins(t *testing.T) {
	s := NewDefaultStore()
	if _, ok := s.Get(DefaultTemplateID); !ok {
		t.Fatal("default store missing general template")
	}

	override := models.Template{ID: "general", Name: "Override", Questions: []models.Question{{ID: "x", Type: models.QuestionTypeText, Label: "X"}}}
	if s.Register(override) {
		t.Error("Register replaced an existing id")
	}
	got, _ := s.Get("general")
	if got.Name != "General Purpose" {
		t.Errorf("general name = %q, want built-in", got.Name)
	}

	custom := models.Template{ID: "review", Name: "Review", Questions: []models.Question{{ID: "x", Type: models.QuestionTypeText, Label: "X"}}}
	if !s.Register(custom) {
		t.Error("Register rejected a new id")
	}

	var ids []string
	for _, tp := range s.List() {
		ids = append(ids, tp.ID)
	}
	want := []string{"code-generation", "content-creation", "general", "review"}
	if len(ids) != len(want) {
		t.Fatalf("List() ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
	if s.Len() != 4 {
		t.Errorf("Len() = %d, want 4", s.Len())
	}
}

const reviewYAML = `
name: Code Review
description: Ask for a focused review
icon: eye
questions:
  - id: language
    type: text
    label: Language
  - id: strict
    type: checkbox
    label: Strict mode
    defaultValue: false
prompt_template: "Review my {language} code."
`

func TestLoaderLoadAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/templates"
	files := map[string]string{
		"review.yaml":  reviewYAML,
		"broken.json":  `{"name": "Broken"`,
		"invalid.json": `{"name": "No questions", "questions": []}`,
		"notes.txt":    "ignored",
		"general.json": `{"id":"general","name":"Shadow","questions":[{"id":"a","type":"text","label":"A"}]}`,
	}
	for name, body := range files {
		if err := afero.WriteFile(fs, filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	loader := NewLoader(fs, dir)
	loaded, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("LoadAll returned %d templates, want 2 (general, review)", len(loaded))
	}

	s := NewDefaultStore()
	inserted, err := loader.LoadInto(s)
	if err != nil {
		t.Fatalf("LoadInto: %v", err)
	}
	if inserted != 1 {
		t.Errorf("inserted = %d, want 1", inserted)
	}
	review, ok := s.Get("review")
	if !ok {
		t.Fatal("review template not registered")
	}
	if review.Questions[1].Type != models.QuestionTypeCheckbox {
		t.Errorf("strict type = %s", review.Questions[1].Type)
	}
	if general, _ := s.Get("general"); general.Name != "General Purpose" {
		t.Error("custom file overrode built-in general")
	}
}

func TestLoaderIgnoresSubdirectories(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/templates/review.yaml", []byte(reviewYAML), 0644); err != nil {
		t.Fatal(err)
	}
	shadow := `{"name":"Nested","questions":[{"id":"a","type":"text","label":"A"}]}`
	for _, path := range []string{"/templates/archive/review.json", "/templates/archive/old.json"} {
		if err := afero.WriteFile(fs, path, []byte(shadow), 0644); err != nil {
			t.Fatal(err)
		}
	}

	loaded, err := NewLoader(fs, "/templates").LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "review" || loaded[0].Name == "Nested" {
		t.Errorf("loaded = %+v, want only the top-level review", loaded)
	}
}

func TestLoaderSaveRejectsUnsafeIDs(t *testing.T) {
	fs := afero.NewMemMapFs()
	loader := NewLoader(fs, "/state/templates")
	for _, id := range []string{"../escaped", "../../escaped", "a/b"} {
		tmpl := DefaultTemplates()[0]
		tmpl.ID = id
		if err := loader.Save(tmpl); !errors.Is(err, models.ErrInvalidTemplate) {
			t.Errorf("Save(%q) error = %v, want ErrInvalidTemplate", id, err)
		}
	}
	if _, err := loader.pathFor("..", ""); err == nil {
		t.Error("pathFor(\"..\") accepted")
	}
	for _, path := range []string{"/state/escaped.json", "/escaped.json", "/state/templates/a/b.json"} {
		if ok, _ := afero.Exists(fs, path); ok {
			t.Errorf("%s was written", path)
		}
	}
}

func TestLoaderMissingDirectory(t *testing.T) {
	loaded, err := NewLoader(afero.NewMemMapFs(), "/nope").LoadAll()
	if err != nil || len(loaded) != 0 {
		t.Errorf("LoadAll() = %v, %v; want empty, nil", loaded, err)
	}
}

func TestLoaderFileNameIsID(t *testing.T) {
	fs := afero.NewMemMapFs()
	body := `{"id":"other","name":"N","questions":[{"id":"a","type":"text","label":"A"}]}`
	if err := afero.WriteFile(fs, "/t/mine.json", []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	tp, err := NewLoader(fs, "/t").LoadFile("/t/mine.json")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if tp.ID != "mine" {
		t.Errorf("ID = %q, want mine", tp.ID)
	}
}

func TestLoaderSeedDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/t/general.yaml", []byte("name: Mine\nquestions:\n  - {id: a, type: text, label: A}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	loader := NewLoader(fs, "/t")
	if err := loader.SeedDefaults(); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	for _, id := range []string{"code-generation", "content-creation"} {
		if ok, _ := afero.Exists(fs, "/t/"+id+".json"); !ok {
			t.Errorf("%s.json not seeded", id)
		}
	}
	if ok, _ := afero.Exists(fs, "/t/general.json"); ok {
		t.Error("general.json seeded despite general.yaml")
	}

	tp, err := loader.LoadFile("/t/code-generation.json")
	if err != nil {
		t.Fatalf("reload seeded file: %v", err)
	}
	if tp.PromptTemplate != codeGenerationTemplate().PromptTemplate {
		t.Error("seeded prompt template differs from built-in")
	}
}

func TestWatcherRegistersNewFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewDefaultStore()
	w := NewWatcher(NewOsLoader(dir), s)
	w.debounce = 10 * time.Millisecond
	registered := make(chan string, 1)
	w.onRegister = func(id string) { registered <- id }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to add the directory.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "review.yaml"), []byte(reviewYAML), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case id := <-registered:
		if id != "review" {
			t.Errorf("registered %q, want review", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not register review.yaml")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}
