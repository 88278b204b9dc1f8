package testsupport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"lectern/internal/config"
	"lectern/internal/library"
	"lectern/internal/logging"
	"lectern/internal/queue"
)

// SampleTree is a small bilingual rag tree with an abstract, a nested section,
// a formula and a table.
const SampleTree = `{
  "title": "Attention Is All You Need",
  "translated_title": "注意力就是你所需要的",
  "abstract": {"content": "We propose the Transformer.", "translated_content": "我们提出了Transformer。"},
  "sections": [
    {
      "title": "Introduction",
      "translated_title": "引言",
      "content": [
        {"type": "text", "content": "Recurrent models dominate sequence modeling.", "translated_content": "循环模型主导序列建模。"},
        {"type": "formula", "content": "$$a = b$$"}
      ],
      "children": [
        {
          "title": "Background",
          "translated_title": "背景",
          "content": [
            {"type": "table", "caption": "Table 1: Results", "translated_caption": "表1：结果",
             "content": "<table><tr><td>BLEU</td><td>28.4</td></tr></table>"}
          ],
          "children": []
        }
      ]
    }
  ]
}`

// MustOpenLibrary opens the library for cfg and registers cleanup.
func MustOpenLibrary(t testing.TB, cfg *config.Config) *library.Store {
	t.Helper()

	store, err := library.Open(cfg.Paths.OutputDir, cfg.DatabasePath(), logging.NewNop())
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenJournal opens the outcome journal for cfg and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg.JournalPath())
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// WritePaper lays out a fully processed paper under the library root and
// indexes it. The articles are derived from the title.
func WritePaper(t testing.TB, store *library.Store, id, title, translated string) {
	t.Helper()

	paths := store.Paths(id)
	WriteFile(t, paths.ArticleEN, "# "+title+"\n")
	WriteFile(t, paths.ArticleZH, "# "+translated+"\n")
	WriteFile(t, paths.RagTree, SampleTree)
	if err := os.MkdirAll(filepath.Join(paths.Dir, "images"), 0o755); err != nil {
		t.Fatalf("mkdir images: %v", err)
	}
	meta, err := json.Marshal(library.Metadata{ID: id, Title: title, TranslatedTitle: translated})
	if err != nil {
		t.Fatalf("encode metadata: %v", err)
	}
	WriteFile(t, paths.Metadata, string(meta))
	if err := store.RefreshIndex(context.Background()); err != nil {
		t.Fatalf("RefreshIndex: %v", err)
	}
}
