package ragtree_test

import (
	"errors"
	"slices"
	"testing"

	"lectern/internal/ragtree"
	"lectern/internal/services"
)

const sample = `{
  "title": "Deep Learning",
  "translated_title": "深度学习",
  "abstract": {"content": "We study nets.", "translated_content": "我们研究网络。"},
  "sections": [
    {
      "title": "Introduction",
      "translated_title": "引言",
      "content": [
        {"type": "text", "content": "Hello", "translated_content": "你好"},
        {"type": "formula", "content": "$x$"}
      ],
      "children": [
        {"title": "Background", "translated_title": "背景", "content": [],
         "children": [{"title": "History", "translated_title": "历史", "content": []}]}
      ]
    },
    {"title": "Method", "translated_title": "方法", "content": [
      {"type": "table", "caption": "Results", "translated_caption": "结果", "content": "<table><tr><td>1</td></tr></table>"}
    ]}
  ]
}`

func TestParseBuildsArena(t *testing.T) {
	tree, err := ragtree.Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !tree.HasSections() {
		t.Fatal("expected sections")
	}
	if tree.Title != "Deep Learning" || tree.TranslatedTitle != "深度学习" {
		t.Fatalf("unexpected titles %q / %q", tree.Title, tree.TranslatedTitle)
	}
	if tree.Abstract == nil {
		t.Fatal("expected abstract node")
	}
	if got, _ := tree.Abstract.Field(ragtree.FieldTranslatedContent); got != "我们研究网络。" {
		t.Fatalf("abstract translation = %q", got)
	}
	if len(tree.Sections) != 4 || len(tree.Roots) != 2 {
		t.Fatalf("sections=%d roots=%d", len(tree.Sections), len(tree.Roots))
	}
}

func TestWalkIsPreOrder(t *testing.T) {
	tree, err := ragtree.Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var titles []string
	tree.Walk(func(_ int, s *ragtree.Section) bool {
		titles = append(titles, s.Title)
		return true
	})
	want := []string{"Introduction", "Background", "History", "Method"}
	if !slices.Equal(titles, want) {
		t.Fatalf("walk order = %v, want %v", titles, want)
	}
}

func TestWalkStopsEarly(t *testing.T) {
	tree, err := ragtree.Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	visits := 0
	tree.Walk(func(_ int, s *ragtree.Section) bool {
		visits++
		return s.Title != "Background"
	})
	if visits != 2 {
		t.Fatalf("expected walk to stop after 2 visits, got %d", visits)
	}
}

func TestNodeFields(t *testing.T) {
	tree, err := ragtree.Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	method := tree.Sections[tree.Roots[1]]
	table := method.Content[0]
	if table.Type != ragtree.NodeTable {
		t.Fatalf("type = %q", table.Type)
	}
	if _, ok := table.Field(ragtree.FieldTranslatedContent); ok {
		t.Fatal("table should not carry translated_content")
	}
	if caption, ok := table.Field(ragtree.FieldTranslatedCaption); !ok || caption != "结果" {
		t.Fatalf("caption = %q, %v", caption, ok)
	}
}

func TestParseWithoutSections(t *testing.T) {
	tree, err := ragtree.Parse([]byte(`{"title": "Only title"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tree.HasSections() {
		t.Fatal("expected no sections")
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"title": `,
		"sections not list": `{"sections": {"title": "x"}}`,
		"content not list":  `{"sections": [{"title": "x", "content": "oops"}]}`,
		"title not string":  `{"title": 5}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ragtree.Parse([]byte(input))
			if !errors.Is(err, services.ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}
