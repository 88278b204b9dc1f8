package pipeline

import (
	"strings"
	"testing"
)

func TestParseMarkdownBlocks(t *testing.T) {
	doc := parseMarkdown("# Title\n\nIntro text.\n\n## One\n\nFirst para\nwrapped.\n\n$$\nx = 1\n$$\n\n| a | b |\n| 1 | 2 |\n\n![Caption](img.png)\n\n### One.A\n\nNested.\n")
	if doc.title != "Title" {
		t.Fatalf("title = %q", doc.title)
	}
	if len(doc.preamble) != 1 || doc.preamble[0].text != "Intro text." {
		t.Fatalf("preamble = %+v", doc.preamble)
	}
	if len(doc.sections) != 2 {
		t.Fatalf("sections = %d", len(doc.sections))
	}
	kinds := make([]string, 0)
	for _, b := range doc.sections[0].blocks {
		kinds = append(kinds, b.kind)
	}
	if got := strings.Join(kinds, ","); got != "text,formula,table,figure" {
		t.Fatalf("block kinds = %s", got)
	}
	if doc.sections[0].blocks[3].text != "Caption" {
		t.Fatalf("figure caption = %q", doc.sections[0].blocks[3].text)
	}
	if doc.sections[1].level != 3 {
		t.Fatalf("nested level = %d", doc.sections[1].level)
	}
}

func TestBuildTreeNestsAndPairs(t *testing.T) {
	en := parseMarkdown("# T\n\n## Abstract\n\nSummary.\n\n## A\n\nalpha\n\n### A1\n\nbeta\n\n## B\n\ngamma\n")
	zh := parseMarkdown("# 题\n\n## 摘要\n\n概要。\n\n## 甲\n\n阿尔法\n\n### 甲1\n\n贝塔\n\n## 乙\n\n伽马\n")
	tree := buildTree(en, zh)

	if tree.Title != "T" || tree.TranslatedTitle != "题" {
		t.Fatalf("titles = %q / %q", tree.Title, tree.TranslatedTitle)
	}
	if tree.Abstract == nil || tree.Abstract.Content != "Summary." || tree.Abstract.TranslatedContent != "概要。" {
		t.Fatalf("abstract = %+v", tree.Abstract)
	}
	if len(tree.Sections) != 2 {
		t.Fatalf("top-level sections = %d", len(tree.Sections))
	}
	a := tree.Sections[0]
	if a.TranslatedTitle != "甲" || len(a.Children) != 1 || a.Children[0].Title != "A1" {
		t.Fatalf("section A = %+v", a)
	}
	if a.Children[0].Content[0].TranslatedContent != "贝塔" {
		t.Fatalf("nested content = %+v", a.Children[0].Content)
	}
	if countSections(tree.Sections) != 3 {
		t.Fatalf("countSections = %d", countSections(tree.Sections))
	}
}

func TestBuildTreeHandlesUnevenTranslations(t *testing.T) {
	en := parseMarkdown("# T\n\n## A\n\none\n\ntwo\n\n## B\n\nthree\n")
	zh := parseMarkdown("# 题\n\n## 甲\n\n一\n")
	tree := buildTree(en, zh)
	if len(tree.Sections) != 2 {
		t.Fatalf("sections = %d", len(tree.Sections))
	}
	if tree.Sections[0].Content[1].TranslatedContent != "" {
		t.Fatal("expected empty counterpart for missing paragraph")
	}
	if tree.Sections[1].TranslatedTitle != "" {
		t.Fatal("expected empty counterpart for missing section")
	}
}

func TestRenderPages(t *testing.T) {
	got := renderPages("Deep Learning", []string{"Deep Learning\nby someone\n\nSecond para", "", "Page three"})
	want := "# Deep Learning\n\n## Page 1\n\nDeep Learning by someone\n\nSecond para\n\n## Page 3\n\nPage three\n"
	if got != want {
		t.Fatalf("renderPages =\n%q\nwant\n%q", got, want)
	}
	if firstLine([]string{"", "\n  \n  Title line \nrest"}) != "Title line" {
		t.Fatal("firstLine should skip blank pages")
	}
}
