package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"lectern/internal/library"
	"lectern/internal/logging"
	"lectern/internal/ragtree"
	"lectern/internal/stage"
)

// StructureStage pairs the two articles section by section into the rag
// tree, the rag markdown and a retrieval chunk file.
type StructureStage struct {
	logger *slog.Logger
}

func NewStructureStage() *StructureStage {
	return &StructureStage{logger: logging.NewNop()}
}

func (s *StructureStage) Name() string { return "structure" }

func (s *StructureStage) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *StructureStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(s.Name())
}

func (s *StructureStage) Run(ctx context.Context, work *Work, report stage.Reporter) error {
	en, zh := work.Articles["en"], work.Articles["zh"]
	if strings.TrimSpace(en) == "" || strings.TrimSpace(zh) == "" {
		return stage.Fail(s.Name(), "input", "Both articles are required", nil)
	}
	tree := buildTree(parseMarkdown(en), parseMarkdown(zh))
	if tree.Title == "" {
		tree.Title = work.Titles["en"]
	}
	if tree.TranslatedTitle == "" {
		tree.TranslatedTitle = work.Titles["zh"]
	}
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return stage.Fail(s.Name(), "encode", "Rag tree could not be encoded", err)
	}
	if err := ragtree.Validate(data); err != nil {
		return stage.Fail(s.Name(), "validate", "Generated rag tree is invalid", err)
	}
	report.Report(40)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := work.WriteArtifact(library.ArtifactRagMarkdown, []byte(renderRagMarkdown(tree))); err != nil {
		return err
	}
	if err := writeChunks(work, tree); err != nil {
		return stage.Fail(s.Name(), "chunks", "Retrieval chunks could not be written", err)
	}
	report.Report(80)
	if err := work.WriteArtifact(library.ArtifactRagTree, append(data, '\n')); err != nil {
		return err
	}
	s.logger.Info("rag tree built", logging.Int("sections", countSections(tree.Sections)))
	return nil
}

// Block kinds recognised in article markdown.
const (
	blockText    = "text"
	blockTable   = "table"
	blockFormula = "formula"
	blockFigure  = "figure"
)

type mdBlock struct {
	kind string
	text string
}

type mdSection struct {
	level  int
	title  string
	blocks []mdBlock
}

// mdDocument is a flat view of an article: the leading # title and the
// sections in document order.
type mdDocument struct {
	title    string
	preamble []mdBlock
	sections []mdSection
}

var (
	headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	figurePattern  = regexp.MustCompile(`^!\[([^\]]*)\]\(([^)]*)\)`)
)

// parseMarkdown splits an article into its title and heading sections.
func parseMarkdown(markdown string) mdDocument {
	var (
		doc  mdDocument
		para []string
	)
	current := -1
	flush := func() {
		if len(para) == 0 {
			return
		}
		block := classify(strings.Join(para, "\n"))
		para = nil
		if current < 0 {
			doc.preamble = append(doc.preamble, block)
			return
		}
		doc.sections[current].blocks = append(doc.sections[current].blocks, block)
	}
	inFormula := false
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if inFormula {
			para = append(para, line)
			if strings.HasSuffix(trimmed, "$$") {
				inFormula = false
				flush()
			}
			continue
		}
		if m := headingPattern.FindStringSubmatch(trimmed); m != nil {
			flush()
			level, title := len(m[1]), strings.TrimSpace(m[2])
			if level == 1 && doc.title == "" && len(doc.sections) == 0 {
				doc.title = title
				continue
			}
			doc.sections = append(doc.sections, mdSection{level: level, title: title})
			current = len(doc.sections) - 1
			continue
		}
		if trimmed == "" {
			flush()
			continue
		}
		if strings.HasPrefix(trimmed, "$$") && len(para) == 0 {
			para = append(para, line)
			if len(trimmed) == 2 || !strings.HasSuffix(trimmed[2:], "$$") {
				inFormula = true
				continue
			}
			flush()
			continue
		}
		para = append(para, line)
	}
	flush()
	return doc
}

func classify(text string) mdBlock {
	trimmed := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(trimmed, "$$"):
		return mdBlock{kind: blockFormula, text: trimmed}
	case strings.HasPrefix(trimmed, "<table") || isPipeTable(trimmed):
		return mdBlock{kind: blockTable, text: trimmed}
	case figurePattern.MatchString(trimmed):
		return mdBlock{kind: blockFigure, text: figurePattern.FindStringSubmatch(trimmed)[1]}
	default:
		return mdBlock{kind: blockText, text: trimmed}
	}
}

func isPipeTable(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "|") {
			return false
		}
	}
	return true
}

// Tree JSON as consumed by ragtree.

type TreeNode struct {
	Type              string `json:"type"`
	Content           string `json:"content,omitempty"`
	TranslatedContent string `json:"translated_content,omitempty"`
	Caption           string `json:"caption,omitempty"`
	TranslatedCaption string `json:"translated_caption,omitempty"`
}

type TreeSection struct {
	Title           string         `json:"title"`
	TranslatedTitle string         `json:"translated_title"`
	Content         []TreeNode     `json:"content"`
	Children        []*TreeSection `json:"children,omitempty"`
}

type TreeDocument struct {
	Title           string         `json:"title"`
	TranslatedTitle string         `json:"translated_title"`
	Abstract        *TreeNode      `json:"abstract,omitempty"`
	Sections        []*TreeSection `json:"sections"`
}

// buildTree pairs an English and a Chinese article. Sections pair by position
// and nest by heading level; blocks pair by position within a section. A
// section titled Abstract (or 摘要) becomes the abstract node. Text before the
// first heading becomes a leading section named after the document.
func buildTree(en, zh mdDocument) TreeDocument {
	tree := TreeDocument{
		Title:           en.title,
		TranslatedTitle: zh.title,
		Sections:        []*TreeSection{},
	}
	type open struct {
		level   int
		section *TreeSection
	}
	var stack []open
	if len(en.preamble) > 0 {
		en.sections = append([]mdSection{{level: 2, title: en.title, blocks: en.preamble}}, en.sections...)
		zh.sections = append([]mdSection{{level: 2, title: zh.title, blocks: zh.preamble}}, zh.sections...)
	}
	for i, enSection := range en.sections {
		var zhSection mdSection
		if i < len(zh.sections) {
			zhSection = zh.sections[i]
		}
		if tree.Abstract == nil && isAbstractTitle(enSection.title, zhSection.title) {
			tree.Abstract = &TreeNode{
				Type:              blockText,
				Content:           joinText(enSection.blocks),
				TranslatedContent: joinText(zhSection.blocks),
			}
			continue
		}
		section := &TreeSection{
			Title:           enSection.title,
			TranslatedTitle: zhSection.title,
			Content:         pairBlocks(enSection.blocks, zhSection.blocks),
		}
		for len(stack) > 0 && stack[len(stack)-1].level >= enSection.level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			tree.Sections = append(tree.Sections, section)
		} else {
			parent := stack[len(stack)-1].section
			parent.Children = append(parent.Children, section)
		}
		stack = append(stack, open{level: enSection.level, section: section})
	}
	return tree
}

func isAbstractTitle(en, zh string) bool {
	return strings.EqualFold(strings.TrimSpace(en), "abstract") || strings.TrimSpace(zh) == "摘要"
}

func joinText(blocks []mdBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.kind == blockText {
			parts = append(parts, b.text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func pairBlocks(en, zh []mdBlock) []TreeNode {
	nodes := make([]TreeNode, 0, len(en))
	for i, block := range en {
		var other mdBlock
		if i < len(zh) {
			other = zh[i]
		}
		switch block.kind {
		case blockFormula:
			nodes = append(nodes, TreeNode{Type: blockFormula, Content: block.text})
		case blockTable:
			nodes = append(nodes, TreeNode{Type: blockTable, Content: block.text})
		case blockFigure:
			nodes = append(nodes, TreeNode{Type: blockFigure, Caption: block.text, TranslatedCaption: other.text})
		default:
			nodes = append(nodes, TreeNode{Type: blockText, Content: block.text, TranslatedContent: other.text})
		}
	}
	return nodes
}

func countSections(sections []*TreeSection) int {
	count := 0
	stack := append([]*TreeSection(nil), sections...)
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		stack = append(stack, top.Children...)
	}
	return count
}

func renderRagMarkdown(tree TreeDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n> %s\n", tree.Title, tree.TranslatedTitle)
	if tree.Abstract != nil {
		fmt.Fprintf(&b, "\n## Abstract\n\n%s\n\n%s\n", tree.Abstract.Content, tree.Abstract.TranslatedContent)
	}
	walkSections(tree.Sections, func(path []string, s *TreeSection) {
		fmt.Fprintf(&b, "\n## %s\n\n", strings.Join(path, " / "))
		for _, node := range s.Content {
			switch node.Type {
			case blockText:
				fmt.Fprintf(&b, "%s\n\n%s\n\n", node.Content, node.TranslatedContent)
			case blockFigure:
				fmt.Fprintf(&b, "Figure: %s / %s\n\n", node.Caption, node.TranslatedCaption)
			default:
				fmt.Fprintf(&b, "%s\n\n", node.Content)
			}
		}
	})
	return b.String()
}

// walkSections visits sections pre-order with their title path.
func walkSections(sections []*TreeSection, visit func(path []string, s *TreeSection)) {
	type frame struct {
		path    []string
		section *TreeSection
	}
	stack := make([]frame, 0, len(sections))
	for i := len(sections) - 1; i >= 0; i-- {
		stack = append(stack, frame{path: []string{sections[i].Title}, section: sections[i]})
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(top.path, top.section)
		for i := len(top.section.Children) - 1; i >= 0; i-- {
			child := top.section.Children[i]
			path := append(append([]string(nil), top.path...), child.Title)
			stack = append(stack, frame{path: path, section: child})
		}
	}
}

// Chunk is one retrieval record in vectors/chunks.jsonl.
type Chunk struct {
	ID      string `json:"id"`
	PaperID string `json:"paper_id"`
	Section string `json:"section"`
	Lang    string `json:"lang"`
	Text    string `json:"text"`
}

func writeChunks(work *Work, tree TreeDocument) error {
	dir := work.ArtifactPath(library.ArtifactVectors)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	seq := 0
	emit := func(section, lang, text string) error {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		seq++
		return enc.Encode(Chunk{
			ID:      fmt.Sprintf("%s-%04d", work.PaperID, seq),
			PaperID: work.PaperID,
			Section: section,
			Lang:    lang,
			Text:    text,
		})
	}
	var err error
	if tree.Abstract != nil {
		err = emit("Abstract", "en", tree.Abstract.Content)
		if err == nil {
			err = emit("Abstract", "zh", tree.Abstract.TranslatedContent)
		}
	}
	walkSections(tree.Sections, func(path []string, s *TreeSection) {
		if err != nil {
			return
		}
		section := strings.Join(path, " / ")
		for _, node := range s.Content {
			if node.Type != blockText {
				continue
			}
			if err = emit(section, "en", node.Content); err != nil {
				return
			}
			if err = emit(section, "zh", node.TranslatedContent); err != nil {
				return
			}
		}
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "chunks.jsonl"), []byte(buf.String()), 0o644); err != nil {
		return err
	}
	work.MarkProduced(library.ArtifactVectors)
	return nil
}
