package ragtree

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"lectern/internal/services"
)

// NodeType classifies a content node.
type NodeType string

const (
	NodeText          NodeType = "text"
	NodeFigure        NodeType = "figure"
	NodeTable         NodeType = "table"
	NodeFormula       NodeType = "formula"
	NodeSectionTitle  NodeType = "section_title"
	NodeDocumentTitle NodeType = "document_title"
)

// Field names as they appear in the tree JSON.
const (
	FieldContent           = "content"
	FieldTranslatedContent = "translated_content"
	FieldCaption           = "caption"
	FieldTranslatedCaption = "translated_caption"
	FieldTitle             = "title"
	FieldTranslatedTitle   = "translated_title"
)

// Node is one content entry of a section.
type Node struct {
	Type   NodeType
	fields map[string]string
}

// Field returns the named field and whether it was present.
func (n Node) Field(name string) (string, bool) {
	v, ok := n.fields[name]
	return v, ok
}

// Section is an arena entry. Children and Parent are indices into Tree.Sections.
type Section struct {
	Title           string
	TranslatedTitle string
	Content         []Node
	Children        []int
	Parent          int
	Depth           int
}

// Field exposes a section's title pair through the same lookup as Node.
func (s Section) Field(name string) (string, bool) {
	switch name {
	case FieldTitle:
		return s.Title, s.Title != ""
	case FieldTranslatedTitle:
		return s.TranslatedTitle, s.TranslatedTitle != ""
	}
	return "", false
}

// Tree is a parsed document. Roots lists the top-level sections in order.
type Tree struct {
	Title           string
	TranslatedTitle string
	Abstract        *Node
	Sections        []Section
	Roots           []int

	hasSections bool
}

// HasSections reports whether the source JSON carried a sections key.
func (t *Tree) HasSections() bool {
	return t != nil && t.hasSections
}

// Field exposes the root title pair.
func (t *Tree) Field(name string) (string, bool) {
	switch name {
	case FieldTitle:
		return t.Title, t.Title != ""
	case FieldTranslatedTitle:
		return t.TranslatedTitle, t.TranslatedTitle != ""
	}
	return "", false
}

// Walk visits sections pre-order, parents before children, siblings in
// document order. Returning false from visit stops the walk.
func (t *Tree) Walk(visit func(idx int, s *Section) bool) {
	if t == nil {
		return
	}
	stack := make([]int, 0, len(t.Roots))
	for i := len(t.Roots) - 1; i >= 0; i-- {
		stack = append(stack, t.Roots[i])
	}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		section := &t.Sections[idx]
		if !visit(idx, section) {
			return
		}
		for i := len(section.Children) - 1; i >= 0; i-- {
			stack = append(stack, section.Children[i])
		}
	}
}

type rawSection struct {
	Title           *string          `json:"title"`
	TranslatedTitle *string          `json:"translated_title"`
	Content         []map[string]any `json:"content"`
	Children        []rawSection     `json:"children"`
}

type rawTree struct {
	Title           *string        `json:"title"`
	TranslatedTitle *string        `json:"translated_title"`
	Abstract        map[string]any `json:"abstract"`
	Sections        *[]rawSection  `json:"sections"`
}

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("rag_tree.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("rag_tree.json")
	})
	return schema, schemaErr
}

// Validate checks raw tree JSON against the embedded schema.
func Validate(data []byte) error {
	compiled, err := compiledSchema()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "ragtree", "compile schema", "Embedded tree schema is invalid", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return services.Wrap(services.ErrMalformed, "ragtree", "decode", "Tree is not valid JSON", err)
	}
	if err := compiled.Validate(v); err != nil {
		return services.Wrap(services.ErrMalformed, "ragtree", "validate", "Tree does not match the expected shape", err)
	}
	return nil
}

// Parse validates data and builds the section arena.
func Parse(data []byte) (*Tree, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var raw rawTree
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, services.Wrap(services.ErrMalformed, "ragtree", "decode", "Tree could not be decoded", err)
	}

	tree := &Tree{
		Title:           deref(raw.Title),
		TranslatedTitle: deref(raw.TranslatedTitle),
	}
	if raw.Abstract != nil {
		abstract := nodeFromMap(NodeText, raw.Abstract)
		tree.Abstract = &abstract
	}
	if raw.Sections == nil {
		return tree, nil
	}
	tree.hasSections = true

	type pending struct {
		raw    *rawSection
		parent int
		depth  int
	}
	queue := make([]pending, 0, len(*raw.Sections))
	for i := range *raw.Sections {
		queue = append(queue, pending{raw: &(*raw.Sections)[i], parent: -1})
	}
	// Breadth-first construction keeps sibling order; Walk restores pre-order.
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		idx := len(tree.Sections)
		section := Section{
			Title:           deref(item.raw.Title),
			TranslatedTitle: deref(item.raw.TranslatedTitle),
			Parent:          item.parent,
			Depth:           item.depth,
		}
		for _, entry := range item.raw.Content {
			section.Content = append(section.Content, nodeFromMap("", entry))
		}
		tree.Sections = append(tree.Sections, section)
		if item.parent < 0 {
			tree.Roots = append(tree.Roots, idx)
		} else {
			tree.Sections[item.parent].Children = append(tree.Sections[item.parent].Children, idx)
		}
		for i := range item.raw.Children {
			queue = append(queue, pending{raw: &item.raw.Children[i], parent: idx, depth: item.depth + 1})
		}
	}
	return tree, nil
}

func nodeFromMap(fallback NodeType, entry map[string]any) Node {
	node := Node{Type: fallback, fields: make(map[string]string, len(entry))}
	for key, value := range entry {
		switch v := value.(type) {
		case string:
			if key == "type" {
				node.Type = NodeType(v)
				continue
			}
			node.fields[key] = v
		case nil:
		default:
			encoded, err := json.Marshal(v)
			if err == nil {
				node.fields[key] = string(encoded)
			}
		}
	}
	return node
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
