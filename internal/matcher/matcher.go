package matcher

import (
	"fmt"
	"strings"

	"lectern/internal/ragtree"
)

// Kind selects the search strategy.
type Kind string

const (
	KindTitle Kind = "title"
	KindText  Kind = "text"
	KindTable Kind = "table"
)

// ParseKind validates a kind supplied by a caller.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindTitle:
		return KindTitle, nil
	case KindText, "":
		return KindText, nil
	case KindTable:
		return KindTable, nil
	}
	return "", fmt.Errorf("unknown match kind %q", value)
}

// Language is the language the fragment is written in.
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// ParseLanguage validates a language supplied by a caller.
func ParseLanguage(value string) (Language, error) {
	switch Language(strings.ToLower(strings.TrimSpace(value))) {
	case LangEN:
		return LangEN, nil
	case LangZH, "":
		return LangZH, nil
	}
	return "", fmt.Errorf("unknown language %q", value)
}

// Match is a located counterpart.
type Match struct {
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
}

const (
	abstractEN = "abstract"
	abstractZH = "摘要"
)

// FieldPair returns the source and target field names for a node type when the
// fragment is written in lang. ok is false for unknown types.
func FieldPair(nodeType ragtree.NodeType, lang Language) (source, target string, ok bool) {
	pick := func(original, translated string) (string, string, bool) {
		if lang == LangZH {
			return translated, original, true
		}
		return original, translated, true
	}
	switch nodeType {
	case ragtree.NodeText:
		return pick(ragtree.FieldContent, ragtree.FieldTranslatedContent)
	case ragtree.NodeFigure, ragtree.NodeTable:
		return pick(ragtree.FieldCaption, ragtree.FieldTranslatedCaption)
	case ragtree.NodeFormula:
		return ragtree.FieldContent, ragtree.FieldContent, true
	case ragtree.NodeSectionTitle, ragtree.NodeDocumentTitle:
		return pick(ragtree.FieldTitle, ragtree.FieldTranslatedTitle)
	}
	return "", "", false
}

type fielder interface {
	Field(name string) (string, bool)
}

// compare checks the source field of f against fragment and returns the
// target field on a match. Empty targets are not counterparts.
func compare(f fielder, source, target, fragment string) (string, bool) {
	value, ok := f.Field(source)
	if !ok || !Matches(value, fragment) {
		return "", false
	}
	counterpart, ok := f.Field(target)
	if !ok || counterpart == "" {
		return "", false
	}
	return counterpart, true
}

// FindCounterpart locates fragment in tree and returns the text in the other
// language. The boolean is false when nothing matches.
func FindCounterpart(tree *ragtree.Tree, fragment string, lang Language, kind Kind) (Match, bool) {
	if tree == nil || strings.TrimSpace(fragment) == "" {
		return Match{}, false
	}
	if kind == KindTitle {
		if isAbstractHeading(fragment) {
			if lang == LangZH {
				return Match{Text: abstractEN, Kind: KindTitle}, true
			}
			return Match{Text: abstractZH, Kind: KindTitle}, true
		}
		return findTitle(tree, fragment, lang)
	}
	return findContent(tree, fragment, lang, kind)
}

func isAbstractHeading(fragment string) bool {
	return strings.Contains(strings.ToLower(fragment), abstractEN) || strings.Contains(fragment, abstractZH)
}

func findTitle(tree *ragtree.Tree, fragment string, lang Language) (Match, bool) {
	source, target, _ := FieldPair(ragtree.NodeDocumentTitle, lang)
	if text, ok := compare(tree, source, target, fragment); ok {
		return Match{Text: text, Kind: KindTitle}, true
	}
	if !tree.HasSections() {
		return Match{}, false
	}
	var found Match
	var ok bool
	tree.Walk(func(_ int, section *ragtree.Section) bool {
		var text string
		if text, ok = compare(section, source, target, fragment); ok {
			found = Match{Text: text, Kind: KindTitle}
			return false
		}
		return true
	})
	return found, ok
}

func findContent(tree *ragtree.Tree, fragment string, lang Language, kind Kind) (Match, bool) {
	if !tree.HasSections() {
		return Match{}, false
	}
	if kind == KindText && tree.Abstract != nil {
		source, target, _ := FieldPair(ragtree.NodeText, lang)
		if text, ok := compare(tree.Abstract, source, target, fragment); ok {
			return Match{Text: text, Kind: KindText}, true
		}
	}
	var found Match
	var ok bool
	tree.Walk(func(_ int, section *ragtree.Section) bool {
		for _, node := range section.Content {
			if found, ok = matchNode(node, fragment, lang, kind); ok {
				return false
			}
		}
		return true
	})
	return found, ok
}

func matchNode(node ragtree.Node, fragment string, lang Language, kind Kind) (Match, bool) {
	switch node.Type {
	case ragtree.NodeFormula:
		return Match{}, false
	case ragtree.NodeTable:
		return matchTable(node, fragment, lang, kind)
	}
	source, target, ok := FieldPair(node.Type, lang)
	if !ok {
		return Match{}, false
	}
	if text, ok := compare(node, source, target, fragment); ok {
		return Match{Text: text, Kind: KindText}, true
	}
	return Match{}, false
}

func matchTable(node ragtree.Node, fragment string, lang Language, kind Kind) (Match, bool) {
	switch kind {
	case KindText:
		source, target, _ := FieldPair(ragtree.NodeTable, lang)
		if text, ok := compare(node, source, target, fragment); ok {
			return Match{Text: text, Kind: KindText}, true
		}
	case KindTable:
		raw, ok := node.Field(ragtree.FieldContent)
		if ok && raw != "" && Matches(TableText(raw), fragment) {
			return Match{Text: raw, Kind: KindTable}, true
		}
	}
	return Match{}, false
}
