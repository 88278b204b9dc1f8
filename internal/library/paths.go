package library

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"lectern/internal/queue"
)

// Artifact names understood by Paths and SaveArtifact.
const (
	ArtifactArticleEN   = queue.ArtifactArticleEN
	ArtifactArticleZH   = queue.ArtifactArticleZH
	ArtifactRagMarkdown = "rag_md"
	ArtifactRagTree     = queue.ArtifactRagTree
	ArtifactVectors     = "rag_vector_store"
	ArtifactImages      = "images"
	ArtifactMetadata    = "metadata"
)

var artifactFiles = map[string]string{
	ArtifactArticleEN:   "final_en.md",
	ArtifactArticleZH:   "final_zh.md",
	ArtifactRagMarkdown: "final_rag.md",
	ArtifactRagTree:     "final_rag_tree.json",
	ArtifactVectors:     "vectors",
	ArtifactImages:      "images",
	ArtifactMetadata:    "metadata.json",
}

// ArtifactAll marks a paper with no output at all.
const ArtifactAll = queue.ArtifactAll

// RequiredArtifacts must all exist before a paper counts as processed.
var RequiredArtifacts = queue.RequiredArtifacts

// EditableArtifacts are the single-file artifacts SaveArtifact accepts.
var EditableArtifacts = []string{
	ArtifactArticleEN,
	ArtifactArticleZH,
	ArtifactRagMarkdown,
	ArtifactRagTree,
	ArtifactMetadata,
}

// ArtifactFile returns the file name for an artifact relative to the paper
// directory.
func ArtifactFile(name string) (string, bool) {
	file, ok := artifactFiles[name]
	return file, ok
}

// Paths resolves every artifact location for one paper.
type Paths struct {
	Dir       string
	ArticleEN string
	ArticleZH string
	RagMD     string
	RagTree   string
	Vectors   string
	Images    string
	Metadata  string
}

// PathsFor builds Paths rooted at outputDir.
func PathsFor(outputDir, id string) Paths {
	dir := filepath.Join(outputDir, id)
	join := func(name string) string { return filepath.Join(dir, artifactFiles[name]) }
	return Paths{
		Dir:       dir,
		ArticleEN: join(ArtifactArticleEN),
		ArticleZH: join(ArtifactArticleZH),
		RagMD:     join(ArtifactRagMarkdown),
		RagTree:   join(ArtifactRagTree),
		Vectors:   join(ArtifactVectors),
		Images:    join(ArtifactImages),
		Metadata:  join(ArtifactMetadata),
	}
}

const maxPaperIDRunes = 50

// PaperID derives a paper id from an uploaded file name: the extension is
// dropped, spaces become underscores and the result is capped at 50 runes.
func PaperID(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if strings.EqualFold(filepath.Ext(base), ".pdf") {
		base = base[:len(base)-len(".pdf")]
	}
	base = strings.ReplaceAll(base, " ", "_")
	if utf8.RuneCountInString(base) > maxPaperIDRunes {
		runes := []rune(base)
		base = string(runes[:maxPaperIDRunes])
	}
	return base
}

// ScanID derives the id of a PDF found in the data directory. Unlike uploads
// the name is kept as is so it lines up with the on-disk file.
func ScanID(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ValidID rejects ids that would escape the output directory.
func ValidID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.HasPrefix(id, ".")
}
