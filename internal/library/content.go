package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"lectern/internal/fileutil"
	"lectern/internal/logging"
	"lectern/internal/ragtree"
	"lectern/internal/services"
)

// LoadMetadata reads metadata.json for id.
func (s *Store) LoadMetadata(id string) (Metadata, error) {
	data, err := s.readArtifact(id, ArtifactMetadata)
	if err != nil {
		return Metadata{}, err
	}
	return decodeMetadata(id, data)
}

// LoadArticle returns the article text in lang ("en" or "zh").
func (s *Store) LoadArticle(_ context.Context, id, lang string) (string, error) {
	name, err := articleArtifact(lang)
	if err != nil {
		return "", err
	}
	data, err := s.readArtifact(id, name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Document returns the article in lang, or a placeholder headed by the
// paper's title when the article cannot be read.
func (s *Store) Document(ctx context.Context, entry Entry, lang string) string {
	text, err := s.LoadArticle(ctx, entry.ID, lang)
	if err == nil {
		return text
	}
	title, language := entry.Title, "English"
	if lang == "zh" {
		title, language = entry.TranslatedTitle, "Chinese"
	}
	if !errors.Is(err, services.ErrNotFound) {
		s.logger.Warn("article unreadable",
			logging.String(logging.FieldJobID, entry.ID),
			logging.String("lang", lang),
			logging.Error(err),
		)
		return fmt.Sprintf("# %s\n\nFailed to load the %s document: %v", title, language, err)
	}
	return fmt.Sprintf("# %s\n\n%s document is missing", title, language)
}

// Content bundles an indexed paper with both articles.
type Content struct {
	Entry     Entry  `json:"paper"`
	ArticleEN string `json:"article_en"`
	ArticleZH string `json:"article_zh"`
}

// LoadContent resolves an indexed paper and its articles, using placeholders
// for articles that are missing.
func (s *Store) LoadContent(ctx context.Context, id string) (Content, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return Content{}, err
	}
	if _, err := os.Stat(s.Paths(id).Images); err != nil {
		s.logger.Debug("paper has no images directory", logging.String(logging.FieldJobID, id))
	}
	return Content{
		Entry:     entry,
		ArticleEN: s.Document(ctx, entry, "en"),
		ArticleZH: s.Document(ctx, entry, "zh"),
	}, nil
}

// LoadTree reads and parses the rag tree of an indexed paper.
func (s *Store) LoadTree(ctx context.Context, id string) (*ragtree.Tree, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	data, err := s.readArtifact(id, ArtifactRagTree)
	if err != nil {
		return nil, err
	}
	return ragtree.Parse(data)
}

// MissingArtifacts lists the required artifacts absent for id. A paper with no
// directory at all reports ["all"].
func (s *Store) MissingArtifacts(_ context.Context, id string) ([]string, error) {
	paths := s.Paths(id)
	if _, err := os.Stat(paths.Dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{ArtifactAll}, nil
		}
		return nil, fmt.Errorf("stat %s: %w", paths.Dir, err)
	}
	var missing []string
	for _, name := range RequiredArtifacts {
		file, _ := ArtifactFile(name)
		if _, err := os.Stat(filepath.Join(paths.Dir, file)); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("stat %s: %w", file, err)
			}
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// SaveArtifact replaces a single-file artifact. Saving the rag tree validates
// it first; saving metadata re-registers the paper.
func (s *Store) SaveArtifact(ctx context.Context, id, name string, data []byte) error {
	if !ValidID(id) {
		return services.Wrap(services.ErrValidation, "library", "save artifact", fmt.Sprintf("invalid paper id %q", id), nil)
	}
	if !editable(name) {
		return services.Wrap(services.ErrValidation, "library", "save artifact", fmt.Sprintf("artifact %q cannot be edited", name), nil)
	}
	var meta Metadata
	switch name {
	case ArtifactRagTree:
		if err := ragtree.Validate(data); err != nil {
			return services.Wrap(services.ErrValidation, "library", "save artifact", "rag tree rejected", err)
		}
	case ArtifactMetadata:
		decoded, err := decodeMetadata(id, data)
		if err != nil {
			return services.Wrap(services.ErrValidation, "library", "save artifact", "metadata rejected", err)
		}
		meta = decoded
	}
	paths := s.Paths(id)
	if err := os.MkdirAll(paths.Dir, 0o755); err != nil {
		return fmt.Errorf("ensure paper dir: %w", err)
	}
	file, _ := ArtifactFile(name)
	if err := fileutil.WriteFileAtomic(filepath.Join(paths.Dir, file), data); err != nil {
		return err
	}
	s.logger.Info("artifact saved",
		logging.String(logging.FieldJobID, id),
		logging.String("artifact", name),
		logging.Int("bytes", len(data)),
	)
	if name == ArtifactMetadata {
		return s.Register(ctx, meta)
	}
	return nil
}

// ReadArtifact returns the raw bytes of a single-file artifact of an indexed
// paper.
func (s *Store) ReadArtifact(ctx context.Context, id, name string) ([]byte, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.readArtifact(id, name)
}

func (s *Store) readArtifact(id, name string) ([]byte, error) {
	if !ValidID(id) {
		return nil, services.Wrap(services.ErrValidation, "library", "read", fmt.Sprintf("invalid paper id %q", id), nil)
	}
	file, ok := ArtifactFile(name)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "library", "read", fmt.Sprintf("unknown artifact %q", name), nil)
	}
	path := filepath.Join(s.Paths(id).Dir, file)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "library", "read", fmt.Sprintf("%s missing for %q", name, id), nil)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func articleArtifact(lang string) (string, error) {
	switch lang {
	case "en":
		return ArtifactArticleEN, nil
	case "zh":
		return ArtifactArticleZH, nil
	}
	return "", services.Wrap(services.ErrValidation, "library", "article", fmt.Sprintf("unsupported language %q", lang), nil)
}

func editable(name string) bool {
	for _, candidate := range EditableArtifacts {
		if candidate == name {
			return true
		}
	}
	return false
}
