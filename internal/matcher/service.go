package matcher

import (
	"context"
	"errors"
	"log/slog"

	"lectern/internal/logging"
	"lectern/internal/ragtree"
	"lectern/internal/services"
)

// TreeLoader fetches the parsed rag tree of a paper.
type TreeLoader interface {
	LoadTree(ctx context.Context, paperID string) (*ragtree.Tree, error)
}

// Service resolves counterparts for papers held by a TreeLoader.
type Service struct {
	trees  TreeLoader
	logger *slog.Logger
}

// NewService wires a matcher to its tree source.
func NewService(trees TreeLoader, logger *slog.Logger) *Service {
	return &Service{trees: trees, logger: logging.NewComponentLogger(logger, "matcher")}
}

// Find loads the tree for paperID and searches it. Load failures and malformed
// trees are logged and reported as no match.
func (s *Service) Find(ctx context.Context, paperID, fragment string, lang Language, kind Kind) (Match, bool) {
	if s == nil || s.trees == nil {
		return Match{}, false
	}
	tree, err := s.trees.LoadTree(ctx, paperID)
	if err != nil {
		attrs := append([]logging.Attr{logging.String(logging.FieldJobID, paperID)}, logging.ErrorAttrs(err)...)
		if errors.Is(err, services.ErrMalformed) {
			logging.WarnWithContext(s.logger, "rag tree is malformed", "match_tree_malformed",
				append(attrs, logging.String(logging.FieldImpact, "no cross-reference shown for this paper"))...)
		} else {
			s.logger.Debug("rag tree unavailable", logging.Args(attrs...)...)
		}
		return Match{}, false
	}
	match, ok := FindCounterpart(tree, fragment, lang, kind)
	s.logger.Debug("counterpart lookup",
		logging.String(logging.FieldJobID, paperID),
		logging.String("kind", string(kind)),
		logging.String("lang", string(lang)),
		logging.Bool("found", ok),
	)
	return match, ok
}
