package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"lectern/internal/logging"
)

// LogIndexer is the default Indexer. It checks that the retrieval store
// exists and records the registration in the log.
type LogIndexer struct {
	logger *slog.Logger
}

func NewLogIndexer(logger *slog.Logger) *LogIndexer {
	return &LogIndexer{logger: logging.NewComponentLogger(logger, "indexer")}
}

func (i *LogIndexer) Register(ctx context.Context, paperID, vectorDir string) error {
	info, err := os.Stat(vectorDir)
	if err != nil {
		return fmt.Errorf("vector store for %s: %w", paperID, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vector store for %s is not a directory", paperID)
	}
	logging.WithContext(ctx, i.logger).Info("retrieval store registered",
		logging.String(logging.FieldJobID, paperID),
		logging.String("vector_dir", vectorDir),
		logging.String(logging.FieldEventType, "retrieval_registered"),
	)
	return nil
}
