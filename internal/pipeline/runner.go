package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"lectern/internal/config"
	"lectern/internal/fileutil"
	"lectern/internal/library"
	"lectern/internal/logging"
	"lectern/internal/services"
	"lectern/internal/services/llm"
	"lectern/internal/stage"
)

// ScratchDirName is the directory under the output root holding in-flight runs.
const ScratchDirName = ".work"

// ProgressFunc receives stage progress. percent spans the whole run.
type ProgressFunc func(stageName string, index, total int, percent float64)

// Result describes a successful run.
type Result struct {
	PaperID         string
	Title           string
	TranslatedTitle string
	Produced        []string
}

// Stage is one step of the conversion.
type Stage interface {
	Name() string
	Run(ctx context.Context, work *Work, report stage.Reporter) error
	HealthCheck(ctx context.Context) stage.Health
}

// Work carries state between stages of a single run.
type Work struct {
	PaperID    string
	SourcePath string
	ScratchDir string
	SourceLang string
	TargetLang string
	// Titles and Articles are keyed by language code.
	Titles   map[string]string
	Articles map[string]string
	Produced []string
}

// ArtifactPath returns the scratch location of an artifact.
func (w *Work) ArtifactPath(name string) string {
	file, _ := library.ArtifactFile(name)
	return filepath.Join(w.ScratchDir, file)
}

// WriteArtifact stores a single-file artifact in the scratch directory.
func (w *Work) WriteArtifact(name string, data []byte) error {
	if _, ok := library.ArtifactFile(name); !ok {
		return fmt.Errorf("unknown artifact %q", name)
	}
	if err := fileutil.WriteFileAtomic(w.ArtifactPath(name), data); err != nil {
		return err
	}
	w.MarkProduced(name)
	return nil
}

// MarkProduced records an artifact created directly in the scratch directory.
func (w *Work) MarkProduced(name string) {
	if !slices.Contains(w.Produced, name) {
		w.Produced = append(w.Produced, name)
	}
}

// promotionOrder moves the completeness markers last.
var promotionOrder = []string{
	library.ArtifactArticleEN,
	library.ArtifactArticleZH,
	library.ArtifactRagMarkdown,
	library.ArtifactVectors,
	library.ArtifactImages,
	library.ArtifactRagTree,
	library.ArtifactMetadata,
}

// Runner executes stages against one source file at a time.
type Runner struct {
	stages     []Stage
	sourceLang string
	targetLang string
	logger     *slog.Logger
}

// NewRunner assembles a runner from explicit stages.
func NewRunner(stages []Stage, sourceLang, targetLang string, logger *slog.Logger) *Runner {
	return &Runner{
		stages:     stages,
		sourceLang: sourceLang,
		targetLang: targetLang,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
	}
}

// New builds the default stage list from configuration. The translate stage
// uses the configured command when present, otherwise the LLM client.
func New(cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: config required")
	}
	translator, chunkChars, err := translatorFor(cfg)
	if err != nil {
		return nil, err
	}
	stages := []Stage{
		NewExtractStage(cfg.Pipeline.MaxPages),
		NewTranslateStage(translator, chunkChars),
		NewStructureStage(),
		NewMetadataStage(),
	}
	return NewRunner(stages, cfg.Pipeline.SourceLanguage, cfg.Pipeline.TargetLanguage, logger), nil
}

func translatorFor(cfg *config.Config) (Translator, int, error) {
	if len(cfg.Pipeline.TranslateCommand) > 0 {
		return &CommandTranslator{
			Argv:    cfg.Pipeline.TranslateCommand,
			Timeout: time.Duration(cfg.Pipeline.TranslateTimeout) * time.Second,
		}, 0, nil
	}
	llmCfg := llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}
	if llmCfg.Enabled() {
		return llm.NewClient(llmCfg), cfg.Pipeline.ChunkChars, nil
	}
	return nil, 0, nil
}

// Stages lists stage names in execution order.
func (r *Runner) Stages() []string {
	names := make([]string, 0, len(r.stages))
	for _, st := range r.stages {
		names = append(names, st.Name())
	}
	return names
}

// HealthCheck reports the readiness of every stage.
func (r *Runner) HealthCheck(ctx context.Context) []stage.Health {
	out := make([]stage.Health, 0, len(r.stages))
	for _, st := range r.stages {
		out = append(out, st.HealthCheck(ctx))
	}
	return out
}

// Run converts sourcePath into the artifacts of its paper under outputDir.
// The paper id comes from the context job id, falling back to the file name.
// Cancellation returns ctx.Err() and leaves the paper directory untouched.
func (r *Runner) Run(ctx context.Context, sourcePath, outputDir string, onProgress ProgressFunc) (Result, error) {
	paperID, ok := services.JobIDFromContext(ctx)
	if !ok {
		paperID = library.ScanID(sourcePath)
	}
	if !library.ValidID(paperID) {
		return Result{}, services.Wrap(services.ErrValidation, "pipeline", "run", fmt.Sprintf("invalid paper id %q", paperID), nil)
	}
	attempt, ok := services.AttemptFromContext(ctx)
	if !ok {
		attempt = uuid.NewString()
	}
	ctx = services.WithJobID(ctx, paperID)
	scratch := filepath.Join(outputDir, ScratchDirName, paperID+"-"+attempt)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrPipeline, "pipeline", "prepare", "Scratch directory could not be created", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			r.logger.Warn("scratch cleanup failed", logging.String("path", scratch), logging.Error(err))
		}
	}()

	work := &Work{
		PaperID:    paperID,
		SourcePath: sourcePath,
		ScratchDir: scratch,
		SourceLang: r.sourceLang,
		TargetLang: r.targetLang,
		Titles:     make(map[string]string, 2),
		Articles:   make(map[string]string, 2),
	}
	logger := logging.WithContext(ctx, r.logger)
	sampler := logging.NewProgressSampler(25)
	total := len(r.stages)
	runStart := time.Now()

	for index, st := range r.stages {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		name := st.Name()
		stageCtx := services.WithStage(ctx, name)
		stageLogger := logging.WithContext(stageCtx, r.logger)
		if aware, ok := st.(stage.LoggerAware); ok {
			aware.SetLogger(stageLogger)
		}
		report := stage.Reporter(func(percent float64) {
			overall := (float64(index) + percent/100) / float64(total) * 100
			if onProgress != nil {
				onProgress(name, index, total, overall)
			}
			if sampler.ShouldLog(name, percent) {
				stageLogger.Debug("stage progress",
					logging.String(logging.FieldProgressStage, name),
					logging.Float64(logging.FieldProgressPercent, overall),
				)
			}
		})

		stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
		started := time.Now()
		report.Report(0)
		if err := st.Run(stageCtx, work, report); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			if !errors.Is(err, services.ErrPipeline) {
				err = stage.Fail(name, "run", "Stage failed", err)
			}
			logging.ErrorWithContext(stageLogger, "stage failed", "stage_failed", logging.ErrorAttrs(err)...)
			return Result{}, err
		}
		report.Report(100)
		stageLogger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("duration", time.Since(started)),
		)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := promote(work, filepath.Join(outputDir, paperID)); err != nil {
		return Result{}, services.Wrap(services.ErrPipeline, "pipeline", "promote", "Artifacts could not be moved into place", err)
	}
	logger.Info("pipeline completed",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.Strings("artifacts", work.Produced),
		logging.Duration("duration", time.Since(runStart)),
	)
	return Result{
		PaperID:         paperID,
		Title:           work.Titles["en"],
		TranslatedTitle: work.Titles["zh"],
		Produced:        slices.Clone(work.Produced),
	}, nil
}

func promote(work *Work, paperDir string) error {
	if err := os.MkdirAll(paperDir, 0o755); err != nil {
		return err
	}
	for _, name := range promotionOrder {
		if !slices.Contains(work.Produced, name) {
			continue
		}
		file, _ := library.ArtifactFile(name)
		if err := fileutil.MovePath(filepath.Join(work.ScratchDir, file), filepath.Join(paperDir, file)); err != nil {
			return fmt.Errorf("promote %s: %w", name, err)
		}
	}
	return nil
}

// ArticleArtifact maps a language code to its article artifact.
func ArticleArtifact(lang string) string {
	if lang == "zh" {
		return library.ArtifactArticleZH
	}
	return library.ArtifactArticleEN
}
