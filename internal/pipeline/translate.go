package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"lectern/internal/logging"
	"lectern/internal/services"
	"lectern/internal/stage"
)

// Translator renders markdown from one language into another.
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// TranslateStage produces the target-language article from the source one.
type TranslateStage struct {
	translator Translator
	chunkChars int
	logger     *slog.Logger
}

// NewTranslateStage splits the article into chunks of at most chunkChars
// characters when chunkChars is positive; otherwise the whole article is sent
// at once.
func NewTranslateStage(translator Translator, chunkChars int) *TranslateStage {
	return &TranslateStage{translator: translator, chunkChars: chunkChars, logger: logging.NewNop()}
}

func (s *TranslateStage) Name() string { return "translate" }

func (s *TranslateStage) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *TranslateStage) HealthCheck(context.Context) stage.Health {
	if s.translator == nil {
		return stage.Unhealthy(s.Name(), "no translate_command or llm api_key/model configured")
	}
	if cmd, ok := s.translator.(*CommandTranslator); ok {
		if _, err := exec.LookPath(cmd.Argv[0]); err != nil {
			return stage.Unhealthy(s.Name(), fmt.Sprintf("translator %q not found", cmd.Argv[0]))
		}
	}
	return stage.Healthy(s.Name())
}

func (s *TranslateStage) Run(ctx context.Context, work *Work, report stage.Reporter) error {
	if s.translator == nil {
		return services.Wrap(services.ErrConfiguration, s.Name(), "translator", "No translator configured", nil)
	}
	source := work.Articles[work.SourceLang]
	if strings.TrimSpace(source) == "" {
		return stage.Fail(s.Name(), "input", "Source article is empty", nil)
	}
	chunks := SplitChunks(source, s.chunkChars)
	translated := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		out, err := s.translator.Translate(ctx, chunk, work.SourceLang, work.TargetLang)
		if err != nil {
			return stage.Fail(s.Name(), "translate", fmt.Sprintf("Chunk %d of %d failed", i+1, len(chunks)), err)
		}
		translated = append(translated, strings.TrimSpace(out))
		report.Report(stage.Fraction(i+1, len(chunks)))
	}
	article := strings.Join(translated, "\n\n") + "\n"
	title := leadingHeading(article)
	if title == "" {
		title = work.Titles[work.SourceLang]
	}
	work.Titles[work.TargetLang] = title
	work.Articles[work.TargetLang] = article
	s.logger.Info("article translated",
		logging.Int("chunks", len(chunks)),
		logging.String("translated_title", title),
	)
	return work.WriteArtifact(ArticleArtifact(work.TargetLang), []byte(article))
}

// SplitChunks breaks markdown at paragraph boundaries into pieces of at most
// limit characters. A single paragraph longer than limit becomes its own
// chunk. limit <= 0 returns the whole text.
func SplitChunks(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || len([]rune(text)) <= limit {
		return []string{text}
	}
	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	for _, paragraph := range strings.Split(text, "\n\n") {
		n := len([]rune(paragraph))
		if size > 0 && size+2+n > limit {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
		if size > 0 {
			current.WriteString("\n\n")
			size += 2
		}
		current.WriteString(paragraph)
		size += n
	}
	if size > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func leadingHeading(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
		return ""
	}
	return ""
}

// CommandTranslator runs an external program. Argv entries may contain
// {input}, {output}, {from} and {to} placeholders.
type CommandTranslator struct {
	Argv    []string
	Timeout time.Duration
}

func (c *CommandTranslator) Translate(ctx context.Context, text, from, to string) (string, error) {
	if len(c.Argv) == 0 {
		return "", services.Wrap(services.ErrConfiguration, "translate", "command", "Translate command is empty", nil)
	}
	dir, err := os.MkdirTemp("", "lectern-translate-*")
	if err != nil {
		return "", fmt.Errorf("translate workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.md")
	output := filepath.Join(dir, "output.md")
	if err := os.WriteFile(input, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write translator input: %w", err)
	}
	replacer := strings.NewReplacer("{input}", input, "{output}", output, "{from}", from, "{to}", to)
	argv := make([]string, len(c.Argv))
	for i, arg := range c.Argv {
		argv[i] = replacer.Replace(arg)
	}

	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), "LECTERN_SOURCE_LANG="+from, "LECTERN_TARGET_LANG="+to)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", services.Wrap(services.ErrTimeout, "translate", "command", fmt.Sprintf("Translator exceeded %s", c.Timeout), err)
		}
		return "", services.Wrap(services.ErrExternalTool, "translate", "command", tail(stderr.String(), 400), err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "translate", "command", "Translator produced no output file", err)
	}
	return string(data), nil
}

func tail(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	return "..." + text[len(text)-limit:]
}
