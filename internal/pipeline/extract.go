package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"lectern/internal/logging"
	"lectern/internal/stage"
)

// ExtractStage pulls plain text out of the source PDF and writes the
// source-language article with one heading per page.
type ExtractStage struct {
	maxPages int
	logger   *slog.Logger
}

// NewExtractStage caps extraction at maxPages when it is positive.
func NewExtractStage(maxPages int) *ExtractStage {
	return &ExtractStage{maxPages: maxPages, logger: logging.NewNop()}
}

func (s *ExtractStage) Name() string { return "extract" }

func (s *ExtractStage) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *ExtractStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(s.Name())
}

func (s *ExtractStage) Run(ctx context.Context, work *Work, report stage.Reporter) error {
	if _, err := os.Stat(work.SourcePath); err != nil {
		return stage.Fail(s.Name(), "open", "Source PDF is not readable", err)
	}
	pages, err := readPages(ctx, work.SourcePath, s.maxPages, report)
	if err != nil {
		return stage.Fail(s.Name(), "read", "PDF text extraction failed", err)
	}
	title := firstLine(pages)
	if title == "" {
		return stage.Fail(s.Name(), "read", "PDF contains no extractable text", nil)
	}
	s.logger.Info("text extracted",
		logging.Int("pages", len(pages)),
		logging.String("title", title),
	)
	markdown := renderPages(title, pages)
	work.Titles[work.SourceLang] = title
	work.Articles[work.SourceLang] = markdown
	return work.WriteArtifact(ArticleArtifact(work.SourceLang), []byte(markdown))
}

func readPages(ctx context.Context, path string, maxPages int, report stage.Reporter) (pages []string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader: %v", r)
		}
	}()
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	total := reader.NumPage()
	if maxPages > 0 && total > maxPages {
		total = maxPages
	}
	for index := 1; index <= total; index++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(index)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", index, err)
		}
		pages = append(pages, text)
		report.Report(stage.Fraction(index, total))
	}
	return pages, nil
}

func firstLine(pages []string) string {
	for _, page := range pages {
		for _, line := range strings.Split(page, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// renderPages lays out extracted page text as markdown.
func renderPages(title string, pages []string) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteString("\n")
	for i, page := range pages {
		body := strings.TrimSpace(page)
		if body == "" {
			continue
		}
		b.WriteString("\n## Page ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("\n\n")
		b.WriteString(collapseParagraphs(body))
		b.WriteString("\n")
	}
	return b.String()
}

// collapseParagraphs joins wrapped lines and keeps blank-line breaks.
func collapseParagraphs(text string) string {
	var (
		paragraphs []string
		current    []string
	)
	flush := func() {
		if len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return strings.Join(paragraphs, "\n\n")
}
