package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"lectern/internal/fileutil"
	"lectern/internal/library"
	"lectern/internal/logging"
	"lectern/internal/matcher"
	"lectern/internal/queue"
	"lectern/internal/services"
)

// Upload stores an uploaded PDF in the data directory as <id>.pdf and queues
// it ahead of scanned work. Papers already in the index are rejected unless
// force is set.
func (d *Daemon) Upload(ctx context.Context, filename string, body io.Reader, force bool) (queue.Job, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return queue.Job{}, services.Wrap(services.ErrValidation, "daemon", "upload", "only PDF files are accepted", nil)
	}
	id := library.PaperID(filename)
	if !library.ValidID(id) {
		return queue.Job{}, services.Wrap(services.ErrValidation, "daemon", "upload", fmt.Sprintf("cannot derive a paper id from %q", filename), nil)
	}
	if err := d.checkDuplicate(ctx, id, force); err != nil {
		return queue.Job{}, err
	}

	if err := os.MkdirAll(d.cfg.Paths.DataDir, 0o755); err != nil {
		return queue.Job{}, fmt.Errorf("ensure data dir: %w", err)
	}
	dest := filepath.Join(d.cfg.Paths.DataDir, id+".pdf")
	written, digest, err := fileutil.WriteStreamAtomic(dest, body)
	if err != nil {
		return queue.Job{}, err
	}
	if written == 0 {
		_ = os.Remove(dest)
		return queue.Job{}, services.Wrap(services.ErrValidation, "daemon", "upload", "uploaded file is empty", nil)
	}
	d.logger.Info("paper uploaded",
		logging.String(logging.FieldJobID, id),
		logging.String(logging.FieldEventType, "paper_uploaded"),
		logging.Int64("bytes", written),
		logging.String("sha256", digest),
		logging.Bool("force", force),
	)
	return d.orchestrator.EnqueueUpload(id, dest)
}

// AddPath queues a PDF already readable by the daemon. An empty id is derived
// from the file name the same way uploads are.
func (d *Daemon) AddPath(ctx context.Context, id, path string, force bool) (queue.Job, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return queue.Job{}, services.Wrap(services.ErrValidation, "daemon", "add", fmt.Sprintf("%s does not exist", path), nil)
		}
		return queue.Job{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return queue.Job{}, services.Wrap(services.ErrValidation, "daemon", "add", fmt.Sprintf("%s is a directory", path), nil)
	}
	if strings.TrimSpace(id) == "" {
		id = library.PaperID(path)
	}
	if err := d.checkDuplicate(ctx, id, force); err != nil {
		return queue.Job{}, err
	}
	job, err := d.orchestrator.EnqueueUpload(id, path)
	if err != nil {
		return queue.Job{}, err
	}
	d.logger.Info("paper queued from path",
		logging.String(logging.FieldJobID, id),
		logging.String("source", path),
	)
	return job, nil
}

func (d *Daemon) checkDuplicate(ctx context.Context, id string, force bool) error {
	if force {
		return nil
	}
	known, err := d.library.Known(ctx, id)
	if err != nil {
		return err
	}
	if known {
		return services.Wrap(services.ErrValidation, "daemon", "upload", fmt.Sprintf("paper %q already exists", id), nil)
	}
	return nil
}

// Remove drops a pending job from the queue.
func (d *Daemon) Remove(id string) error {
	return d.orchestrator.Remove(id)
}

// Retry re-queues a job that failed recently.
func (d *Daemon) Retry(id string) (queue.Job, error) {
	return d.orchestrator.RetryFailed(id)
}

// History returns journaled outcomes, newest first.
func (d *Daemon) History(ctx context.Context, jobID string, limit int) ([]queue.Outcome, error) {
	if d.journal == nil {
		return nil, nil
	}
	if jobID != "" {
		return d.journal.ForJob(ctx, jobID)
	}
	return d.journal.Recent(ctx, limit)
}

// Papers lists the library index.
func (d *Daemon) Papers(ctx context.Context) ([]library.Entry, error) {
	return d.library.ListIndex(ctx)
}

// Paper loads an indexed paper with both articles and reports which required
// artifacts are missing.
func (d *Daemon) Paper(ctx context.Context, id string) (library.Content, []string, error) {
	content, err := d.library.LoadContent(ctx, id)
	if err != nil {
		return library.Content{}, nil, err
	}
	missing, err := d.library.MissingArtifacts(ctx, id)
	if err != nil {
		d.logger.Debug("missing artifact check failed", logging.String(logging.FieldJobID, id), logging.Error(err))
	}
	return content, missing, nil
}

// Tree returns the raw rag tree JSON of an indexed paper.
func (d *Daemon) Tree(ctx context.Context, id string) ([]byte, error) {
	return d.library.ReadArtifact(ctx, id, library.ArtifactRagTree)
}

// Match resolves the counterpart of fragment. Every failure is a miss.
func (d *Daemon) Match(ctx context.Context, id, fragment string, lang matcher.Language, kind matcher.Kind) (matcher.Match, bool) {
	return d.matcher.Find(ctx, id, fragment, lang, kind)
}

// SaveArtifact replaces an editable artifact of a paper.
func (d *Daemon) SaveArtifact(ctx context.Context, id, name string, data []byte) error {
	return d.library.SaveArtifact(ctx, id, name, data)
}

// DeletePaper removes a paper's output. The paper being processed cannot be
// deleted.
func (d *Daemon) DeletePaper(ctx context.Context, id string) error {
	if active := d.orchestrator.ProgressSnapshot(); active.JobID == id {
		return services.Wrap(services.ErrValidation, "daemon", "delete", fmt.Sprintf("paper %q is being processed", id), nil)
	}
	return d.library.Delete(ctx, id)
}

// Dedupe drops index rows whose paper directory vanished.
func (d *Daemon) Dedupe(ctx context.Context) ([]string, error) {
	return d.library.Deduplicate(ctx)
}
