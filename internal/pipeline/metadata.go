package pipeline

import (
	"context"
	"encoding/json"

	"lectern/internal/library"
	"lectern/internal/stage"
)

// MetadataStage writes metadata.json, which registers the paper in the index.
type MetadataStage struct{}

func NewMetadataStage() *MetadataStage { return &MetadataStage{} }

func (s *MetadataStage) Name() string { return "metadata" }

func (s *MetadataStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(s.Name())
}

func (s *MetadataStage) Run(_ context.Context, work *Work, _ stage.Reporter) error {
	meta := library.Metadata{
		ID:              work.PaperID,
		Title:           work.Titles["en"],
		TranslatedTitle: work.Titles["zh"],
	}
	if meta.Title == "" {
		meta.Title = work.PaperID
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return stage.Fail(s.Name(), "encode", "Metadata could not be encoded", err)
	}
	return work.WriteArtifact(library.ArtifactMetadata, append(data, '\n'))
}
