package logging

import "strings"

// ProgressSampler thins progress logging to one line per stage change or per
// percentage bucket crossed.
type ProgressSampler struct {
	bucketSize float64
	stage      string
	bucket     int
}

// NewProgressSampler uses buckets of bucketSize percent (10 when not positive).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, bucket: -1}
}

// ShouldLog reports whether an update is worth a log line. Negative percent
// means unknown: only a stage change counts then. A nil sampler logs
// everything.
func (s *ProgressSampler) ShouldLog(stage string, percent float64) bool {
	if s == nil {
		return true
	}
	changed := false
	if stage = strings.TrimSpace(stage); stage != "" && stage != s.stage {
		s.stage, s.bucket = stage, -1
		changed = true
	}
	if percent < 0 {
		return changed
	}
	if bucket := int(min(percent, 100) / s.bucketSize); bucket > s.bucket {
		s.bucket = bucket
		changed = true
	}
	return changed
}

// Reset forgets the last stage and bucket.
func (s *ProgressSampler) Reset() {
	if s != nil {
		s.stage, s.bucket = "", -1
	}
}
