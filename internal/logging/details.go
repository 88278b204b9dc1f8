package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// DetailField is one human-readable attribute line.
type DetailField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

const streamDetailLimit = 8

// detailRank orders the attributes operators look for first; unranked keys
// follow in the order they were logged.
var detailRank = func() map[string]int {
	keys := []string{
		FieldEventType,
		"status",
		FieldProgressStage,
		FieldProgressPercent,
		"error",
		"error_message",
		FieldErrorCode,
		FieldErrorHint,
		FieldImpact,
		"missing_steps",
		"queue_length",
		"pages",
		"chunks",
		"sections",
		"stage_duration",
		"job_duration",
		"reason",
	}
	rank := make(map[string]int, len(keys))
	for i, key := range keys {
		rank[key] = i
	}
	return rank
}()

var detailLabels = map[string]string{
	FieldEventType:       "Event",
	FieldErrorCode:       "Error Code",
	FieldErrorHint:       "Hint",
	FieldProgressStage:   "Progress Stage",
	FieldProgressPercent: "Progress",
	"missing_steps":      "Missing",
	"queue_length":       "Queued",
	"stage_duration":     "Duration",
	"job_duration":       "Duration",
}

// details renders fields as labelled lines. When verbose is false, paths,
// identifiers and overly long values are counted as hidden instead of shown;
// limit caps the shown lines (0 = unlimited).
func details(fields []field, limit int, verbose bool) ([]DetailField, int) {
	ordered := append([]field(nil), fields...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, iok := detailRank[ordered[i].key]
		rj, jok := detailRank[ordered[j].key]
		switch {
		case iok && jok:
			return ri < rj
		default:
			return iok && !jok
		}
	})

	var (
		out    []DetailField
		hidden int
	)
	for _, f := range ordered {
		value := detailValue(f.key, f.value)
		if !verbose && (internalKey(f.key) || (len(value) > 120 && !isErrorKey(f.key))) {
			hidden++
			continue
		}
		if limit > 0 && len(out) >= limit {
			hidden++
			continue
		}
		out = append(out, DetailField{Label: detailLabel(f.key), Value: value})
	}
	return out, hidden
}

func detailValue(key string, v slog.Value) string {
	switch {
	case v.Kind() == slog.KindBool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	case v.Kind() == slog.KindDuration:
		return humanDuration(v.Duration())
	case v.Kind() == slog.KindFloat64 && (key == "percent" || strings.HasSuffix(key, "_percent")):
		return percent(v.Float64())
	case isErrorKey(key):
		return truncate(attrString(v), 200)
	default:
		return formatValue(v)
	}
}

func internalKey(key string) bool {
	if key == FieldAttempt || strings.HasSuffix(key, "_id") {
		return true
	}
	return strings.Contains(key, "_path") || strings.Contains(key, "_dir")
}

func isErrorKey(key string) bool {
	return key == "error" || key == "error_message" || key == FieldErrorHint
}

func detailLabel(key string) string {
	if label, ok := detailLabels[key]; ok {
		return label
	}
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' || r == '.' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return value[:max] + "…"
}
