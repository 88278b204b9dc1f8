package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lectern/internal/api"
)

func buildQueueListRows(jobs []api.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		source := strings.TrimSpace(job.SourcePath)
		if source != "" {
			source = filepath.Base(source)
		}
		rows = append(rows, []string{
			job.ID,
			formatStatusLabel(job.Status),
			fmt.Sprintf("%d", job.Priority),
			formatMissing(job.MissingSteps),
			source,
			formatDisplayTime(firstNonEmpty(job.FinishedAt, job.StartedAt, job.EnqueuedAt)),
			job.ErrorMessage,
		})
	}
	return rows
}

// buildQueueStatusRows counts jobs per status in a stable order.
func buildQueueStatusRows(jobs []api.Job) [][]string {
	if len(jobs) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, job := range jobs {
		counts[job.Status]++
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", counts[key])})
	}
	return rows
}

func buildHistoryRows(outcomes []api.Outcome) [][]string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{
			o.JobID,
			formatStatusLabel(o.Status),
			formatDisplayTime(o.FinishedAt),
			formatSeconds(o.Seconds),
			o.Error,
		})
	}
	return rows
}

func buildPaperRows(papers []api.Paper) [][]string {
	rows := make([][]string, 0, len(papers))
	for _, p := range papers {
		rows = append(rows, []string{p.ID, p.Title, p.TranslatedTitle, formatDisplayTime(p.UpdatedAt)})
	}
	return rows
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatMissing(steps []string) string {
	if len(steps) == 0 {
		return "-"
	}
	return strings.Join(steps, ",")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return parsed.Local().Format("2006-01-02 15:04:05")
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
