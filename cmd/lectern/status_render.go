package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"lectern/internal/api"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 18
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + line + ansiReset
		}
	}
	return line
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// renderDaemonStatus prints the sectioned report behind `lectern status`.
func renderDaemonStatus(out io.Writer, status api.DaemonStatus, colorize bool) {
	writeLines := func(lines ...string) {
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
	}

	writeLines(renderSectionHeader("Daemon", colorize)...)
	running := statusError
	if status.Running {
		running = statusOK
	}
	writeLines(
		renderStatusLine("Running", running, fmt.Sprintf("pid %d", status.PID), colorize),
		renderStatusLine("Data directory", statusInfo, status.DataDir, colorize),
		renderStatusLine("Output directory", statusInfo, status.OutputDir, colorize),
		renderStatusLine("Library index", statusInfo, status.LibraryPath, colorize),
		renderStatusLine("Journal", statusInfo, status.JournalPath, colorize),
	)
	fmt.Fprintln(out)

	writeLines(renderSectionHeader("Pipeline", colorize)...)
	if len(status.Workflow.StageHealth) == 0 {
		writeLines(renderStatusLine("Stages", statusInfo, "no health data", colorize))
	}
	for _, h := range status.Workflow.StageHealth {
		kind := statusOK
		detail := "Ready"
		if !h.Ready {
			kind = statusWarn
			detail = strings.TrimSpace(h.Detail)
			if detail == "" {
				detail = "not ready"
			}
		}
		writeLines(renderStatusLine(h.Name, kind, detail, colorize))
	}
	fmt.Fprintln(out)

	wf := status.Workflow
	writeLines(renderSectionHeader("Queue", colorize)...)
	state := statusOK
	stateText := "Processing"
	if wf.Paused {
		state, stateText = statusWarn, "Paused"
	} else if wf.Active == nil {
		state, stateText = statusInfo, "Idle"
	}
	writeLines(renderStatusLine("State", state, stateText, colorize))
	if wf.Active != nil {
		writeLines(renderStatusLine("Active", statusInfo, describeProgress(wf.Active.ID, wf.Progress), colorize))
	}
	failedKind := statusInfo
	if wf.Failed > 0 {
		failedKind = statusWarn
	}
	writeLines(
		renderStatusLine("Pending", statusInfo, fmt.Sprintf("%d", wf.Pending), colorize),
		renderStatusLine("Recent", statusInfo, fmt.Sprintf("%d", wf.Recent), colorize),
		renderStatusLine("Failed", failedKind, fmt.Sprintf("%d", wf.Failed), colorize),
	)
}

func describeProgress(id string, p api.Progress) string {
	if p.JobID != id || p.Stage == "" {
		return id
	}
	if p.Total > 0 {
		return fmt.Sprintf("%s (%s %d/%d, %.0f%%)", id, p.Stage, p.Index+1, p.Total, p.Percent)
	}
	return fmt.Sprintf("%s (%s, %.0f%%)", id, p.Stage, p.Percent)
}
