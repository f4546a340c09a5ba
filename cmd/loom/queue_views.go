package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"loom/internal/api"
)

// statusCaser turns status identifiers into display labels.
var statusCaser = cases.Title(language.Und)

func buildQueueStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func buildJobRows(jobs []api.Job) [][]string {
	if len(jobs) == 0 {
		return nil
	}
	sorted := make([]api.Job, len(jobs))
	copy(sorted, jobs)

	sort.Slice(sorted, func(i, j int) bool {
		ti := parseQueueTime(sorted[i].CreatedAt)
		tj := parseQueueTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})

	rows := make([][]string, 0, len(sorted))
	for _, job := range sorted {
		rows = append(rows, []string{
			fmt.Sprintf("%d", job.ID),
			job.SubjectID,
			formatStatusLabel(job.Status),
			progressCell(job),
			fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts),
			formatDisplayTime(job.CreatedAt),
		})
	}
	return rows
}

func progressCell(job api.Job) string {
	if job.Progress.Percent == nil {
		return "-"
	}
	cell := fmt.Sprintf("%d%%", *job.Progress.Percent)
	if stage := formatStageLabel(job.Progress.Stage); stage != "" {
		cell = fmt.Sprintf("%s (%s)", cell, stage)
	}
	return cell
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return statusCaser.String(strings.ReplaceAll(strings.ToLower(status), "_", " "))
}

// formatStageLabel humanizes assembler stage identifiers without
// title-casing them, so they read naturally inside progress cells.
func formatStageLabel(stage string) string {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(stage), "_", " ")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

func parseQueueTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}
