package gitengine

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const defaultCommitMessageTemplate = "Auto-save: {{change_summary}} ({{timestamp}})"

// maxSummaryLines caps how many individual file entries appear per
// section of a rendered change summary before the remainder collapses
// into a trailing "... (N more)" count (§6).
const maxSummaryLines = 10

// sectionOrder is the fixed Added/Modified/Deleted/Renamed/TypeChanged
// ordering §6 specifies for the rendered change summary.
var sectionOrder = []ChangeKind{ChangeAdded, ChangeModified, ChangeDeleted, ChangeRenamed, ChangeTypeChange}

// RenderCommitMessage expands the two template placeholders the
// commit_message_template config value supports: {{timestamp}} (RFC3339)
// and {{change_summary}} (a multi-section Added/Modified/Deleted/
// Renamed/TypeChanged list, each section capped at maxSummaryLines). An
// empty template falls back to defaultCommitMessageTemplate.
func RenderCommitMessage(tmpl string, changes []FileChange, now time.Time) string {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = defaultCommitMessageTemplate
	}

	msg := strings.ReplaceAll(tmpl, "{{timestamp}}", now.Format(time.RFC3339))
	msg = strings.ReplaceAll(msg, "{{change_summary}}", SummarizeChanges(changes))
	return msg
}

// SummarizeChanges renders the {{change_summary}} placeholder's value
// on its own, for callers (e.g. the LLM review hook) that want the
// change summary without a full template pass.
func SummarizeChanges(changes []FileChange) string {
	if len(changes) == 0 {
		return "no changes"
	}

	byKind := make(map[ChangeKind][]string, len(sectionOrder))
	for _, c := range changes {
		byKind[c.Kind] = append(byKind[c.Kind], c.Path)
	}

	var sections []string
	for _, kind := range sectionOrder {
		paths := byKind[kind]
		if len(paths) == 0 {
			continue
		}
		sort.Strings(paths)
		sections = append(sections, fmt.Sprintf("%s: %s", kind, strings.Join(capSection(paths), ", ")))
	}
	if len(sections) == 0 {
		return "no changes"
	}
	return strings.Join(sections, "; ")
}

// capSection caps one section's entries at maxSummaryLines, appending a
// "... (N more)" suffix for the remainder per §6.
func capSection(paths []string) []string {
	if len(paths) <= maxSummaryLines {
		return paths
	}
	shown := append([]string(nil), paths[:maxSummaryLines]...)
	return append(shown, fmt.Sprintf("... (%d more)", len(paths)-maxSummaryLines))
}
