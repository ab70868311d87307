// Package diff turns a workspace's git changes into a structured summary.
package diff

import (
	"strings"

	"github.com/taskforge/taskforge/internal/git"
)

// ChangeType classifies how a file changed.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRenamed  ChangeType = "renamed"
)

// FileDiff is the parsed change summary for a single file.
type FileDiff struct {
	Path       string     `json:"path"`
	OldPath    string     `json:"old_path,omitempty"`
	ChangeType ChangeType `json:"change_type"`
	Additions  int        `json:"additions"`
	Deletions  int        `json:"deletions"`
	Hunks      string     `json:"hunks"`
}

// Response aggregates the per-file diffs of a workspace.
type Response struct {
	Files          []FileDiff `json:"files"`
	TotalAdditions int        `json:"total_additions"`
	TotalDeletions int        `json:"total_deletions"`
}

// Compute diffs the workspace against its parent commit, falling back to
// the main branch when no parent-relative diff is available (e.g. a fresh
// worktree with a single commit). A workspace with no history or no
// changes yields an empty response, not an error.
func Compute(workspacePath string) (*Response, error) {
	return compute(git.NewRunner(workspacePath))
}

func compute(g git.DiffOperations) (*Response, error) {
	raw, err := g.Diff("HEAD~1")
	if err != nil {
		raw, err = g.Diff("main")
		if err != nil {
			return &Response{Files: []FileDiff{}}, nil
		}
	}
	return Parse(raw), nil
}

// Parse parses unified-diff text into per-file records. A `diff --git`
// header starts a new file; mode and rename markers override the default
// Modified classification; +/- lines (excluding the +++/--- headers) drive
// the counters, and every non-header line lands in the file's raw hunks.
func Parse(raw string) *Response {
	resp := &Response{Files: []FileDiff{}}
	if strings.TrimSpace(raw) == "" {
		return resp
	}

	var current *FileDiff
	var hunks strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.Hunks = hunks.String()
		resp.Files = append(resp.Files, *current)
		resp.TotalAdditions += current.Additions
		resp.TotalDeletions += current.Deletions
		current = nil
		hunks.Reset()
	}

	for _, line := range strings.Split(raw, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flush()
			current = &FileDiff{
				Path:       parseHeaderPath(line),
				ChangeType: ChangeModified,
			}
		case current == nil:
			// Preamble before the first header.
		case strings.HasPrefix(line, "new file mode"):
			current.ChangeType = ChangeAdded
		case strings.HasPrefix(line, "deleted file mode"):
			current.ChangeType = ChangeDeleted
		case strings.HasPrefix(line, "rename from "):
			current.ChangeType = ChangeRenamed
			current.OldPath = strings.TrimPrefix(line, "rename from ")
		case strings.HasPrefix(line, "rename to "):
			current.ChangeType = ChangeRenamed
			current.Path = strings.TrimPrefix(line, "rename to ")
		case strings.HasPrefix(line, "index "), strings.HasPrefix(line, "similarity index "),
			strings.HasPrefix(line, "old mode"), strings.HasPrefix(line, "new mode"):
			// Metadata lines carry no hunk content.
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			// File header lines are not counted as changes.
		default:
			if strings.HasPrefix(line, "+") {
				current.Additions++
			} else if strings.HasPrefix(line, "-") {
				current.Deletions++
			}
			hunks.WriteString(line)
			hunks.WriteByte('\n')
		}
	}
	flush()

	return resp
}

// parseHeaderPath extracts the "b/" side path from a `diff --git a/X b/Y` header.
func parseHeaderPath(line string) string {
	rest := strings.TrimPrefix(line, "diff --git ")
	if i := strings.Index(rest, " b/"); i >= 0 {
		return rest[i+3:]
	}
	// Fall back to the last whitespace-separated field.
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimPrefix(fields[len(fields)-1], "b/")
}
