package workspace

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// BranchPrefix namespaces all branches created by the tool so cleanup can
// tell them apart from user branches.
const BranchPrefix = "tf/"

const maxSlugLen = 50

// Slugify converts a task title into a filesystem- and branch-safe slug.
// Runs of non-alphanumeric characters collapse into single hyphens and the
// result is capped at 50 characters.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		slug = "task"
	}
	return slug
}

// shortID returns the first 8 characters of a task ID.
func shortID(taskID string) string {
	if len(taskID) > 8 {
		return taskID[:8]
	}
	return taskID
}

// BranchName derives the branch name for a task from its title and ID.
func BranchName(title, taskID string) string {
	return BranchPrefix + Slugify(title) + "-" + shortID(taskID)
}

// DirName derives the worktree directory name for a task.
func DirName(title, taskID string) string {
	return Slugify(title) + "-" + shortID(taskID)
}

// projectHash returns a short stable hash of the project path, used to
// bucket worktrees from different repositories under the base directory.
func projectHash(projectPath string) string {
	h := fnv.New32a()
	h.Write([]byte(projectPath))
	return fmt.Sprintf("%08x", h.Sum32())
}
