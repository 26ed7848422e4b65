package project

import (
	"os"
	"path/filepath"
	"strings"
)

// GitInfo is the git state stamped onto envelopes. Both fields are
// empty when the project is not a git working copy; routing treats
// absence as "unknown", never as an error.
type GitInfo struct {
	Branch    string
	CommitSHA string
}

// DetectGit reads .git/HEAD under root without shelling out to git.
// A symbolic HEAD yields the branch name and the resolved ref's commit;
// a detached HEAD yields only the commit. Any read failure degrades to
// empty fields.
func DetectGit(root string) GitInfo {
	gitDir := filepath.Join(root, ".git")

	head, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return GitInfo{}
	}

	line := strings.TrimSpace(string(head))
	if ref, ok := strings.CutPrefix(line, "ref: "); ok {
		info := GitInfo{Branch: strings.TrimPrefix(ref, "refs/heads/")}
		if sha, err := os.ReadFile(filepath.Join(gitDir, filepath.FromSlash(ref))); err == nil {
			info.CommitSHA = strings.TrimSpace(string(sha))
		} else if sha, ok := packedRef(gitDir, ref); ok {
			info.CommitSHA = sha
		}
		return info
	}

	// Detached HEAD: the file holds the commit itself.
	return GitInfo{CommitSHA: line}
}

// packedRef looks a ref up in .git/packed-refs, where git moves refs
// after gc.
func packedRef(gitDir, ref string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(gitDir, "packed-refs"))
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "^") {
			continue
		}
		sha, name, ok := strings.Cut(strings.TrimSpace(line), " ")
		if ok && name == ref {
			return sha, true
		}
	}
	return "", false
}
