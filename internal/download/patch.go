package download

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
)

// ApplyUnifiedDiff applies a single unified-diff patch (as produced by
// `diff -u` / `git diff --no-index`) against the files under root. No
// pack example ships a unified-diff apply library (go-difflib, the
// teacher's only diff-adjacent dependency, only computes diffs, it does
// not apply them), so this is a small hand-rolled hunk applier built
// directly on the standard library.
//
// spec.md §4.5 step 5 excludes the manifest file itself from patches and
// requires patches be applied before type exports are read, both of
// which are the caller's responsibility (this function only applies the
// hunks).
func ApplyUnifiedDiff(root string, diffText string) error {
	files := splitFileDiffs(diffText)
	for _, fd := range files {
		if err := applyFileDiff(root, fd); err != nil {
			return err
		}
	}
	return nil
}

type fileDiff struct {
	targetPath string
	hunks      []hunk
	newFile    bool
}

type hunk struct {
	oldStart int
	lines    []hunkLine // leading ' ', '+', or '-'
}

type hunkLine struct {
	kind byte // ' ' context, '+' add, '-' remove
	text string
}

func splitFileDiffs(diffText string) []fileDiff {
	var out []fileDiff
	var cur *fileDiff
	var curHunk *hunk

	flush := func() {
		if curHunk != nil && cur != nil {
			cur.hunks = append(cur.hunks, *curHunk)
			curHunk = nil
		}
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(diffText))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "--- "):
			// start of a new file diff
			flush()
			cur = &fileDiff{}
		case strings.HasPrefix(line, "+++ "):
			if cur != nil {
				cur.targetPath = normalizeDiffPath(line[4:])
				if cur.targetPath == "/dev/null" {
					cur.targetPath = ""
				}
			}
		case strings.HasPrefix(line, "@@ "):
			if curHunk != nil && cur != nil {
				cur.hunks = append(cur.hunks, *curHunk)
			}
			oldStart, _ := parseHunkHeader(line)
			curHunk = &hunk{oldStart: oldStart}
		case cur != nil && curHunk != nil && len(line) > 0 && (line[0] == ' ' || line[0] == '+' || line[0] == '-'):
			curHunk.lines = append(curHunk.lines, hunkLine{kind: line[0], text: line[1:]})
		case cur != nil && curHunk != nil && line == "":
			curHunk.lines = append(curHunk.lines, hunkLine{kind: ' ', text: ""})
		}
	}
	flush()
	return out
}

func normalizeDiffPath(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexByte(p, '\t'); i >= 0 {
		p = p[:i]
	}
	for _, prefix := range []string{"a/", "b/"} {
		if strings.HasPrefix(p, prefix) {
			return p[len(prefix):]
		}
	}
	return p
}

func parseHunkHeader(line string) (oldStart, newStart int) {
	// "@@ -oldStart,oldCount +newStart,newCount @@"
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return 0, 0
	}
	oldStart = parseRangeStart(fields[1])
	newStart = parseRangeStart(fields[2])
	return oldStart, newStart
}

func parseRangeStart(field string) int {
	field = strings.TrimPrefix(field, "+")
	field = strings.TrimPrefix(field, "-")
	parts := strings.SplitN(field, ",", 2)
	n, _ := strconv.Atoi(parts[0])
	return n
}

func applyFileDiff(root string, fd fileDiff) error {
	if fd.targetPath == "" {
		return nil // pure deletion; nothing further to materialize
	}
	if strings.Contains(fd.targetPath, "..") || filepath.IsAbs(fd.targetPath) {
		return errdefs.New(errdefs.PatchCreatesFileOutsidePackage, fd.targetPath)
	}
	target := filepath.Join(root, filepath.FromSlash(fd.targetPath))
	cleanRoot := filepath.Clean(root)
	if !strings.HasPrefix(filepath.Clean(target), cleanRoot+string(filepath.Separator)) {
		return errdefs.New(errdefs.PatchCreatesFileOutsidePackage, fd.targetPath)
	}

	var original []string
	if data, err := os.ReadFile(target); err == nil {
		original = strings.Split(string(data), "\n")
	}

	result := make([]string, 0, len(original))
	cursor := 0 // index into original, 0-based

	for _, h := range fd.hunks {
		startIdx := h.oldStart - 1
		if startIdx < 0 {
			startIdx = 0
		}
		for cursor < startIdx && cursor < len(original) {
			result = append(result, original[cursor])
			cursor++
		}
		for _, hl := range h.lines {
			switch hl.kind {
			case ' ':
				if cursor < len(original) {
					result = append(result, original[cursor])
				} else {
					result = append(result, hl.text)
				}
				cursor++
			case '-':
				cursor++
			case '+':
				result = append(result, hl.text)
			}
		}
	}
	for cursor < len(original) {
		result = append(result, original[cursor])
		cursor++
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errdefs.Wrap(err, errdefs.PermissionDenied, filepath.Dir(target))
	}
	out := strings.Join(result, "\n")
	if original == nil && len(result) > 0 {
		out += "\n"
	}
	if err := os.WriteFile(target, []byte(out), 0o644); err != nil {
		return errdefs.Wrap(err, errdefs.PatchDoesNotApply, target)
	}
	return nil
}
