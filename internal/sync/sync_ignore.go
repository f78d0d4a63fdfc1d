package sync

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/syftlink/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

const IgnoreFileName = ".syftlinkignore"

var defaultIgnoreLines = []string{
	// syftlink temp and control files
	".syftlink*",
	"*.tmp",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList hides paths from reconciliation on both sides. A nil list ignores
// nothing.
type IgnoreList struct {
	ignore *gitignore.GitIgnore
	rules  int
}

// NewIgnoreList compiles the default rules plus extra lines.
func NewIgnoreList(extra ...string) *IgnoreList {
	lines := append([]string{}, defaultIgnoreLines...)
	rules := 0
	for _, line := range extra {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
		rules++
	}
	return &IgnoreList{ignore: gitignore.CompileIgnoreLines(lines...), rules: rules}
}

// LoadIgnoreList reads the ignore file from baseDir if one exists.
func LoadIgnoreList(baseDir string) (*IgnoreList, error) {
	ignorePath := filepath.Join(baseDir, IgnoreFileName)
	if !utils.FileExists(ignorePath) {
		return NewIgnoreList(), nil
	}

	file, err := os.Open(ignorePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ignorePath, err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", ignorePath, err)
	}

	list := NewIgnoreList(lines...)
	slog.Debug("loaded ignore file", "path", ignorePath, "rules", list.rules)
	return list, nil
}

func (s *IgnoreList) ShouldIgnore(path string) bool {
	if s == nil || s.ignore == nil {
		return false
	}
	return s.ignore.MatchesPath(path)
}
