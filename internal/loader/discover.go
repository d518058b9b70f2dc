package loader

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"unicode"
)

// DefaultSuffix is the file name suffix LoadPlugins matches when none is given.
var DefaultSuffix = ".plugin" + platformExt()

func platformExt() string {
	if runtime.GOOS == "windows" {
		return ".dll"
	}
	return ".so"
}

// MatchSuffix reports whether name ends with suffix, ignoring case, with at
// least one character before it. The suffix is literal.
func MatchSuffix(name, suffix string) bool {
	if suffix == "" || len(name) <= len(suffix) {
		return false
	}
	return strings.EqualFold(name[len(name)-len(suffix):], suffix)
}

// scan collects the files of one directory walk.
type scan struct {
	root      string
	suffix    string
	recursive bool
	files     []string
	onError   func(path string, err error)
}

// visit is the WalkDir callback. An error below the root is handed to
// onError and the entry is skipped; only a failing root stops the walk.
func (s *scan) visit(path string, d fs.DirEntry, err error) error {
	if err != nil {
		if path == s.root {
			return err
		}
		if s.onError != nil {
			s.onError(path, err)
		}
		if d != nil && d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}
	if d.IsDir() {
		if path != s.root && !s.recursive {
			return filepath.SkipDir
		}
		return nil
	}
	if MatchSuffix(d.Name(), s.suffix) {
		s.files = append(s.files, path)
	}
	return nil
}

// findFiles returns the regular files under dir whose names match suffix,
// sorted. Subdirectories are searched only when recursive is true. Entries
// that cannot be read are reported to onError and skipped.
func findFiles(dir, suffix string, recursive bool, onError func(path string, err error)) ([]string, error) {
	s := &scan{root: dir, suffix: suffix, recursive: recursive, onError: onError}
	if err := filepath.WalkDir(dir, s.visit); err != nil {
		return nil, err
	}

	sort.Strings(s.files)
	return s.files, nil
}

// splitFileList splits a list of file names separated by commas and/or
// whitespace.
func splitFileList(files string) []string {
	return strings.FieldsFunc(files, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// executableDir returns the directory of the running binary, or the working
// directory when it cannot be determined.
func executableDir() string {
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// resolve makes path absolute relative to base.
func resolve(base, path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Clean(path)
}
