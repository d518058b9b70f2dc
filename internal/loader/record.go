package loader

import (
	"path/filepath"
	"strings"

	"github.com/dshills/modhost/pkg/object"
	"github.com/dshills/modhost/pkg/registry"
)

// KindStatic is the kind of modules registered with RegisterPlugin.
const KindStatic = "static"

// record is the loader's bookkeeping for one module.
type record struct {
	module   object.Module
	name     string
	path     string // resolved absolute path; empty for static modules
	kind     string // opener extension or KindStatic
	state    State
	image    Image
	classes  []registry.ClassID
	rejected []error
}

// Info is a snapshot of a module record.
type Info struct {
	Module         object.Module
	Name           string
	Path           string
	Kind           string
	State          State
	Classes        []registry.ClassID
	Rejected       []error
	HasInitializer bool
}

func (r *record) info() Info {
	return Info{
		Module:         r.module,
		Name:           r.name,
		Path:           r.path,
		Kind:           r.kind,
		State:          r.state,
		Classes:        append([]registry.ClassID(nil), r.classes...),
		Rejected:       append([]error(nil), r.rejected...),
		HasInitializer: r.image.HasInitializer(),
	}
}

// matches reports whether name identifies r: the file base name
// (case-insensitive), the full path, or the display name.
func (r *record) matches(name string) bool {
	if name == "" {
		return false
	}
	if r.name == name {
		return true
	}
	if r.path == "" {
		return false
	}
	return r.path == name || strings.EqualFold(filepath.Base(r.path), name)
}

// displayName derives a module name from a file path: the base name up to
// its first dot.
func displayName(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}
