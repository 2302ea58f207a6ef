package stim

import (
	"sort"
	"strings"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/display"
)

// #region path
// Path names an element inside a nested stimulus as an ordered tuple of segments.
// The zero value is the empty path.
type Path string

const pathSep = "/"

// NewPath joins segments into a Path.
func NewPath(segments ...string) Path {
	return Path(strings.Join(segments, pathSep))
}

// Segments splits the path back into its components.
func (p Path) Segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), pathSep)
}

// Depth is the number of segments.
func (p Path) Depth() int {
	return len(p.Segments())
}

// Parent drops the last segment.
func (p Path) Parent() Path {
	segs := p.Segments()
	if len(segs) <= 1 {
		return ""
	}
	return NewPath(segs[:len(segs)-1]...)
}

// Leaf returns the last segment.
func (p Path) Leaf() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// String implements fmt.Stringer.
func (p Path) String() string {
	return string(p)
}

// SortPaths sorts paths in place and returns them.
func SortPaths(paths []Path) []Path {
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}

// #endregion path

// #region factory
// Args are per-element construction arguments.
type Args map[string]any

// reservedArgs may never be passed through Args: the display is owned by StatefulStim.
var reservedArgs = []string{"display", "win", "window"}

// Factory builds a drawable on d.
type Factory func(d display.Display, args Args) (display.Drawable, error)

// #endregion factory
