package stim

import (
	"fmt"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/display"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/experr"
)

// #region stateful-stim
// StatefulStim owns a set of named drawables and their visibility.
// Elements exist only between Create and End; visibility states persist.
type StatefulStim struct {
	display      display.Display
	constructors map[Path]Factory
	elements     map[Path]display.Drawable
	states       map[Path]bool
}

// New creates a stimulus with every element hidden.
func New(d display.Display, constructors map[Path]Factory) *StatefulStim {
	s := &StatefulStim{
		display:      d,
		constructors: make(map[Path]Factory, len(constructors)),
		elements:     make(map[Path]display.Drawable),
		states:       make(map[Path]bool, len(constructors)),
	}
	for p, f := range constructors {
		s.constructors[p] = f
		s.states[p] = false
	}
	return s
}

// #endregion stateful-stim

// #region create
// Create builds and shows every element that has both a constructor and args.
// It returns the created paths in sorted order.
func (s *StatefulStim) Create(args map[Path]Args) ([]Path, error) {
	if len(s.elements) > 0 {
		return nil, experr.Lifecyclef("stimulus already created")
	}
	for p, a := range args {
		if _, ok := s.constructors[p]; !ok {
			return nil, experr.Configf("constructor args for unknown element %q", p)
		}
		for _, key := range reservedArgs {
			if _, ok := a[key]; ok {
				return nil, experr.Configf("element %q: display may not be passed as %q", p, key)
			}
		}
	}

	created := make([]Path, 0, len(args))
	for p := range args {
		created = append(created, p)
	}
	SortPaths(created)

	for _, p := range created {
		d, err := s.constructors[p](s.display, args[p])
		if err != nil {
			s.End()
			return nil, fmt.Errorf("construct %s: %w", p, err)
		}
		s.elements[p] = d
		s.display.SetVisible(d, true)
		s.states[p] = true
	}
	return created, nil
}

// #endregion create

// #region update
// Update applies the requested visibility map and returns the paths whose
// visibility actually changed, sorted.
func (s *StatefulStim) Update(requested map[Path]bool) ([]Path, error) {
	for p := range requested {
		if _, ok := s.elements[p]; !ok {
			return nil, experr.Configf("no live element %q (create not called or already ended)", p)
		}
	}

	var changed []Path
	for p, v := range requested {
		if s.states[p] != v {
			changed = append(changed, p)
		}
		s.display.SetVisible(s.elements[p], v)
		s.states[p] = v
	}
	return SortPaths(changed), nil
}

// #endregion update

// #region end
// End hides and releases every live element and resets all states to false.
// Calling End on an inactive stimulus is a no-op apart from the reset.
func (s *StatefulStim) End() {
	for p, d := range s.elements {
		s.display.SetVisible(d, false)
		if r, ok := d.(display.Releaser); ok {
			r.Release()
		}
		delete(s.elements, p)
	}
	for p := range s.states {
		s.states[p] = false
	}
}

// #endregion end

// #region accessors
// States returns a copy of the current visibility map.
func (s *StatefulStim) States() map[Path]bool {
	out := make(map[Path]bool, len(s.states))
	for p, v := range s.states {
		out[p] = v
	}
	return out
}

// Visible reports the current visibility of p.
func (s *StatefulStim) Visible(p Path) bool {
	return s.states[p]
}

// Active reports whether any element is live.
func (s *StatefulStim) Active() bool {
	return len(s.elements) > 0
}

// Element returns the live drawable at p.
func (s *StatefulStim) Element(p Path) (display.Drawable, bool) {
	d, ok := s.elements[p]
	return d, ok
}

// Paths returns every declared element path, sorted.
func (s *StatefulStim) Paths() []Path {
	out := make([]Path, 0, len(s.constructors))
	for p := range s.constructors {
		out = append(out, p)
	}
	return SortPaths(out)
}

// #endregion accessors
