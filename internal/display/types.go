package display

// #region clock
// Clock reports seconds on the experiment timebase.
type Clock interface {
	Now() float64
}

// #endregion clock

// #region drawable
// Drawable is a live element handle owned by the rendering backend.
type Drawable interface {
	ID() string
}

// Releaser is implemented by drawables that hold backend resources.
type Releaser interface {
	Release()
}

// #endregion drawable

// #region display
// Display is the narrow surface the controller needs from a window backend.
// Drawing and buffer swaps happen behind it.
type Display interface {
	// PredictedNextRefresh estimates when the next buffer swap will land on clock's timebase.
	PredictedNextRefresh(clock Clock) float64
	// Refresh blocks until the swap completes and returns its timestamp.
	Refresh() (float64, error)
	// SetVisible toggles whether d is part of the next refresh's draw list.
	SetVisible(d Drawable, visible bool)
	// RunOnNextRefresh schedules fn to run once, when the next refresh completes.
	RunOnNextRefresh(fn func())
}

// #endregion display
