// Package surface defines the windowing/graphics collaborator of the
// experiment runtime: window creation, input-event delivery, draw/flip
// primitives, and the pipeline flush that makes a blocking flip possible.
//
// Implementations: an SDL2+OpenGL surface (build with -tags sdl2), a tcell
// terminal surface, and a simulated fixed-refresh surface for headless
// runs and tests.
package surface

// Color is an RGBA clear color with components in [0, 1].
type Color struct {
	R, G, B, A float64
}

// Config holds window-creation options.
type Config struct {
	Title       string
	Width       int32
	Height      int32
	Fullscreen  bool
	VSync       bool
	ScreenIndex int
}

// EventKind discriminates input events.
type EventKind int

const (
	KeyDown EventKind = iota
	KeyUp
	MouseMove
	MousePress
	MouseRelease
	MouseDrag
	MouseScroll
	Quit
)

// Key is a platform-independent key symbol. Printable keys carry their
// unicode value; a few control keys have named constants.
type Key int32

const (
	KeyReturn Key = 13
	KeyEscape Key = 27
	KeySpace  Key = 32
)

// Mods is a bitmask of modifier keys held during an event.
type Mods uint8

const (
	ModShift Mods = 1 << iota
	ModCtrl
	ModAlt
)

// KeyEvent is a key press or release.
type KeyEvent struct {
	Sym  Key
	Mods Mods
	Down bool
}

// MouseEvent is a mouse move, press, release, drag or scroll.
type MouseEvent struct {
	Kind    EventKind
	X, Y    int32
	DX, DY  int32
	Button  int32
	ScrollX int32
	ScrollY int32
}

// Event is one input event drained from the surface.
type Event struct {
	Kind  EventKind
	Key   KeyEvent
	Mouse MouseEvent
}

// Surface is the windowing/graphics collaborator. All methods are called
// from the single control thread.
//
// Draw/Swap carry the dirty/needs-flip latch protocol: MarkDirty flags
// that content changed, Draw redraws when dirty (or forced) and arms the
// needs-flip latch, Swap requests the buffer swap and clears the latch.
// FinishPipeline blocks until the graphics pipeline has fully completed,
// pinning the caller's timestamp to the hardware swap.
type Surface interface {
	Open(cfg Config) error
	Close() error

	SetClearColor(c Color)
	MarkDirty()
	Draw(force bool)
	NeedsFlip() bool
	Swap() error
	FinishPipeline() error

	// DispatchEvents drains all pending input events. Delivery is
	// synchronous within the call.
	DispatchEvents() []Event

	// ShouldClose reports an external termination request (window close,
	// Shift+Escape).
	ShouldClose() bool

	SetMouseVisible(visible bool)
}
