// Package terminal implements the display surface on a terminal via
// tcell. It exists for developing and demoing experiment scripts without
// SDL2; a terminal has no vertical blank, so flips confirm as soon as the
// screen content is shown and timestamps carry no hardware guarantee.
package terminal

import (
	"fmt"

	"github.com/avoss/go-stim/stim/surface"
	"github.com/gdamore/tcell/v2"
)

const eventBuffer = 128

// Surface implements surface.Surface on a tcell screen.
type Surface struct {
	screen   tcell.Screen
	events   chan tcell.Event
	quitPump chan struct{}

	clear    surface.Color
	dirty    bool
	needsFl  bool
	closeReq bool

	lastButtons tcell.ButtonMask
	lastX       int
	lastY       int
}

// New creates a terminal surface. The screen is created on Open.
func New() *Surface {
	return &Surface{}
}

func (s *Surface) Open(cfg surface.Config) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to initialize terminal: %v", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize terminal: %v", err)
	}
	s.screen = screen
	s.screen.EnableMouse()
	s.screen.Clear()

	// tcell's PollEvent blocks, so a pump goroutine feeds a channel that
	// DispatchEvents drains without blocking. Events still reach the
	// experiment only on the control thread.
	s.events = make(chan tcell.Event, eventBuffer)
	s.quitPump = make(chan struct{})
	go s.pump()

	return nil
}

func (s *Surface) pump() {
	for {
		ev := s.screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case s.events <- ev:
		case <-s.quitPump:
			return
		}
	}
}

func (s *Surface) Close() error {
	if s.screen != nil {
		close(s.quitPump)
		s.screen.Fini()
		s.screen = nil
	}
	return nil
}

func (s *Surface) SetClearColor(c surface.Color) {
	s.clear = c
	s.dirty = true
}

func (s *Surface) MarkDirty() {
	s.dirty = true
}

func (s *Surface) Draw(force bool) {
	if !force && !s.dirty {
		return
	}
	style := tcell.StyleDefault.Background(tcell.NewRGBColor(
		int32(s.clear.R*255), int32(s.clear.G*255), int32(s.clear.B*255)))
	s.screen.Fill(' ', style)
	s.dirty = false
	s.needsFl = true
}

func (s *Surface) NeedsFlip() bool {
	return s.needsFl
}

func (s *Surface) Swap() error {
	s.screen.Show()
	s.needsFl = false
	return nil
}

// FinishPipeline is a no-op: Show is synchronous, there is no pipeline to
// drain and no vertical blank to wait for.
func (s *Surface) FinishPipeline() error {
	return nil
}

func (s *Surface) DispatchEvents() []surface.Event {
	var out []surface.Event
	for {
		select {
		case ev := <-s.events:
			if translated, ok := s.translate(ev); ok {
				out = append(out, translated...)
			}
		default:
			return out
		}
	}
}

func (s *Surface) translate(ev tcell.Event) ([]surface.Event, bool) {
	switch e := ev.(type) {
	case *tcell.EventKey:
		mods := tcellMods(e.Modifiers())
		sym := tcellSym(e)
		if sym == 0 {
			return nil, false
		}
		if sym == surface.KeyEscape && mods&surface.ModShift != 0 {
			s.closeReq = true
			return nil, false
		}
		if e.Key() == tcell.KeyCtrlC {
			s.closeReq = true
			return nil, false
		}
		// terminals report no key releases; a key event is a press
		return []surface.Event{{Kind: surface.KeyDown, Key: surface.KeyEvent{
			Sym:  sym,
			Mods: mods,
			Down: true,
		}}}, true

	case *tcell.EventMouse:
		return s.translateMouse(e), true

	case *tcell.EventResize:
		s.screen.Sync()
		s.dirty = true
		return nil, false
	}
	return nil, false
}

func (s *Surface) translateMouse(e *tcell.EventMouse) []surface.Event {
	var out []surface.Event
	x, y := e.Position()
	buttons := e.Buttons()

	if buttons&tcell.WheelUp != 0 || buttons&tcell.WheelDown != 0 {
		var sy int32 = 1
		if buttons&tcell.WheelDown != 0 {
			sy = -1
		}
		out = append(out, surface.Event{Kind: surface.MouseScroll, Mouse: surface.MouseEvent{
			Kind: surface.MouseScroll, X: int32(x), Y: int32(y), ScrollY: sy,
		}})
		return out
	}

	pressed := buttons & ^s.lastButtons
	released := s.lastButtons & ^buttons
	moved := x != s.lastX || y != s.lastY

	for b := 0; b < 3; b++ {
		mask := tcell.ButtonMask(1 << b)
		if pressed&mask != 0 {
			out = append(out, surface.Event{Kind: surface.MousePress, Mouse: surface.MouseEvent{
				Kind: surface.MousePress, X: int32(x), Y: int32(y), Button: int32(b + 1),
			}})
		}
		if released&mask != 0 {
			out = append(out, surface.Event{Kind: surface.MouseRelease, Mouse: surface.MouseEvent{
				Kind: surface.MouseRelease, X: int32(x), Y: int32(y), Button: int32(b + 1),
			}})
		}
	}

	if moved {
		kind := surface.MouseMove
		if buttons != 0 {
			kind = surface.MouseDrag
		}
		out = append(out, surface.Event{Kind: kind, Mouse: surface.MouseEvent{
			Kind: kind,
			X:    int32(x), Y: int32(y),
			DX: int32(x - s.lastX), DY: int32(y - s.lastY),
		}})
	}

	s.lastButtons = buttons
	s.lastX = x
	s.lastY = y
	return out
}

func (s *Surface) ShouldClose() bool {
	return s.closeReq
}

func (s *Surface) SetMouseVisible(visible bool) {}

func tcellMods(m tcell.ModMask) surface.Mods {
	var out surface.Mods
	if m&tcell.ModShift != 0 {
		out |= surface.ModShift
	}
	if m&tcell.ModCtrl != 0 {
		out |= surface.ModCtrl
	}
	if m&tcell.ModAlt != 0 {
		out |= surface.ModAlt
	}
	return out
}

func tcellSym(e *tcell.EventKey) surface.Key {
	switch e.Key() {
	case tcell.KeyRune:
		return surface.Key(e.Rune())
	case tcell.KeyEnter:
		return surface.KeyReturn
	case tcell.KeyEscape:
		return surface.KeyEscape
	}
	return 0
}

var _ surface.Surface = (*Surface)(nil)
