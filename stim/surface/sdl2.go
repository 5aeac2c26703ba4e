//go:build sdl2

package surface

import (
	"fmt"
	"log/slog"

	"github.com/go-gl/gl/v3.2-core/gl"
	"github.com/veandco/go-sdl2/sdl"
)

// SDL2Surface implements Surface on an SDL2 window with an OpenGL
// context. The GL context is what makes the blocking flip real: after the
// buffer swap we issue a trivial scissored clear and gl.Finish, which
// blocks until the pipeline (and therefore the swap) has completed.
//
// Note: building this requires SDL2 development libraries installed.
// Default builds use a stub instead, see build tags (sdl2).
type SDL2Surface struct {
	window    *sdl.Window
	glContext sdl.GLContext

	clear    Color
	dirty    bool
	needFlip bool
	closeReq bool
}

// NewSDL2Surface creates an SDL2 surface. The window is created on Open.
func NewSDL2Surface() *SDL2Surface {
	return &SDL2Surface{}
}

func (s *SDL2Surface) Open(cfg Config) error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("failed to initialize SDL2: %v", err)
	}

	flags := uint32(sdl.WINDOW_OPENGL | sdl.WINDOW_SHOWN)
	if cfg.Fullscreen {
		flags |= sdl.WINDOW_FULLSCREEN_DESKTOP
	}

	// center on the requested display
	pos := int32(sdl.WINDOWPOS_CENTERED_MASK | uint32(cfg.ScreenIndex))

	window, err := sdl.CreateWindow(cfg.Title, pos, pos, cfg.Width, cfg.Height, flags)
	if err != nil {
		sdl.Quit()
		return fmt.Errorf("failed to create window: %v", err)
	}
	s.window = window

	glContext, err := window.GLCreateContext()
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("failed to create GL context: %v", err)
	}
	s.glContext = glContext

	if err := gl.Init(); err != nil {
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("failed to initialize OpenGL: %v", err)
	}

	swapInterval := 0
	if cfg.VSync {
		swapInterval = 1
	}
	if err := sdl.GLSetSwapInterval(swapInterval); err != nil {
		slog.Warn("GLSetSwapInterval failed", "interval", swapInterval, "error", err)
	}

	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)

	slog.Info("SDL2 surface initialized",
		"width", cfg.Width, "height", cfg.Height,
		"fullscreen", cfg.Fullscreen, "vsync", cfg.VSync, "screen", cfg.ScreenIndex)
	return nil
}

func (s *SDL2Surface) Close() error {
	slog.Info("Cleaning up SDL2 surface")
	if s.glContext != nil {
		sdl.GLDeleteContext(s.glContext)
		s.glContext = nil
	}
	if s.window != nil {
		s.window.Destroy()
		s.window = nil
	}
	sdl.Quit()
	return nil
}

func (s *SDL2Surface) SetClearColor(c Color) {
	s.clear = c
	s.dirty = true
}

func (s *SDL2Surface) MarkDirty() {
	s.dirty = true
}

func (s *SDL2Surface) Draw(force bool) {
	if !force && !s.dirty {
		return
	}
	gl.ClearColor(float32(s.clear.R), float32(s.clear.G), float32(s.clear.B), float32(s.clear.A))
	gl.Clear(gl.COLOR_BUFFER_BIT)
	s.dirty = false
	s.needFlip = true
}

func (s *SDL2Surface) NeedsFlip() bool {
	return s.needFlip
}

func (s *SDL2Surface) Swap() error {
	s.window.GLSwap()
	s.needFlip = false
	return nil
}

// FinishPipeline issues a trivial draw and blocks until the GL pipeline
// has completed it. The draw is a 1x1 scissored clear with alpha zero, so
// the color buffer is untouched; once gl.Finish returns, the back buffer
// was ready for drawing, which means the swap has synced with the start
// of the vertical blank.
func (s *SDL2Surface) FinishPipeline() error {
	gl.Enable(gl.SCISSOR_TEST)
	gl.Scissor(10, 10, 1, 1)
	gl.ClearColor(0, 0, 0, 0)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.Disable(gl.SCISSOR_TEST)
	gl.Finish()
	return nil
}

func (s *SDL2Surface) DispatchEvents() []Event {
	var out []Event
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			s.closeReq = true
			out = append(out, Event{Kind: Quit})

		case *sdl.KeyboardEvent:
			mods := sdlMods(e.Keysym.Mod)
			if e.Type == sdl.KEYDOWN {
				if e.Keysym.Sym == sdl.K_ESCAPE && mods&ModShift != 0 {
					s.closeReq = true
					continue
				}
				out = append(out, Event{Kind: KeyDown, Key: KeyEvent{
					Sym:  Key(e.Keysym.Sym),
					Mods: mods,
					Down: true,
				}})
			} else if e.Type == sdl.KEYUP {
				out = append(out, Event{Kind: KeyUp, Key: KeyEvent{
					Sym:  Key(e.Keysym.Sym),
					Mods: mods,
				}})
			}

		case *sdl.MouseMotionEvent:
			kind := MouseMove
			if e.State != 0 {
				kind = MouseDrag
			}
			out = append(out, Event{Kind: kind, Mouse: MouseEvent{
				Kind: kind,
				X:    e.X, Y: e.Y,
				DX: e.XRel, DY: e.YRel,
			}})

		case *sdl.MouseButtonEvent:
			kind := MousePress
			if e.Type == sdl.MOUSEBUTTONUP {
				kind = MouseRelease
			}
			out = append(out, Event{Kind: kind, Mouse: MouseEvent{
				Kind: kind,
				X:    e.X, Y: e.Y,
				Button: int32(e.Button),
			}})

		case *sdl.MouseWheelEvent:
			out = append(out, Event{Kind: MouseScroll, Mouse: MouseEvent{
				Kind:    MouseScroll,
				ScrollX: e.X,
				ScrollY: e.Y,
			}})
		}
	}
	return out
}

func (s *SDL2Surface) ShouldClose() bool {
	return s.closeReq
}

func (s *SDL2Surface) SetMouseVisible(visible bool) {
	if visible {
		sdl.ShowCursor(sdl.ENABLE)
	} else {
		sdl.ShowCursor(sdl.DISABLE)
	}
}

func sdlMods(mod uint16) Mods {
	var m Mods
	if mod&sdl.KMOD_SHIFT != 0 {
		m |= ModShift
	}
	if mod&sdl.KMOD_CTRL != 0 {
		m |= ModCtrl
	}
	if mod&sdl.KMOD_ALT != 0 {
		m |= ModAlt
	}
	return m
}

var _ Surface = (*SDL2Surface)(nil)
