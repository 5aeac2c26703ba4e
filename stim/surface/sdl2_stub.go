//go:build !sdl2

package surface

import "fmt"

// SDL2Surface stub for when SDL2 is not available
type SDL2Surface struct{}

func NewSDL2Surface() *SDL2Surface {
	return &SDL2Surface{}
}

func (s *SDL2Surface) Open(cfg Config) error {
	return fmt.Errorf("SDL2 surface not available - compile with -tags sdl2 and install SDL2 development libraries")
}

func (s *SDL2Surface) Close() error { return nil }

func (s *SDL2Surface) SetClearColor(c Color) {}

func (s *SDL2Surface) MarkDirty() {}

func (s *SDL2Surface) Draw(force bool) {}

func (s *SDL2Surface) NeedsFlip() bool { return false }

func (s *SDL2Surface) Swap() error {
	return fmt.Errorf("SDL2 surface not available")
}

func (s *SDL2Surface) FinishPipeline() error {
	return fmt.Errorf("SDL2 surface not available")
}

func (s *SDL2Surface) DispatchEvents() []Event { return nil }

func (s *SDL2Surface) ShouldClose() bool { return false }

func (s *SDL2Surface) SetMouseVisible(visible bool) {}

var _ Surface = (*SDL2Surface)(nil)
