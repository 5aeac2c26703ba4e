package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/avoss/go-stim/stim"
	"github.com/avoss/go-stim/stim/clock"
	"github.com/avoss/go-stim/stim/state"
	"github.com/avoss/go-stim/stim/surface"
	"github.com/avoss/go-stim/stim/surface/headless"
	"github.com/avoss/go-stim/stim/surface/terminal"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "stim"
	app.Description = "A hardware-synchronized experiment runtime"
	app.Usage = "stim [options]"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "subject, s",
			Usage: "unique subject id",
			Value: "test000",
		},
		cli.BoolFlag{
			Name:  "fullscreen, f",
			Usage: "toggle fullscreen",
		},
		cli.IntFlag{
			Name:  "screen, si",
			Usage: "screen index",
			Value: 0,
		},
		cli.StringFlag{
			Name:  "info, i",
			Usage: "additional run info",
		},
		cli.BoolFlag{
			Name:  "nocsv, n",
			Usage: "prevent automatic conversion of yaml logs to csv",
		},
		cli.StringFlag{
			Name:  "surface",
			Usage: "display surface to use (sdl2, terminal, headless)",
			Value: "sdl2",
		},
		cli.IntFlag{
			Name:  "flips",
			Usage: "end a headless run after this many confirmed flips (0 = until done)",
			Value: 0,
		},
		cli.Float64Flag{
			Name:  "refresh",
			Usage: "simulated refresh rate in Hz for the headless surface",
			Value: 60,
		},
	}
	app.Action = runExperiment

	err := app.Run(os.Args)
	if err != nil {
		slog.Error("Error running experiment", "error", err)
		os.Exit(1)
	}
}

func runExperiment(c *cli.Context) error {
	cfg := stim.DefaultConfig()
	cfg.Subject = c.String("subject")
	cfg.Fullscreen = cfg.Fullscreen || c.Bool("fullscreen")
	cfg.ScreenIndex = c.Int("screen")
	cfg.Info = c.String("info")
	cfg.NoCSV = c.Bool("nocsv")

	clk := clock.New()

	var surf surface.Surface
	switch c.String("surface") {
	case "sdl2":
		surf = surface.NewSDL2Surface()
	case "terminal":
		surf = terminal.New()
	case "headless":
		h := headless.New(clk, c.Float64("refresh"))
		h.SetMaxFlips(c.Int("flips"))
		surf = h
	default:
		return fmt.Errorf("unknown surface %q (want sdl2, terminal or headless)", c.String("surface"))
	}

	exp, err := stim.NewWithClock(cfg, surf, clk)
	if err != nil {
		return err
	}

	if err := setupLogging(c.String("surface"), exp.SubjectDir()); err != nil {
		return err
	}

	buildDemoScript(exp, cfg)

	slog.Info("starting run", "subject", cfg.Subject, "surface", c.String("surface"), "info", cfg.Info)
	if err := exp.Run(); err != nil {
		return err
	}
	slog.Info("run complete",
		"flip_interval_s", exp.FlipInterval(),
		"log_write_errors", exp.LogWriteErrors())
	return nil
}

// setupLogging routes slog away from the terminal when tcell owns it.
func setupLogging(surfaceName, subjDir string) error {
	var handler slog.Handler
	if surfaceName == "terminal" {
		f, err := os.OpenFile(filepath.Join(subjDir, "run.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening run log: %v", err)
		}
		handler = slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// buildDemoScript assembles a small end-to-end run: set a variable, log
// a trial record referencing it, hold the display briefly, and log every
// key press with its event-time window.
func buildDemoScript(exp *stim.Experiment, cfg stim.Config) {
	exp.SetVar("block", 1)
	exp.SetVar("condition", "demo")

	exp.Log(map[string]any{
		"block":     exp.Get("block"),
		"condition": exp.Get("condition"),
		"info":      cfg.Info,
	})

	exp.Add(state.NewWait(0.5))

	exp.Log(map[string]any{
		"event": "run_end",
	})

	exp.OnKey(func(ev surface.KeyEvent, et clock.Timestamp) {
		slog.Info("key event",
			"sym", ev.Sym, "down", ev.Down,
			"time", et.Time, "error", et.Error)
	})
}
