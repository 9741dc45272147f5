/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
	"github.com/spaghettifunk/lumen/testbed"
)

func loadConfig(path string, explicit bool) (config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	// A missing default file is fine, an explicit one is not.
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func main() {
	configPath := flag.String("config", "lumen.toml", "path to a .toml or .json config file")
	flag.Parse()
	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})

	cfg, err := loadConfig(*configPath, explicit)
	if err != nil {
		core.LogFatal("failed to load config %s: %v", *configPath, err)
	}
	level, _ := cfg.LogLevel()
	logger := core.InitLogging(os.Stderr, level)
	defer core.ShutdownLogging()

	if err := run(cfg); err != nil {
		logger.Error("engine stopped with an error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	tb := testbed.NewTestGame(cfg)

	plat, err := platform.New()
	if err != nil {
		return err
	}
	app := tb.ApplicationConfig
	if err := plat.Startup(app.Name, app.StartPosX, app.StartPosY, cfg.Window.Width, cfg.Window.Height, cfg.Window.Fullscreen); err != nil {
		return err
	}
	defer plat.Shutdown()

	backend := vulkan.New(platform.VulkanProcAddr(),
		vulkan.WithValidation(cfg.Renderer.Debug),
		vulkan.WithLogger(core.Logger()),
	)

	e, err := engine.New(tb, plat, backend)
	if err != nil {
		return err
	}

	// capture sigterm and other system calls; the loop exits after the
	// current frame and shutdown happens on this goroutine
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()
	go func() {
		<-ctx.Done()
		e.Stop()
	}()

	if err := e.Initialize(); err != nil {
		return errors.Join(err, e.Shutdown())
	}
	runErr := e.Run()
	return errors.Join(runErr, e.Shutdown())
}
