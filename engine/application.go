package engine

import (
	"github.com/spaghettifunk/lumen/engine/config"
)

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX int
	// Window starting position y axis, if applicable.
	StartPosY int
	// The application name used in windowing, if applicable.
	Name string
	// Settings loaded from disk or the defaults.
	Config config.Config
}

// NewApplicationConfig takes the window title from the settings.
func NewApplicationConfig(cfg config.Config) *ApplicationConfig {
	return &ApplicationConfig{
		StartPosX: 100,
		StartPosY: 100,
		Name:      cfg.Window.Title,
		Config:    cfg,
	}
}
