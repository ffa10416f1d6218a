package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/ayusman/yolodesk/internal/config"
)

// loadConfig reads the config file, if any, and applies the flags that were
// set on top of it.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String(flagConfig); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	run := &cfg.Run
	if c.IsSet(flagWeights) {
		run.Weights = c.String(flagWeights)
	}
	if c.IsSet(flagSource) {
		run.Source = c.String(flagSource)
	}
	if c.IsSet(flagConf) {
		run.Conf = c.Float64(flagConf)
	}
	if c.IsSet(flagIoU) {
		run.IoU = c.Float64(flagIoU)
	}
	if c.IsSet(flagImgSize) {
		run.ImgSize = c.Int(flagImgSize)
	}
	if c.IsSet(flagDevice) {
		run.Device = c.String(flagDevice)
	}
	if c.IsSet(flagClasses) {
		run.Classes = c.IntSlice(flagClasses)
	}
	if c.IsSet(flagAgnosticNMS) {
		run.AgnosticNMS = c.Bool(flagAgnosticNMS)
	}
	if c.IsSet(flagAugment) {
		run.Augment = c.Bool(flagAugment)
	}
	if c.IsSet(flagNoSave) {
		run.Save = !c.Bool(flagNoSave)
	}
	if c.IsSet(flagNoTrace) {
		run.NoTrace = c.Bool(flagNoTrace)
	}
	if c.IsSet(flagProject) {
		run.Project = c.String(flagProject)
	}
	if c.IsSet(flagName) {
		run.Name = c.String(flagName)
	}
	if c.IsSet(flagExistOK) {
		run.ExistOK = c.Bool(flagExistOK)
	}
	if c.IsSet(flagMaxDet) {
		run.MaxDet = c.Int(flagMaxDet)
	}
	if c.IsSet(flagLineThickness) {
		run.LineThickness = c.Int(flagLineThickness)
	}
	if c.IsSet(flagRect) {
		run.Rect = c.Bool(flagRect)
	}
	if c.IsSet(flagNoWatch) {
		cfg.WatchModels = !c.Bool(flagNoWatch)
	}

	if c.IsSet(flagLogLevel) {
		cfg.Log.Level = c.String(flagLogLevel)
	}
	if c.IsSet(flagLogJSON) {
		cfg.Log.JSON = c.Bool(flagLogJSON)
	}
	if c.IsSet(flagDB) {
		cfg.Store.Path = c.String(flagDB)
	}
	if c.IsSet(flagPlugins) {
		cfg.Plugins.Dir = c.String(flagPlugins)
	}
	if c.IsSet(flagAddr) {
		cfg.Server.Addr = c.String(flagAddr)
	}
	if c.IsSet(flagStatic) {
		cfg.Server.StaticDir = c.String(flagStatic)
	}
	if c.IsSet(flagTray) {
		cfg.Server.Tray = c.Bool(flagTray)
	}

	return cfg, nil
}

// dataDir returns ~/.yolodesk, creating it if needed.
func dataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(homeDir, ".yolodesk")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// storePath resolves the run history database path.
func storePath(cfg config.Config) (string, error) {
	if cfg.Store.Path != "" {
		return cfg.Store.Path, nil
	}
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "yolodesk.db"), nil
}

// pluginDir resolves the hook plugin directory. A missing directory simply
// means no hooks.
func pluginDir(cfg config.Config) string {
	if cfg.Plugins.Dir != "" {
		return cfg.Plugins.Dir
	}
	dir, err := dataDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "plugins")
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.yolodesk/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".yolodesk", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
