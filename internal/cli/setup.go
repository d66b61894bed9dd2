package cli

import (
	"fmt"
	"time"

	"lspup/internal/config"
	"lspup/internal/httpx"
	"lspup/internal/install"
	"lspup/internal/paths"
)

// appContext bundles the resolved environment every command starts from.
type appContext struct {
	Paths     paths.AppPaths
	Config    config.Config
	Client    *httpx.Client
	Installer *install.Installer
}

func setup() (appContext, error) {
	pp, err := paths.Resolve()
	if err != nil {
		return appContext{}, err
	}
	if err := pp.EnsureDirs(); err != nil {
		return appContext{}, err
	}

	cfgFile := configPath
	if cfgFile == "" {
		cfgFile = pp.ConfigFile
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return appContext{}, fmt.Errorf("load %s: %w", cfgFile, err)
	}

	client := httpx.NewClient(time.Duration(cfg.Download.TimeoutSec) * time.Second)
	installer := install.New(pp.BinDir, cfg.Server.Repo, cfg.Server.Asset, client)

	return appContext{
		Paths:     pp,
		Config:    cfg,
		Client:    client,
		Installer: installer,
	}, nil
}
