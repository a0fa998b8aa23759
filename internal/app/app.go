// Package app wires configuration into the objects both binaries run on.
package app

import (
	"fmt"
	"log"

	"handleprobe/internal/config"
	"handleprobe/internal/egress"
	"handleprobe/internal/fetch"
	"handleprobe/internal/probe"
	"handleprobe/internal/random"
	"handleprobe/internal/registry"
	"handleprobe/internal/service"
	"handleprobe/internal/store"
)

type App struct {
	Config   config.Config
	Registry *registry.Registry
	Sites    *service.SiteIndex
	Fetcher  *fetch.Client
	Backup   *egress.Pool
	Service  *service.ProbeService
}

// LoadRegistry reads cfg.Registry, or the embedded list when it is empty.
// Entries the loader dropped are reported on logger, which may be nil.
func LoadRegistry(cfg config.Config, logger *log.Logger) (*registry.Registry, error) {
	var (
		reg *registry.Registry
		err error
	)
	if cfg.Registry == "" {
		reg, err = registry.Embedded()
	} else {
		reg, err = registry.LoadFile(cfg.Registry)
	}
	if err != nil {
		return nil, err
	}
	if logger != nil {
		for _, s := range reg.Skipped() {
			logger.Printf("[registry] skipping %s", s)
		}
	}
	return reg, nil
}

// New builds the fetch client, backup pool and probe service over reg.
// reg may be nil, in which case every search reports no sites.
func New(cfg config.Config, reg *registry.Registry, logger *log.Logger) (*App, error) {
	client := fetch.NewClient(cfg.FetchOptions())

	rng, err := random.New()
	if err != nil {
		return nil, err
	}
	pool, err := egress.NewPool(cfg.EgressConfig(), rng)
	if err != nil {
		return nil, fmt.Errorf("backup egress: %w", err)
	}

	deps := probe.Deps{Fetcher: client, Logger: logger}
	if pool.Len() > 0 {
		deps.Backup = pool
	}

	sites := service.NewSiteIndex(reg)
	svc := service.NewProbeService(store.NewSessionStore[*probe.Session](), sites, deps, cfg.ProbeOptions())

	if logger != nil {
		logger.Printf("[app] %d sites, %d backup endpoints", reg.Len(), pool.Len())
	}
	return &App{
		Config:   cfg,
		Registry: reg,
		Sites:    sites,
		Fetcher:  client,
		Backup:   pool,
		Service:  svc,
	}, nil
}
