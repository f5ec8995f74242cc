// yat - yet another chat, a terminal client for LLM providers.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jeranaias/yat/internal/chat"
	"github.com/jeranaias/yat/internal/cli"
	"github.com/jeranaias/yat/internal/config"
	"github.com/jeranaias/yat/internal/llm"
	"github.com/jeranaias/yat/internal/plugin"
	"github.com/jeranaias/yat/internal/provider"
	"github.com/jeranaias/yat/internal/storage"

	// Provider constructors register themselves at init time; a plugin
	// descriptor can only bind to an entry point linked here.
	_ "github.com/jeranaias/yat/internal/provider/anthropic"
	_ "github.com/jeranaias/yat/internal/provider/mock"
	_ "github.com/jeranaias/yat/internal/provider/openaic"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ==========================================================================
	// Configuration
	// ==========================================================================
	dataDir, err := config.DataDir()
	if err != nil {
		return err
	}
	log.SetPrefix("yat: ")
	log.SetFlags(0)

	cfg, err := config.LoadConfig(dataDir)
	if err != nil {
		return err
	}

	env, err := config.LoadEnvFile(cfg.EnvPath())
	if err != nil {
		return err
	}
	env.Apply()

	providers, err := config.NewStore(filepath.Join(dataDir, "provider_config.json"))
	if err != nil {
		return err
	}

	// ==========================================================================
	// Plugins and providers
	// ==========================================================================
	if err := plugin.WriteDefaultDescriptors(cfg.PluginsPath()); err != nil {
		return err
	}
	plugins := plugin.NewRegistry(cfg.PluginsPath())
	if err := plugins.LoadAll(); err != nil {
		return err
	}

	manager := llm.NewManager()
	registered := registerProviders(ctx, manager, plugins, providers, nil)

	// Restore the last selected model, if its provider still came up.
	if providerID, modelID, ok := cfg.LastModelPair(); ok {
		if err := manager.SetActive(providerID, modelID); err != nil {
			log.Printf("last model %s|%s no longer available: %v", providerID, modelID, err)
		} else {
			providers.MarkActive(providerID)
		}
	}

	// ==========================================================================
	// Storage and pipeline
	// ==========================================================================
	store, err := storage.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	reload := func(ctx context.Context) error {
		if err := plugins.LoadAll(); err != nil {
			return err
		}
		registered = registerProviders(ctx, manager, plugins, providers, registered)
		return nil
	}

	repl := cli.New(cli.Options{
		Manager:         manager,
		Config:          cfg,
		Providers:       providers,
		Plugins:         plugins,
		Env:             env,
		ReloadProviders: reload,
	})
	defer repl.Close()

	pipe := chat.NewPipeline(manager, store, cfg.StreamTimeout(), repl.Sinks())
	repl.SetPipeline(pipe)
	pipe.Start(ctx)

	// Descriptor edits take effect without a restart.
	go func() {
		if err := plugins.Watch(ctx, nil); err != nil && ctx.Err() == nil {
			log.Printf("plugin watch stopped: %v", err)
		}
	}()

	return repl.Run(ctx)
}

// registerProviders instantiates a provider for every loaded plugin whose
// config is enabled and registers it with the manager. Previously
// registered ids that no longer resolve are unregistered. Returns the set
// of registered ids for the next reload.
func registerProviders(ctx context.Context, manager *llm.Manager, plugins *plugin.Registry, store *config.Store, previous []string) []string {
	var current []string
	alive := make(map[string]bool)

	for _, id := range plugins.IDs() {
		pl, ok := plugins.Get(id)
		if !ok {
			continue
		}

		// A provider config may not exist for every plugin (the mock
		// plugin has none); only an explicit disable skips registration.
		if pcfg, exists := store.Get(id); exists && !pcfg.Enabled {
			continue
		}

		rc := runtimeConfig(id, pl, store)
		p, err := provider.New(pl.Descriptor.Entry, rc)
		if err != nil {
			log.Printf("provider %s: %v", id, err)
			continue
		}
		if err := p.Initialize(ctx); err != nil {
			log.Printf("provider %s failed to initialize: %v", id, err)
			continue
		}

		manager.Register(id, p)
		alive[id] = true
		current = append(current, id)
	}

	for _, id := range previous {
		if !alive[id] {
			log.Printf("provider %s gone, unregistering", id)
			manager.Unregister(id)
		}
	}
	return current
}

// runtimeConfig resolves one provider's runtime configuration: descriptor
// settings first, then the config store on top, credential from the
// environment.
func runtimeConfig(id string, pl *plugin.Plugin, store *config.Store) provider.RuntimeConfig {
	settings := make(map[string]string, len(pl.Descriptor.Settings))
	for key, value := range pl.Descriptor.Settings {
		settings[key] = value
	}
	if pcfg, ok := store.Get(id); ok {
		for key, value := range pcfg.Config {
			settings[key] = value
		}
	}

	return provider.RuntimeConfig{
		ID:       id,
		Name:     pl.Descriptor.Name,
		APIKey:   store.APIKey(id),
		BaseURL:  settings["base_url"],
		Settings: settings,
	}
}
