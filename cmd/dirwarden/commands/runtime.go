// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"go.dirwarden.dev/internal/config"
	"go.dirwarden.dev/internal/directory"
	"go.dirwarden.dev/internal/identitystore"
	"go.dirwarden.dev/internal/plog"
	"go.dirwarden.dev/internal/reconcile"
)

// runtime bundles everything a command needs after config load. Every command
// must call cleanup before exiting so the pool closes and logs flush.
type runtime struct {
	config    *config.Config
	directory directory.Client
	store     *identitystore.Store
	engine    *reconcile.Engine
	cleanup   func()
}

func newRuntime() (*runtime, error) {
	cfg, err := config.FromPath(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", cfgFile, err)
	}

	flush := plog.Setup(cfg.LogFormat)

	store, err := identitystore.Open(cfg.Database)
	if err != nil {
		flush()
		return nil, fmt.Errorf("open identity store: %w", err)
	}

	client, closePool, err := cfg.NewDirectoryClient(prometheus.DefaultRegisterer)
	if err != nil {
		flush()
		return nil, fmt.Errorf("build directory client: %w", err)
	}

	engine := reconcile.New(client, store, reconcile.Config{
		SurnameAttribute: cfg.Directory.Attributes.Surname,
		MailAttribute:    cfg.Directory.Attributes.Mail,
	})

	return &runtime{
		config:    cfg,
		directory: client,
		store:     store,
		engine:    engine,
		cleanup: func() {
			closePool()
			flush()
		},
	}, nil
}
