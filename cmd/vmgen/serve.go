package main

import (
	"fmt"

	"github.com/chazu/vmgen/manifest"
	"github.com/chazu/vmgen/server"
)

// runServe starts the compile service over the configured table.
func runServe(m *manifest.Manifest) error {
	env, err := m.Env()
	if err != nil {
		return err
	}
	d, store, err := m.Driver()
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.New(env, server.WithDriver(d))
	defer srv.Stop()
	return srv.ListenAndServe(fmt.Sprintf(":%d", m.Server.Port))
}
