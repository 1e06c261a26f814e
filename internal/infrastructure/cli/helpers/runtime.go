package helpers

import (
	"context"
	"fmt"

	"github.com/doeshing/extscan-go/internal/app"
)

// Runtime builds the container on first use so commands that never touch it
// (version, help) do not create files under ~/.extscan.
type Runtime struct {
	ConfigPath string
	Verbose    bool

	container *app.Container
}

// Container returns the shared container. serve attaches the websocket host and only
// takes effect on the first call.
func (r *Runtime) Container(ctx context.Context, serve bool) (*app.Container, error) {
	if r.container != nil {
		return r.container, nil
	}
	c, err := app.BuildContainer(ctx, app.Options{ConfigPath: r.ConfigPath, Verbose: r.Verbose, Serve: serve})
	if err != nil {
		return nil, err
	}
	r.container = c
	return c, nil
}

// Close releases the container, if one was built.
func (r *Runtime) Close() error {
	if r.container == nil {
		return nil
	}
	err := r.container.Close()
	r.container = nil
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
