package apps

import (
	"context"
	"fmt"

	"github.com/ExoZoneDev/mixer-chat/internal/pkg/server"
	"github.com/ExoZoneDev/mixer-chat/internal/pkg/validate"

	"github.com/pkg/errors"
)

// ServerAppCfg configures a ServerApp.
type ServerAppCfg interface {
	ApplyServerApp(*ServerApp) error
}

// ServerApp is the demo chat server application.
type ServerApp struct {
	Port uint16 `validate:"required"`
}

// NewServerApp creates a new ServerApp.
func NewServerApp(cfgs ...ServerAppCfg) (*ServerApp, error) {
	app := &ServerApp{}
	for _, cfg := range cfgs {
		if err := cfg.ApplyServerApp(app); err != nil {
			return nil, errors.Wrap(err, "apply ServerApp cfg failed")
		}
	}
	if err := validate.Validate().Struct(app); err != nil {
		return nil, errors.Wrap(err, "validate ServerApp failed")
	}
	return app, nil
}

// Run serves chat connections until the context ends.
func (app *ServerApp) Run(ctx context.Context, _ []string) error {
	s, err := server.NewServer(
		server.WithListenAddr(fmt.Sprintf(":%d", app.Port)),
	)
	if err != nil {
		return errors.Wrap(err, "create server failed")
	}
	return errors.Wrap(s.Run(ctx), "run server failed")
}
