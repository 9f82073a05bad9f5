package cmd

import (
	"errors"

	"github.com/luxfi/migrator/pkg/application"
	"github.com/luxfi/migrator/pkg/config"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/metrics"
)

// session is a wired migration over the configured stores.
type session struct {
	cfg      *config.Config
	src, dst database.Store
	net      *application.Network
}

func openSession(app *application.Migrator, mx *metrics.Metrics) (*session, error) {
	cfg, err := app.Settings()
	if err != nil {
		return nil, err
	}
	src, err := app.OpenChain(cfg.Source)
	if err != nil {
		return nil, err
	}
	dst, err := app.OpenChain(cfg.Destination)
	if err != nil {
		src.Close()
		return nil, err
	}
	net, err := app.Wire(cfg, src, dst, mx)
	if err != nil {
		src.Close()
		dst.Close()
		return nil, err
	}
	return &session{cfg: cfg, src: src, dst: dst, net: net}, nil
}

func (s *session) Close() error {
	return errors.Join(s.src.Close(), s.dst.Close())
}
