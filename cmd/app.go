package cmd

import (
	"github.com/conneroisu/scriptserv/internal/config"
	"github.com/conneroisu/scriptserv/internal/dispatch"
	"github.com/conneroisu/scriptserv/internal/engine"
	"github.com/conneroisu/scriptserv/internal/logging"
	"github.com/conneroisu/scriptserv/internal/workers"
)

// newDispatcher builds the template engine and the dispatcher for cfg with
// every built-in worker registered. Configured routes replace the defaults.
func newDispatcher(cfg *config.Config, logger logging.Logger) (*dispatch.Dispatcher, error) {
	routes := cfg.RouteTable()
	if routes == nil {
		routes = workers.DefaultRoutes()
	}

	d, err := dispatch.New(dispatch.Options{
		Root:               cfg.Documents.Root,
		TemplateExtensions: cfg.Documents.TemplateExtensions,
		MimeTypes:          cfg.Documents.MimeTypes,
		DefaultMime:        cfg.Documents.DefaultMime,
		Routes:             routes,
		Logger:             logger,
	}, engine.New())
	if err != nil {
		return nil, err
	}

	workers.Register(d)
	if err := d.CheckRoutes(); err != nil {
		return nil, err
	}
	return d, nil
}
