// Package app assembles depots and gateways from a loaded configuration.
package app

import (
	"log/slog"

	"github.com/lineworks/depotmail/internal/acl"
	"github.com/lineworks/depotmail/internal/config"
	"github.com/lineworks/depotmail/internal/depot"
	"github.com/lineworks/depotmail/internal/dispatch"
	"github.com/lineworks/depotmail/internal/gateway"
	"github.com/lineworks/depotmail/internal/mailbox"
	"github.com/lineworks/depotmail/internal/outbound"
)

// BuildRegistry turns a validated configuration into a populated registry.
// Gateways declaring an unsupported protocol are reported and skipped; a
// depot left without any usable gateway stays in the registry as invalid so
// operators can see it.
func BuildRegistry(cfg config.Config, logger *slog.Logger) *depot.Registry {
	if logger == nil {
		logger = slog.Default()
	}

	registry := depot.NewRegistry()
	for _, dc := range cfg.Depots {
		registry.Add(buildDepot(dc, logger))
	}
	return registry
}

func buildDepot(dc config.DepotConfig, logger *slog.Logger) *depot.Depot {
	var (
		gateways []gateway.Gateway
		concrete []*gateway.MailGateway
	)
	for _, gc := range dc.Gateways {
		if gc.Protocol != config.ProtocolIMAP {
			logger.Warn("skipping gateway with unsupported protocol",
				slog.String("depot", dc.Name),
				slog.String("protocol", gc.Protocol),
				slog.String("input", gc.InputAddress),
			)
			continue
		}
		mg := gateway.New(gatewayConfig(gc), gateway.WithLogger(logger))
		concrete = append(concrete, mg)
		gateways = append(gateways, mg)
	}

	d := depot.New(dc.Company, dc.Name, dc.OrganisationalUnit, dc.Line, gateways,
		depot.WithLogger(logger))

	handler := dispatch.NewHandler(d, dc.SpoolDir, logger)
	cb := handler.Callbacks()
	for _, mg := range concrete {
		mg.SetCallbacks(cb)
	}
	return d
}

func gatewayConfig(gc config.GatewayConfig) gateway.Config {
	cfg := gateway.Config{
		Fetch: mailbox.Endpoint{
			Host:     gc.Incoming.Host,
			Port:     gc.Incoming.Port,
			Username: gc.Incoming.Username,
			Password: gc.Incoming.Password,
		},
		Send: outbound.Endpoint{
			Host:     gc.Outgoing.Host,
			Port:     gc.Outgoing.Port,
			Username: gc.Outgoing.Username,
			Password: gc.Outgoing.Password,
		},
		AdminContact:  gc.AdminAddress,
		InputContact:  gc.InputAddress,
		KillswitchKey: gc.KillswitchKey,
	}

	if len(gc.AllowedSenders) > 0 {
		cfg.Senders = acl.NewAddressList()
		for _, s := range gc.AllowedSenders {
			cfg.Senders.Add(s)
		}
		cfg.SenderPolicy = acl.Allow
	}

	mimeTypes := gc.AllowedMimeTypes
	if len(mimeTypes) == 0 {
		mimeTypes = config.DefaultMimeTypes
	}
	cfg.MimeTypes = acl.NewMediaTypeList()
	for _, m := range mimeTypes {
		cfg.MimeTypes.Add(m)
	}
	cfg.MimePolicy = acl.Allow

	return cfg
}
