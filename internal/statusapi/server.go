// Package statusapi exposes the depot registry over HTTP for operators and
// health probes.
package statusapi

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/lineworks/depotmail/internal/depot"
)

// Server serves registry status and lifecycle controls as JSON.
type Server struct {
	registry *depot.Registry
	logger   *slog.Logger
	app      *fiber.App
}

func New(registry *depot.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		registry: registry,
		logger:   logger,
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.healthz)

	s.app.Get("/depots", s.listDepots)
	s.app.Get("/depots/:name", s.showDepot)
	s.app.Get("/depots/:name/log", s.depotLog)
	s.app.Delete("/depots/:name/log", s.clearDepotLog)
	s.app.Post("/depots/:name/start", s.depotStart)
	s.app.Post("/depots/:name/stop", s.depotStop)
	s.app.Post("/depots/:name/poll", s.depotPoll)
	s.app.Post("/depots/:name/pause", s.depotPause)

	s.app.Get("/registry/status", s.registryStatus)
	s.app.Post("/registry/start-all", s.startAll)
	s.app.Post("/registry/stop-all", s.stopAll)
	s.app.Post("/registry/halt-all", s.haltAll)
}

// Listen blocks serving HTTP on the given address.
func (s *Server) Listen(addr string) error {
	s.logger.Info("status API listening", slog.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the underlying fiber app, primarily for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

type depotView struct {
	Company            string `json:"company"`
	Name               string `json:"name"`
	OrganisationalUnit string `json:"organisational_unit"`
	Line               string `json:"line"`
	State              string `json:"state"`
	Polling            bool   `json:"polling"`
	Gateways           int    `json:"gateways"`
}

func viewOf(d *depot.Depot) depotView {
	return depotView{
		Company:            d.Company(),
		Name:               d.Name(),
		OrganisationalUnit: d.OrganisationalUnit(),
		Line:               d.Line(),
		State:              d.State().String(),
		Polling:            d.Polling(),
		Gateways:           len(d.Gateways()),
	}
}

func (s *Server) listDepots(c *fiber.Ctx) error {
	depots := s.registry.Depots()
	views := make([]depotView, 0, len(depots))
	for _, d := range depots {
		views = append(views, viewOf(d))
	}
	return c.JSON(views)
}

func (s *Server) findDepot(c *fiber.Ctx) (*depot.Depot, error) {
	d := s.registry.Find(c.Params("name"))
	if d == nil {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no such depot",
		})
	}
	return d, nil
}

func (s *Server) showDepot(c *fiber.Ctx) error {
	d, err := s.findDepot(c)
	if d == nil {
		return err
	}
	return c.JSON(viewOf(d))
}

func (s *Server) depotLog(c *fiber.Ctx) error {
	d, err := s.findDepot(c)
	if d == nil {
		return err
	}
	return c.JSON(fiber.Map{
		"name": d.Name(),
		"log":  d.MessageLog(),
	})
}

func (s *Server) clearDepotLog(c *fiber.Ctx) error {
	d, err := s.findDepot(c)
	if d == nil {
		return err
	}
	d.ClearMessageLog()
	return c.JSON(fiber.Map{"cleared": true})
}

func (s *Server) depotStart(c *fiber.Ctx) error {
	d, err := s.findDepot(c)
	if d == nil {
		return err
	}
	if d.State() == depot.InvalidConfiguration {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "depot configuration is invalid",
		})
	}
	d.StartGatewaysAsync()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"state": "starting"})
}

func (s *Server) depotStop(c *fiber.Ctx) error {
	d, err := s.findDepot(c)
	if d == nil {
		return err
	}
	d.StopGatewaysAsync()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"state": "stopping"})
}

func (s *Server) depotPoll(c *fiber.Ctx) error {
	d, err := s.findDepot(c)
	if d == nil {
		return err
	}
	if d.State() != depot.Started {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "depot is not started",
		})
	}
	d.StartPollingAsync()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"state": "polling"})
}

func (s *Server) depotPause(c *fiber.Ctx) error {
	d, err := s.findDepot(c)
	if d == nil {
		return err
	}
	d.StopPolling()
	return c.JSON(fiber.Map{"polling": d.Polling()})
}

func (s *Server) registryStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"depots":         s.registry.Len(),
		"busy":           s.registry.Busy(),
		"any_invalid":    s.registry.AnyInvalid(),
		"all_invalid":    s.registry.AllInvalid(),
		"any_polling":    s.registry.AnyPolling(),
		"all_polling":    s.registry.AllPolling(),
		"any_started":    s.registry.AnyStarted(),
		"all_started":    s.registry.AllStarted(),
		"any_stopped":    s.registry.AnyStopped(),
		"all_stopped":    s.registry.AllStopped(),
		"still_starting": s.registry.StillStarting(),
		"still_stopping": s.registry.StillStopping(),
	})
}

func (s *Server) startAll(c *fiber.Ctx) error {
	s.registry.StartAllPollingAsync()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"state": "starting"})
}

func (s *Server) stopAll(c *fiber.Ctx) error {
	s.registry.StopAllPollingAsync()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"state": "stopping"})
}

func (s *Server) haltAll(c *fiber.Ctx) error {
	s.registry.HaltAllAsync()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"state": "halting"})
}
