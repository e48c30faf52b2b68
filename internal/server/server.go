package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/AnthonyJS/SignalStrength/internal/auth"
	"github.com/AnthonyJS/SignalStrength/internal/config"
	"github.com/AnthonyJS/SignalStrength/internal/journey"
	"github.com/AnthonyJS/SignalStrength/internal/position"
	"github.com/AnthonyJS/SignalStrength/internal/probe"
	"github.com/AnthonyJS/SignalStrength/internal/recorder"
	"github.com/AnthonyJS/SignalStrength/internal/stream"
	"github.com/AnthonyJS/SignalStrength/internal/transfer"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Journeys *journey.Service
	Recorder *recorder.Controller
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient)
	journeys := journey.NewService(db)
	source := position.NewHTTPSource(cfg.PositionURL, cfg.PositionTimeout(), cfg.PositionPoll())
	prober := probe.NewHTTPProber(cfg.ProbeURL, cfg.ProbeTimeout(), journey.Transport(cfg.TransportClass))

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       db,
		Redis:    redisClient,
		Stream:   hub,
		Journeys: journeys,
		Recorder: recorder.NewController(journeys, source, prober, hub, cfg.SampleInterval()),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	thresholds := journey.Thresholds{
		ModerateFloorMbps: s.Cfg.ModerateFloorMbps,
		GoodFloorMbps:     s.Cfg.GoodFloorMbps,
	}

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.Cfg.DeviceSecretHash))
	journeys := s.App.Group("/journeys")
	journey.RegisterRoutes(journeys, s.Journeys, thresholds, jwtMiddleware)
	transfer.RegisterRoutes(journeys, s.Journeys, jwtMiddleware)
	recorder.RegisterRoutes(s.App.Group("/recorder"), s.Recorder, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
