// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mems-service/internal/config"
	"mems-service/internal/discovery"
	"mems-service/internal/driver/mti"
	"mems-service/internal/handler"
	"mems-service/internal/model"
	serialconn "mems-service/internal/protocol/serial"
	"mems-service/internal/routes"
	"mems-service/internal/service"
	"mems-service/internal/utils"
)

// Application holds the wired-up service components
type Application struct {
	config        *config.Config
	logger        *zap.Logger
	controller    *mti.Controller
	mirrorService *service.MirrorService
	eventBus      *handler.EventBus
	server        *http.Server
}

func main() {
	app, err := newApplication()
	if err != nil {
		// Logger may not exist yet, fall back to stderr
		os.Stderr.WriteString("startup failed: " + err.Error() + "\n")
		os.Exit(1)
	}

	app.run()
}

// newApplication loads configuration and wires the component graph
func newApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, err
	}

	transport, err := serialconn.NewConnection(&serialconn.Config{
		Port:        cfg.Serial.Port,
		BaudRate:    cfg.Serial.BaudRate,
		DataBits:    cfg.Serial.DataBits,
		StopBits:    cfg.Serial.StopBits,
		Parity:      cfg.Serial.Parity,
		FlowControl: cfg.Serial.FlowControl,
		ReadTimeout: cfg.Serial.ReadTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	controller := mti.NewController(transport, &mti.Config{
		Port:         cfg.Serial.Port,
		CommandDelay: cfg.Mirror.CommandDelay,
		ReplyLimit:   cfg.Mirror.ReplyLimit,
		SafePosition: model.MirrorPosition{X: cfg.Mirror.SafeX, Y: cfg.Mirror.SafeY},
	}, logger)

	eventBus := handler.NewEventBus(logger)
	mirrorService := service.NewMirrorService(controller, eventBus, logger)

	scanner := discovery.NewScanner(logger)
	mirrorHandler := handler.NewMirrorHandler(mirrorService, scanner, logger)
	healthHandler := handler.NewHealthHandler(mirrorService, logger)
	webSocketHandler := handler.NewWebSocketHandler(eventBus, logger)

	router := routes.NewRouter(cfg, logger, mirrorHandler, healthHandler, webSocketHandler)

	server := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      router.SetupRouter(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Application{
		config:        cfg,
		logger:        logger,
		controller:    controller,
		mirrorService: mirrorService,
		eventBus:      eventBus,
		server:        server,
	}, nil
}

// run starts the server and blocks until shutdown completes
func (app *Application) run() {
	serviceLogger := utils.NewServiceLogger(app.logger, app.config.App.Name)
	serviceLogger.LogServiceStart(app.config.App.Version)

	// Sign in to the driver up front. A failure is not fatal: the port may
	// be unplugged at boot, and the operator can retry over the API.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := app.mirrorService.Connect(ctx); err != nil {
		app.logger.Warn("Mirror driver not connected at startup, connect via API when attached",
			zap.String("port", app.config.Serial.Port),
			zap.Error(err),
		)
	}
	cancel()

	go func() {
		app.logger.Info("HTTP server listening", zap.String("addr", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	serviceLogger.LogServiceStop(sig.String())

	app.shutdown()
}

// shutdown parks the mirror and releases the port before stopping the
// HTTP server. Device teardown comes first: once the process exits, nothing
// can de-energize the mirror anymore.
func (app *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.mirrorService.Shutdown(ctx); err != nil {
		app.logger.Error("Safe shutdown completed with errors", zap.Error(err))
	}

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	app.logger.Info("Shutdown complete")
	utils.CloseLogger(app.logger)
}
