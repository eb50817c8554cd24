package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/imsportal/filingstack/api"
	"github.com/imsportal/filingstack/config"
	"github.com/imsportal/filingstack/internal/cron"
	"github.com/imsportal/filingstack/internal/logger"
	"github.com/imsportal/filingstack/internal/repository"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/services"
	"github.com/imsportal/filingstack/services/email_processor"
)

type Server struct {
	config         *config.Config
	log            logger.Logger
	httpServer     *http.Server
	router         *gin.Engine
	services       *services.Services
	repositories   *repository.Repositories
	emailProcessor *email_processor.Processor
	cronManager    *cron.CronManager
	tracerCloser   io.Closer
}

func NewServer(cfg *config.Config, db *gorm.DB) (*Server, error) {
	// Initialize logger
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	// Initialize tracing
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Fatalf("Could not initialize jaeger tracer: %s", err.Error())
	}
	opentracing.SetGlobalTracer(tracer)

	repos := repository.InitRepositories(db)

	svcs, err := services.InitServices(cfg, appLogger, repos, prometheus.DefaultRegisterer)
	if err != nil {
		closer.Close()
		return nil, err
	}

	emailProcessor := email_processor.NewProcessor(*cfg.Processor, repos, svcs.ProcessorServices(), svcs.Metrics, appLogger)

	cronManager := cron.NewCronManager(*cfg.Cron, appLogger, kubernetesClient(cfg, appLogger), cfg.AppConfig.LocalDev, emailProcessor)

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	// message ids in paths may contain escaped slashes
	router.UseRawPath = true
	router.UnescapePathValues = true

	return &Server{
		config:         cfg,
		log:            appLogger,
		router:         router,
		services:       svcs,
		repositories:   repos,
		emailProcessor: emailProcessor,
		cronManager:    cronManager,
		tracerCloser:   closer,
		httpServer: &http.Server{
			Addr:              ":" + cfg.AppConfig.APIPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// kubernetesClient returns nil outside a cluster, which puts the cron
// manager in local mode.
func kubernetesClient(cfg *config.Config, log logger.Logger) kubernetes.Interface {
	if cfg.AppConfig.LocalDev {
		return nil
	}
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		log.Warnf("Not running in a cluster, leader election disabled: %v", err)
		return nil
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Warnf("Could not create kubernetes client, leader election disabled: %v", err)
		return nil
	}
	return client
}

func (s *Server) Initialize() error {
	api.RegisterRoutes(s.router, api.RouteConfig{
		APIKey:    s.config.AppConfig.APIKey,
		AppSource: s.config.AppConfig.AppSource,
	}, s.services, s.repositories, s.emailProcessor)

	return nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		// Create a new span for the panic
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		// Mark span as failed
		ext.Error.Set(span, true)

		// Log panic details
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		log.Printf("❌ Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	if err := s.Initialize(); err != nil {
		return err
	}

	log.Println("Starting cron manager...")
	if err := s.cronManager.Start(s.config.AppConfig.PodName, s.config.AppConfig.PodNamespace); err != nil {
		return fmt.Errorf("failed to start cron manager: %w", err)
	}
	log.Println("✅ Cron manager started successfully")

	// Start HTTP server in a goroutine with panic recovery
	go s.wrapGoroutine("http_server", func() {
		log.Println("Starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ HTTP server error: %v", err)
		}
	})
	log.Println("✅ HTTP server started successfully")
	log.Println("Filingstack is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	// Set up signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Wait for termination signal
	<-stop
	log.Println("Shutting down...")

	// In-flight messages are finished before the cron manager returns.
	log.Println("Stopping cron manager...")
	stopDone := make(chan struct{})
	go s.wrapGoroutine("cron_shutdown", func() {
		defer close(stopDone)
		s.cronManager.Stop()
	})
	select {
	case <-stopDone:
		log.Println("✅ Cron manager stopped")
	case <-time.After(s.config.Processor.MessageTimeout + 10*time.Second):
		log.Println("⚠️ Cron manager stop timed out, forcing exit")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ HTTP server shutdown error: %v", err)
	} else {
		log.Println("✅ HTTP server shut down successfully")
	}

	s.services.Close()
	_ = s.log.Sync()
	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}

	return nil
}
