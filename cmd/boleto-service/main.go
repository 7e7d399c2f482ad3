package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/boleto_notifier/api"
	"github.com/mmdatafocus/boleto_notifier/config"
	"github.com/mmdatafocus/boleto_notifier/digisac"
	"github.com/mmdatafocus/boleto_notifier/dispatch"
	"github.com/mmdatafocus/boleto_notifier/events"
	"github.com/mmdatafocus/boleto_notifier/gemini"
	"github.com/mmdatafocus/boleto_notifier/middlewares"
	"github.com/mmdatafocus/boleto_notifier/omie"
	"github.com/mmdatafocus/boleto_notifier/reconcile"
	"github.com/mmdatafocus/boleto_notifier/relay"
	"github.com/mmdatafocus/boleto_notifier/session"
	"github.com/mmdatafocus/boleto_notifier/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := config.GetLogger()

	settings, err := config.LoadSettings()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "settings"}).Fatal(err)
	}
	if settings.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	st, err := store.Open(sigCtx, settings)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "store", "driver": settings.StoreDriver}).Fatal(err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.WithFields(logrus.Fields{"field": "store"}).Error(err)
		}
	}()

	sess := session.Load(sigCtx, st)

	erp := omie.NewClient(settings.OmieBaseURL, omie.Options{SimulationDelay: settings.ERPSimulationDelay})
	gateway := digisac.NewClient(digisac.Options{SimulationDelay: settings.GatewaySimulationDelay})

	var (
		vision       reconcile.Extractor
		personalizer dispatch.Personalizer
	)
	ai, err := gemini.NewClient(sigCtx, settings.GeminiAPIKey, settings.GeminiModel, gemini.Options{})
	switch {
	case err == nil:
		vision, personalizer = ai, ai
	case errors.Is(err, gemini.ErrNotConfigured):
		logger.WithFields(logrus.Fields{"field": "gemini"}).Warn("GEMINI_API_KEY not set; invoice reading and message personalisation disabled")
	default:
		logger.WithFields(logrus.Fields{"field": "gemini"}).Error(err)
	}

	var publisher dispatch.Publisher
	if settings.DispatchTopic != "" {
		pub, err := newDispatchPublisher(sigCtx, settings)
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "pubsub", "topic": settings.DispatchTopic}).Error(err)
		} else {
			publisher = pub
			defer pub.Stop()
		}
	}

	pipeline := reconcile.New(sess, erp, vision)
	orchestrator := dispatch.New(sess, gateway, personalizer, publisher)
	handler := api.New(sess, pipeline, orchestrator, gateway, api.Options{EnablePushSync: settings.EnablePushSync})

	rl, err := relay.New(settings.OmieBaseURL, nil)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "relay"}).Fatal(err)
	}

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	corsConfig := cors.DefaultConfig()
	if settings.Production {
		corsConfig.AllowOrigins = settings.AllowedOrigins
		if len(corsConfig.AllowOrigins) == 0 {
			corsConfig.AllowOrigins = []string{}
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", relay.TargetURLHeader)
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	if !corsConfig.AllowAllOrigins {
		corsConfig.AllowCredentials = true
	}

	r.Use(cors.New(corsConfig))
	r.Use(middlewares.RequestLogger(logger))
	r.Use(api.Metrics())
	r.Use(gin.Recovery())

	handler.Register(r)
	rl.Register(r)
	r.NoRoute(relay.Static(settings.StaticDir))

	srv := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"port": settings.Port, "store": settings.StoreDriver}).Info("boleto service listening")
		serverErrCh <- srv.ListenAndServe()
	}()

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		waitBackground(shutdownCtx, handler, logger)
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func newDispatchPublisher(ctx context.Context, settings *config.Settings) (*events.DispatchPublisher, error) {
	client, err := config.GetClient(ctx)
	if err != nil {
		return nil, err
	}
	return events.NewDispatchPublisher(ctx, client, settings.DispatchTopic, settings.CreateTopic)
}

// waitBackground lets an in-flight bulk send finish until ctx expires.
func waitBackground(ctx context.Context, handler *api.Handler, logger *logrus.Logger) {
	done := make(chan struct{})
	go func() {
		handler.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.WithFields(logrus.Fields{"field": "dispatch"}).Warn("shutdown before bulk dispatch finished")
	}
}
