// Package app assembles the service from configuration. The daemon and the
// end-to-end tests share it so both run the same wiring.
package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"laundryonline/config"
	"laundryonline/internal/admin"
	"laundryonline/internal/api"
	"laundryonline/internal/auth"
	"laundryonline/internal/hub"
	"laundryonline/internal/machinesync"
	"laundryonline/internal/messaging"
	"laundryonline/internal/model"
	"laundryonline/internal/notification"
	"laundryonline/internal/status"
	"laundryonline/internal/store"
)

// App holds the running services.
type App struct {
	Config     *config.Config
	Store      store.Store
	Sync       *machinesync.Synchronizer
	Auth       *auth.Service
	Admin      *admin.Panel
	Dispatcher *notification.Dispatcher
	Workers    *notification.WorkerPool
	Hub        *hub.Hub
	Messaging  *messaging.Listener
	Handler    http.Handler
}

// Build wires every service on top of an opened database. Nothing runs
// until Start.
func Build(cfg *config.Config, gormDB *gorm.DB) (*App, error) {
	norm, err := status.NewNormalizer(cfg.Sync.StatusAliases)
	if err != nil {
		return nil, err
	}
	buckets, err := status.NewBuckets(cfg.Sync.Buckets.Available, cfg.Sync.Buckets.InUse)
	if err != nil {
		return nil, err
	}

	appStore := store.NewGormStore(gormDB, store.WithNormalizer(norm))

	syncer := machinesync.New(appStore, machinesync.Options{
		Buckets:      buckets,
		Normalizer:   norm,
		ReconnectMin: cfg.Sync.ReconnectMin,
		ReconnectMax: cfg.Sync.ReconnectMax,
	})

	tokenCfg := auth.DefaultTokenConfig(cfg.Auth.JWTSecret)
	tokenCfg.Expiry = cfg.Auth.TokenExpiry
	authSvc := auth.NewService(gormDB, auth.Options{
		Token:             tokenCfg,
		ResetTTL:          cfg.Auth.ResetTokenTTL,
		AdminEmails:       cfg.Auth.AdminEmails,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
		ResetURL:          cfg.Auth.PasswordResetURL,
	})

	panel := admin.NewPanel(appStore, authSvc, admin.Options{
		Normalizer:      norm,
		DefaultDuration: cfg.Sync.DefaultDurationMins,
	})

	dispatcher := notification.NewDispatcher(appStore, notification.DispatcherOptions{
		Inbox: notification.NewInbox(cfg.Notifications.InboxSize),
	})

	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}
	workers := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)

	h := hub.New(appStore, func(machines []model.Machine) any {
		now := time.Now()
		views := make([]machinesync.View, 0, len(machines))
		for _, m := range machines {
			views = append(views, machinesync.ViewOf(m, buckets, now))
		}
		return views
	})

	// The dispatcher runs first so a completion is written back before the
	// list reaches clients.
	syncer.AddObserver(dispatcher)
	syncer.AddObserver(h)
	dispatcher.AddSink(h)
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		dispatcher.AddSink(workers)
	} else {
		log.Println("VAPID keys are not configured; web push is disabled.")
	}

	listener, err := messaging.New(messaging.Options{
		URL:          cfg.Messaging.URL,
		Headers:      cfg.Messaging.Headers,
		ReconnectMin: time.Duration(cfg.Messaging.ReconnectMinMillis) * time.Millisecond,
		ReconnectMax: time.Duration(cfg.Messaging.ReconnectMaxMillis) * time.Millisecond,
	})
	if errors.Is(err, messaging.ErrUnsupported) {
		log.Println("No messaging relay configured; push messages are disabled.")
		listener = nil
	} else if err != nil {
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Store:      appStore,
		Sync:       syncer,
		Auth:       authSvc,
		Admin:      panel,
		Dispatcher: dispatcher,
		Workers:    workers,
		Hub:        h,
		Messaging:  listener,
	}

	deps := api.Deps{
		Store:      appStore,
		Sync:       syncer,
		Auth:       authSvc,
		Admin:      panel,
		Dispatcher: dispatcher,
		Hub:        h,
		Messaging:  listener,
	}
	if cfg.Push.PublicKey != "" {
		deps.WebPush = webpushOptions
	}
	a.Handler = api.NewRouter(deps, cfg.Server)
	return a, nil
}

// Start requests the notification permissions and launches the background
// loops. They stop when ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	a.Dispatcher.Gate().Request(ctx, notification.ConfigPrompter{Enabled: a.Config.Notifications.Enabled})
	a.Dispatcher.MessageGate().Request(ctx, notification.ConfigPrompter{Enabled: a.Config.Notifications.MessagingEnabled})

	a.Workers.Start(ctx)
	go a.Store.Watch(ctx, a.Config.Sync.PollInterval)
	go a.Sync.Run(ctx)

	if a.Messaging != nil {
		go func() {
			err := a.Messaging.Listen(ctx, a.Dispatcher.HandleMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Messaging listener stopped: %v", err)
			}
		}()
	}
}
