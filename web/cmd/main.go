package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"lifemonitor/app/config"
	"lifemonitor/app/engine/server"
	"lifemonitor/app/notification"
	"lifemonitor/app/peers"
	"lifemonitor/pkg/log"
	"lifemonitor/pkg/service"
	"lifemonitor/web/handles"
)

var configFile = flag.String("config", "", "path of the configuration file")

type webServer struct {
	srv    *http.Server
	comps  *server.Components
	cancel context.CancelFunc
}

func (w *webServer) Initialize() error {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	comps, err := server.Build(ctx, config.Config)
	if err != nil {
		return err
	}
	w.comps = comps
	cfg := comps.Config

	hub := notification.NewHub()
	broadcaster := notification.NewBroadcaster(comps.Bus, hub, cfg.Notifications.MaxAge)
	go func() {
		if err := broadcaster.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorf(nil, "Notification broadcaster stopped: %v", err)
		}
	}()

	opts := []handles.Option{
		handles.WithHub(hub),
		handles.WithRelay(peers.NewRelay(cfg.Peers)),
		handles.WithStatusLookup(comps.Resolver.Lookup),
	}
	if comps.Engine != nil {
		opts = append(opts, handles.WithResolver(comps.Engine))
	}
	h := handles.New(cfg.Github, cfg.API.InstanceName, comps.Scheduler, comps.Cache, opts...)
	w.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (w *webServer) Start() error {
	log.Infof(nil, "Web server listening on %s", w.srv.Addr)
	if err := w.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (w *webServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := w.srv.Shutdown(ctx)
	w.cancel()
	service.CloseBrokers()
	return err
}

func main() {
	flag.Parse()
	if err := config.Initialize(*configFile); err != nil {
		log.Errorf(nil, "Load configuration error %v", err)
		os.Exit(1)
	}
	log.Initialize("", "")

	if err := service.Run("lifemonitor-web", &webServer{}); err != nil {
		log.Error(nil, err)
		os.Exit(1)
	}
}
