package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"caterchat/internal/httpserver"
	"caterchat/internal/ws"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the chat HTTP and WebSocket server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			cfg := a.cfg

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			registry := ws.NewRegistry(a.auth)
			var out ws.Broadcaster = registry
			if cfg.RedisURL != "" {
				relay, err := ws.NewRedisRelay(cfg.RedisURL, cfg.RedisChannel, registry)
				if err != nil {
					return pkgerrors.WithMessage(err, "could not start redis relay")
				}
				defer relay.Close()
				go func() {
					if err := relay.Run(ctx); err != nil {
						log.WithError(err).Error("redis relay stopped")
					}
				}()
				out = relay
			}

			coordinator := ws.NewCoordinator(registry, out, a.chat, a.userSvc, ws.CoordinatorConfig{
				NotifyScope: ws.NotifyScope(cfg.NotifyScope),
			})

			router := httpserver.NewRouter(httpserver.Deps{
				Auth:        a.auth,
				Users:       a.userSvc,
				Chat:        a.chat,
				Registry:    registry,
				Coordinator: coordinator,
				AppName:     cfg.AppName,
				CORSOrigins: cfg.CORSOrigins,
				WS: ws.HandlerConfig{
					AllowedOrigins: cfg.WSOrigins,
					AllowNoOrigin:  cfg.WSAllowNoOrigin,
					SendQueue:      cfg.WSSendQueue,
				},
			})

			srv := &http.Server{
				Addr:         cfg.HTTPAddr(),
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				log.WithFields(log.Fields{
					"addr":         cfg.HTTPAddr(),
					"notify_scope": cfg.NotifyScope,
					"relay":        cfg.RedisURL != "",
				}).Info("starting chat server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				if err != nil {
					return pkgerrors.WithMessage(err, "server error")
				}
			case <-ctx.Done():
			}

			log.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("graceful shutdown failed")
			}
			return nil
		},
	}

	cmd.Flags().String("host", "", "Listen host (default 0.0.0.0)")
	cmd.Flags().Int("port", 0, "Listen port (default 8000)")
	cmd.Flags().String("db-driver", "", "Database driver: postgres or sqlite")
	cmd.Flags().String("redis-url", "", "Redis URL for cross-instance broadcast")
	return cmd
}
