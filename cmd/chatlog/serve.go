package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalith-99/chatlog/internal/api"
)

const shutdownTimeout = 15 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := newStack(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	withWorker := serveWithWorker
	if s.cfg.TaskDriver == "memory" && !withWorker {
		s.logger.Info("memory task driver: running workers in the API process")
		withWorker = true
	}

	if s.cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if s.cfg.AdminJWTSecret == "" {
		s.logger.Warn("ADMIN_JWT_SECRET is empty, /admin endpoints are disabled")
	}

	router := api.NewRouter(api.RouterDeps{
		Service:        s.svc,
		Tasks:          s.executor,
		Reconciler:     s.sweeper,
		Broker:         s.broker,
		AdminJWTSecret: s.cfg.AdminJWTSecret,
		Metrics:        s.metrics,
		Gatherer:       s.registry,
		Logger:         s.logger,
	})
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting chatlog API", zap.String("port", s.cfg.Port), zap.String("env", s.cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})
	if withWorker {
		g.Go(func() error { return s.executor.Start(gctx, s.svc) })
	}
	if serveWithScheduler {
		g.Go(func() error { return s.sweeper.Run(gctx, s.cfg.SweepInterval) })
	}
	return g.Wait()
}

func runWorker(cmd *cobra.Command, _ []string) error {
	s, err := newStack(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	if s.cfg.TaskDriver == "memory" {
		return errors.New("TASK_DRIVER=memory has no shared queue; use serve --with-worker")
	}
	return s.executor.Start(cmd.Context(), s.svc)
}

func runScheduler(cmd *cobra.Command, _ []string) error {
	s, err := newStack(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	return s.sweeper.Run(cmd.Context(), s.cfg.SweepInterval)
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	s, err := newStack(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := s.sweeper.RunAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
