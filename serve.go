package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/cloudtext/docsync/internal/config"
	"github.com/cloudtext/docsync/internal/credrotate"
	"github.com/cloudtext/docsync/internal/httpapi"
	"github.com/cloudtext/docsync/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server",
		Long: `Expose the cursored-pull and ETag-guarded get/put HTTP surface that
sync agents talk to, plus a credential-rotation status endpoint for the
upstream secret pool configured under [credrotate].`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	st, err := store.Open(ctx, cc.Cfg.Workspace.DBPath, cc.Logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	router := httpapi.NewRouter(httpapi.Config{
		Store:     st,
		Logger:    cc.Logger,
		RateLimit: cc.Cfg.Server.RateLimit,
	})

	mux := http.NewServeMux()
	mux.Handle("/", router)

	if rotator := buildRotator(cc.Cfg.Credrotate); rotator != nil {
		mux.HandleFunc("/admin/credstatus", credStatusHandler(rotator))
	}

	addr := cc.Cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cc.Logger.Info("serve: listening", "addr", addr)

	errCh := make(chan error, 1)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}
}

// buildRotator wires a credential rotator over Redis when a pool is
// configured, falling back to nothing (not an in-memory store) because a
// single-process in-memory rotator defeats the point of running serve
// behind multiple replicas.
func buildRotator(cfg config.CredrotateConfig) *credrotate.Rotator {
	if len(cfg.Keys) == 0 {
		return nil
	}

	var opts []credrotate.Option

	if cfg.RequestsPerKey > 0 {
		opts = append(opts, credrotate.WithRequestsPerKey(int64(cfg.RequestsPerKey)))
	}

	if cfg.TTL != "" {
		if d, err := time.ParseDuration(cfg.TTL); err == nil {
			opts = append(opts, credrotate.WithTTL(d))
		}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	return credrotate.New(cfg.Keys, credrotate.NewRedisStore(client), opts...)
}

func credStatusHandler(r *credrotate.Rotator) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		status, err := r.GetRotationStatus(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	}
}
