package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anonpress.org/internal/alias"
	"anonpress.org/internal/alias/remote"
	"anonpress.org/internal/article"
	"anonpress.org/internal/auth"
	"anonpress.org/internal/gate"
	"anonpress.org/internal/httpapi"
	"anonpress.org/internal/obs"
	"anonpress.org/internal/store/pg"
	"anonpress.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Entity detector: a remote NER tagger when configured, otherwise a
	// no-op detector so the service still runs without one.
	var detector alias.Detector
	if nerURL := os.Getenv("ANONPRESS_NER_URL"); nerURL != "" {
		client, err := remote.New(nerURL)
		if err != nil {
			log.Fatalf("ner client: %v", err)
		}
		detector = client
	} else {
		log.Println("ANONPRESS_NER_URL not set; auto anonymization will find no entities")
		detector = alias.DetectorFunc(func(ctx context.Context, unit string) ([]alias.Span, error) {
			return nil, nil
		})
	}

	pipeline, err := alias.NewPipeline(detector, alias.DefaultCategories())
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	resolver := auth.NewResolver(auth.BuiltinTable())

	// Storage: Postgres when a DSN is configured, in-memory otherwise.
	var (
		articles  article.Service
		userStore auth.UserStore
		probe     httpapi.ReadyProbe
		pgStore   *pg.Store
	)
	if dsn := os.Getenv("ANONPRESS_PG_DSN"); dsn != "" {
		pgStore, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		articles = pgStore
		userStore = pgStore.Users()
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if table, err := pgStore.LoadPermissionTable(ctx); err != nil {
			log.Printf("load permission table: %v (using builtin roles)", err)
		} else if len(table) > 0 {
			resolver.Replace(table)
		}
		cancel()
	} else {
		articles = article.NewInMemory()
		userStore = auth.NewInMemoryUsers()
	}

	users, err := auth.NewUsers(userStore)
	if err != nil {
		log.Fatalf("users: %v", err)
	}
	// Bootstrap an initial admin account for in-memory deployments.
	if pw := os.Getenv("ANONPRESS_ADMIN_PASSWORD"); pw != "" {
		if _, err := users.Create(context.Background(), "admin", pw, []string{auth.RoleAdmin}); err != nil {
			log.Printf("bootstrap admin: %v", err)
		}
	}

	fanout := stream.New()
	gated, err := gate.New(resolver, articles, pipeline, gate.WithStream(fanout))
	if err != nil {
		log.Fatalf("gate: %v", err)
	}

	api := httpapi.New(probe, version, gated, resolver,
		httpapi.WithUsers(users),
		httpapi.WithStream(fanout),
	)

	addr := os.Getenv("ANONPRESS_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting anonpress-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}
