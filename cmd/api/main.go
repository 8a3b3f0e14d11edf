package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"sekret.org/internal/audit"
	"sekret.org/internal/crypto"
	"sekret.org/internal/httpapi"
	"sekret.org/internal/identity"
	"sekret.org/internal/obs"
	"sekret.org/internal/secrets"
	"sekret.org/internal/store/pg"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	envelope := loadEnvelope()
	verifier := loadVerifier()

	// Durable store when a DSN is configured, in-process store otherwise.
	var (
		base secrets.Service
		db   *sql.DB
	)
	if dsn := os.Getenv("SEKRET_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn, envelope)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		base = store
		db = store.DB()
	} else {
		log.Println("SEKRET_PG_DSN not set, using in-memory store")
		base = secrets.NewInMemory(envelope)
	}

	var emitter audit.Emitter
	var webhook *audit.Webhook
	if url := os.Getenv("SEKRET_AUDIT_URL"); url != "" {
		webhook = audit.NewWebhook(url)
		emitter = webhook
	} else {
		emitter = audit.LogEmitter{}
	}

	svc := secrets.WithAudit(base, emitter)
	rotator := secrets.NewRotator(svc, emitter)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc, rotator, verifier)

	addr := os.Getenv("SEKRET_ADDR")
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

	grpcSrv, healthSrv := startGRPCHealth()

	log.Printf("Starting sekret-api %s on %s", version, srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	if healthSrv != nil {
		healthSrv.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if webhook != nil {
		webhook.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

// loadEnvelope builds the at-rest encryption envelope from SEKRET_MASTER_KEY.
// Without a configured key the service generates an ephemeral one, which only
// makes sense for local development: ciphertexts do not survive a restart.
func loadEnvelope() *crypto.Envelope {
	if encoded := os.Getenv("SEKRET_MASTER_KEY"); encoded != "" {
		envelope, err := crypto.NewEnvelopeFromBase64(encoded)
		if err != nil {
			log.Fatalf("SEKRET_MASTER_KEY: %v", err)
		}
		return envelope
	}
	log.Println("SEKRET_MASTER_KEY not set, generating an ephemeral key")
	envelope, err := crypto.NewEnvelope(crypto.GenerateKey())
	if err != nil {
		log.Fatalf("generate key: %v", err)
	}
	return envelope
}

func loadVerifier() *identity.Verifier {
	secret := os.Getenv("SEKRET_JWT_SECRET")
	if secret == "" {
		log.Println("SEKRET_JWT_SECRET not set, generating an ephemeral signing secret")
		secret = base64.StdEncoding.EncodeToString(crypto.GenerateKey())
	}
	verifier, err := identity.NewVerifier([]byte(secret))
	if err != nil {
		log.Fatalf("verifier: %v", err)
	}
	return verifier
}

// startGRPCHealth serves the standard gRPC health protocol when a gRPC
// address is configured. Used by orchestrators that probe over gRPC.
func startGRPCHealth() (*grpc.Server, *health.Server) {
	addr := os.Getenv("SEKRET_GRPC_ADDR")
	if addr == "" {
		return nil, nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("sekret-api", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	log.Printf("Starting gRPC health endpoint on %s", addr)
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()
	return grpcSrv, healthSrv
}
