package main

import (
	"context"
	"encoding/json"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RebinJamshir/waveq/internal/config"
	"github.com/RebinJamshir/waveq/internal/httpapi"
	"github.com/RebinJamshir/waveq/internal/hub"
	"github.com/RebinJamshir/waveq/internal/store"
	"github.com/RebinJamshir/waveq/internal/store/postgres"
	"github.com/RebinJamshir/waveq/internal/telemetry"
	"github.com/RebinJamshir/waveq/internal/worker"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type eventEnvelope struct {
	Channel   string          `json:"channel"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("wave-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool, postgres.Options{
		WaveCapacity:   cfg.WaveCapacity,
		OverlapMinutes: cfg.OverlapMinutes,
	})
	handler := httpapi.NewHandler(st)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})
	h := hub.New()

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", newRealtimeHandler(h))
	mux.Handle("/", limiter.Middleware(httpapi.LoggingMiddleware(handler.Routes())))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(mux, "wave-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("wave-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	relayCtx, relayCancel := context.WithCancel(context.Background())
	defer relayCancel()
	go relayEvents(relayCtx, st, h, cfg.RelayInterval)

	notifier := worker.New(st, worker.Config{
		Provider:  cfg.NotifyProvider,
		BatchSize: cfg.NotifyBatchSize,
		StatusURL: cfg.StatusURL,
	})
	go runNotifier(relayCtx, notifier, cfg.NotifyInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func newRealtimeHandler(h *hub.Hub) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, hub.Subscription{})
				continue
			}
			h.UpdateSubscription(client, hub.Subscription{
				SessionID: parsed.SessionID,
				WaveID:    parsed.WaveID,
			})
		}
	})
}

// runNotifier drives the SMS worker on a fixed interval until ctx is
// cancelled.
func runNotifier(ctx context.Context, notifier *worker.Worker, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := notifier.Run(runCtx); err != nil {
			log.Printf("notify run error: %v", err)
		}
		cancel()
	}
}

// relayEvents tails the outbox and pushes each event to matching realtime
// subscribers. Delivery is at most once: the cursor starts at process boot
// and is held in memory only.
func relayEvents(ctx context.Context, st store.Store, h *hub.Hub, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	last := time.Now().UTC()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		events, err := st.ListOutboxEvents(ctx, last, 200)
		if err != nil {
			log.Printf("relay list events: %v", err)
			continue
		}
		for _, event := range events {
			envelope, err := json.Marshal(eventEnvelope{
				Channel:   store.Channel,
				Type:      event.Type,
				Payload:   event.Payload,
				CreatedAt: event.CreatedAt,
			})
			if err != nil {
				log.Printf("relay marshal: %v", err)
				continue
			}
			h.Broadcast(envelope, hub.Subscription{
				SessionID: event.SessionID,
				WaveID:    waveIDFromPayload(event.Payload),
			})
			last = event.CreatedAt
		}
	}
}

// waveIDFromPayload extracts the wave id so wave-scoped subscribers can be
// matched. patient-added nests the wave; status and wave updates carry it
// at the top level.
func waveIDFromPayload(payload json.RawMessage) string {
	var flat struct {
		WaveID string `json:"wave_id"`
		Wave   struct {
			WaveID string `json:"wave_id"`
		} `json:"wave"`
	}
	if err := json.Unmarshal(payload, &flat); err != nil {
		return ""
	}
	if flat.WaveID != "" {
		return flat.WaveID
	}
	return flat.Wave.WaveID
}
