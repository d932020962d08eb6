package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dreamware/swarm/internal/cluster"
	"github.com/dreamware/swarm/internal/config"
	"github.com/dreamware/swarm/internal/controller"
	"github.com/dreamware/swarm/internal/fabric"
	"github.com/dreamware/swarm/internal/mesh"
	"github.com/dreamware/swarm/internal/node"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the swarm daemon",
	Long: `Start the controller, its node fabric, and the HTTP API, then run
until interrupted. Tasks posted to /tasks are dispatched to the least
loaded healthy node; /status, /health, /topology and /metrics expose the
fleet's state.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (overrides server.listen)")
	_ = viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry := cluster.NewHandlerRegistry()
	registerBuiltins(registry)

	ctrl := controller.New(controllerConfig(cfg), fabricConfig(cfg), registry, mesh.NopTransport{})
	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("start controller: %w", err)
	}

	srv := &server{ctrl: ctrl}

	mux := http.NewServeMux()
	mux.HandleFunc("/tasks", srv.handleTasks)
	mux.HandleFunc("/status", srv.handleStatus)
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/topology", srv.handleTopology)
	mux.HandleFunc("/gossip", srv.handleGossip)
	mux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("swarmd listening on %s", cfg.Server.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace())
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	ctrl.Stop()
	log.Println("swarmd stopped")
	return nil
}

func controllerConfig(cfg *config.Config) controller.Config {
	return controller.Config{
		ID:                 cfg.Controller.ID,
		ExecuteTimeout:     cfg.Controller.ExecuteTimeout(),
		ScaleUpThreshold:   cfg.Controller.ScaleUpThreshold,
		ScaleDownThreshold: cfg.Controller.ScaleDownThreshold,
		QueueCapacity:      cfg.Controller.QueueCapacity,
		AutoScale:          cfg.Controller.AutoScale,
	}
}

func fabricConfig(cfg *config.Config) fabric.Config {
	return fabric.Config{
		ID:           cfg.Fabric.ID,
		MaxNodes:     cfg.Fabric.MaxNodes,
		HealInterval: cfg.Fabric.HealInterval(),
		Node: node.Config{
			MaxQueueSize:   cfg.Node.MaxQueueSize,
			SpawnThreshold: cfg.Node.SpawnThreshold,
			MaxChildren:    cfg.Node.MaxChildren,
		},
		Mesh: mesh.Config{
			GossipInterval:      cfg.Mesh.GossipInterval(),
			CleanupInterval:     cfg.Mesh.CleanupInterval(),
			PeerLivenessTimeout: cfg.Mesh.PeerLivenessTimeout(),
			RouteTTL:            cfg.Mesh.RouteTTL(),
			MaxPeers:            cfg.Mesh.MaxPeers,
		},
	}
}

// registerBuiltins installs the task kinds the daemon ships with. Real
// deployments register their own handlers by embedding the controller.
func registerBuiltins(registry *cluster.HandlerRegistry) {
	registry.Register("echo", func(ctx context.Context, task cluster.Task) (json.RawMessage, error) {
		return task.Payload, nil
	})
	registry.Register("sleep", func(ctx context.Context, task cluster.Task) (json.RawMessage, error) {
		var req struct {
			DurationMs int `json:"duration_ms"`
		}
		if len(task.Payload) > 0 {
			if err := json.Unmarshal(task.Payload, &req); err != nil {
				return nil, fmt.Errorf("decode sleep payload: %w", err)
			}
		}
		select {
		case <-time.After(time.Duration(req.DurationMs) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return json.Marshal(struct {
			SleptMs int `json:"slept_ms"`
		}{req.DurationMs})
	})
}

type server struct {
	ctrl *controller.Controller
}

func (s *server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var task cluster.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if task.Kind == "" {
		http.Error(w, "kind required", http.StatusBadRequest)
		return
	}

	res, err := s.ctrl.Execute(r.Context(), task)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(taskStatusCode(err))
	_ = json.NewEncoder(w).Encode(res)
}

// taskStatusCode maps Execute's refusal errors to HTTP codes. A handler
// failure is not a refusal: the outcome lives in the result body under 200.
func taskStatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, controller.ErrTaskTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, controller.ErrDuplicateTask):
		return http.StatusConflict
	case errors.Is(err, controller.ErrBusy),
		errors.Is(err, controller.ErrNoNodes),
		errors.Is(err, controller.ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.ctrl.GetStatus())
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	health := s.ctrl.HealthCheck()
	w.Header().Set("Content-Type", "application/json")
	if !health.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(health)
}

func (s *server) handleTopology(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.ctrl.Fabric().Router().Topology())
}

func (s *server) handleGossip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var env cluster.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.ctrl.Fabric().Router().Ingest(env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
