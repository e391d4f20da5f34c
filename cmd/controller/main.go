package main

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	v1 "github.com/clockworkgo/controller/pkg/api/v1"
	"github.com/clockworkgo/controller/pkg/config"
	"github.com/clockworkgo/controller/pkg/controller"
	"github.com/clockworkgo/controller/pkg/schedcore"
	"github.com/clockworkgo/controller/pkg/telemetry"
	"github.com/clockworkgo/controller/pkg/workerlink"
)

func main() {
	cfg := config.Load()
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.Printf("controller starting, client port %d", cfg.ClientPort)

	state, err := controller.LoadBootstrap(cfg.BootstrapPath)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	sched := schedcore.NewScheduler(cfg, nil)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	sink, err := telemetry.NewTSVSink(cfg.ActionLogPath, cfg.RequestLogPath, metrics)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	sched.SetTelemetrySink(sink)

	for i, w := range state.Workers {
		addr := w.Address
		if addr == "" && i < len(cfg.WorkerTargets) {
			addr = cfg.WorkerTargets[i]
		}
		if addr == "" {
			log.Fatalf("worker %d: no address in bootstrap state or WORKER_TARGETS", w.WorkerID)
		}
		link, err := workerlink.Dial(w.WorkerID, addr, sched, cfg.DispatchTimeout)
		if err != nil {
			log.Fatalf("dialing worker %d at %s: %v", w.WorkerID, addr, err)
		}
		defer link.Close()

		gpuIDs := make([]int, 0, len(w.GPUs))
		for _, g := range w.GPUs {
			gpuIDs = append(gpuIDs, g.GPUID)
		}
		sched.RegisterWorker(w.WorkerID, link, gpuIDs)
		log.Printf("worker %d connected at %s (%d gpus)", w.WorkerID, addr, len(gpuIDs))
	}

	if err := sched.Start(state); err != nil {
		log.Fatalf("scheduler start: %v", err)
	}

	dashboard := telemetry.NewDashboard()
	stopFeed := make(chan struct{})
	go controller.RunDashboardFeed(sched, dashboard, metrics, 500*time.Millisecond, stopFeed)

	grpcServer := grpc.NewServer()
	v1.RegisterControllerServiceServer(grpcServer, controller.NewServer(sched))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ClientPort))
	if err != nil {
		log.Fatalf("listen on port %d: %v", cfg.ClientPort, err)
	}
	go func() {
		log.Printf("client gRPC listening on %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	dashMux := http.NewServeMux()
	dashMux.HandleFunc("/ws", dashboard.HandleWS)
	dashMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	go func() {
		addr := fmt.Sprintf(":%d", cfg.DashboardPort)
		log.Printf("dashboard listening on %s", addr)
		if err := http.ListenAndServe(addr, dashMux); err != nil {
			log.Fatalf("dashboard server: %v", err)
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	go func() {
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		log.Printf("metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, metricsMux); err != nil {
			log.Fatalf("metrics server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down controller")
	close(stopFeed)
	grpcServer.GracefulStop()
	sched.Stop()
	sink.Close()
	log.Println("controller stopped")
}
