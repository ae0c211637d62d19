// Command orthrus starts one listening group per shard, each with its own
// application/validator thread pair, sharing a single key/value table.
// Grounded on cheetah-db's main.go: config load, background resource
// pieces started up front, graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/aoikida/Orthrus/internal/affinity"
	"github.com/aoikida/Orthrus/internal/arena"
	"github.com/aoikida/Orthrus/internal/config"
	"github.com/aoikida/Orthrus/internal/dispatch"
	"github.com/aoikida/Orthrus/internal/kv"
	"github.com/aoikida/Orthrus/internal/logmgr"
	"github.com/aoikida/Orthrus/internal/obs"
	"github.com/aoikida/Orthrus/internal/redundancy"
	"github.com/aoikida/Orthrus/internal/ring"
	"github.com/aoikida/Orthrus/internal/wire"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "orthrus: config: %v\n", err)
		os.Exit(1)
	}

	obs.Logger().Info("starting",
		"listen_addr", cfg.ListenAddr,
		"ngroups", cfg.NGroups,
		"synchronous", cfg.Synchronous,
		"sampling_rate", cfg.SamplingRate,
		"concurrency_limit", cfg.ConcurrencyLimit,
	)
	logCPUSets(cfg)

	metrics := obs.NewMetrics("orthrus")
	obs.ServeMetrics(cfg.MetricsAddr)

	table := kv.New(cfg.BucketCount, cfg.KeyLen, cfg.ValLen)
	a := arena.New(cfg.MaxLogBufferSize)
	a.SetMetrics(metrics)
	codec := wire.NewCodec(cfg.KeyLen, cfg.ValLen)

	listeners, err := listen(cfg)
	if err != nil {
		obs.Fatal("listener setup failed", "err", err)
	}

	stopping := make(chan struct{})
	stop := func() bool {
		select {
		case <-stopping:
			return true
		default:
			return false
		}
	}

	for i, ln := range listeners {
		mgr := logmgr.New(a, cfg.MaxLogBufferSize, cfg.MinLogBufferSize, nil)
		r := ring.New(cfg.RingCapacity)
		runner := redundancy.New(a, mgr, r, redundancy.Config{
			Synchronous:      cfg.Synchronous,
			SamplingRate:     cfg.SamplingRate,
			ConcurrencyLimit: cfg.ConcurrencyLimit,
			Metrics:          metrics,
		})

		group := &dispatch.Group{
			ID:     i,
			Addr:   ln.Addr().String(),
			Codec:  codec,
			Table:  table,
			Runner: runner,
		}

		go runValidator(group, runner, stop, cfg.ValidationCPUSet)
		go serveGroup(group, ln, cfg.WorkCPUSet)
	}

	waitForShutdown(stopping)
	if err := a.Close(); err != nil {
		obs.Logger().Error("arena close failed", "err", err)
	}
}

func logCPUSets(cfg *config.Config) {
	if cfg.WorkCPUSet != "" {
		obs.Logger().Info("application thread CPU set configured", "cpuset", cfg.WorkCPUSet)
	}
	if cfg.ValidationCPUSet != "" {
		obs.Logger().Info("validator thread CPU set configured", "cpuset", cfg.ValidationCPUSet)
	}
}

// pinSelf locks the calling goroutine to its OS thread and best-effort
// pins that thread to cpuset. Errors are logged, never fatal: unset or
// unpinnable CPU sets are a performance hint, not a correctness gate.
func pinSelf(cpuset, role string) {
	if cpuset == "" {
		return
	}
	cpus, err := affinity.ParseCPUSet(cpuset)
	if err != nil {
		obs.Logger().Warn("cpuset parse failed", "role", role, "cpuset", cpuset, "err", err)
		return
	}
	runtime.LockOSThread()
	if err := affinity.Pin(cpus); err != nil {
		obs.Logger().Warn("cpu pinning failed", "role", role, "cpuset", cpuset, "err", err)
	}
}

func listen(cfg *config.Config) ([]net.Listener, error) {
	host, portStr, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen_addr: %w", err)
	}
	basePort, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("listen_addr port: %w", err)
	}

	listeners := make([]net.Listener, 0, cfg.NGroups)
	for i := 0; i < cfg.NGroups; i++ {
		addr := net.JoinHostPort(host, strconv.Itoa(basePort+i))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, prior := range listeners {
				prior.Close()
			}
			return nil, fmt.Errorf("group %d listen on %s: %w", i, addr, err)
		}
		listeners = append(listeners, ln)
	}
	return listeners, nil
}

func serveGroup(g *dispatch.Group, ln net.Listener, cpuset string) {
	pinSelf(cpuset, "application")
	if err := g.Serve(ln); err != nil {
		obs.Logger().Error("group listener stopped", "group", g.ID, "err", err)
	}
}

func runValidator(g *dispatch.Group, r *redundancy.Runner, stop func() bool, cpuset string) {
	pinSelf(cpuset, "validator")
	r.ValidateLoop(g.Validator, stop)
}

func waitForShutdown(stopping chan struct{}) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	obs.Logger().Info("shutdown signal received")
	close(stopping)
}
