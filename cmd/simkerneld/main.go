// Command simkerneld runs the deterministic tick-driven simulation kernel as
// a long-lived process: load or create a world, pace its advance to a
// wall-clock rate, autosave on a cron schedule, and serve local diagnostics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dominium-sim/simkernel/infrastructure/config"
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/infrastructure/logging"
	"github.com/dominium-sim/simkernel/infrastructure/metrics"
	"github.com/dominium-sim/simkernel/infrastructure/observability"
	"github.com/dominium-sim/simkernel/infrastructure/pacing"
	"github.com/dominium-sim/simkernel/infrastructure/save"
	"github.com/dominium-sim/simkernel/infrastructure/state"
	"github.com/dominium-sim/simkernel/infrastructure/tracebus"
	"github.com/dominium-sim/simkernel/kernel"
)

func main() {
	loadPath := flag.String("load", "", "path to a save container to resume from (empty starts a fresh world)")
	saveDir := flag.String("save-dir", "./saves", "directory autosaves are written to")
	seed := flag.Uint64("seed", 1, "RNG seed for a freshly-started world (ignored with -load)")
	traceRedisAddr := flag.String("trace-redis-addr", "", "Redis address for a faction AI trace publisher (empty creates none; simkerneld attaches no AI scheduler to feed it)")
	inMemoryAutosave := flag.Bool("autosave-in-memory", false, "keep autosaves in an in-process key/value backend instead of writing -save-dir to disk")
	flag.Parse()

	log := logging.NewFromEnv("simkerneld")
	cfg := config.LoadKernelConfig()

	driver, instanceID, err := openDriver(*loadPath, *seed, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize world")
	}

	if *traceRedisAddr != "" {
		pub := tracebus.New(tracebus.Config{Addr: *traceRedisAddr}, log)
		defer pub.Close()
		// simkerneld builds no faction.Scheduler, so the sink is not attached
		// anywhere here and no trace records are published.
		_ = pub.Sink()
	}

	pacer := pacing.New(driver.UPS())

	saveOpts := kernel.SaveOptions{InstanceID: instanceID, UPS: driver.UPS()}
	saveFn := pacing.FileSaveFunc(*saveDir, driver, saveOpts)
	if *inMemoryAutosave {
		// Bound in-memory retention: unlike the file path, evicted
		// snapshots are gone for good, so keep enough history to step
		// back through recent ticks without letting a tight autosave
		// cron grow the process unboundedly.
		saveFn = pacing.StateBackendSaveFunc(state.NewMemoryBackend(16), driver, saveOpts)
	}
	autosave, err := pacing.NewAutosaveScheduler(cfg.AutosaveCron, saveFn, log)
	if err != nil {
		log.WithError(err).Fatal("invalid autosave schedule")
	}
	autosave.Start()
	defer func() { <-autosave.Stop().Done() }()

	registry := prometheus.NewRegistry()
	var m *metrics.Metrics
	if metrics.Enabled() {
		m = metrics.NewWithRegistry("simkerneld", registry)
	}
	obs := observability.New(driver, registry)
	obsAddr := fmt.Sprintf(":%d", cfg.ObservabilityPort)
	go func() {
		if err := obs.ListenAndServe(obsAddr); err != nil {
			log.WithError(err).Error("observability server stopped")
		}
	}()
	log.WithFields(map[string]interface{}{"addr": obsAddr}).Info("observability server listening")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.WithTick(driver.Now()).Info("simulation kernel starting")
	runLoop(ctx, driver, pacer, m, log, sigCh)
}

// openDriver resumes a driver from a save container at loadPath, or starts a
// fresh world at the given seed when loadPath is empty. It returns the
// driver plus the save identity to carry forward on the next autosave.
func openDriver(loadPath string, seed uint64, cfg config.KernelConfig) (*kernel.Driver, save.Identity, error) {
	if loadPath == "" {
		world := kernel.NewWorld(seed)
		driver := kernel.NewDriver(world, 0, uint32(cfg.TickRateHz))
		id := save.Identity{SchemaVersion: kernel.SchemaVersion, InstanceID: save.NewInstanceID()}
		return driver, id, nil
	}

	f, err := os.Open(loadPath)
	if err != nil {
		return nil, save.Identity{}, errors.Wrap(errors.Err, "open save file", err)
	}
	defer f.Close()

	driver, err := kernel.Load(f, uint32(cfg.TickRateHz))
	if err != nil {
		return nil, save.Identity{}, errors.Wrap(errors.Format, "load save file", err)
	}
	id := save.Identity{SchemaVersion: kernel.SchemaVersion, InstanceID: save.NewInstanceID()}
	return driver, id, nil
}

// runLoop paces driver.Tick() to the wall clock until ctx is cancelled or a
// shutdown signal arrives. m may be nil when metrics are disabled.
func runLoop(ctx context.Context, driver *kernel.Driver, pacer *pacing.Pacer, m *metrics.Metrics, log *logging.Logger, sigCh <-chan os.Signal) {
	started := time.Now()
	for {
		select {
		case <-sigCh:
			log.WithTick(driver.Now()).Info("shutdown signal received")
			return
		case <-ctx.Done():
			return
		default:
		}

		waitCtx, cancel := context.WithTimeout(ctx, time.Second)
		err := pacer.Wait(waitCtx)
		cancel()
		if err != nil {
			continue
		}

		tickStart := time.Now()
		if err := driver.Tick(); err != nil {
			if errors.Is(err, errors.ReplayEnd) {
				log.WithTick(driver.Now()).Info("replay finished, continuing live")
				continue
			}
			if m != nil {
				m.RecordError("simkerneld", string(errors.KindOf(err)), "tick")
			}
			log.WithFields(map[string]interface{}{"tick": uint64(driver.Now()), "error": err.Error()}).Error("tick failed")
			return
		}
		if m != nil {
			m.RecordTick("simkerneld", time.Since(tickStart), driver.World.WorldHash())
			m.UpdateUptime(started)
		}
	}
}
