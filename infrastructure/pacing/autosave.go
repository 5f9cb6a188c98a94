package pacing

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/infrastructure/logging"
	"github.com/dominium-sim/simkernel/infrastructure/state"
	"github.com/dominium-sim/simkernel/kernel"
)

// SaveFunc persists one snapshot of the running driver, returning the path
// written (for logging) or an error. It must not block the caller for long:
// the scheduler invokes it synchronously from the cron goroutine.
type SaveFunc func() (string, error)

// AutosaveScheduler runs a SaveFunc on a cron schedule, logging failures
// without interrupting the simulation loop that owns the driver.
type AutosaveScheduler struct {
	cron    *cron.Cron
	log     *logging.Logger
	mu      sync.Mutex
	lastErr error
}

// NewAutosaveScheduler builds a scheduler that invokes save on the given
// cron expression (standard 5-field syntax, or a "@every 5m"-style
// descriptor). The scheduler does not run until Start is called.
func NewAutosaveScheduler(expr string, save SaveFunc, log *logging.Logger) (*AutosaveScheduler, error) {
	s := &AutosaveScheduler{cron: cron.New(), log: log}
	_, err := s.cron.AddFunc(expr, func() {
		path, err := save()
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		if err != nil {
			if s.log != nil {
				s.log.WithError(err).Error("autosave failed")
			}
			return
		}
		if s.log != nil {
			s.log.WithFields(map[string]interface{}{"path": path}).Info("autosave complete")
		}
	})
	if err != nil {
		return nil, errors.Wrap(errors.InvalidArgument, "invalid autosave cron expression", err).WithDetails("expr", expr)
	}
	return s, nil
}

// Start begins running the scheduled autosave job in the background.
func (s *AutosaveScheduler) Start() { s.cron.Start() }

// Stop signals the scheduler to stop and returns a context that is done once
// any in-flight autosave has finished.
func (s *AutosaveScheduler) Stop() context.Context { return s.cron.Stop() }

// LastError returns the error from the most recently completed autosave, or
// nil if the last autosave (or the only one so far) succeeded.
func (s *AutosaveScheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// FileSaveFunc returns a SaveFunc that encodes a snapshot of driver to a
// timestamped file under dir, using opts for save-container framing. The
// file name embeds the tick index so successive autosaves sort and identify
// themselves without reading the header.
func FileSaveFunc(dir string, driver *kernel.Driver, opts kernel.SaveOptions) SaveFunc {
	return func() (string, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrap(errors.Err, "autosave directory unavailable", err)
		}
		name := fmt.Sprintf("autosave-%020d.dmsg", uint64(driver.Now()))
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			return "", errors.Wrap(errors.Err, "autosave file create failed", err)
		}
		defer f.Close()
		if err := kernel.Save(f, driver, opts); err != nil {
			return "", errors.Wrap(errors.Err, "autosave encode failed", err)
		}
		return path, nil
	}
}

// StateBackendSaveFunc returns a SaveFunc that encodes a snapshot of driver
// and writes it through backend instead of to the local filesystem, for
// deployments where the autosave target is a remote or shared key/value
// store rather than a disk FileSaveFunc can reach. The key embeds the tick
// index the same way FileSaveFunc's file name does.
func StateBackendSaveFunc(backend state.PersistenceBackend, driver *kernel.Driver, opts kernel.SaveOptions) SaveFunc {
	return func() (string, error) {
		var buf bytes.Buffer
		if err := kernel.Save(&buf, driver, opts); err != nil {
			return "", errors.Wrap(errors.Err, "autosave encode failed", err)
		}
		key := fmt.Sprintf("autosave-%020d.dmsg", uint64(driver.Now()))
		if err := backend.Save(context.Background(), key, buf.Bytes()); err != nil {
			return "", errors.Wrap(errors.Err, "autosave backend write failed", err)
		}
		return key, nil
	}
}
