package daemon

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Runner is a background worker that stops when its context is done, e.g. the search indexer.
type Runner interface {
	Run(ctx context.Context, interval time.Duration)
}

// Drainer delivers everything already emitted before returning, e.g. the event manager.
type Drainer interface {
	Close()
}

type Daemon struct {
	sequencer *Sequencer
	events    Drainer
	server    *http.Server
	runners   []Runner
	interval  time.Duration
}

func NewDaemon(sequencer *Sequencer, events Drainer, handler http.Handler, port string, interval time.Duration, runners ...Runner) *Daemon {
	return &Daemon{
		sequencer: sequencer,
		events:    events,
		server:    &http.Server{Addr: ":" + port, Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		runners:   runners,
		interval:  interval,
	}
}

// Execute serves the api until ctx is done or the listener fails. On the way out the server is
// drained first, then the sequencer finishes its running job, then events are delivered to
// listeners, then runners flush.
func (d *Daemon) Execute(ctx context.Context) error {
	d.sequencer.Start()

	runCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, r := range d.runners {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			r.Run(runCtx, d.interval)
		}(r)
	}

	serveErr := make(chan error, 1)
	go func() {
		zap.L().With(zap.String("addr", d.server.Addr)).Info("Daemon: Listening")
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var err error
	select {
	case <-ctx.Done():
		zap.L().Info("Daemon: Shutting down")
	case err = <-serveErr:
		zap.L().With(zap.Error(err)).Error("Daemon: Server failed")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	err = multierr.Append(err, d.server.Shutdown(shutdownCtx))

	d.sequencer.Stop()
	d.events.Close()
	cancel()
	wg.Wait()

	return err
}
