// Package runtime wires a Transport, a dataset Source, the session FSM,
// and the monitor broker's subscribers together into one process
// lifecycle: open (with retry), subscribe observers, run the
// conversation, tear down.
package runtime

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Neuton-tinyML/dataset-uploader/internal/config"
	"github.com/Neuton-tinyML/dataset-uploader/internal/dataset"
	"github.com/Neuton-tinyML/dataset-uploader/internal/monitor"
	"github.com/Neuton-tinyML/dataset-uploader/internal/session"
	"github.com/Neuton-tinyML/dataset-uploader/internal/transport"
)

// Options collects everything the runtime needs beyond the
// retry/timeout tunables already carried in config.SessionOptions.
type Options struct {
	DatasetPath  string
	Pause        time.Duration
	OpenAttempts int
	Open         func() (transport.Transport, error)
	Session      config.SessionOptions
	Log          *logrus.Entry
}

// Run opens the transport (with startup backoff), drives one session to
// completion, and returns the error that should determine the process
// exit code — nil for a clean shutdown.
func Run(opts Options) error {
	ds, err := dataset.Open(opts.DatasetPath)
	if err != nil {
		return fmt.Errorf("open dataset %s: %w", opts.DatasetPath, err)
	}
	defer ds.Close()

	tp, err := transport.OpenWithBackoff(opts.OpenAttempts, opts.Open, opts.Log)
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}

	broker := monitor.NewBroker(16)
	defer broker.Shutdown()

	stdoutPrinter := monitor.NewStdoutPrinter(os.Stdout)
	go stdoutPrinter.Run(broker.SubscribePredictions())
	go monitor.LogPerfReport(broker.SubscribePerf(), opts.Log.WithField("component", "perf"))

	var monitorServer *monitor.Server
	if opts.Session.MonitorAddr != "" {
		monitorServer = monitor.NewServer(opts.Log.WithField("component", "monitor"))
		if err := monitorServer.Start(opts.Session.MonitorAddr); err != nil {
			return fmt.Errorf("start monitor server on %s: %w", opts.Session.MonitorAddr, err)
		}
		defer monitorServer.Close()
		go monitorServer.Run(broker.SubscribeAll())
	}

	s := session.New(tp, ds, broker, opts.Log.WithField("component", "session"), opts.Session)
	return s.Run(opts.Pause)
}
