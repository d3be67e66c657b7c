// Command dataset-uploader streams a CSV dataset to a Neuton-protocol
// device over UDP or a serial line and prints its predictions, following
// the request/answer/retry conversation the session package implements.
// Bare flag package, fail-fast on setup errors, os.Exit with a
// meaningful status.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Neuton-tinyML/dataset-uploader/internal/config"
	"github.com/Neuton-tinyML/dataset-uploader/internal/runtime"
	"github.com/Neuton-tinyML/dataset-uploader/internal/transport"
)

var (
	ifaceFlag   = flag.String("interface", "", "transport to use: udp or serial (required)")
	datasetFlag = flag.String("dataset", "", "path to the CSV dataset (required)")

	listenPort = flag.Int("listen-port", 0, "UDP: local port to bind (udp only)")
	sendPort   = flag.Int("send-port", 0, "UDP: peer port to send to (udp only)")

	serialPort = flag.String("serial-port", "", "serial device path (serial only)")
	baudRate   = flag.Int("baud-rate", 115200, "serial baud rate: 9600, 115200, or 230400 (serial only)")

	pauseMs      = flag.Int("pause", 0, "delay in milliseconds before the first request")
	configPath   = flag.String("config", "", "optional JSON file overriding retry/timeout tunables")
	monitorAddr  = flag.String("monitor-addr", "", "if set, serve a read-only live-monitor websocket at this address")
	openAttempts = flag.Int("open-attempts", 3, "number of attempts to open the transport before giving up")
	verbose      = flag.Bool("verbose", false, "enable debug-level logging")
)

func main() {
	flag.Parse()

	log := newLogger(*verbose)

	opts, err := buildOptions(log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	if err := runtime.Run(opts); err != nil {
		log.WithError(err).Error("upload session failed")
		os.Exit(1)
	}
	os.Exit(0)
}

func newLogger(verbose bool) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}
	l.SetLevel(level)
	return l.WithField("component", "dataset-uploader")
}

func buildOptions(log *logrus.Entry) (runtime.Options, error) {
	if *datasetFlag == "" {
		return runtime.Options{}, fmt.Errorf("--dataset is required")
	}

	sessionOpts := config.Defaults()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return runtime.Options{}, fmt.Errorf("read config %s: %w", *configPath, err)
		}
		sessionOpts, err = config.Load(data)
		if err != nil {
			return runtime.Options{}, fmt.Errorf("parse config %s: %w", *configPath, err)
		}
	}
	if *monitorAddr != "" {
		sessionOpts.MonitorAddr = *monitorAddr
	}

	open, err := buildOpener(log)
	if err != nil {
		return runtime.Options{}, err
	}

	return runtime.Options{
		DatasetPath:  *datasetFlag,
		Pause:        time.Duration(*pauseMs) * time.Millisecond,
		OpenAttempts: *openAttempts,
		Open:         open,
		Session:      sessionOpts,
		Log:          log,
	}, nil
}

func buildOpener(log *logrus.Entry) (func() (transport.Transport, error), error) {
	switch *ifaceFlag {
	case "udp":
		if *listenPort == 0 || *sendPort == 0 {
			return nil, fmt.Errorf("--listen-port and --send-port are required for --interface=udp")
		}
		cfg := transport.UDPConfig{ListenPort: *listenPort, SendPort: *sendPort}
		return func() (transport.Transport, error) {
			return transport.OpenUDP(cfg, log.WithField("transport", "udp"))
		}, nil

	case "serial":
		if *serialPort == "" {
			return nil, fmt.Errorf("--serial-port is required for --interface=serial")
		}
		cfg := transport.SerialConfig{Device: *serialPort, Baud: *baudRate}
		return func() (transport.Transport, error) {
			return transport.OpenSerial(cfg, log.WithField("transport", "serial"))
		}, nil

	default:
		return nil, fmt.Errorf("--interface must be udp or serial, got %q", *ifaceFlag)
	}
}
