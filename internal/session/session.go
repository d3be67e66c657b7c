// Package session implements the protocol conversation FSM: the
// request/answer/retry discipline that drives a device through
// GET_MODEL_INFO, SEND_DATASET_INFO, SEND_SAMPLES, GET_PERF, and
// SHUTDOWN. One goroutine owns all mutable state; inbound bytes and
// timer fires are funneled to it over channels rather than touching
// state directly from their own goroutines.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Neuton-tinyML/dataset-uploader/internal/config"
	"github.com/Neuton-tinyML/dataset-uploader/internal/dataset"
	"github.com/Neuton-tinyML/dataset-uploader/internal/frame"
	"github.com/Neuton-tinyML/dataset-uploader/internal/monitor"
	"github.com/Neuton-tinyML/dataset-uploader/internal/transport"
	"github.com/Neuton-tinyML/dataset-uploader/internal/wire"
)

// Session drives one end-to-end upload conversation over a Transport.
// Exactly one goroutine — the one running Run — ever touches the fields
// below, except parser, which the transport's receive goroutine feeds;
// everything else communicates with it over channels.
type Session struct {
	tp     transport.Transport
	ds     *dataset.Source
	broker *monitor.Broker
	log    *logrus.Entry
	parser *frame.Parser

	maxRetries      uint32
	responseTimeout time.Duration
	errorRetryDelay time.Duration

	state      Stage
	retries    uint32
	taskType   wire.TaskType
	columnsIn  uint32 // columns in a dataset sample, header+1
	columnsOut uint32 // columns in a device prediction, from MODEL_INFO
	sample     []float32
	sampleSent bool

	timer *time.Timer

	packetCh chan []byte
	errCh    chan error
	stopCh   chan struct{}
	stopOnce sync.Once
	result   error
}

// New builds a Session wired to tp for I/O, ds for samples, and broker
// for publishing state/prediction/perf events. log should already carry
// component fielding.
func New(tp transport.Transport, ds *dataset.Source, broker *monitor.Broker, log *logrus.Entry, opts config.SessionOptions) *Session {
	s := &Session{
		tp:              tp,
		ds:              ds,
		broker:          broker,
		log:             log,
		maxRetries:      opts.MaxRetries,
		responseTimeout: time.Duration(opts.ResponseTimeoutMs) * time.Millisecond,
		errorRetryDelay: time.Duration(opts.ErrorRetryDelayMs) * time.Millisecond,
		columnsIn:       uint32(ds.HeaderColumns) + 1,
		packetCh:        make(chan []byte, 16),
		errCh:           make(chan error, 1),
		stopCh:          make(chan struct{}),
	}
	s.sample = make([]float32, s.columnsIn)
	s.parser = frame.New(2048, s.onParsed)
	return s
}

// onParsed is frame.Parser's Dispatch callback. It runs on the
// transport's receive goroutine, so it only ever hands the packet off to
// the session loop rather than touching session state directly.
func (s *Session) onParsed(packet []byte) {
	cp := append([]byte(nil), packet...)
	select {
	case s.packetCh <- cp:
	case <-s.stopCh:
	}
}

func (s *Session) onBytes(data []byte) {
	s.parser.Feed(data)
}

func (s *Session) onTransportError(err error) {
	select {
	case s.errCh <- err:
	default:
	}
}

// Run starts the conversation after waiting delay (the configured
// start-up pause), and blocks until the session reaches SHUTDOWN or
// fails fatally. Returns nil on a clean shutdown, or the error that
// ended the session otherwise — the caller (runtime package) maps that
// to the process exit code.
func (s *Session) Run(delay time.Duration) error {
	if err := s.tp.StartReceive(s.onBytes, s.onTransportError); err != nil {
		return err
	}

	s.state = StageGetModelInfo
	s.retries = 0
	s.sampleSent = false
	s.armTimer(delay)

	for {
		select {
		case <-s.stopCh:
			s.shutdownTransport()
			return s.result

		case err := <-s.errCh:
			s.fatal(err)

		case pkt := <-s.packetCh:
			s.handlePacket(pkt)

		case <-s.timer.C:
			s.handleTick()
		}
	}
}

func (s *Session) shutdownTransport() {
	if s.timer != nil {
		s.timer.Stop()
	}
	if err := s.tp.Close(); err != nil {
		s.log.WithError(err).Warn("error closing transport")
	}
}

func (s *Session) stop(err error) {
	s.stopOnce.Do(func() {
		s.result = err
		close(s.stopCh)
	})
}

func (s *Session) fatal(err error) {
	s.log.WithError(err).WithField("state", s.state).Error("session failed")
	s.stop(err)
}

// armTimer replaces the running timer with a fresh one firing after d.
// A new time.Timer is allocated on every call rather than Reset, since
// nothing ever reads a timer after it has been superseded — simpler than
// getting Timer.Reset's drain semantics right for no benefit here.
func (s *Session) armTimer(d time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.NewTimer(d)
}

// transition moves to a new state: publishes the change, resets the
// per-state retry/sample bookkeeping, and schedules an immediate tick so
// the new state's first request goes out without waiting on a timer.
func (s *Session) transition(to Stage) {
	s.broker.PublishState(monitor.StateChanged{From: s.state.String(), To: to.String()})
	s.state = to
	s.retries = 0
	s.sampleSent = false
	s.armTimer(0)
}

func (s *Session) handlePacket(pkt []byte) {
	hdr := wire.ParseHeader(pkt)
	if int(hdr.Size) > len(pkt) || int(hdr.Size) < wire.MinPacketSize {
		return
	}
	payload := pkt[wire.HeaderSize : int(hdr.Size)-wire.CRCSize]

	if !wire.IsAnswer(hdr.Type) {
		return
	}

	kind := wire.KindOf(hdr.Type)
	if kind == wire.KindError {
		s.log.WithField("state", s.state).WithField("error", hdr.Error).
			Warn("device reported an error, retrying")
		s.armTimer(s.errorRetryDelay)
		return
	}

	switch s.state {
	case StageGetModelInfo:
		s.onModelInfoAnswer(kind, payload)
	case StageSendDatasetInfo:
		s.onDatasetInfoAnswer(kind)
	case StageSendSamples:
		s.onSampleAnswer(kind, payload)
	case StageGetPerf:
		s.onPerfAnswer(kind, payload)
	case StageShutdown:
	}
}

func (s *Session) handleTick() {
	switch s.state {
	case StageGetModelInfo:
		s.attemptRequest(wire.KindModelInfo, nil, "timed out waiting for model info")
	case StageSendDatasetInfo:
		payload := wire.EncodeDatasetInfo(nil, wire.DatasetInfo{ColumnsCount: s.columnsIn})
		s.attemptRequest(wire.KindDatasetInfo, payload, "timed out sending dataset info")
	case StageSendSamples:
		s.attemptSendSample()
	case StageGetPerf:
		s.attemptRequest(wire.KindPerfReport, nil, "timed out waiting for performance report")
	case StageShutdown:
		s.stop(nil)
	}
}

// attemptRequest is the shared request/retry epilogue for the three
// states with a single fixed outbound request: at most maxRetries+1
// sends before a fatal timeout.
func (s *Session) attemptRequest(kind wire.Kind, payload []byte, timeoutMsg string) {
	s.retries++
	if s.retries > s.maxRetries+1 {
		s.fatal(errors.New(timeoutMsg))
		return
	}
	s.send(wire.Encode(wire.RequestType(kind), wire.ErrorSuccess, payload))
}

func (s *Session) send(pkt []byte) {
	if err := s.tp.Send(pkt); err != nil {
		s.fatal(err)
		return
	}
	s.armTimer(s.responseTimeout)
}

// onModelInfoAnswer handles an inbound packet while waiting for
// MODEL_INFO. A mismatched kind or an undersized payload is ignored —
// no transition, no resend — leaving only the timer to drive the next
// attempt.
func (s *Session) onModelInfoAnswer(kind wire.Kind, payload []byte) {
	if kind != wire.KindModelInfo || len(payload) < wire.ModelInfoSize {
		return
	}

	mi := wire.DecodeModelInfo(payload)
	s.taskType = mi.TaskType
	s.columnsOut = mi.ColumnsCount
	s.log.WithField("taskType", s.taskType).WithField("resultColumns", s.columnsOut).
		Info("received model info")

	if s.columnsOut == 0 {
		s.fatal(errors.New("model reports zero output columns"))
		return
	}
	s.transition(StageSendDatasetInfo)
}

func (s *Session) onDatasetInfoAnswer(kind wire.Kind) {
	if kind != wire.KindDatasetInfo {
		return
	}
	s.log.WithField("columnsInSample", s.columnsIn).Info("dataset info acknowledged")
	s.transition(StageSendSamples)
}

// onSampleAnswer handles an inbound packet while a sample is in flight.
// On a matching answer it publishes the prediction and reads the next
// row. At end of dataset it moves on to GET_PERF; otherwise it falls
// straight into attemptSendSample's shared send/retry epilogue, the
// same path a bare timeout uses.
func (s *Session) onSampleAnswer(kind wire.Kind, payload []byte) {
	if kind != wire.KindDatasetSample || len(payload) < int(s.columnsOut)*4 {
		return
	}

	if s.sampleSent {
		cols := wire.DecodeSample(payload, int(s.columnsOut))
		s.broker.PublishPrediction(monitor.Prediction{TaskType: uint32(s.taskType), Columns: cols})
	}

	s.retries = 0
	if s.sampleSent {
		if !s.nextSample() {
			s.log.Info("================")
			s.transition(StageGetPerf)
			return
		}
	}

	s.attemptSendSample()
}

// attemptSendSample is SEND_SAMPLES's shared epilogue, reached from both
// a bare timer tick and a just-answered sample that rolled over to the
// next row. It enforces the retry budget for whichever sample is
// currently loaded, loading the first one lazily on the state's first
// tick.
func (s *Session) attemptSendSample() {
	s.retries++
	if s.retries > s.maxRetries+1 {
		s.fatal(errors.New("timed out sending dataset sample(s)"))
		return
	}

	if !s.sampleSent {
		if !s.nextSample() {
			s.fatal(errors.New("failed to read a dataset sample"))
			return
		}
		s.sampleSent = true
	}

	payload := wire.EncodeSample(nil, s.sample)
	s.send(wire.Encode(wire.RequestType(wire.KindDatasetSample), wire.ErrorSuccess, payload))
}

// nextSample reads the next CSV row into s.sample, appending the fixed
// 1.0 sentinel column the original format always carries. Returns false
// at end of file or on a row whose width doesn't match the header,
// which this tool treats as end of dataset rather than a hard failure.
func (s *Session) nextSample() bool {
	values, ok := s.ds.Next()
	if !ok {
		return false
	}
	if len(values)+1 != int(s.columnsIn) {
		s.log.WithField("got", len(values)).WithField("want", s.columnsIn-1).
			Warn("dataset row width mismatch, treating as end of dataset")
		return false
	}
	copy(s.sample, values)
	s.sample[len(values)] = 1.0
	return true
}

func (s *Session) onPerfAnswer(kind wire.Kind, payload []byte) {
	if kind != wire.KindPerfReport || len(payload) < wire.PerfReportSize {
		return
	}
	pr := wire.DecodePerfReport(payload)
	s.broker.PublishPerf(monitor.PerfReport{
		Freq:        pr.Freq,
		FlashUsage:  pr.FlashUsage,
		RAMUsage:    pr.RAMUsage,
		RAMUsageCur: pr.RAMUsageCur,
		BufferSize:  pr.BufferSize,
		USSampleMin: pr.USSampleMin,
		USSampleMax: pr.USSampleMax,
		USSampleAvg: pr.USSampleAvg,
	})
	s.transition(StageShutdown)
}
