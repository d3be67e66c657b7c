package session

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Neuton-tinyML/dataset-uploader/internal/config"
	"github.com/Neuton-tinyML/dataset-uploader/internal/dataset"
	"github.com/Neuton-tinyML/dataset-uploader/internal/frame"
	"github.com/Neuton-tinyML/dataset-uploader/internal/monitor"
	"github.com/Neuton-tinyML/dataset-uploader/internal/wire"
)

// scriptedTransport answers each Send synchronously according to script,
// which is given the packet kind and the 1-based attempt number seen for
// that kind so far, and returns an answer payload (kind, error, payload)
// to feed back in, or ok=false to stay silent (simulating a timeout).
type scriptedTransport struct {
	mu       sync.Mutex
	onData   func([]byte)
	attempts map[wire.Kind]int
	script   func(kind wire.Kind, attempt int) (answer []byte, ok bool)
	sentLog  []wire.Kind
}

func newScriptedTransport(script func(wire.Kind, int) ([]byte, bool)) *scriptedTransport {
	return &scriptedTransport{attempts: make(map[wire.Kind]int), script: script}
}

func (t *scriptedTransport) StartReceive(onData func([]byte), onError func(error)) error {
	t.onData = onData
	return nil
}

func (t *scriptedTransport) Send(pkt []byte) error {
	hdr := wire.ParseHeader(pkt)
	kind := wire.KindOf(hdr.Type)

	t.mu.Lock()
	t.attempts[kind]++
	attempt := t.attempts[kind]
	t.sentLog = append(t.sentLog, kind)
	t.mu.Unlock()

	if answer, ok := t.script(kind, attempt); ok {
		t.onData(answer)
	}
	return nil
}

func (t *scriptedTransport) Close() error { return nil }

func answerPacket(kind wire.Kind, errCode wire.ErrorCode, payload []byte) []byte {
	return wire.Encode(wire.AnswerType(kind), errCode, payload)
}

func writeCSV(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	content := ""
	for _, r := range rows {
		content += r + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture csv: %v", err)
	}
	return path
}

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.ErrorLevel)
	return l.WithField("test", true)
}

func drainPredictions(ch <-chan interface{}) *[]monitor.Prediction {
	out := &[]monitor.Prediction{}
	go func() {
		for msg := range ch {
			if p, ok := msg.(monitor.Prediction); ok {
				*out = append(*out, p)
			}
		}
	}()
	return out
}

func runWithTimeout(t *testing.T, s *Session, delay time.Duration) error {
	t.Helper()
	resultCh := make(chan error, 1)
	go func() { resultCh <- s.Run(delay) }()

	select {
	case err := <-resultCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish within 2s")
		return nil
	}
}

func TestHappyPathTwoSamples(t *testing.T) {
	csv := writeCSV(t, "a,b", "1.0,2.0", "3.0,4.0")
	ds, err := dataset.Open(csv)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	modelInfo := wire.EncodeModelInfo(nil, wire.ModelInfo{ColumnsCount: 1, TaskType: wire.TaskRegression})
	sampleAnswer := wire.EncodeSample(nil, []float32{0.5})
	perfAnswer := wire.EncodePerfReport(nil, wire.PerfReport{Freq: 48000000})

	tp := newScriptedTransport(func(kind wire.Kind, attempt int) ([]byte, bool) {
		switch kind {
		case wire.KindModelInfo:
			return answerPacket(wire.KindModelInfo, wire.ErrorSuccess, modelInfo), true
		case wire.KindDatasetInfo:
			return answerPacket(wire.KindDatasetInfo, wire.ErrorSuccess, nil), true
		case wire.KindDatasetSample:
			return answerPacket(wire.KindDatasetSample, wire.ErrorSuccess, sampleAnswer), true
		case wire.KindPerfReport:
			return answerPacket(wire.KindPerfReport, wire.ErrorSuccess, perfAnswer), true
		}
		return nil, false
	})

	broker := monitor.NewBroker(8)
	preds := drainPredictions(broker.SubscribePredictions())

	opts := config.SessionOptions{MaxRetries: 3, ResponseTimeoutMs: 50, ErrorRetryDelayMs: 50}
	s := New(tp, ds, broker, testLog(), opts)

	if err := runWithTimeout(t, s, 0); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if len(*preds) != 2 {
		t.Fatalf("expected 2 predictions, got %d: %v", len(*preds), *preds)
	}
}

func TestRetryThenSuccess(t *testing.T) {
	csv := writeCSV(t, "a", "1.0")
	ds, err := dataset.Open(csv)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	modelInfo := wire.EncodeModelInfo(nil, wire.ModelInfo{ColumnsCount: 2, TaskType: wire.TaskBinaryClassification})

	tp := newScriptedTransport(func(kind wire.Kind, attempt int) ([]byte, bool) {
		if kind == wire.KindModelInfo && attempt >= 3 {
			return answerPacket(wire.KindModelInfo, wire.ErrorSuccess, modelInfo), true
		}
		return nil, false
	})

	broker := monitor.NewBroker(8)
	opts := config.SessionOptions{MaxRetries: 3, ResponseTimeoutMs: 15, ErrorRetryDelayMs: 15}
	s := New(tp, ds, broker, testLog(), opts)

	// This session can never finish cleanly (no dataset info answer scripted);
	// just confirm the third model-info attempt lands and we move on to
	// SEND_DATASET_INFO instead of failing at the model-info retry budget.
	go s.Run(0)

	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case <-deadline:
			t.Fatal("state never advanced past GET_MODEL_INFO")
		default:
		}
		tp.mu.Lock()
		got := tp.attempts[wire.KindDatasetInfo] > 0
		tp.mu.Unlock()
		if got {
			s.stop(nil)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRetryBudgetExceeded(t *testing.T) {
	csv := writeCSV(t, "a", "1.0")
	ds, err := dataset.Open(csv)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	tp := newScriptedTransport(func(kind wire.Kind, attempt int) ([]byte, bool) {
		return nil, false // device never answers
	})

	broker := monitor.NewBroker(8)
	opts := config.SessionOptions{MaxRetries: 3, ResponseTimeoutMs: 10, ErrorRetryDelayMs: 10}
	s := New(tp, ds, broker, testLog(), opts)

	err = runWithTimeout(t, s, 0)
	if err == nil {
		t.Fatal("expected a timeout error, got nil")
	}

	tp.mu.Lock()
	sent := tp.attempts[wire.KindModelInfo]
	tp.mu.Unlock()
	if sent != int(opts.MaxRetries)+1 {
		t.Fatalf("expected %d requests before giving up, got %d", opts.MaxRetries+1, sent)
	}
}

func TestDeviceErrorRetried(t *testing.T) {
	csv := writeCSV(t, "a", "1.0")
	ds, err := dataset.Open(csv)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	modelInfo := wire.EncodeModelInfo(nil, wire.ModelInfo{ColumnsCount: 1, TaskType: wire.TaskRegression})

	tp := newScriptedTransport(func(kind wire.Kind, attempt int) ([]byte, bool) {
		if kind != wire.KindModelInfo {
			return nil, false
		}
		if attempt == 1 {
			return answerPacket(wire.KindError, wire.ErrorSendAgain, nil), true
		}
		return answerPacket(wire.KindModelInfo, wire.ErrorSuccess, modelInfo), true
	})

	broker := monitor.NewBroker(8)
	opts := config.SessionOptions{MaxRetries: 3, ResponseTimeoutMs: 50, ErrorRetryDelayMs: 10}
	s := New(tp, ds, broker, testLog(), opts)

	go s.Run(0)

	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case <-deadline:
			t.Fatal("never recovered from device error answer")
		default:
		}
		tp.mu.Lock()
		got := tp.attempts[wire.KindDatasetInfo] > 0
		tp.mu.Unlock()
		if got {
			s.stop(nil)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCorruptedFrameIgnored(t *testing.T) {
	// A parser-rejected frame (bad CRC) must never reach the session at
	// all; drive bytes through the real frame.Parser exactly as
	// transport.StartReceive would, and confirm a garbage frame followed
	// by a valid one still leads to exactly one dispatched frame.
	csv := writeCSV(t, "a", "1.0")
	ds, err := dataset.Open(csv)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	modelInfo := wire.EncodeModelInfo(nil, wire.ModelInfo{ColumnsCount: 1, TaskType: wire.TaskRegression})
	good := answerPacket(wire.KindModelInfo, wire.ErrorSuccess, modelInfo)
	bad := append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0xFF // corrupt the CRC trailer

	var dispatched int
	p := frame.New(2048, func([]byte) { dispatched++ })
	p.Feed(bad)
	p.Feed(good)

	if dispatched != 1 {
		t.Fatalf("expected exactly 1 dispatched frame, got %d", dispatched)
	}
	_ = ds
}
