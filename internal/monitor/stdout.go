package monitor

import (
	"bufio"
	"fmt"
	"io"
)

// StdoutPrinter formats Prediction events to an output stream, printing
// a header line before the first body line. headerPrinted is scoped to
// the printer instance rather than a package-level flag, so a process
// that drives multiple sequential sessions gets a fresh printer (and so
// a fresh header) per session.
type StdoutPrinter struct {
	w             *bufio.Writer
	headerPrinted bool
}

// NewStdoutPrinter wraps w for buffered, line-oriented output.
func NewStdoutPrinter(w io.Writer) *StdoutPrinter {
	return &StdoutPrinter{w: bufio.NewWriter(w)}
}

// Run reads Prediction events from ch and formats each one,
// printing the header line before the first body line. It returns when
// ch is closed (broker shutdown or unsubscribed).
func (p *StdoutPrinter) Run(ch <-chan interface{}) {
	defer p.w.Flush()
	for msg := range ch {
		pred, ok := msg.(Prediction)
		if !ok {
			continue
		}
		p.print(pred)
		p.w.Flush()
	}
}

func (p *StdoutPrinter) print(pred Prediction) {
	if !p.headerPrinted {
		p.printHeader(pred.TaskType, len(pred.Columns))
		p.headerPrinted = true
	}

	if pred.TaskType < 2 {
		index := argmax(pred.Columns)
		fmt.Fprintf(p.w, "%d,", index)
	}

	for i, v := range pred.Columns {
		sep := ","
		if i+1 == len(pred.Columns) {
			sep = ""
		}
		fmt.Fprintf(p.w, "%.6f%s", v, sep)
	}
	fmt.Fprintln(p.w)
}

func (p *StdoutPrinter) printHeader(taskType uint32, columns int) {
	if taskType == 2 {
		if columns == 1 {
			fmt.Fprintln(p.w, "target")
			return
		}
		for i := 0; i < columns; i++ {
			sep := ","
			if i+1 == columns {
				sep = ""
			}
			fmt.Fprintf(p.w, "Predicted value for output #%d%s", i+1, sep)
		}
		fmt.Fprintln(p.w)
		return
	}

	if columns > 1 {
		fmt.Fprint(p.w, "target,")
	} else {
		fmt.Fprint(p.w, "target")
	}
	for i := 0; i < columns; i++ {
		sep := ","
		if i+1 == columns {
			sep = ""
		}
		fmt.Fprintf(p.w, "Probability of %d%s", i, sep)
	}
	fmt.Fprintln(p.w)
}

func argmax(columns []float32) int {
	index := 0
	max := float32(0)
	for i, v := range columns {
		if max < v {
			index = i
			max = v
		}
	}
	return index
}
