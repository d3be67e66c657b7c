package monitor

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogPerfReport consumes PerfReport events and logs the fixed
// human-readable performance/resource block once the device's final
// report comes in. Runs until ch is closed.
func LogPerfReport(ch <-chan interface{}, log *logrus.Entry) {
	for msg := range ch {
		pr, ok := msg.(PerfReport)
		if !ok {
			continue
		}
		log.Info(formatPerfReport(pr))
	}
}

func formatPerfReport(pr PerfReport) string {
	return fmt.Sprintf(
		"Resource report:\n"+
			"       CPU freq: %d\n"+
			"    Flash usage: %d\n"+
			"RAM usage total: %d\n"+
			"      RAM usage: %d\n"+
			"    UART buffer: %d\n"+
			"\n"+
			"Performance report:\n"+
			"Sample calc time, avg: %3.1f us\n"+
			"Sample calc time, min: %3.1f us\n"+
			"Sample calc time, max: %3.1f us\n"+
			"================",
		pr.Freq, pr.FlashUsage, pr.RAMUsage, pr.RAMUsageCur, pr.BufferSize,
		pr.USSampleAvg, pr.USSampleMin, pr.USSampleMax,
	)
}
