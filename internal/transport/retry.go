package transport

import (
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

// OpenWithBackoff retries a transport-construction function (binding a
// UDP socket, opening a serial device) with exponential backoff. This is
// distinct from the session FSM's fixed per-state retry budget: it only
// governs getting the transport into existence before any session
// conversation starts.
func OpenWithBackoff(attempts int, open func() (Transport, error), log *logrus.Entry) (Transport, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	bounded := backoff.WithMaxRetries(b, uint64(attempts-1))

	var t Transport
	err := backoff.RetryNotify(func() error {
		var openErr error
		t, openErr = open()
		return openErr
	}, bounded, func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait).Warn("transport open failed, retrying")
	})

	return t, err
}
