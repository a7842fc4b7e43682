package metrics

import "time"

// RecordVerify records one verification request. outcome is "valid",
// "invalid" or "error".
func RecordVerify(scheme, outcome string) {
	if !enabled {
		return
	}
	verifyTotal.WithLabelValues(scheme, outcome).Inc()
}

// RecordSettle records one settlement request and its latency. outcome is
// "success", "failure" or "error".
func RecordSettle(scheme, outcome string, elapsed time.Duration) {
	if !enabled {
		return
	}
	settleTotal.WithLabelValues(scheme, outcome).Inc()
	settleDuration.WithLabelValues(scheme).Observe(elapsed.Seconds())
}

// RecordChallenge records one 402 challenge issued by the seller middleware.
func RecordChallenge(network, token string) {
	if !enabled {
		return
	}
	challengeTotal.WithLabelValues(network, token).Inc()
}

// RecordInvoicesExpired records invoices flipped to expired by a sweep.
func RecordInvoicesExpired(n int64) {
	if !enabled || n <= 0 {
		return
	}
	invoiceSweepTotal.Add(float64(n))
}
