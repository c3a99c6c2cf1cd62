package download

import "time"

// backoffMultiplier grows the retry delay after each wait.
const backoffMultiplier = 1.5

// retryWait computes the actual wait for this retry. Throttle-class failures
// (rate limiting, maintenance) get a larger floor and a higher cap than
// transient network failures.
func retryWait(delay time.Duration, throttled bool, o Options) time.Duration {
	if throttled {
		if delay < o.ThrottleDelayFloor {
			delay = o.ThrottleDelayFloor
		}
		if delay > o.ThrottleDelayCap {
			delay = o.ThrottleDelayCap
		}
		return delay
	}
	if delay > o.NetworkDelayCap {
		delay = o.NetworkDelayCap
	}
	return delay
}

// grow advances the backoff state from the delay that was actually waited.
func grow(waited time.Duration) time.Duration {
	return time.Duration(float64(waited) * backoffMultiplier)
}
