package bitbucket

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mReqCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prstatus_bitbucket_request_count",
			Help: "The total number of requests sent to Bitbucket",
		},
		[]string{"code", "method"},
	)
	mReqDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prstatus_bitbucket_request_duration_seconds",
			Help:    "The duration of requests sent to Bitbucket",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method"},
	)
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// instrument records a count and duration for every request passing through
// next. Transport errors are counted with code "error".
func instrument(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(r)
		mReqDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())

		code := "error"
		if err == nil {
			code = strconv.Itoa(resp.StatusCode)
		}
		mReqCount.WithLabelValues(code, r.Method).Inc()

		return resp, err
	})
}
