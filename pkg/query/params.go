package query

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/config"
)

var (
	// ErrMissingClientID is returned when a request names no tenant
	ErrMissingClientID = errors.New("client_id is required")

	// ErrInvalidRange is returned when start is not before end
	ErrInvalidRange = errors.New("start must be before end")

	// ErrWindowTooLarge is returned when the window exceeds the maximum
	ErrWindowTooLarge = fmt.Errorf("time window too large (max %v)", config.QueryMaxWindow)

	// ErrTooManyBuckets is returned when window/step would produce too many buckets
	ErrTooManyBuckets = fmt.Errorf("too many trend buckets (max %d)", maxBuckets)
)

const maxBuckets = 10000

// parseWindow reads start and end. end defaults to now and start to the
// default window before end.
func parseWindow(q url.Values, now time.Time) (time.Time, time.Time, error) {
	end, err := parseTime(q.Get("end"), now)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
	}
	start, err := parseTime(q.Get("start"), end.Add(-config.QueryDefaultWindow))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	if end.Sub(start) > config.QueryMaxWindow {
		return time.Time{}, time.Time{}, ErrWindowTooLarge
	}
	return start, end, nil
}

// parseTime accepts a Unix timestamp in seconds (fractions allowed) or RFC3339.
func parseTime(param string, def time.Time) (time.Time, error) {
	if param == "" {
		return def, nil
	}
	if unix, err := strconv.ParseFloat(param, 64); err == nil {
		sec := int64(unix)
		nsec := int64((unix - float64(sec)) * 1e9)
		return time.Unix(sec, nsec), nil
	}
	t, err := time.Parse(time.RFC3339, param)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither a unix timestamp nor RFC3339", param)
	}
	return t, nil
}

// parseLimit defaults to QueryDefaultLimit and clamps to QueryMaxLimit.
func parseLimit(param string) (int, error) {
	if param == "" {
		return config.QueryDefaultLimit, nil
	}
	n, err := strconv.Atoi(param)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", param)
	}
	return min(n, config.QueryMaxLimit), nil
}

// parseStep accepts a Go duration ("15m") or plain seconds.
func parseStep(param string, window time.Duration) (time.Duration, error) {
	step := config.QueryDefaultStep
	if param != "" {
		d, err := time.ParseDuration(param)
		if err != nil {
			secs, serr := strconv.Atoi(param)
			if serr != nil {
				return 0, fmt.Errorf("invalid step %q", param)
			}
			d = time.Duration(secs) * time.Second
		}
		step = d
	}
	if step < config.QueryMinStep {
		return 0, fmt.Errorf("step must be at least %v", config.QueryMinStep)
	}
	if window/step > maxBuckets {
		return 0, ErrTooManyBuckets
	}
	return step, nil
}
