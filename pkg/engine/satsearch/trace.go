package satsearch

import (
	"fmt"
	"io"
	"time"
)

// tracer writes the human-readable search log. Progress lines have the form
//
//	#<rank> <seconds>s best:<objective> next:[<lower>,<upper>]
//
// A nil writer disables tracing.
type tracer struct {
	w      io.Writer
	start  time.Time
	factor int64
	rank   int
}

func (t *tracer) header(items int, seed, lower int64) {
	if t.w == nil {
		return
	}
	fmt.Fprintf(t.w, "Starting search: items=%d scale_factor=%d seed=%d lower_bound=%s\n",
		items, t.factor, seed, formatScaled(lower, t.factor))
}

func (t *tracer) improvement(best, lower int64) {
	if t.w == nil {
		return
	}
	t.rank++
	next := "[]"
	if best > lower {
		next = fmt.Sprintf("[%s,%s]", formatScaled(lower, t.factor), formatScaled(best-1, t.factor))
	}
	fmt.Fprintf(t.w, "#%-4d %7.2fs best:%s next:%s\n",
		t.rank, time.Since(t.start).Seconds(), formatScaled(best, t.factor), next)
}

func (t *tracer) done(status string) {
	if t.w == nil {
		return
	}
	fmt.Fprintf(t.w, "#Done %7.2fs %s\n", time.Since(t.start).Seconds(), status)
}
