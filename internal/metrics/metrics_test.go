package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestLabels(t *testing.T) {
	assert.Equal(t, "hit", Result(true))
	assert.Equal(t, "miss", Result(false))
	assert.Equal(t, "ok", Status(nil))
	assert.Equal(t, "error", Status(errors.New("boom")))
}

func TestCountersRegistered(t *testing.T) {
	before := testutil.ToFloat64(TileLookups.WithLabelValues("test", "hit"))
	TileLookups.WithLabelValues("test", "hit").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(TileLookups.WithLabelValues("test", "hit")))

	StoreOperations.WithLabelValues("save", Status(nil)).Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(StoreOperations.WithLabelValues("save", "ok")), 1.0)
}
