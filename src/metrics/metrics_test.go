package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	// Each collector owns its registry, so two can coexist.
	assert.NotPanics(t, func() {
		NewCollector()
		NewCollector()
	})
}

func TestBuildCounters(t *testing.T) {
	c := NewCollector()

	c.BuildDiscovered()
	c.BuildDiscovered()
	c.BuildReduced()
	c.BuildAccepted(90 * time.Second)
	c.BuildRejected()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.buildsDiscovered))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.buildsReduced))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.buildsAccepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.buildsRejected))
	assert.Equal(t, 1, testutil.CollectAndCount(c.buildDuration))
}

func TestDetailFeedGauge(t *testing.T) {
	c := NewCollector()
	c.DetailFeedOpened()
	c.DetailFeedOpened()
	c.DetailFeedClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.detailFeedsOpen))
}

func TestStreamObserver(t *testing.T) {
	c := NewCollector()
	discovery := c.StreamObserver(FeedDiscovery)
	detail := c.StreamObserver(FeedBuild)

	discovery.Connected(false)
	discovery.Event()
	discovery.Event()
	discovery.Reconnect(errors.New("reset"))
	discovery.Connected(true)
	detail.Event()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.streamConnects.WithLabelValues(FeedDiscovery)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.streamReconnects.WithLabelValues(FeedDiscovery)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.streamEvents.WithLabelValues(FeedDiscovery)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.streamEvents.WithLabelValues(FeedBuild)))
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.BuildAccepted(time.Second)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "buildtime_builds_accepted_total 1")
	assert.Contains(t, string(body), "buildtime_build_duration_seconds_bucket")
}
