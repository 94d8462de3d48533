package heartbeat_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hausnet/heartbeat-agent/pkg/heartbeat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "some-token"

type fakeService struct {
	version string
	devices []map[string]any
	beats   atomic.Int32
	status  atomic.Int32
}

func intPtr(i int) *int { return &i }

func newFakeService(t *testing.T, version string) (*fakeService, *httptest.Server) {
	t.Helper()
	svc := &fakeService{
		version: version,
		devices: []map[string]any{
			{"id": 1, "name": "device_A", "heartbeat_id": 1},
			{"id": 2, "name": "device_B", "heartbeat_id": nil},
			{"id": 3, "name": "device_C", "heartbeat_id": 2},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"info": map[string]any{"title": "Heartbeat", "version": svc.version}})
	})
	mux.HandleFunc("/api/devices/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(svc.devices)
	})
	mux.HandleFunc("/api/heartbeats/2/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 2, "period_seconds": 15})
	})
	mux.HandleFunc("/api/heartbeats/2/beat/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		svc.beats.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if status := svc.status.Load(); status != 0 {
			w.WriteHeader(int(status))
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return svc, srv
}

func connected(t *testing.T, url string, opts ...heartbeat.Option) *heartbeat.Client {
	t.Helper()
	c := heartbeat.NewClient(url+"/api", testToken, opts...)
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func TestConnect(t *testing.T) {
	_, srv := newFakeService(t, "1.2.0")

	c := heartbeat.NewClient(srv.URL+"/api/", testToken)
	assert.False(t, c.Connected())
	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.Connected())
}

func TestConnect_AuthFailure(t *testing.T) {
	_, srv := newFakeService(t, "1.2.0")

	c := heartbeat.NewClient(srv.URL+"/api", "wrong")
	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, heartbeat.ErrAuth)
	assert.False(t, c.Connected())
}

func TestConnect_Unreachable(t *testing.T) {
	c := heartbeat.NewClient("http://127.0.0.1:1/api", testToken,
		heartbeat.WithHTTPClient(&http.Client{Timeout: time.Second}))
	assert.ErrorIs(t, c.Connect(context.Background()), heartbeat.ErrConnect)
}

func TestConnect_ServerError(t *testing.T) {
	svc, srv := newFakeService(t, "1.2.0")
	svc.status.Store(http.StatusBadGateway)

	c := heartbeat.NewClient(srv.URL+"/api", testToken)
	assert.ErrorIs(t, c.Connect(context.Background()), heartbeat.ErrConnect)
}

func TestConnect_IncompatibleVersion(t *testing.T) {
	for _, v := range []string{"2.0.0", "0.9.1", "not-a-version"} {
		_, srv := newFakeService(t, v)

		c := heartbeat.NewClient(srv.URL+"/api", testToken)
		assert.ErrorIs(t, c.Connect(context.Background()), heartbeat.ErrIncompatibleAPI, v)
	}
}

func TestCallsBeforeConnect(t *testing.T) {
	_, srv := newFakeService(t, "1.2.0")
	c := heartbeat.NewClient(srv.URL+"/api", testToken)

	_, err := c.ListDevices(context.Background())
	assert.ErrorIs(t, err, heartbeat.ErrNotConnected)
	assert.ErrorIs(t, c.SendHeartbeat(context.Background(), 2), heartbeat.ErrNotConnected)
}

func TestListDevices(t *testing.T) {
	_, srv := newFakeService(t, "1.2.0")
	c := connected(t, srv.URL)

	devices, err := c.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 3)
	for _, d := range devices {
		if d.Name == "device_B" {
			assert.Nil(t, d.HeartbeatID)
		} else {
			assert.NotNil(t, d.HeartbeatID)
		}
	}
}

func TestGetDevice(t *testing.T) {
	_, srv := newFakeService(t, "1.2.0")
	c := connected(t, srv.URL)

	d, err := c.GetDevice(context.Background(), "device_C")
	require.NoError(t, err)
	assert.Equal(t, 3, d.ID)
	assert.Equal(t, intPtr(2), d.HeartbeatID)

	_, err = c.GetDevice(context.Background(), "device_Z")
	assert.ErrorIs(t, err, heartbeat.ErrDeviceNotFound)
}

func TestGetHeartbeat(t *testing.T) {
	_, srv := newFakeService(t, "1.2.0")
	c := connected(t, srv.URL)

	hb, err := c.GetHeartbeat(context.Background(), "device_C")
	require.NoError(t, err)
	assert.Equal(t, 2, hb.ID)
	assert.Equal(t, 15, hb.PeriodSeconds)

	_, err = c.GetHeartbeat(context.Background(), "device_B")
	assert.ErrorIs(t, err, heartbeat.ErrNoHeartbeat)
}

func TestSendHeartbeat(t *testing.T) {
	svc, srv := newFakeService(t, "1.2.0")
	c := connected(t, srv.URL)

	require.NoError(t, c.SendHeartbeat(context.Background(), 2))
	assert.Equal(t, int32(1), svc.beats.Load())

	assert.ErrorIs(t, c.SendHeartbeat(context.Background(), 99), heartbeat.ErrConnect)
}

func TestSendHeartbeat_RateLimited(t *testing.T) {
	svc, srv := newFakeService(t, "1.2.0")
	c := connected(t, srv.URL, heartbeat.WithBeatLimit(time.Hour, 2))

	require.NoError(t, c.SendHeartbeat(context.Background(), 2))
	require.NoError(t, c.SendHeartbeat(context.Background(), 2))
	assert.ErrorIs(t, c.SendHeartbeat(context.Background(), 2), heartbeat.ErrRateLimited)
	assert.Equal(t, int32(2), svc.beats.Load())
}

func TestSendHeartbeat_ServiceRateLimit(t *testing.T) {
	svc, srv := newFakeService(t, "1.2.0")
	c := connected(t, srv.URL)

	svc.status.Store(http.StatusTooManyRequests)
	assert.ErrorIs(t, c.SendHeartbeat(context.Background(), 2), heartbeat.ErrRateLimited)
}

func TestVerifyConnection(t *testing.T) {
	_, srv := newFakeService(t, "1.2.0")

	assert.NoError(t, heartbeat.VerifyConnection(context.Background(),
		heartbeat.NewClient(srv.URL+"/api", testToken), "device_A"))

	assert.ErrorIs(t, heartbeat.VerifyConnection(context.Background(),
		heartbeat.NewClient(srv.URL+"/api", "bad"), "device_A"), heartbeat.ErrAuth)

	assert.ErrorIs(t, heartbeat.VerifyConnection(context.Background(),
		heartbeat.NewClient(srv.URL+"/api", testToken), "nope"), heartbeat.ErrDeviceNotFound)
}
