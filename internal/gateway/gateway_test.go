package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

func TestBacklogRangeAndEviction(t *testing.T) {
	b := NewBacklog(3)
	for i := int64(1); i <= 5; i++ {
		b.Push(i, []byte{byte('0' + i)})
	}
	assert.Equal(t, 3, b.Len())

	got := b.Range(1, 10)
	require.Len(t, got, 3)
	assert.Equal(t, int64(3), got[0].Seq)
	assert.Equal(t, int64(5), got[2].Seq)
	assert.Len(t, b.Range(4, 4), 1)
}

func TestBroadcastEnvelopeAndSequences(t *testing.T) {
	h := NewHub()
	h.Broadcast("pub:didi:results:op", []byte(`{"score":1}`))
	h.Broadcast("pub:didi:orders:op", []byte(`{"signal":"buy"}`))
	h.Broadcast("pub:didi:results:op", []byte(`{"score":-1}`))

	assert.Equal(t, int64(2), h.ChannelSeq("pub:didi:results:op"))
	missed := h.Missed("pub:didi:results:op", 1, 2)
	require.Len(t, missed, 2)

	var env envelope
	require.NoError(t, json.Unmarshal(missed[1], &env))
	assert.Equal(t, "pub:didi:results:op", env.Channel)
	assert.JSONEq(t, `{"score":-1}`, string(env.Data))
	assert.Equal(t, int64(3), env.Seq)
	assert.Equal(t, int64(2), env.ChannelSeq)

	assert.Nil(t, h.Missed("unknown", 0, 10))
}

func newServer(t *testing.T, h *Hub) *httptest.Server {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	Register(r, h)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(strings.SplitN(string(raw), "\n", 2)[0]), &env))
	return env
}

func TestWebsocketReceivesLatestThenLive(t *testing.T) {
	h := NewHub()
	h.Broadcast("pub:didi:results:op", []byte(`1`))
	srv := newServer(t, h)
	conn := dial(t, srv)

	env := readEnvelope(t, conn)
	assert.Equal(t, int64(1), env.ChannelSeq)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	h.Broadcast("pub:didi:orders:op", []byte(`2`))
	env = readEnvelope(t, conn)
	assert.Equal(t, "pub:didi:orders:op", env.Channel)
}

func TestWebsocketSubscribeFiltersChannels(t *testing.T) {
	h := NewHub()
	srv := newServer(t, h)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Type: "SUBSCRIBE", Channels: []string{"pub:didi:orders:"}}))
	var c *Client
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		for cl := range h.clients {
			c = cl
		}
		return c != nil && !c.wants("pub:didi:results:op")
	}, time.Second, 10*time.Millisecond)

	h.Broadcast("pub:didi:results:op", []byte(`1`))
	h.Broadcast("pub:didi:orders:op", []byte(`2`))
	env := readEnvelope(t, conn)
	assert.Equal(t, "pub:didi:orders:op", env.Channel)
}

func TestMissedEndpoint(t *testing.T) {
	h := NewHub()
	for i := 0; i < 4; i++ {
		h.Broadcast("ch", []byte(`{}`))
	}
	srv := newServer(t, h)

	resp, err := http.Get(srv.URL + "/api/v1/missed?channel=ch&from=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Envelopes []string `json:"envelopes"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Envelopes, 3)

	bad, err := http.Get(srv.URL + "/api/v1/missed?from=x")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

type flakySource struct {
	calls int
	done  chan struct{}
}

func (f *flakySource) Subscribe(ctx context.Context, op string, fn func(string, []byte)) error {
	f.calls++
	fn("pub:didi:results:"+op, []byte(`{}`))
	close(f.done)
	<-ctx.Done()
	return errors.New("closed")
}

func TestRelayForwardsToHub(t *testing.T) {
	h := NewHub()
	src := &flakySource{done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		Relay(ctx, src, "op", h)
		close(finished)
	}()
	<-src.done
	cancel()
	<-finished
	assert.Equal(t, int64(1), h.ChannelSeq("pub:didi:results:op"))
	assert.Equal(t, 1, src.calls)
}

func TestStreamEndpoint(t *testing.T) {
	h := NewHub()
	h.Broadcast("b", []byte(`1`))
	h.Broadcast("a", []byte(`2`))
	h.Broadcast("b", []byte(`3`))
	srv := newServer(t, h)

	resp, err := http.Get(srv.URL + "/api/v1/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Clients  int           `json:"clients"`
		Channels []ChannelStat `json:"channels"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 0, body.Clients)
	assert.Equal(t, []ChannelStat{
		{Channel: "a", Seq: 1, Buffered: 1},
		{Channel: "b", Seq: 2, Buffered: 2},
	}, body.Channels)
}
