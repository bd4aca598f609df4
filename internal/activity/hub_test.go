package activity

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishSubscribe(t *testing.T) {
	h := NewHub(2)

	first := h.Publish(Event{Type: TypeDraftReady, StoreID: "s1"})
	assert.Equal(t, int64(1), first.ID)
	assert.False(t, first.At.IsZero())

	replay, events, cancel := h.Subscribe("s1", 0)
	require.Len(t, replay, 1)
	assert.Equal(t, 1, h.Subscribers("s1"))

	h.Publish(Event{Type: TypePurchase, StoreID: "s1", ProductID: "p1"})
	h.Publish(Event{Type: TypePurchase, StoreID: "s2"})

	select {
	case ev := <-events:
		assert.Equal(t, "p1", ev.ProductID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	cancel()
	assert.Equal(t, 0, h.Subscribers("s1"))
	_, open := <-events
	assert.False(t, open)

	h.Publish(Event{Type: TypeDraftReady, StoreID: "s1"})
	since := h.Since("s1", 0)
	require.Len(t, since, 2, "history is bounded")
	assert.Equal(t, int64(2), since[0].ID)
	assert.Len(t, h.Since("s1", 2), 1)
	assert.Empty(t, h.Since("nope", 0))
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(10)
	_, _, cancel := h.Subscribe("s1", 0)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			h.Publish(Event{StoreID: "s1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestWebSocketHandler(t *testing.T) {
	h := NewHub(10)
	h.Publish(Event{Type: TypeDraftReady, StoreID: "s1", Data: map[string]string{"title": "Lamp"}})

	r := chi.NewRouter()
	r.Get("/ws/activity/{storeID}", NewWebSocketHandler(h, []string{"*"}).ServeHTTP)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/activity/s1"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var ev Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, TypeDraftReady, ev.Type)
	assert.Equal(t, "Lamp", ev.Data["title"])

	require.Eventually(t, func() bool { return h.Subscribers("s1") == 1 }, time.Second, 10*time.Millisecond)
	h.Publish(Event{Type: TypePurchase, StoreID: "s1", ProductID: "p9"})

	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, TypePurchase, ev.Type)
	assert.Equal(t, "p9", ev.ProductID)
}
