package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lifemonitor/app/db/models"
	"lifemonitor/app/objects"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	messages []*Message
}

func (r *recorder) Deliver(m *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func TestRedisBus_PublishListen(t *testing.T) {
	asserter := assert.New(t)
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	bus := NewRedisBus(client, "lifemonitor:notifications")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	received := make(chan *Message, 1)
	go func() {
		_ = bus.Listen(ctx, func(m *Message) { received <- m })
	}()
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, "lifemonitor:notifications").Result()
		return err == nil && n["lifemonitor:notifications"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, NewMessage(map[string]interface{}{"type": "sync"}, []string{"u1"}, []string{"r1"})))
	select {
	case m := <-received:
		asserter.Equal([]string{"u1"}, m.TargetIDs)
		asserter.Equal([]string{"r1"}, m.TargetRooms)
		asserter.Equal(map[string]interface{}{"type": "sync"}, m.Payload)
		asserter.WithinDuration(time.Now(), m.Time(), time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func TestBroadcaster_MaxAgeAndDelay(t *testing.T) {
	asserter := assert.New(t)
	target := &recorder{}
	b := NewBroadcaster(NewLocalBus(), target, 10*time.Second)

	old := NewMessage("old", nil, nil)
	old.Timestamp = toSeconds(time.Now().Add(-time.Minute))
	b.dispatch(old)
	asserter.Equal(0, target.count())

	b.dispatch(NewMessage("now", nil, nil))
	asserter.Equal(1, target.count())

	delayed := NewMessage("later", nil, nil)
	delayed.Delay = 0.05
	b.dispatch(delayed)
	asserter.Equal(1, target.count())
	asserter.Eventually(func() bool { return target.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestBroadcaster_RunOnLocalBus(t *testing.T) {
	target := &recorder{}
	bus := NewLocalBus()
	b := NewBroadcaster(bus, target, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.Run(ctx) }()

	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.listeners) == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Publish(ctx, NewMessage("hello", nil, nil)))
	assert.Eventually(t, func() bool { return target.count() == 1 }, time.Second, 5*time.Millisecond)
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readPayload(conn *websocket.Conn, wait time.Duration) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	_, data, err := conn.ReadMessage()
	return string(data), err
}

func TestHub_Deliver(t *testing.T) {
	asserter := assert.New(t)
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	defer srv.Close()

	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	require.Eventually(t, func() bool { return hub.Members("alice") == 1 && hub.Members("bob") == 1 },
		time.Second, 5*time.Millisecond)

	hub.Deliver(&Message{TargetIDs: []string{"alice"}, Payload: "to-alice"})
	data, err := readPayload(alice, time.Second)
	if asserter.NoError(err) {
		asserter.Equal(`"to-alice"`, data)
	}
	_, err = readPayload(bob, 100*time.Millisecond)
	asserter.Error(err)

	bob = dial(t, srv, "bob")
	require.NoError(t, bob.WriteJSON(Control{Type: "join", Rooms: []string{"workflows"}}))
	require.Eventually(t, func() bool { return hub.Members("workflows") == 1 }, time.Second, 5*time.Millisecond)

	hub.Deliver(&Message{TargetRooms: []string{"workflows"}, Payload: "to-room"})
	data, err = readPayload(bob, time.Second)
	if asserter.NoError(err) {
		asserter.Equal(`"to-room"`, data)
	}

	hub.Deliver(&Message{Payload: "to-all"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		data, err = readPayload(conn, time.Second)
		if asserter.NoError(err) {
			asserter.Equal(`"to-all"`, data)
		}
	}

	require.NoError(t, bob.WriteJSON(Control{Type: "leave", Rooms: []string{"workflows"}}))
	asserter.Eventually(func() bool { return hub.Members("workflows") == 0 }, time.Second, 5*time.Millisecond)
}

func TestNotifier_Notify(t *testing.T) {
	asserter := assert.New(t)
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	received := make(chan *Message, 1)
	go func() { _ = bus.Listen(ctx, func(m *Message) { received <- m }) }()
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.listeners) == 1
	}, time.Second, 5*time.Millisecond)

	n := &objects.Notification{Notification: &models.Notification{
		ID:   "n1",
		Type: objects.NotificationVersionCreated,
		Name: "wf (ver. main)",
	}}
	require.NoError(t, NewNotifier(bus).Notify(ctx, n, []string{"u1", "u2"}))
	require.NoError(t, NewNotifier(bus).Notify(ctx, n, nil))

	select {
	case m := <-received:
		asserter.Equal([]string{"u1", "u2"}, m.TargetIDs)
		data, err := json.Marshal(m.Payload)
		require.NoError(t, err)
		asserter.Contains(string(data), `"type":"notification"`)
		asserter.Contains(string(data), `"uuid":"n1"`)
		asserter.Contains(string(data), `"type":"workflow-version-created"`)
	case <-time.After(time.Second):
		t.Fatal("notification not published")
	}
	select {
	case <-received:
		t.Fatal("a notification without users was published")
	case <-time.After(50 * time.Millisecond):
	}
}
