// internal/handlers/game_ws_test.go
package handlers

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virucide/internal/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func testClient(name string) *client {
	id := uuid.New()
	return &client{userID: id, user: &models.User{ID: id, Username: name}}
}

func TestLeaveWithoutMatchIsQuiet(t *testing.T) {
	gs := NewGameServer(quietLogger())
	ctx := context.Background()
	cl := testClient("ana")

	require.NoError(t, handleMessage(ctx, gs, cl, ClientMessage{Type: "create_game"}))
	require.NotEmpty(t, cl.currentMatch())

	require.NoError(t, handleMessage(ctx, gs, cl, ClientMessage{Type: "leave"}))
	assert.Empty(t, cl.currentMatch())

	require.NoError(t, handleMessage(ctx, gs, cl, ClientMessage{Type: "leave"}), "a second leave is a no-op")
}

func TestSeatHeldAcrossConnections(t *testing.T) {
	gs := NewGameServer(quietLogger())
	ctx := context.Background()

	cl1 := testClient("ana")
	require.NoError(t, handleMessage(ctx, gs, cl1, ClientMessage{Type: "create_game"}))

	// the same user on a second socket may not take a second seat
	cl2 := &client{userID: cl1.userID, user: cl1.user}
	err := handleMessage(ctx, gs, cl2, ClientMessage{Type: "create_game"})
	require.Error(t, err)

	// leaving works from any of the user's connections and frees the seat
	require.NoError(t, handleMessage(ctx, gs, cl2, ClientMessage{Type: "leave"}))
	require.NoError(t, handleMessage(ctx, gs, cl2, ClientMessage{Type: "create_game"}))
}

func TestOutboundWritesKeepOrder(t *testing.T) {
	const n = 64
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	q := newOutboundQueue(func(conn *websocket.Conn, data []byte) {
		mu.Lock()
		got = append(got, string(data))
		if len(got) == n {
			close(done)
		}
		mu.Unlock()
	})
	for i := 0; i < n; i++ {
		require.True(t, q.enqueue(nil, []byte(strconv.Itoa(i))))
	}
	q.close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("outbound queue did not drain")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, s := range got {
		assert.Equal(t, strconv.Itoa(i), s)
	}
}
