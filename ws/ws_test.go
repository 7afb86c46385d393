package ws

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wanderhub/wanderhub-chat/config"
	"github.com/wanderhub/wanderhub-chat/persistence"
	"github.com/wanderhub/wanderhub-chat/types"
)

// test rig: real stores over in-memory sqlite and buntdb, clients without sockets

type testRig struct {
	hub    *Hub
	router *Router
	stores *persistence.Stores
	typing *TypingTracker
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	cfg := &config.Config{
		PersistenceConfig: config.PersistenceConfig{
			Type: "sqlite",
			DSN:  fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		},
		MeetupConfig: config.MeetupConfig{Path: ":memory:"},
	}
	stores, err := persistence.NewStores(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	hub := NewHub(stores.Memberships)
	typing := newTypingTracker(5*time.Second, time.Now)
	router := NewRouter(hub, stores, typing, 50)
	return &testRig{hub: hub, router: router, stores: stores, typing: typing}
}

func newTestClient() *Client {
	return &Client{
		Send:     make(chan []byte, 64),
		doneChan: make(chan struct{}),
	}
}

func (rig *testRig) seedUser(t *testing.T, id int64, username string) {
	t.Helper()
	require.NoError(t, rig.stores.Users.StoreUser(types.User{
		Id: id, Username: username, DisplayName: username,
	}))
}

func (rig *testRig) seedMember(t *testing.T, chatroomId, userId int64) {
	t.Helper()
	require.NoError(t, rig.stores.Memberships.StoreMembership(types.Membership{
		ChatroomId: chatroomId, UserId: userId, Role: types.RoleMember, IsActive: true,
	}))
}

// authClient authenticates the client as the given user and waits for auth:ok.
func (rig *testRig) authClient(t *testing.T, c *Client, userId int64) {
	t.Helper()
	rig.router.Dispatch(c, &types.Envelope{
		Type:    types.EventTypeAuth,
		Payload: map[string]interface{}{"user_id": userId},
	})
	recvType(t, c, types.EventTypeAuthOk)
}

// recvType reads frames from the client's send buffer until one of the wanted
// type arrives, skipping unrelated frames (presence broadcasts in particular).
func recvType(t *testing.T, c *Client, eventType string) *types.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw := <-c.Send:
			env := types.Envelope{}
			require.NoError(t, json.Unmarshal(raw, &env))
			if env.Type == eventType {
				return &env
			}
		case <-deadline:
			t.Fatalf("no %s frame received", eventType)
			return nil
		}
	}
}

// expectNone asserts that no frame of the given type shows up within a grace period.
func expectNone(t *testing.T, c *Client, eventType string) {
	t.Helper()
	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case raw := <-c.Send:
			env := types.Envelope{}
			require.NoError(t, json.Unmarshal(raw, &env))
			require.NotEqual(t, eventType, env.Type)
		case <-timeout:
			return
		}
	}
}

// decodePayload re-marshals the generic payload into a typed struct.
func decodePayload(t *testing.T, env *types.Envelope, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(env.Payload)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}
