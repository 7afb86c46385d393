package ws

import (
	"encoding/json"
	"sync"

	"github.com/wanderhub/wanderhub-chat/globals"
	"github.com/wanderhub/wanderhub-chat/persistence"
	"github.com/wanderhub/wanderhub-chat/types"
)

// Hub is the connection registry and broadcast engine. It maps an authenticated
// user id to its single live client; a later connection for the same user replaces
// the entry (last-writer-wins), the old socket is not closed here.
type Hub struct {
	clients map[int64]*Client

	memberships persistence.MembershipStore

	// mutex for manipulating the clients
	sync.RWMutex
}

func NewHub(memberships persistence.MembershipStore) *Hub {
	return &Hub{
		clients:     make(map[int64]*Client),
		memberships: memberships,
	}
}

// NoClients returns the number of live connections registered.
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

func (h *Hub) Register(c *Client) {
	if c.user == nil {
		return
	}
	h.Lock()
	h.clients[c.user.Id] = c
	h.Unlock()
	go h.announcePresence(c, types.EventTypePresenceJoin)
}

// Unregister removes the client's registry entry unless the user has already been
// taken over by a newer connection.
func (h *Hub) Unregister(c *Client) {
	if c.user == nil {
		return
	}
	h.Lock()
	current, ok := h.clients[c.user.Id]
	if !ok || current != c {
		h.Unlock()
		return
	}
	delete(h.clients, c.user.Id)
	h.Unlock()
	go h.announcePresence(c, types.EventTypePresenceLeave)
}

func (h *Hub) Lookup(userId int64) *Client {
	h.RLock()
	defer h.RUnlock()
	return h.clients[userId]
}

// BroadcastTo writes the serialized envelope to every given user with a live
// connection, skipping excludeUserId if non-zero. Users without a connection are
// silently skipped, there is no offline queue. It returns the user ids delivered to.
func (h *Hub) BroadcastTo(userIds []int64, excludeUserId int64, env *types.Envelope) []int64 {
	raw, err := json.Marshal(env)
	if err != nil {
		globals.AppLogger.Error("could not marshal broadcast envelope", "error", err)
		return nil
	}
	delivered := make([]int64, 0, len(userIds))
	h.RLock()
	defer h.RUnlock()
	for _, id := range userIds {
		if excludeUserId != 0 && id == excludeUserId {
			continue
		}
		client, ok := h.clients[id]
		if !ok {
			continue
		}
		if client.enqueueRaw(raw) {
			delivered = append(delivered, id)
		}
	}
	return delivered
}

// BroadcastConversation resolves the conversation's member set (active membership
// rows for rooms, the two parties for DMs) and fans the envelope out to the live
// connections among them.
func (h *Hub) BroadcastConversation(conv types.Conversation, excludeUserId int64, env *types.Envelope) ([]int64, error) {
	var members []int64
	if conv.Kind == types.ChatKindDM {
		members = []int64{conv.SelfId, conv.PeerId()}
	} else {
		var err error
		members, err = h.memberships.ActiveMemberIds(conv.RoomId)
		if err != nil {
			return nil, err
		}
	}
	return h.BroadcastTo(members, excludeUserId, env), nil
}

// announcePresence tells every chatroom the user is an active member of that they
// came online or went away.
func (h *Hub) announcePresence(c *Client, eventType string) {
	rooms, err := h.memberships.ChatroomsForUser(c.user.Id)
	if err != nil {
		globals.AppLogger.Error("could not resolve chatrooms for presence", "user", c.user.Id, "error", err)
		return
	}
	notice := types.PresenceNotice{UserId: c.user.Id, DisplayName: c.user.DisplayName}
	for _, roomId := range rooms {
		conv := types.Conversation{Kind: types.ChatKindChatroom, RoomId: roomId, SelfId: c.user.Id}
		env := types.NewEnvelope(eventType, conv, c.user.Id, notice)
		if _, err := h.BroadcastConversation(conv, c.user.Id, env); err != nil {
			globals.AppLogger.Error("could not broadcast presence", "room", roomId, "error", err)
		}
	}
}
