package ws

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/wanderhub/wanderhub-chat/globals"
	"github.com/wanderhub/wanderhub-chat/persistence"
	"github.com/wanderhub/wanderhub-chat/types"
)

const reactionLockStripes = 64

// Router dispatches decoded inbound events to their handlers. Every error is
// recovered here and answered with a system:error event to the originating
// connection only; a failed event fails that one operation and nothing else.
type Router struct {
	hub       *Hub
	stores    *persistence.Stores
	typing    *TypingTracker
	logger    hclog.Logger
	syncLimit int

	// striped per-message locks serializing reaction read-modify-writes
	reactionLocks [reactionLockStripes]sync.Mutex
}

func NewRouter(hub *Hub, stores *persistence.Stores, typing *TypingTracker, syncLimit int) *Router {
	return &Router{
		hub:       hub,
		stores:    stores,
		typing:    typing,
		logger:    globals.AppLogger,
		syncLimit: syncLimit,
	}
}

func (r *Router) Dispatch(c *Client, env *types.Envelope) {
	event, err := types.DecodeEvent(env)
	if err != nil {
		r.sendError(c, env, err.Error())
		return
	}
	if _, isAuth := event.(*types.AuthEvent); !isAuth && !c.authenticated {
		r.sendError(c, env, "not authenticated")
		return
	}
	switch e := event.(type) {
	case *types.AuthEvent:
		r.handleAuth(c, env, e)
	case *types.NewMessageEvent:
		r.handleNewMessage(c, env, e)
	case *types.UpdateMessageEvent:
		r.handleUpdateMessage(c, env, e)
	case *types.ReactionEvent:
		r.handleReaction(c, env, e)
	case *types.TypingEvent:
		r.handleTyping(c, env, e)
	case *types.ReadReceiptEvent:
		r.handleReadReceipt(c, env, e)
	case *types.SyncHistoryEvent:
		r.handleSyncHistory(c, env, e)
	default:
		r.sendError(c, env, fmt.Sprintf("unknown event type %q", env.Type))
	}
}

func (r *Router) handleAuth(c *Client, env *types.Envelope, e *types.AuthEvent) {
	user, err := r.stores.Users.FindUserById(e.UserId)
	if err != nil {
		r.logger.Error("could not look up user", "user", e.UserId, "error", err)
		r.sendError(c, env, "authentication failed")
		return
	}
	if user == nil {
		// the connection stays open, the client may retry
		r.sendError(c, env, "authentication failed: unknown user")
		return
	}
	if e.DisplayName != "" && e.DisplayName != user.DisplayName {
		user.DisplayName = e.DisplayName
	}
	user.LastOnline = time.Now().UTC()
	if err := r.stores.Users.StoreUser(*user); err != nil {
		r.logger.Error("could not store last-online", "user", user.Id, "error", err)
	}
	c.user = user
	c.authenticated = true
	r.hub.Register(c)
	reply := types.NewEnvelope(types.EventTypeAuthOk, types.Conversation{}, user.Id, user.Summary())
	reply.CorrelationId = env.CorrelationId
	c.Enqueue(reply)
}

// conversationOf validates the envelope's addressing and binds it to the sender.
func (r *Router) conversationOf(c *Client, env *types.Envelope) (types.Conversation, error) {
	if !env.ChatType.Valid() {
		return types.Conversation{}, fmt.Errorf("invalid chat type %q", env.ChatType)
	}
	if env.ChatroomId <= 0 {
		return types.Conversation{}, fmt.Errorf("missing chatroom id")
	}
	return types.Conversation{Kind: env.ChatType, RoomId: env.ChatroomId, SelfId: c.user.Id}, nil
}

// checkAccess runs the membership gate for rooms; DMs instead require that the
// other party is a real user.
func (r *Router) checkAccess(conv types.Conversation) error {
	if conv.Kind == types.ChatKindDM {
		peer, err := r.stores.Users.FindUserById(conv.PeerId())
		if err != nil {
			return err
		}
		if peer == nil {
			return fmt.Errorf("unknown recipient %d", conv.PeerId())
		}
		return nil
	}
	ok, err := r.stores.Memberships.IsMember(conv.SelfId, conv.RoomId)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("not a member of chatroom %d", conv.RoomId)
	}
	return nil
}

func (r *Router) handleNewMessage(c *Client, env *types.Envelope, e *types.NewMessageEvent) {
	conv, err := r.conversationOf(c, env)
	if err != nil {
		r.sendError(c, env, err.Error())
		return
	}
	adapter, err := r.stores.Conversation(conv.Kind)
	if err != nil {
		r.sendError(c, env, err.Error())
		return
	}
	if err := r.checkAccess(conv); err != nil {
		r.sendError(c, env, err.Error())
		return
	}
	if e.Content == "" && e.MediaUrl == "" {
		r.sendError(c, env, "empty message")
		return
	}
	// reply integrity: the referenced message must exist in this very conversation
	if e.ReplyToId != "" {
		replyTo, err := adapter.FindMessage(conv, e.ReplyToId)
		if err != nil {
			r.persistenceError(c, env, "could not resolve replied-to message", err)
			return
		}
		if replyTo == nil || !replyTo.InConversation(conv) {
			r.sendError(c, env, "replied-to message does not belong to this conversation")
			return
		}
		if sender, err := r.stores.Users.FindUserById(replyTo.SenderId); err != nil || sender == nil {
			r.sendError(c, env, "could not resolve sender of replied-to message")
			return
		}
	}
	messageType := e.MessageType
	if messageType == "" {
		messageType = types.MessageTypeText
	}
	msg, err := adapter.CreateMessage(conv, types.MessageInput{
		SenderId:    conv.SelfId,
		Content:     e.Content,
		MessageType: messageType,
		ReplyToId:   e.ReplyToId,
		MediaUrl:    e.MediaUrl,
	})
	if err != nil {
		r.persistenceError(c, env, "could not persist message", err)
		return
	}
	out, err := r.enrich(conv, adapter, msg)
	if err != nil {
		r.persistenceError(c, env, "could not resolve message context", err)
		return
	}
	// the sender sees its own message first, with full reply context
	echo := types.NewEnvelope(types.EventTypeMessageNew, conv, conv.SelfId, out)
	echo.CorrelationId = env.CorrelationId
	c.Enqueue(echo)
	if conv.Kind == types.ChatKindDM {
		sent := types.NewEnvelope(types.EventTypeReceiptSent, conv, conv.SelfId, types.DeliveryReceipt{MessageId: msg.Id})
		sent.CorrelationId = env.CorrelationId
		c.Enqueue(sent)
	}
	broadcast := types.NewEnvelope(types.EventTypeMessageNew, conv, conv.SelfId, out)
	delivered, err := r.hub.BroadcastConversation(conv, conv.SelfId, broadcast)
	if err != nil {
		r.logger.Error("could not broadcast message", "conversation", conv.Key(), "error", err)
		return
	}
	if conv.Kind == types.ChatKindDM && len(delivered) > 0 {
		now := time.Now().UTC()
		if err := adapter.MarkDelivered(conv, msg.Id, now); err != nil {
			r.logger.Error("could not mark message delivered", "message", msg.Id, "error", err)
		} else {
			c.Enqueue(types.NewEnvelope(types.EventTypeReceiptDelivered, conv, conv.SelfId,
				types.DeliveryReceipt{MessageId: msg.Id, DeliveredAt: &now}))
		}
	}
}

func (r *Router) handleUpdateMessage(c *Client, env *types.Envelope, e *types.UpdateMessageEvent) {
	conv, err := r.conversationOf(c, env)
	if err != nil {
		r.sendError(c, env, err.Error())
		return
	}
	adapter, err := r.stores.Conversation(conv.Kind)
	if err != nil {
		r.sendError(c, env, err.Error())
		return
	}
	if err := r.checkAccess(conv); err != nil {
		r.sendError(c, env, err.Error())
		return
	}
	if e.MessageId == "" || e.Content == "" {
		r.sendError(c, env, "message id and content are required")
		return
	}
	msg, err := adapter.FindMessage(conv, e.MessageId)
	if err != nil {
		r.persistenceError(c, env, "could not resolve message", err)
		return
	}
	if msg == nil || !msg.InConversation(conv) {
		r.sendError(c, env, "message not found in this conversation")
		return
	}
	if msg.SenderId != conv.SelfId {
		r.sendError(c, env, "only the sender may edit a message")
		return
	}
	updated, err := adapter.UpdateContent(conv, e.MessageId, conv.SelfId, e.Content)
	if err != nil {
		r.persistenceError(c, env, "could not update message", err)
		return
	}
	out, err := r.enrich(conv, adapter, updated)
	if err != nil {
		r.persistenceError(c, env, "could not resolve message context", err)
		return
	}
	update := types.NewEnvelope(types.EventTypeMessageUpdate, conv, conv.SelfId, out)
	update.CorrelationId = env.CorrelationId
	c.Enqueue(update)
	broadcast := types.NewEnvelope(types.EventTypeMessageUpdate, conv, conv.SelfId, out)
	if _, err := r.hub.BroadcastConversation(conv, conv.SelfId, broadcast); err != nil {
		r.logger.Error("could not broadcast message update", "conversation", conv.Key(), "error", err)
	}
}

func (r *Router) handleReaction(c *Client, env *types.Envelope, e *types.ReactionEvent) {
	conv, err := r.conversationOf(c, env)
	if err != nil {
		r.sendError(c, env, err.Error())
		return
	}
	adapter, err := r.stores.Conversation(conv.Kind)
	if err != nil {
		r.sendError(c, env, err.Error())
		return
	}
	if err := r.checkAccess(conv); err != nil {
		r.sendError(c, env, err.Error())
		return
	}
	if e.MessageId == "" || e.Emoji == "" {
		r.sendError(c, env, "message id and emoji are required")
		return
	}
	msg, err := adapter.FindMessage(conv, e.MessageId)
	if err != nil {
		r.persistenceError(c, env, "could not resolve message", err)
		return
	}
	if msg == nil || !msg.InConversation(conv) {
		r.sendError(c, env, "message not found in this conversation")
		return
	}
	lock := r.reactionLock(e.MessageId)
	lock.Lock()
	updated, err := adapter.UpdateReactions(conv, e.MessageId, func(set types.ReactionSet) types.ReactionSet {
		set.Toggle(e.Emoji, conv.SelfId)
		return set
	})
	lock.Unlock()
	if err != nil {
		r.persistenceError(c, env, "could not update reactions", err)
		return
	}
	// reactions go to the full membership, echo to the sender included
	broadcast := types.NewEnvelope(types.EventTypeMessageReaction, conv, conv.SelfId,
		types.ReactionUpdate{MessageId: updated.Id, Reactions: updated.Reactions})
	broadcast.CorrelationId = env.CorrelationId
	if _, err := r.hub.BroadcastConversation(conv, 0, broadcast); err != nil {
		r.logger.Error("could not broadcast reaction", "conversation", conv.Key(), "error", err)
	}
}

func (r *Router) handleTyping(c *Client, env *types.Envelope, e *types.TypingEvent) {
	conv, err := r.conversationOf(c, env)
	if err != nil {
		r.sendError(c, env, err.Error())
		return
	}
	eventType := types.EventTypeTypingStart
	if e.Stop {
		r.typing.Stop(conv.Key(), conv.SelfId)
		eventType = types.EventTypeTypingStop
	} else {
		r.typing.Start(conv.Key(), conv.SelfId)
	}
	notice := types.TypingNotice{UserId: conv.SelfId, DisplayName: c.user.DisplayName}
	broadcast := types.NewEnvelope(eventType, conv, conv.SelfId, notice)
	if _, err := r.hub.BroadcastConversation(conv, conv.SelfId, broadcast); err != nil {
		r.logger.Error("could not broadcast typing state", "conversation", conv.Key(), "error", err)
	}
}

func (r *Router) handleReadReceipt(c *Client, env *types.Envelope, e *types.ReadReceiptEvent) {
	conv, err := r.conversationOf(c, env)
	if err != nil {
		r.sendError(c, env, err.Error())
		return
	}
	if conv.Kind != types.ChatKindDM {
		// the membership row is the authoritative read boundary; repeated receipts
		// just bump it again, which is harmless
		if err := r.stores.Memberships.MarkRead(conv.SelfId, conv.RoomId, time.Now().UTC()); err != nil {
			r.persistenceError(c, env, "could not update read marker", err)
			return
		}
	}
	receipt := types.ReadReceipt{MessageId: e.MessageId, UserId: conv.SelfId}
	broadcast := types.NewEnvelope(types.EventTypeReceiptRead, conv, conv.SelfId, receipt)
	if _, err := r.hub.BroadcastConversation(conv, conv.SelfId, broadcast); err != nil {
		r.logger.Error("could not broadcast read receipt", "conversation", conv.Key(), "error", err)
	}
}

func (r *Router) handleSyncHistory(c *Client, env *types.Envelope, e *types.SyncHistoryEvent) {
	conv, err := r.conversationOf(c, env)
	if err != nil {
		r.sendError(c, env, err.Error())
		return
	}
	adapter, err := r.stores.Conversation(conv.Kind)
	if err != nil {
		r.sendError(c, env, err.Error())
		return
	}
	if err := r.checkAccess(conv); err != nil {
		r.sendError(c, env, err.Error())
		return
	}
	var since time.Time
	if e.LastMessageTimestamp > 0 {
		since = time.UnixMilli(e.LastMessageTimestamp)
	}
	messages, err := adapter.ListSince(conv, since, r.syncLimit)
	if err != nil {
		r.persistenceError(c, env, "could not load history", err)
		return
	}
	out := make([]*types.OutboundMessage, 0, len(messages))
	for _, msg := range messages {
		enriched, err := r.enrich(conv, adapter, msg)
		if err != nil {
			r.logger.Error("could not enrich history entry", "message", msg.Id, "error", err)
			continue
		}
		out = append(out, enriched)
	}
	response := types.NewEnvelope(types.EventTypeSyncResponse, conv, conv.SelfId, types.HistoryResponse{Messages: out})
	response.CorrelationId = env.CorrelationId
	c.Enqueue(response)
}

// enrich attaches the sender profile summary and, for replies, the resolved
// replied-to message with its own sender summary.
func (r *Router) enrich(conv types.Conversation, adapter persistence.ConversationStore, msg *types.Message) (*types.OutboundMessage, error) {
	sender, err := r.stores.Users.FindUserById(msg.SenderId)
	if err != nil {
		return nil, err
	}
	out := &types.OutboundMessage{Message: *msg}
	if sender != nil {
		out.Sender = sender.Summary()
	}
	if msg.ReplyToId != "" {
		replyTo, err := adapter.FindMessage(conv, msg.ReplyToId)
		if err != nil {
			return nil, err
		}
		if replyTo != nil {
			replyOut := &types.OutboundMessage{Message: *replyTo}
			if replySender, err := r.stores.Users.FindUserById(replyTo.SenderId); err == nil && replySender != nil {
				replyOut.Sender = replySender.Summary()
			}
			out.ReplyTo = replyOut
		}
	}
	return out, nil
}

func (r *Router) reactionLock(messageId string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(messageId))
	return &r.reactionLocks[h.Sum32()%reactionLockStripes]
}

func (r *Router) sendError(c *Client, env *types.Envelope, message string) {
	r.logger.Debug("rejecting event", "type", env.Type, "reason", message)
	errEnv := &types.Envelope{
		Type:          types.EventTypeSystemError,
		ChatType:      env.ChatType,
		ChatroomId:    env.ChatroomId,
		Payload:       types.ErrorPayload{Message: message},
		CorrelationId: env.CorrelationId,
		Timestamp:     time.Now().UnixMilli(),
	}
	c.Enqueue(errEnv)
}

func (r *Router) persistenceError(c *Client, env *types.Envelope, message string, err error) {
	r.logger.Error(message, "type", env.Type, "error", err)
	r.sendError(c, env, message)
}
