package devserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/identity"
	"github.com/matheus3301/chatline/internal/store"
)

const maxBodySize = 1 << 20

// Service implements the REST API and push endpoint of the message service.
type Service struct {
	db           *store.DB
	hub          *Hub
	issuer       *identity.Issuer
	logger       *zap.Logger
	now          func() time.Time
	onlineWindow time.Duration
}

// NewService creates the message service handlers.
func NewService(db *store.DB, hub *Hub, issuer *identity.Issuer, cfg *Config, logger *zap.Logger) *Service {
	return &Service{
		db:           db,
		hub:          hub,
		issuer:       issuer,
		logger:       logger,
		now:          time.Now,
		onlineWindow: cfg.OnlineWindow.Duration,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}

func millisPtr(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// online reports whether a user has a push connection or was active recently.
func (s *Service) online(userID string, lastSeen int64) bool {
	if s.hub.Online(userID) {
		return true
	}
	return lastSeen > 0 && s.now().Sub(time.UnixMilli(lastSeen)) < s.onlineWindow
}

func (s *Service) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// participantChat loads a chat and checks that the caller takes part in it.
func (s *Service) participantChat(w http.ResponseWriter, r *http.Request, chatID string) (*store.Chat, bool) {
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "chat id is required")
		return nil, false
	}
	c, err := s.db.GetChat(r.Context(), chatID)
	if err != nil {
		s.internalError(w, "get chat", err)
		return nil, false
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return nil, false
	}
	if !c.Has(UserID(r.Context())) {
		writeError(w, http.StatusForbidden, "not a participant")
		return nil, false
	}
	return c, true
}

func (s *Service) handleListChats(w http.ResponseWriter, r *http.Request) {
	uid := UserID(r.Context())
	chats, err := s.db.ListChats(r.Context(), uid)
	if err != nil {
		s.internalError(w, "list chats", err)
		return
	}
	resp := make([]api.ChatResponse, 0, len(chats))
	for _, c := range chats {
		resp = append(resp, api.ChatResponse{
			ID:              c.ID,
			Name:            c.Name,
			UnreadCount:     c.UnreadCount,
			LastMessage:     c.LastMessage,
			LastMessageTime: millisPtr(c.LastMessageAt),
			RecipientOnline: s.online(c.Other(uid), c.OtherLastSeen),
			SenderID:        c.SenderID,
			ReceiverID:      c.RecipientID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	uid := UserID(r.Context())
	senderID := r.URL.Query().Get("sender-id")
	receiverID := r.URL.Query().Get("receiver-id")
	switch {
	case senderID == "" || receiverID == "":
		writeError(w, http.StatusBadRequest, "sender-id and receiver-id are required")
		return
	case senderID == receiverID:
		writeError(w, http.StatusBadRequest, "cannot start a chat with yourself")
		return
	case uid != senderID && uid != receiverID:
		writeError(w, http.StatusForbidden, "caller must take part in the chat")
		return
	}
	for _, id := range []string{senderID, receiverID} {
		u, err := s.db.GetUser(r.Context(), id)
		if err != nil {
			s.internalError(w, "get user", err)
			return
		}
		if u == nil {
			writeError(w, http.StatusNotFound, "user not found, ID: "+id)
			return
		}
	}

	c, created, err := s.db.FindOrCreateChat(r.Context(), store.Chat{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: receiverID,
		CreatedAt:   s.now().UnixMilli(),
	})
	if err != nil {
		s.internalError(w, "create chat", err)
		return
	}
	if created {
		s.logger.Info("chat created", zap.String("chat_id", c.ID),
			zap.String("sender_id", senderID), zap.String("receiver_id", receiverID))
	}
	writeJSON(w, http.StatusOK, api.StringResponse{Response: c.ID})
}

func (s *Service) handleListMessages(w http.ResponseWriter, r *http.Request) {
	c, ok := s.participantChat(w, r, chi.URLParam(r, "chatID"))
	if !ok {
		return
	}
	msgs, err := s.db.ListMessages(r.Context(), c.ID)
	if err != nil {
		s.internalError(w, "list messages", err)
		return
	}
	resp := make([]api.MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, api.MessageResponse{
			ID:         strconv.FormatInt(m.ID, 10),
			Content:    m.Content,
			Type:       m.Type,
			State:      m.State,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			CreatedAt:  time.UnixMilli(m.CreatedAt).UTC(),
			Media:      m.Media,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	uid := UserID(r.Context())
	var req api.MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	mt := chat.TypeText
	if req.Type != "" {
		var ok bool
		if mt, ok = chat.ParseMessageType(req.Type); !ok {
			writeError(w, http.StatusBadRequest, "unknown message type "+req.Type)
			return
		}
	}
	if mt == chat.TypeText && strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	c, ok := s.participantChat(w, r, req.ChatID)
	if !ok {
		return
	}
	if req.SenderID != uid {
		writeError(w, http.StatusForbidden, "messages are sent as the caller")
		return
	}
	if req.ReceiverID != c.Other(uid) {
		writeError(w, http.StatusBadRequest, "receiver is not the other participant")
		return
	}

	m := &store.Message{
		ChatID:     c.ID,
		SenderID:   uid,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Type:       string(mt),
		CreatedAt:  s.now().UnixMilli(),
	}
	if err := s.db.InsertMessage(r.Context(), m); err != nil {
		s.internalError(w, "insert message", err)
		return
	}

	sender, err := s.db.GetUser(r.Context(), uid)
	if err != nil || sender == nil {
		s.logger.Warn("sender lookup for notification failed", zap.String("user_id", uid), zap.Error(err))
		sender = &store.User{ID: uid}
	}
	n := chat.Notification{
		Type:        chat.NotifyMessage,
		ChatID:      c.ID,
		SenderID:    uid,
		ReceiverID:  req.ReceiverID,
		Content:     req.Content,
		MessageType: mt,
		ChatName:    sender.FullName(),
	}
	if mt.IsMedia() {
		n.Type = chat.NotifyImage
		n.Content = ""
	}
	s.hub.Notify(req.ReceiverID, n)

	s.logger.Info("message stored", zap.String("chat_id", c.ID), zap.Int64("message_id", m.ID))
	w.WriteHeader(http.StatusCreated)
}

func (s *Service) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	uid := UserID(r.Context())
	c, ok := s.participantChat(w, r, r.URL.Query().Get("chat-id"))
	if !ok {
		return
	}
	n, err := s.db.MarkChatSeen(r.Context(), c.ID)
	if err != nil {
		s.internalError(w, "mark seen", err)
		return
	}
	other := c.Other(uid)
	s.hub.Notify(other, chat.Notification{
		Type:       chat.NotifySeen,
		ChatID:     c.ID,
		SenderID:   uid,
		ReceiverID: other,
	})
	s.logger.Debug("messages seen", zap.String("chat_id", c.ID), zap.Int64("changed", n))
	w.WriteHeader(http.StatusAccepted)
}

func (s *Service) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.db.ListUsersExcept(r.Context(), UserID(r.Context()))
	if err != nil {
		s.internalError(w, "list users", err)
		return
	}
	resp := make([]api.UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, api.UserResponse{
			ID:        u.ID,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Email:     u.Email,
			LastSeen:  millisPtr(u.LastSeen),
			Online:    s.online(u.ID, u.LastSeen),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePush authenticates the upgrade request with the bearer header and hands
// the connection to the hub.
func (s *Service) handlePush(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.verify(w, r)
	if !ok {
		return
	}
	s.hub.Serve(w, r, uid)
}
