package server

import (
	"encoding/json"
	"net/http"

	"github.com/handlebauer/chat-genius-sub000/internal/domain"
	chatsync "github.com/handlebauer/chat-genius-sub000/internal/sync"
)

type Handler struct {
	registry *SessionRegistry
}

func NewHandler(registry *SessionRegistry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*chatsync.Session, bool) {
	claims, err := ClaimsFromContext(r.Context())
	if err != nil {
		writeError(w, domain.ErrUnauthorizedError)
		return nil, false
	}

	session, err := h.registry.Session(r.Context(), claims)
	if err != nil {
		handleError(w, err)
		return nil, false
	}
	return session, true
}

func snapshot(session *chatsync.Session) StateSnapshot {
	store := session.Store()

	snap := StateSnapshot{
		Channels:       store.Channels(),
		DirectMessages: store.DirectMessages(),
		Memberships:    store.Memberships(),
		Unread:         store.UnreadCounts(),
		ActiveChannel:  store.ActiveChannel(),
		Online:         store.OnlineUsers(),
		DMParticipants: store.DMParticipants(),
	}
	if snap.ActiveChannel != "" {
		snap.Messages = store.Messages(snap.ActiveChannel)
	}
	return snap
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snapshot(session))
}

func (h *Handler) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, domain.ErrInvalidRequest)
		return
	}

	ch, err := session.CreateChannel(r.Context(), req.Name, req.Private, req.Password)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (h *Handler) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := session.DeleteChannel(r.Context(), r.PathValue("channel_id")); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleJoinChannel(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req JoinChannelRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidRequest)
			return
		}
	}

	if err := session.JoinChannel(r.Context(), r.PathValue("channel_id"), req.Password); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLeaveChannel(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := session.LeaveChannel(r.Context(), r.PathValue("channel_id")); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleOpenChannel(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := session.OpenChannel(r.Context(), r.PathValue("channel_id")); err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot(session))
}

func (h *Handler) handleOpenDM(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	dm, err := session.OpenDirectMessage(r.Context(), r.PathValue("user_id"))
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dm)
}

func (h *Handler) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Store().Messages(r.PathValue("channel_id")))
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeError(w, domain.ErrInvalidRequest)
		return
	}

	msg, err := session.SendMessage(r.Context(), r.PathValue("channel_id"), req.Content, req.ThreadID)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeError(w, domain.ErrInvalidRequest)
		return
	}

	answer, err := session.Ask(r.Context(), r.PathValue("channel_id"), req.Question)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AskResponse{Answer: answer})
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	session.RecordActivity()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetPresence(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Store().OnlineUsers())
}

func (h *Handler) handleGetUnread(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Store().UnreadCounts())
}
