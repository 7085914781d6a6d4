package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	chatService "github.com/zhouzirui/chatbox/internal/service/chat"
	"github.com/zhouzirui/chatbox/pkg/utils"
)

// Handler 聊天记录的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	log     zerolog.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		log:     logger.With().Str("component", "history").Logger(),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/history", h.handleHistory)
}

// handleHistory 返回最近的聊天记录
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatSvc.LoadTranscript(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("load transcript")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	utils.RespondJSON(w, http.StatusOK, messages)
}
