package service

import (
	"context"
	"errors"
	"sync"

	"qa-guru-be/internal/dto"
	"qa-guru-be/internal/model"
	"qa-guru-be/internal/pkg/logger"
	"qa-guru-be/internal/pkg/serverutils"
	"qa-guru-be/internal/repository/memory"
	"qa-guru-be/internal/websocket"
	"qa-guru-be/pkg/agent"
	"qa-guru-be/pkg/llm"
	"qa-guru-be/pkg/llm/classify"
	"qa-guru-be/pkg/store"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IChatService interface {
	CreateSession(ctx context.Context, userID string, req *dto.CreateSessionRequest) (*dto.CreateSessionResponse, error)
	SendTurn(ctx context.Context, userID, sessionID string, req *dto.SendTurnRequest) (*dto.SendTurnResponse, error)
	CancelTurn(userID, sessionID string) error
	GetHistory(userID, sessionID string) (*dto.GetHistoryResponse, error)
	ListModels(ctx context.Context) ([]dto.ModelInfoDTO, error)
}

type chatService struct {
	sessionRepo *memory.SessionRepository
	loop        *agent.Loop
	provider    llm.Provider
	hub         *websocket.Hub
	sysLogger   logger.ILogger

	// One in-flight turn per session. Guarded by mu.
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewChatService(
	sessionRepo *memory.SessionRepository,
	loop *agent.Loop,
	provider llm.Provider,
	hub *websocket.Hub,
	sysLogger logger.ILogger,
) IChatService {
	return &chatService{
		sessionRepo: sessionRepo,
		loop:        loop,
		provider:    provider,
		hub:         hub,
		sysLogger:   sysLogger,
		active:      make(map[string]context.CancelFunc),
	}
}

func (s *chatService) CreateSession(ctx context.Context, userID string, req *dto.CreateSessionRequest) (*dto.CreateSessionResponse, error) {
	session := &store.Session{
		ID:     uuid.NewString(),
		UserID: userID,
	}
	for _, a := range req.Attachments {
		session.Attachments = append(session.Attachments, store.DocumentAttachment{
			Name:     a.Name,
			Native:   a.Native,
			MIMEType: a.MIMEType,
			Data:     a.Data,
			Text:     a.Text,
		})
	}
	s.sessionRepo.Save(session)

	s.sysLogger.Info("ChatService", "Session created", map[string]interface{}{
		"session_id":  session.ID,
		"user_id":     userID,
		"attachments": len(session.Attachments),
	})
	return &dto.CreateSessionResponse{Id: session.ID}, nil
}

func (s *chatService) SendTurn(ctx context.Context, userID, sessionID string, req *dto.SendTurnRequest) (*dto.SendTurnResponse, error) {
	session, err := s.ownedSession(userID, sessionID)
	if err != nil {
		return nil, err
	}

	turnCtx, err := s.beginTurn(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer s.endTurn(sessionID)

	images := make([]store.Image, 0, len(req.Images))
	for _, img := range req.Images {
		images = append(images, store.Image{MIMEType: img.MIMEType, Data: img.Data})
	}

	result, err := s.loop.RunTurn(turnCtx, agent.TurnInput{
		Session:        session,
		DocumentMarkup: req.DocumentMarkup,
		Message:        req.Message,
		Images:         images,
		Selection:      req.Selection,
		Templates:      req.Templates,
	})
	if err != nil {
		return nil, s.turnFailure(sessionID, err)
	}

	s.sessionRepo.Save(session)

	res := &dto.SendTurnResponse{
		Reply:            result.Reply,
		DocumentMarkup:   result.DocumentMarkup,
		Changed:          result.Changed,
		Scroll:           result.Scroll,
		RoundTrips:       result.RoundTrips,
		StepLimitReached: result.StepLimitReached,
		Budget:           result.Budget,
	}
	s.hub.Notify(sessionID, model.TurnMessageDone, res)
	return res, nil
}

func (s *chatService) CancelTurn(userID, sessionID string) error {
	if _, err := s.ownedSession(userID, sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	cancel, found := s.active[sessionID]
	s.mu.Unlock()
	if !found {
		return serverutils.NewHTTPError(fiber.StatusNotFound, "No turn in progress for this session")
	}
	cancel()

	s.sysLogger.Info("ChatService", "Turn cancelled", map[string]interface{}{"session_id": sessionID})
	return nil
}

func (s *chatService) GetHistory(userID, sessionID string) (*dto.GetHistoryResponse, error) {
	session, err := s.ownedSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	return &dto.GetHistoryResponse{SessionId: sessionID, History: session.History}, nil
}

func (s *chatService) ListModels(ctx context.Context) ([]dto.ModelInfoDTO, error) {
	models, err := s.provider.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.ModelInfoDTO, 0, len(models))
	for _, m := range models {
		out = append(out, dto.ModelInfoDTO{
			Name:             m.Name,
			DisplayName:      m.DisplayName,
			InputTokenLimit:  m.InputTokenLimit,
			OutputTokenLimit: m.OutputTokenLimit,
		})
	}
	return out, nil
}

func (s *chatService) ownedSession(userID, sessionID string) (*store.Session, error) {
	session, found := s.sessionRepo.Get(sessionID)
	if !found {
		return nil, serverutils.NewHTTPError(fiber.StatusNotFound, "Session not found")
	}
	if session.UserID != userID {
		return nil, serverutils.NewHTTPError(fiber.StatusForbidden, "Session belongs to another user")
	}
	return session, nil
}

func (s *chatService) beginTurn(ctx context.Context, sessionID string) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[sessionID]; busy {
		return nil, serverutils.NewHTTPError(fiber.StatusConflict, "A turn is already in progress for this session")
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.active[sessionID] = cancel
	return turnCtx, nil
}

func (s *chatService) endTurn(sessionID string) {
	s.mu.Lock()
	if cancel, found := s.active[sessionID]; found {
		cancel()
		delete(s.active, sessionID)
	}
	s.mu.Unlock()
}

// turnFailure maps loop errors to client-facing failures and pushes a
// turn_failed notification to socket subscribers.
func (s *chatService) turnFailure(sessionID string, err error) error {
	if llm.IsCancelled(err) {
		s.hub.Notify(sessionID, model.TurnMessageFailed, "Turn cancelled")
		return serverutils.NewHTTPError(fiber.StatusRequestTimeout, "Turn cancelled")
	}

	message := "The AI service returned an unexpected error."
	var classified *classify.ClassifiedError
	if errors.As(err, &classified) {
		message = classified.UserMessage
	}

	s.sysLogger.Error("ChatService", "Turn failed", map[string]interface{}{
		"session_id": sessionID,
		"error":      err.Error(),
	})
	s.hub.Notify(sessionID, model.TurnMessageFailed, message)
	return serverutils.NewHTTPError(fiber.StatusBadGateway, message)
}
