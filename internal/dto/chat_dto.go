package dto

import (
	"qa-guru-be/pkg/agent"
	"qa-guru-be/pkg/budget"
	"qa-guru-be/pkg/prompt"
	"qa-guru-be/pkg/store"
)

type CreateSessionRequest struct {
	Attachments []AttachmentDTO `json:"attachments,omitempty" validate:"max=10,dive"`
}

type AttachmentDTO struct {
	Name     string `json:"name" validate:"required"`
	Native   bool   `json:"native"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
	Text     string `json:"text,omitempty"`
}

type CreateSessionResponse struct {
	Id string `json:"id"`
}

type ImageDTO struct {
	MIMEType string `json:"mime_type" validate:"required"`
	Data     []byte `json:"data" validate:"required"`
}

type SendTurnRequest struct {
	Message        string            `json:"message" validate:"required"`
	DocumentMarkup string            `json:"document_markup"`
	Images         []ImageDTO        `json:"images,omitempty" validate:"max=5,dive"`
	Selection      *prompt.Selection `json:"selection,omitempty"`
	Templates      []prompt.Template `json:"templates,omitempty"`
}

type SendTurnResponse struct {
	Reply            string            `json:"reply"`
	DocumentMarkup   string            `json:"document_markup"`
	Changed          bool              `json:"changed"`
	Scroll           *agent.ScrollHint `json:"scroll,omitempty"`
	RoundTrips       int               `json:"round_trips"`
	StepLimitReached bool              `json:"step_limit_reached"`
	Budget           budget.Budget     `json:"budget"`
}

type GetHistoryResponse struct {
	SessionId string              `json:"session_id"`
	History   []store.ChatMessage `json:"history"`
}

type ModelInfoDTO struct {
	Name             string `json:"name"`
	DisplayName      string `json:"display_name,omitempty"`
	InputTokenLimit  int    `json:"input_token_limit,omitempty"`
	OutputTokenLimit int    `json:"output_token_limit,omitempty"`
}
