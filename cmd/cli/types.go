package main

import (
	"github.com/hairizuanbinnoorazman/persona-navigator/agent"
	"github.com/hairizuanbinnoorazman/persona-navigator/recorder"
)

// ListResponse matches handlers.ListResponse.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// PaginatedResponse matches handlers.PaginatedResponse.
type PaginatedResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ErrorResponse matches handlers.ErrorResponse.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateStudyRequest matches handlers.CreateStudyRequest.
type CreateStudyRequest struct {
	Name     string          `json:"name"`
	Task     agent.Task      `json:"task"`
	Personas []agent.Persona `json:"personas"`
}

// CreateStudyResponse matches handlers.CreateStudyResponse.
type CreateStudyResponse struct {
	StudyID  string `json:"study_id"`
	Personas int    `json:"personas"`
	Status   string `json:"status"`
}

// SessionDetail matches handlers.SessionDetail.
type SessionDetail struct {
	Session *recorder.PersonaSession `json:"session"`
	Steps   []*recorder.Step         `json:"steps"`
	Issues  []*recorder.Issue        `json:"issues"`
}
