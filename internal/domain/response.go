package domain

import (
	"strings"
	"time"
)

// RawResponse is one answered quiz question as submitted by the client.
type RawResponse struct {
	QuestionID     string     `json:"questionId"`
	SelectedOption string     `json:"selectedOption,omitempty"`
	CustomResponse string     `json:"customResponse,omitempty"`
	Category       string     `json:"category"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

// Answer is the text the formatter and the weighting heuristics compare on:
// the selected option, falling back to the free-text response.
func (r RawResponse) Answer() string {
	if s := strings.TrimSpace(r.SelectedOption); s != "" {
		return s
	}
	return strings.TrimSpace(r.CustomResponse)
}

func (r RawResponse) IsEmpty() bool {
	return strings.TrimSpace(r.SelectedOption) == "" && strings.TrimSpace(r.CustomResponse) == ""
}

// AnalysisRequest is owned by exactly one pipeline invocation.
type AnalysisRequest struct {
	AssessmentID string
	Responses    []RawResponse
	UserID       string
	RetryCount   int
}

// RawResponseRecord is the audit copy of a submitted response. The pipeline
// writes it but never reads it back.
type RawResponseRecord struct {
	ID             string     `gorm:"type:uuid;primaryKey" json:"id"`
	AssessmentID   string     `gorm:"column:assessment_id;not null;index" json:"assessment_id"`
	UserID         string     `gorm:"column:user_id;index" json:"user_id,omitempty"`
	QuestionID     string     `gorm:"column:question_id;not null" json:"question_id"`
	Category       string     `gorm:"column:category" json:"category"`
	SelectedOption string     `gorm:"column:selected_option" json:"selected_option,omitempty"`
	CustomResponse string     `gorm:"column:custom_response" json:"custom_response,omitempty"`
	AnsweredAt     *time.Time `gorm:"column:answered_at" json:"answered_at,omitempty"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
}

func (RawResponseRecord) TableName() string {
	return "assessment_response"
}
