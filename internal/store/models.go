package store

import "time"

type PromptType string

const (
	PromptBooking       PromptType = "booking"
	PromptShop          PromptType = "shop"
	PromptNutrition     PromptType = "nutrition"
	PromptExercise      PromptType = "exercise"
	PromptDocuments     PromptType = "documents"
	PromptPrescriptions PromptType = "prescriptions"
	PromptDefault       PromptType = "default"
)

var PromptTypes = []PromptType{
	PromptBooking, PromptShop, PromptNutrition, PromptExercise,
	PromptDocuments, PromptPrescriptions, PromptDefault,
}

func (p PromptType) Valid() bool {
	for _, t := range PromptTypes {
		if p == t {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Purpose string

const (
	PurposeSignup        Purpose = "signup"
	PurposePasswordReset Purpose = "password_reset"
	PurposeLogin         Purpose = "login"
)

type AnalysisStatus string

const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
)

type User struct {
	ID           int64     `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	MobileNumber string    `json:"mobile_number"`
	CountryCode  string    `json:"country_code"`
	Email        *string   `json:"email"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	IsActive     bool      `json:"is_active"`
	IsVerified   bool      `json:"is_verified"`
	IsAdmin      bool      `json:"is_admin"`
	IsDeleted    bool      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Profile fields stay nil until filled.
type Profile struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	DateOfBirth    *time.Time `json:"date_of_birth"`
	Height         *float64   `json:"height"`
	HeightUnit     string     `json:"height_unit"`
	Weight         *float64   `json:"weight"`
	WeightUnit     string     `json:"weight_unit"`
	Gender         *string    `json:"gender"`
	ProfilePicture *string    `json:"profile_picture"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ProfilePatch carries the fields to overwrite; nil fields are left alone.
type ProfilePatch struct {
	DateOfBirth *time.Time
	Height      *float64
	HeightUnit  *string
	Weight      *float64
	WeightUnit  *string
	Gender      *string
}

func (p ProfilePatch) Empty() bool {
	return p.DateOfBirth == nil && p.Height == nil && p.HeightUnit == nil &&
		p.Weight == nil && p.WeightUnit == nil && p.Gender == nil
}

type VerificationCode struct {
	ID           int64
	UserID       *int64
	MobileNumber string
	CountryCode  string
	OwnerKey     string
	Code         string
	Purpose      Purpose
	IsUsed       bool
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

type Prompt struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	PromptType   PromptType `json:"prompt_type"`
	SystemPrompt string     `json:"-"`
	IconPath     string     `json:"icon_path"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
}

type Conversation struct {
	ID         int64      `json:"id"`
	ConvID     string     `json:"conv_id"`
	UserID     int64      `json:"user_id"`
	PromptID   int64      `json:"prompt_id"`
	PromptType PromptType `json:"prompt_type"`
	Title      string     `json:"title"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type ConversationSummary struct {
	Conversation
	MessageCount int     `json:"message_count"`
	LastMessage  *string `json:"last_message"`
}

type Message struct {
	ID             int64     `json:"id"`
	MID            string    `json:"mid"`
	ConversationID int64     `json:"conversation_id"`
	UserID         *int64    `json:"user_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	IsOutOfScope   bool      `json:"is_out_of_scope"`
	CreatedAt      time.Time `json:"created_at"`
}

type Document struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	OriginalFilename string    `json:"original_filename"`
	FileURL          string    `json:"file_url"`
	ContentType      string    `json:"content_type"`
	SizeBytes        int64     `json:"size_bytes"`
	CreatedAt        time.Time `json:"created_at"`
}

type DocumentAnalysis struct {
	ID                int64          `json:"id"`
	DocumentID        int64          `json:"document_id"`
	Status            AnalysisStatus `json:"status"`
	ExtractedText     string         `json:"-"`
	Tags              []string       `json:"tags"`
	GeneratedFilename string         `json:"generated_filename"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

type DocumentWithAnalysis struct {
	Document
	Analysis *DocumentAnalysis `json:"analysis"`
}

type Stats struct {
	Users              int `json:"users"`
	VerifiedUsers      int `json:"verified_users"`
	Conversations      int `json:"conversations"`
	Messages           int `json:"messages"`
	OutOfScopeMessages int `json:"out_of_scope_messages"`
}

type Page struct {
	Limit  int
	Offset int
}
