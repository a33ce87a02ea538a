package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"lemonhealth.app/backend/internal/llm"
	"lemonhealth.app/backend/internal/store"
)

type ProfileField string

const (
	FieldDateOfBirth ProfileField = "date_of_birth"
	FieldHeight      ProfileField = "height"
	FieldWeight      ProfileField = "weight"
	FieldGender      ProfileField = "gender"
)

var allProfileFields = []ProfileField{FieldDateOfBirth, FieldHeight, FieldWeight, FieldGender}

// Label is the name shown to users when asking for the field.
func (f ProfileField) Label() string {
	switch f {
	case FieldDateOfBirth:
		return "Age"
	case FieldHeight:
		return "Height (cm or ft)"
	case FieldWeight:
		return "Weight (kg)"
	case FieldGender:
		return "Gender"
	}
	return string(f)
}

// Outcome is the result of ProfileCompletion.Evaluate: Proceed,
// ProfileUpdated or NeedsMoreInfo.
type Outcome interface {
	outcome() string
}

// Proceed means the profile is good enough; answer Query.
type Proceed struct {
	Query string
}

// ProfileUpdated means the message supplied profile data that was saved.
// ResumedQuery is the earlier question to answer next, if one was found,
// and ResumedMID the id of the message that asked it.
type ProfileUpdated struct {
	Confirmation string
	Updated      []ProfileField
	ResumedQuery *string
	ResumedMID   string
}

// NeedsMoreInfo means Prompt must be sent back instead of an answer.
type NeedsMoreInfo struct {
	Prompt  string
	Missing []ProfileField
}

func (Proceed) outcome() string        { return "proceed" }
func (ProfileUpdated) outcome() string { return "profile_updated" }
func (NeedsMoreInfo) outcome() string  { return "needs_more_info" }

var profileDependentQueries = []string{
	"nutrition plan", "diet plan", "meal plan", "calorie", "macronutrient",
	"weight loss", "weight gain", "muscle gain", "fitness plan", "exercise plan",
	"workout plan", "training plan", "personalized", "customized", "tailored",
	"my plan", "my nutrition", "my diet", "my exercise", "my workout",
}

var profileIndependentQueries = []string{
	"benefits of", "what is", "how to cook", "recipe", "food guide", "vitamin",
	"mineral", "supplement", "general", "overview", "information", "tips",
	"advice", "guide", "explain", "tell me about",
}

var profileRequestRe = regexp.MustCompile(`\byour:?\s+(?:age|date of birth|birth ?date|height|weight|gender|sex|profile)\b|` +
	`\bhow (?:old|tall) are you\b|\bhow much do you weigh\b|\binformation about you\b`)

var profileRequiredTopics = map[store.PromptType]bool{
	store.PromptNutrition: true,
	store.PromptExercise:  true,
	store.PromptDefault:   true,
}

// ProfileStore is the part of the store the pipeline needs.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID int64) (*store.Profile, error)
	PatchProfile(ctx context.Context, userID int64, patch store.ProfilePatch) (*store.Profile, error)
}

// ProfileCompletion decides whether a chat message can be answered with
// the user's current profile, absorbing profile data the message carries.
type ProfileCompletion struct {
	profiles   ProfileStore
	classifier Classifier
	extractor  *ProfileExtractor
	llm        llm.Completer
	logger     *zap.Logger
	metrics    *Metrics
}

func NewProfileCompletion(profiles ProfileStore, classifier Classifier, extractor *ProfileExtractor,
	completer llm.Completer, logger *zap.Logger, metrics *Metrics) *ProfileCompletion {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileCompletion{
		profiles:   profiles,
		classifier: classifier,
		extractor:  extractor,
		llm:        completer,
		logger:     logger,
		metrics:    metrics,
	}
}

// Evaluate never fails; infrastructure errors degrade to the most
// permissive outcome that is still safe.
func (p *ProfileCompletion) Evaluate(ctx context.Context, userID int64, message string,
	history []store.Message, topic store.PromptType) Outcome {
	o := p.evaluate(ctx, userID, message, history, topic)
	p.metrics.completionOutcome(o.outcome())
	return o
}

func (p *ProfileCompletion) evaluate(ctx context.Context, userID int64, message string,
	history []store.Message, topic store.PromptType) Outcome {
	if !RequiresProfile(message, topic) {
		return Proceed{Query: message}
	}

	profile, err := p.profiles.GetProfile(ctx, userID)
	if err != nil {
		p.logger.Error("failed to load profile, answering without it", zap.Int64("user_id", userID), zap.Error(err))
		return Proceed{Query: message}
	}
	missing := MissingFields(profile, RequiredFields(message, topic))

	if p.isProfileInfo(ctx, message) {
		return p.absorb(ctx, userID, message, history, topic, profile)
	}
	if len(missing) == 0 {
		return Proceed{Query: message}
	}
	return NeedsMoreInfo{Prompt: p.requestMissing(ctx, message, missing), Missing: missing}
}

func (p *ProfileCompletion) absorb(ctx context.Context, userID int64, message string,
	history []store.Message, topic store.PromptType, profile *store.Profile) Outcome {
	patch := p.extractor.Extract(ctx, message)
	updated := patchedFields(patch)
	if len(updated) > 0 {
		saved, err := p.profiles.PatchProfile(ctx, userID, patch)
		if err != nil {
			p.logger.Error("failed to save extracted profile", zap.Int64("user_id", userID), zap.Error(err))
			updated = nil
		} else {
			profile = saved
		}
	}

	var resumed *string
	var resumedMID string
	target := message
	if m := findResumedMessage(history); m != nil {
		resumed, resumedMID = &m.Content, m.MID
		target = m.Content
	}
	missing := MissingFields(profile, RequiredFields(target, topic))
	if len(missing) > 0 {
		return NeedsMoreInfo{Prompt: p.requestMissing(ctx, target, missing), Missing: missing}
	}
	if len(updated) == 0 {
		return Proceed{Query: message}
	}
	return ProfileUpdated{
		Confirmation: confirmationText(updated),
		Updated:      updated,
		ResumedQuery: resumed,
		ResumedMID:   resumedMID,
	}
}

func (p *ProfileCompletion) isProfileInfo(ctx context.Context, message string) bool {
	v, err := p.classifier.Classify(ctx, CheckProfileInfo, message)
	if err != nil {
		p.logger.Warn("profile info classification failed", zap.Error(err))
		return false
	}
	return v == Yes
}

// requestMissing asks the LLM for a friendly request naming the missing
// fields, with a fixed fallback.
func (p *ProfileCompletion) requestMissing(ctx context.Context, query string, missing []ProfileField) string {
	labels := fieldLabels(missing)
	out, err := p.llm.Complete(ctx, llm.Request{
		Purpose:     llm.PurposeProfilePrompt,
		Prompt:      fmt.Sprintf(profileCompletionMessagePrompt, query, labels),
		Temperature: 0.5,
		MaxTokens:   600,
	})
	if err != nil {
		p.logger.Warn("profile completion message failed, using fallback", zap.Error(err))
		return fmt.Sprintf("To give you personalized advice, I need a bit more information about you. Please share your: %s.", labels)
	}
	return out
}

// RequiresProfile reports whether answering message on topic needs a
// complete profile. Profile-dependent phrasing wins over general-knowledge
// phrasing, which wins over the topic default.
func RequiresProfile(message string, topic store.PromptType) bool {
	msg := strings.ToLower(message)
	for _, q := range profileDependentQueries {
		if strings.Contains(msg, q) {
			return true
		}
	}
	for _, q := range profileIndependentQueries {
		if strings.Contains(msg, q) {
			return false
		}
	}
	return profileRequiredTopics[topic]
}

// RequiredFields narrows the required set for queries that only concern
// some attributes.
func RequiredFields(query string, topic store.PromptType) []ProfileField {
	q := strings.ToLower(query)
	switch {
	case topic == store.PromptNutrition || strings.Contains(q, "diet") || strings.Contains(q, "meal"):
		return allProfileFields
	case topic == store.PromptExercise || strings.Contains(q, "workout") || strings.Contains(q, "fitness"):
		return allProfileFields
	case strings.Contains(q, "weight"):
		return []ProfileField{FieldHeight, FieldWeight}
	case strings.Contains(q, "age") || strings.Contains(q, "years old"):
		return []ProfileField{FieldDateOfBirth}
	}
	return allProfileFields
}

// MissingFields lists the required fields the profile lacks. A nil
// profile lacks everything.
func MissingFields(profile *store.Profile, required []ProfileField) []ProfileField {
	var missing []ProfileField
	for _, f := range required {
		if !hasField(profile, f) {
			missing = append(missing, f)
		}
	}
	return missing
}

func hasField(p *store.Profile, f ProfileField) bool {
	if p == nil {
		return false
	}
	switch f {
	case FieldDateOfBirth:
		return p.DateOfBirth != nil
	case FieldHeight:
		return p.Height != nil
	case FieldWeight:
		return p.Weight != nil
	case FieldGender:
		return p.Gender != nil && *p.Gender != ""
	}
	return false
}

func patchedFields(patch store.ProfilePatch) []ProfileField {
	var fields []ProfileField
	if patch.DateOfBirth != nil {
		fields = append(fields, FieldDateOfBirth)
	}
	if patch.Height != nil {
		fields = append(fields, FieldHeight)
	}
	if patch.Weight != nil {
		fields = append(fields, FieldWeight)
	}
	if patch.Gender != nil {
		fields = append(fields, FieldGender)
	}
	return fields
}

// findResumedQuery walks history backwards for the user question that was
// interrupted by a request for profile data. Profile-data replies and the
// assistant's requests are skipped; any other assistant reply means the
// question was already answered.
func findResumedQuery(history []store.Message) *string {
	if m := findResumedMessage(history); m != nil {
		return &m.Content
	}
	return nil
}

func findResumedMessage(history []store.Message) *store.Message {
	heuristic := NewHeuristicClassifier(true)
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.IsOutOfScope {
			return nil
		}
		switch m.Role {
		case store.RoleAssistant:
			if !asksForProfile(m.Content) {
				return nil
			}
		case store.RoleUser:
			if v, _ := heuristic.Classify(context.Background(), CheckProfileInfo, m.Content); v == Yes {
				continue
			}
			if isAcknowledgement(normalizeText(m.Content)) {
				continue
			}
			return &m
		}
	}
	return nil
}

// asksForProfile recognizes an assistant turn requesting profile data,
// including requests for a single field.
func asksForProfile(content string) bool {
	return profileRequestRe.MatchString(strings.ToLower(content))
}

func confirmationText(updated []ProfileField) string {
	names := make([]string, len(updated))
	for i, f := range updated {
		names[i] = strings.ToLower(strings.SplitN(f.Label(), " ", 2)[0])
	}
	return fmt.Sprintf("I've updated your profile with the information you provided: %s. Now let me help you with your request.",
		strings.Join(names, ", "))
}

func fieldLabels(fields []ProfileField) string {
	labels := make([]string, len(fields))
	for i, f := range fields {
		labels[i] = f.Label()
	}
	return strings.Join(labels, ", ")
}

// ProfileContext renders the profile for the answering system prompt, or
// "" when nothing is known.
func ProfileContext(p *store.Profile, now time.Time) string {
	if p == nil {
		return ""
	}
	var parts []string
	if p.DateOfBirth != nil {
		parts = append(parts, fmt.Sprintf("Age: %d years old", AgeOn(*p.DateOfBirth, now)))
	}
	if p.Gender != nil && *p.Gender != "" {
		parts = append(parts, "Gender: "+*p.Gender)
	}
	if p.Height != nil {
		parts = append(parts, fmt.Sprintf("Height: %g%s", *p.Height, p.HeightUnit))
	}
	if p.Weight != nil {
		parts = append(parts, fmt.Sprintf("Weight: %g%s", *p.Weight, p.WeightUnit))
	}
	if len(parts) == 0 {
		return ""
	}
	return "User Profile: " + strings.Join(parts, ", ")
}

// AgeOn returns the age in whole years on the given day.
func AgeOn(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}
