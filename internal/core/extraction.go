package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"lemonhealth.app/backend/internal/llm"
	"lemonhealth.app/backend/internal/store"
)

// Ranges accepted from chat messages. These are stricter than the profile
// API ranges.
const (
	chatMinHeightCM = 100.0
	chatMaxHeightCM = 250.0
	chatMinHeightFT = 3.3
	chatMaxHeightFT = 8.2
	chatMinWeightKG = 20.0
	chatMaxWeightKG = 300.0
	kgPerLb         = 0.45359237
	maxAgeYears     = 120
)

var (
	ageRe         = regexp.MustCompile(`(\d{1,3})\s*(?:years?\s*old|yrs?\s*old|y\.?o\b)`)
	statedAgeRe   = regexp.MustCompile(`\b(?:i am|i'm|im|age is|age|aged)\s*:?\s*(\d{1,3})(\s*(?:cm|centimeters?|kg|kgs|kilograms?|lbs?|pounds?|ft|feet|foot|'|%))?`)
	heightCMRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:cm|centimeters?)\b`)
	heightFTInRe  = regexp.MustCompile(`(\d)\s*(?:'|ft|feet|foot)\s*(\d{1,2})(?:\s*(?:"|in\b|inch(?:es)?\b)|\s*$|\s*[,.;]|\s+and\b)`)
	heightFTRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:ft|feet|foot)\b`)
	weightKGRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:kg|kgs|kilograms?)\b`)
	weightLBRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:lbs?|pounds?)\b`)
	genderStateRe = regexp.MustCompile(`\b(?:i am|i'm|im|gender is|gender:|sex is|sex:|i identify as)\s*(?:a\s+)?(male|female|man|woman|guy|girl|boy|other|non-binary|nonbinary)\b`)
	genderWordRe  = regexp.MustCompile(`\b(male|female|non-binary|nonbinary)\b`)
	genderHintRe  = regexp.MustCompile(`\b(?:man|woman|guy|girl|boy|other|gender|sex)\b`)
	numberRe      = regexp.MustCompile(`\d+`)
	jsonObjectRe  = regexp.MustCompile(`(?s)\{.*\}`)
)

// ProfileExtractor pulls profile attributes out of a chat message.
type ProfileExtractor struct {
	llm    llm.Completer
	logger *zap.Logger
	now    func() time.Time
}

func NewProfileExtractor(completer llm.Completer, logger *zap.Logger) *ProfileExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileExtractor{llm: completer, logger: logger, now: time.Now}
}

type extractedProfile struct {
	DateOfBirth *string  `json:"date_of_birth"`
	Height      *float64 `json:"height"`
	HeightUnit  *string  `json:"height_unit"`
	Weight      *float64 `json:"weight"`
	WeightUnit  *string  `json:"weight_unit"`
	Gender      *string  `json:"gender"`
}

// Extract returns only the fields the message states, range checked. It
// asks the LLM first and falls back to patterns when the call or the JSON
// fails.
func (e *ProfileExtractor) Extract(ctx context.Context, message string) store.ProfilePatch {
	now := e.now()
	msg := normalizeText(message)

	out, err := e.llm.Complete(ctx, llm.Request{
		Purpose:     llm.PurposeExtract,
		Prompt:      fmt.Sprintf(profileExtractionPrompt, message, now.Format("2006-01-02")),
		Temperature: 0.3,
		MaxTokens:   800,
	})
	if err != nil {
		e.logger.Warn("profile extraction call failed, using patterns", zap.Error(err))
		return extractManually(msg, now)
	}
	raw, err := parseExtraction(out)
	if err != nil {
		e.logger.Warn("profile extraction returned invalid JSON, using patterns", zap.Error(err))
		return extractManually(msg, now)
	}
	return sanitizeExtraction(raw, msg, now)
}

func parseExtraction(out string) (*extractedProfile, error) {
	body := jsonObjectRe.FindString(out)
	if body == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var raw extractedProfile
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode extraction: %w", err)
	}
	return &raw, nil
}

// sanitizeExtraction drops values that are out of range or that the
// message never mentions.
func sanitizeExtraction(raw *extractedProfile, msg string, now time.Time) store.ProfilePatch {
	var patch store.ProfilePatch
	numbers := numberRe.FindAllString(msg, -1)

	if raw.DateOfBirth != nil {
		if dob, err := time.Parse("2006-01-02", strings.TrimSpace(*raw.DateOfBirth)); err == nil &&
			validBirthDate(dob, now) && birthDateStated(dob, numbers, now) {
			patch.DateOfBirth = &dob
		}
	}
	if raw.Height != nil && mentionsNumber(numbers, *raw.Height) {
		unit := "cm"
		if raw.HeightUnit != nil && strings.EqualFold(strings.TrimSpace(*raw.HeightUnit), "ft") {
			unit = "ft"
		}
		if h, ok := chatHeight(*raw.Height, unit); ok {
			patch.Height, patch.HeightUnit = &h, &unit
		}
	}
	if raw.Weight != nil && mentionsNumber(numbers, *raw.Weight) {
		unit := "kg"
		if raw.WeightUnit != nil && strings.HasPrefix(strings.ToLower(strings.TrimSpace(*raw.WeightUnit)), "lb") {
			unit = "lbs"
		}
		if w, ok := chatWeight(*raw.Weight, unit); ok {
			patch.Weight, patch.WeightUnit = &w, &unit
		}
	}
	if raw.Gender != nil {
		if g, ok := normalizeGender(*raw.Gender); ok && genderStated(msg) {
			patch.Gender = &g
		}
	}
	return patch
}

// extractManually reads attributes from a lowercased message with patterns.
func extractManually(msg string, now time.Time) store.ProfilePatch {
	var patch store.ProfilePatch

	age := -1
	if m := ageRe.FindStringSubmatch(msg); m != nil {
		age, _ = strconv.Atoi(m[1])
	} else if m := statedAgeRe.FindStringSubmatch(msg); m != nil && m[2] == "" {
		age, _ = strconv.Atoi(m[1])
	}
	if age > 0 && age <= maxAgeYears {
		dob := time.Date(now.Year()-age, time.January, 1, 0, 0, 0, 0, time.UTC)
		patch.DateOfBirth = &dob
	}

	if m := heightCMRe.FindStringSubmatch(msg); m != nil {
		if h, err := strconv.ParseFloat(m[1], 64); err == nil {
			setHeight(&patch, h, "cm")
		}
	}
	if m := heightFTInRe.FindStringSubmatch(msg); patch.Height == nil && m != nil {
		ft, _ := strconv.ParseFloat(m[1], 64)
		in, _ := strconv.ParseFloat(m[2], 64)
		if in < 12 {
			setHeight(&patch, math.Round((ft+in/12)*100)/100, "ft")
		}
	}
	// Whole feet when no valid feet-and-inches form was found.
	if m := heightFTRe.FindStringSubmatch(msg); patch.Height == nil && m != nil {
		if h, err := strconv.ParseFloat(m[1], 64); err == nil {
			setHeight(&patch, h, "ft")
		}
	}

	if m := weightKGRe.FindStringSubmatch(msg); m != nil {
		if w, err := strconv.ParseFloat(m[1], 64); err == nil {
			setWeight(&patch, w, "kg")
		}
	} else if m := weightLBRe.FindStringSubmatch(msg); m != nil {
		if w, err := strconv.ParseFloat(m[1], 64); err == nil {
			setWeight(&patch, w, "lbs")
		}
	}

	if m := genderStateRe.FindStringSubmatch(msg); m != nil {
		if g, ok := normalizeGender(m[1]); ok {
			patch.Gender = &g
		}
	} else if m := genderWordRe.FindStringSubmatch(msg); m != nil {
		if g, ok := normalizeGender(m[1]); ok {
			patch.Gender = &g
		}
	}
	return patch
}

func setHeight(patch *store.ProfilePatch, v float64, unit string) {
	if h, ok := chatHeight(v, unit); ok {
		patch.Height, patch.HeightUnit = &h, &unit
	}
}

func setWeight(patch *store.ProfilePatch, v float64, unit string) {
	if w, ok := chatWeight(v, unit); ok {
		patch.Weight, patch.WeightUnit = &w, &unit
	}
}

func chatHeight(v float64, unit string) (float64, bool) {
	if unit == "ft" {
		return v, v >= chatMinHeightFT && v <= chatMaxHeightFT
	}
	return v, v >= chatMinHeightCM && v <= chatMaxHeightCM
}

func chatWeight(v float64, unit string) (float64, bool) {
	kg := v
	if unit == "lbs" {
		kg = v * kgPerLb
	}
	return v, kg >= chatMinWeightKG && kg <= chatMaxWeightKG
}

func normalizeGender(g string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "male", "man", "guy", "boy", "m":
		return "male", true
	case "female", "woman", "girl", "f":
		return "female", true
	case "other", "non-binary", "nonbinary":
		return "other", true
	}
	return "", false
}

func validBirthDate(dob, now time.Time) bool {
	return dob.Before(now) && now.Year()-dob.Year() <= maxAgeYears
}

// birthDateStated accepts a birth date when the message carries its year
// or the matching age.
func birthDateStated(dob time.Time, numbers []string, now time.Time) bool {
	age := now.Year() - dob.Year()
	for _, n := range numbers {
		v, err := strconv.Atoi(n)
		if err != nil {
			continue
		}
		if v == dob.Year() || v == age || v == age-1 {
			return true
		}
	}
	return false
}

func mentionsNumber(numbers []string, v float64) bool {
	whole := strconv.Itoa(int(v))
	for _, n := range numbers {
		if n == whole {
			return true
		}
	}
	return false
}

func genderStated(msg string) bool {
	return genderStateRe.MatchString(msg) || genderWordRe.MatchString(msg) || genderHintRe.MatchString(msg)
}
