package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"lemonhealth.app/backend/internal/llm"
)

// Check names a yes/no question asked about a message.
type Check string

const (
	// CheckProfileInfo asks whether the message supplies the user's own
	// attributes rather than asking something.
	CheckProfileInfo Check = "profile_info"
	// CheckAcknowledgement asks whether the message is only a thanks/ok.
	CheckAcknowledgement Check = "acknowledgement"
	// CheckOpeningTopic asks whether an opening message is about nutrition
	// or exercise.
	CheckOpeningTopic Check = "opening_topic"
)

type Verdict int

const (
	Undecided Verdict = iota
	Yes
	No
)

func (v Verdict) String() string {
	switch v {
	case Yes:
		return "yes"
	case No:
		return "no"
	}
	return "undecided"
}

// Classifier answers a Check about text. Undecided means the classifier
// has no opinion and the next one should be asked.
type Classifier interface {
	Classify(ctx context.Context, check Check, text string) (Verdict, error)
}

var (
	acknowledgementRe = regexp.MustCompile(`^(?:ok(?:ay)?|k|thanks?(?: you)?(?: so much| a lot)?|thank you|thx|ty|cool|great|nice|got it|sure|yes|yeah|yep|no|nope|alright|perfect|awesome|sounds good|understood|noted)[\s.!]*$`)
	profileKeywordRe  = regexp.MustCompile(`\b(?:age|aged|years? old|y\.?o|height|tall|weight|weigh|kg|kgs|kilograms?|cm|centimeters?|ft|feet|foot|lbs?|pounds?|male|female|man|woman|gender|sex|other|born)\b|\d+\s*(?:cm|kg|lbs?|ft)\b`)
	questionRe        = regexp.MustCompile(`\?\s*$|^(?:what|how|why|when|where|which|who|can|could|should|would|is|are|do|does|will|tell|give|show|build|make|create|suggest|recommend|help)\b`)

	nutritionKeywordRe = regexp.MustCompile(`\b(?:nutrition\w*|diet\w*|food\w*|eat\w*|meals?|calori\w*|protein\w*|carbs?|carbohydrates?|fats?|vitamins?|minerals?|supplements?|recipes?|breakfast|lunch|dinner|snacks?|vegan|vegetarian|keto|fasting|hydration|water intake|sugar|fiber|macros?|macronutrients?)\b`)
	exerciseKeywordRe  = regexp.MustCompile(`\b(?:exercis\w*|workouts?|training|train|fitness|gym|cardio|strength|muscles?|running|run|jog\w*|yoga|pilates|stretch\w*|squats?|push-?ups?|lifting|weights|hiit|steps|walking|cycling|swimming|athletic|endurance|reps?|sets)\b`)
)

// HeuristicClassifier answers from static patterns. A non-final heuristic
// only answers the cases its patterns settle and defers the rest; a final
// one always decides.
type HeuristicClassifier struct {
	final bool
}

func NewHeuristicClassifier(final bool) *HeuristicClassifier {
	return &HeuristicClassifier{final: final}
}

func (h *HeuristicClassifier) Classify(_ context.Context, check Check, text string) (Verdict, error) {
	msg := normalizeText(text)
	switch check {
	case CheckAcknowledgement:
		return boolVerdict(isAcknowledgement(msg)), nil
	case CheckProfileInfo:
		if msg == "" || isAcknowledgement(msg) || !profileKeywordRe.MatchString(msg) {
			return No, nil
		}
		if !h.final {
			return Undecided, nil
		}
		if questionRe.MatchString(msg) {
			return No, nil
		}
		return boolVerdict(!extractManually(msg, time.Now()).Empty()), nil
	case CheckOpeningTopic:
		if nutritionKeywordRe.MatchString(msg) || exerciseKeywordRe.MatchString(msg) {
			return Yes, nil
		}
		if h.final {
			return No, nil
		}
		return Undecided, nil
	}
	return Undecided, fmt.Errorf("unknown check %q", check)
}

// RemoteClassifier asks the LLM a YES/NO question.
type RemoteClassifier struct {
	llm llm.Completer
}

func NewRemoteClassifier(completer llm.Completer) *RemoteClassifier {
	return &RemoteClassifier{llm: completer}
}

func (r *RemoteClassifier) Classify(ctx context.Context, check Check, text string) (Verdict, error) {
	var prompt string
	switch check {
	case CheckProfileInfo:
		prompt = profileInfoClassifierPrompt
	case CheckOpeningTopic:
		prompt = openingTopicClassifierPrompt
	default:
		return Undecided, nil
	}
	out, err := r.llm.Complete(ctx, llm.Request{
		Purpose:     llm.PurposeClassify,
		Prompt:      fmt.Sprintf(prompt, text),
		Temperature: 0,
		MaxTokens:   5,
	})
	if err != nil {
		return Undecided, fmt.Errorf("failed to classify %s: %w", check, err)
	}
	word := strings.Trim(strings.ToUpper(strings.TrimSpace(out)), ".!\"'")
	switch {
	case strings.HasPrefix(word, "YES"):
		return Yes, nil
	case strings.HasPrefix(word, "NO"):
		return No, nil
	}
	return Undecided, nil
}

// ClassifierChain asks each classifier in turn; the first decisive answer
// wins. Errors are logged and skipped.
type ClassifierChain struct {
	classifiers []Classifier
	logger      *zap.Logger
}

func NewClassifierChain(logger *zap.Logger, classifiers ...Classifier) *ClassifierChain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassifierChain{classifiers: classifiers, logger: logger}
}

// NewDefaultClassifier is the usual chain: cheap patterns first, then the
// LLM, then the patterns again as the decisive fallback.
func NewDefaultClassifier(completer llm.Completer, logger *zap.Logger) *ClassifierChain {
	return NewClassifierChain(logger,
		NewHeuristicClassifier(false),
		NewRemoteClassifier(completer),
		NewHeuristicClassifier(true),
	)
}

func (c *ClassifierChain) Classify(ctx context.Context, check Check, text string) (Verdict, error) {
	for _, cl := range c.classifiers {
		v, err := cl.Classify(ctx, check, text)
		if err != nil {
			c.logger.Warn("classifier failed, falling back", zap.String("check", string(check)), zap.Error(err))
			continue
		}
		if v != Undecided {
			return v, nil
		}
	}
	return Undecided, nil
}

func isAcknowledgement(msg string) bool {
	return len(msg) <= 40 && acknowledgementRe.MatchString(msg)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func boolVerdict(b bool) Verdict {
	if b {
		return Yes
	}
	return No
}
