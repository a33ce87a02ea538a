package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lemonhealth.app/backend/internal/llm"
	"lemonhealth.app/backend/internal/store"
)

func newTestExtractor(fake *fakeLLM) *ProfileExtractor {
	ex := NewProfileExtractor(fake, nil)
	ex.now = fixedNow
	return ex
}

func TestExtractManuallyAllFields(t *testing.T) {
	p := extractManually(normalizeText("I am 28, male, 180cm, 75kg"), fixedNow())

	require.NotNil(t, p.DateOfBirth)
	assert.Equal(t, time.Date(1998, 1, 1, 0, 0, 0, 0, time.UTC), *p.DateOfBirth)
	require.NotNil(t, p.Height)
	assert.Equal(t, 180.0, *p.Height)
	assert.Equal(t, "cm", *p.HeightUnit)
	require.NotNil(t, p.Weight)
	assert.Equal(t, 75.0, *p.Weight)
	assert.Equal(t, "kg", *p.WeightUnit)
	require.NotNil(t, p.Gender)
	assert.Equal(t, "male", *p.Gender)
}

func TestExtractManuallyImperial(t *testing.T) {
	p := extractManually(normalizeText(`I'm 5'9" and 160 lbs, female`), fixedNow())

	assert.Nil(t, p.DateOfBirth)
	require.NotNil(t, p.Height)
	assert.Equal(t, 5.75, *p.Height)
	assert.Equal(t, "ft", *p.HeightUnit)
	require.NotNil(t, p.Weight)
	assert.Equal(t, 160.0, *p.Weight)
	assert.Equal(t, "lbs", *p.WeightUnit)
	assert.Equal(t, "female", *p.Gender)
}

func TestExtractManuallyFeetFollowedByWeight(t *testing.T) {
	p := extractManually(normalizeText("I am 6 ft 180 lbs"), fixedNow())

	assert.Nil(t, p.DateOfBirth)
	require.NotNil(t, p.Height)
	assert.Equal(t, 6.0, *p.Height)
	assert.Equal(t, "ft", *p.HeightUnit)
	require.NotNil(t, p.Weight)
	assert.Equal(t, 180.0, *p.Weight)
	assert.Equal(t, "lbs", *p.WeightUnit)

	p = extractManually(normalizeText("5 ft 11 in, 70kg"), fixedNow())
	require.NotNil(t, p.Height)
	assert.Equal(t, 5.92, *p.Height)
}

func TestExtractManuallyDropsOutOfRange(t *testing.T) {
	msg := normalizeText("I am 30 years old, 90cm tall and 350kg")
	first := extractManually(msg, fixedNow())
	second := extractManually(msg, fixedNow())

	assert.Nil(t, first.Height)
	assert.Nil(t, first.Weight)
	require.NotNil(t, first.DateOfBirth)
	assert.Equal(t, 1996, first.DateOfBirth.Year())
	assert.Equal(t, first, second)
}

func TestExtractUsesLLMJSON(t *testing.T) {
	fake := newFakeLLM().on(llm.PurposeExtract, "```json\n"+
		`{"date_of_birth": "1998-01-01", "height": 180, "height_unit": "cm", "weight": 75, "weight_unit": "kg", "gender": "Male"}`+
		"\n```")
	p := newTestExtractor(fake).Extract(context.Background(), "I'm 28, male, 180cm, 75kg")

	assert.Equal(t, []ProfileField{FieldDateOfBirth, FieldHeight, FieldWeight, FieldGender}, patchedFields(p))
	assert.Equal(t, "male", *p.Gender)
	req := fake.last(llm.PurposeExtract)
	require.NotNil(t, req)
	assert.Equal(t, 0.3, req.Temperature)
	assert.Equal(t, 800, req.MaxTokens)
}

func TestExtractDropsInventedValues(t *testing.T) {
	fake := newFakeLLM().on(llm.PurposeExtract,
		`{"date_of_birth": "1990-01-01", "height": 170, "height_unit": "cm", "weight": 75, "weight_unit": "kg", "gender": "female"}`)
	p := newTestExtractor(fake).Extract(context.Background(), "I weigh 75kg")

	assert.Equal(t, []ProfileField{FieldWeight}, patchedFields(p))
}

func TestExtractDropsOutOfRangeLLMValues(t *testing.T) {
	fake := newFakeLLM().on(llm.PurposeExtract,
		`{"date_of_birth": null, "height": 300, "height_unit": "cm", "weight": 19, "weight_unit": "kg", "gender": null}`)
	ex := newTestExtractor(fake)
	msg := "I'm 300cm and 19kg"

	first := ex.Extract(context.Background(), msg)
	second := ex.Extract(context.Background(), msg)
	assert.True(t, first.Empty())
	assert.Equal(t, first, second)
}

func TestExtractFallsBackOnBadJSONOrError(t *testing.T) {
	for _, fake := range []*fakeLLM{
		newFakeLLM().on(llm.PurposeExtract, "sure! the user is 28"),
		newFakeLLM().fail(llm.PurposeExtract, errProvider),
	} {
		p := newTestExtractor(fake).Extract(context.Background(), "I am 28, male, 180cm, 75kg")
		assert.Len(t, patchedFields(p), 4)
	}
}

func TestChatRangesAreStricterThanAPI(t *testing.T) {
	_, ok := chatHeight(90, "cm")
	assert.False(t, ok)
	_, ok = chatHeight(100, "cm")
	assert.True(t, ok)
	_, ok = chatWeight(301, "kg")
	assert.False(t, ok)
	_, ok = chatWeight(600, "lbs")
	assert.True(t, ok)
	_, ok = chatWeight(700, "lbs")
	assert.False(t, ok)
	assert.True(t, store.ProfilePatch{}.Empty())
}
