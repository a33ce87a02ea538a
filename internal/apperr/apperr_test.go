package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsHaveUniqueKeys(t *testing.T) {
	seen := map[string]Kind{}
	for _, k := range Kinds() {
		key := k.Key()
		if prev, ok := seen[key]; ok {
			t.Fatalf("kinds %d and %d share key %q", prev, k, key)
		}
		seen[key] = k
	}
}

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("login: %w", New(NotVerified))
	assert.Equal(t, NotVerified, KindOf(err))
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := Wrap(InvalidCode, errors.New("row missing"))
	assert.True(t, errors.Is(err, New(InvalidCode)))
	assert.False(t, errors.Is(err, New(UserNotFound)))
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, Validation.Status())
	assert.Equal(t, http.StatusUnprocessableEntity, InvalidConversationID.Status())
	assert.Equal(t, http.StatusNotFound, UserNotFound.Status())
	assert.Equal(t, http.StatusInternalServerError, Kind(999).Status())
}
