package i18n

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lemonhealth.app/backend/internal/apperr"
)

type fakeSource struct {
	rows map[string]string
	err  error
}

func (f *fakeSource) LookupTranslation(_ context.Context, key, lang string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	text, ok := f.rows[lang+":"+key]
	return text, ok, nil
}

func TestTranslatorFallbackOrder(t *testing.T) {
	src := &fakeSource{rows: map[string]string{"es:user_not_found": "No existe"}}
	tr, err := NewTranslator(src, nil)
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, "No existe", tr.T(ctx, "es", "user_not_found"))
	assert.Equal(t, "Perfil no encontrado.", tr.T(ctx, "es-ES", "profile_not_found"))
	assert.Equal(t, "User not found.", tr.T(ctx, "en", "user_not_found"))
	assert.Equal(t, "User not found.", tr.T(ctx, "fr", "user_not_found"))
	assert.Equal(t, "no_such_key", tr.T(ctx, "en", "no_such_key"))
}

func TestTranslatorFallsBackWhenSourceFails(t *testing.T) {
	tr, err := NewTranslator(&fakeSource{err: errors.New("db down")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Usuario no encontrado.", tr.T(context.Background(), "es", "user_not_found"))
}

func TestNormalize(t *testing.T) {
	tr, err := NewTranslator(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "es", tr.Normalize("es-ES"))
	assert.Equal(t, "es", tr.Normalize(" ES "))
	assert.Equal(t, "en", tr.Normalize(""))
	assert.Equal(t, "en", tr.Normalize("de"))
}

func TestEveryErrorKindIsTranslated(t *testing.T) {
	tr, err := NewTranslator(nil, nil)
	require.NoError(t, err)
	for _, lang := range tr.Languages() {
		for _, k := range apperr.Kinds() {
			_, ok := tr.messages[lang][k.Key()]
			assert.True(t, ok, "missing %s translation for %s", lang, k.Key())
		}
	}
}
