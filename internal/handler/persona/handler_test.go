package persona

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenhua-ai/xiaowen/backend/internal/model/persona"
)

func TestGetPersona(t *testing.T) {
	r := chi.NewRouter()
	New(persona.Default()).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/persona", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var got persona.Persona
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, "小文", got.Name)
	assert.Equal(t, persona.Default().OpeningLine, got.OpeningLine)
}
