package persona

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetUserPersonas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/42/personas", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"personas":[
			{"persona_type":"staff","role_in_entity":"ceo"},
			{"persona_type":"introducer","entity_id":20}
		]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, zap.NewNop())
	personas, err := client.GetUserPersonas(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, personas, 2)

	assert.Equal(t, TypeStaff, personas[0].Type)
	assert.Equal(t, RoleCEO, personas[0].RoleInEntity)
	assert.True(t, personas[0].IsStaff())

	assert.Equal(t, TypeIntroducer, personas[1].Type)
	require.NotNil(t, personas[1].EntityID)
	assert.Equal(t, uint(20), *personas[1].EntityID)
}

func TestGetUserPersonasErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"user not found"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, zap.NewNop())
	_, err := client.GetUserPersonas(context.Background(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user not found")
}

func TestGetUserPersonasUnreachableService(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second, zap.NewNop())
	_, err := client.GetUserPersonas(context.Background(), 42)
	require.Error(t, err)
}

func TestPersonaMatchesEntity(t *testing.T) {
	entityID := uint(20)

	bound := Persona{Type: TypeIntroducer, EntityID: &entityID}
	assert.True(t, bound.MatchesEntity(20))
	assert.False(t, bound.MatchesEntity(21))

	unbound := Persona{Type: TypeIntroducer}
	assert.False(t, unbound.MatchesEntity(20))
}
