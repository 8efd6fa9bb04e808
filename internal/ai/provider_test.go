package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaProvider_Chat(t *testing.T) {
	var got ollamaChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "hello"},
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "tiny")
	reply, err := p.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "be nice"},
		{Role: RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)
	assert.Equal(t, "tiny", got.Model)
	assert.False(t, got.Stream)
	assert.Len(t, got.Messages, 2)
}

func TestOllamaProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "").Chat(context.Background(), nil)
	assert.ErrorContains(t, err, "status 502")
}

func TestOpenRouterProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "hideout", r.Header.Get("X-Title"))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hey"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL+"/", "key", "some/model", "", "hideout")
	reply, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hey", reply)
}

func TestOpenRouterProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenRouterProvider("", "", "m", "", "").Chat(context.Background(), nil)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(" Fake ", func(model string) (Provider, error) {
		return ProviderFunc(func(ctx context.Context, messages []Message) (string, error) {
			return model, nil
		}), nil
	})

	p, err := reg.Get("fake", "m1")
	require.NoError(t, err)
	reply, err := p.Chat(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "m1", reply)

	_, err = reg.Get("missing", "")
	assert.Error(t, err)
}
