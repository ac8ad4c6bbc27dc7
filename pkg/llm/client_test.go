package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/flagext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuestions(t *testing.T) {
	qs, err := ParseQuestions("```json\n{\"questions\": [{\"Query\": \" How is line 4 cleaned? \", \"Language\": \"English\"}, {\"Query\": \"\"}]}\n```")
	require.NoError(t, err)
	assert.Equal(t, []Question{{Query: "How is line 4 cleaned?", Language: "English"}}, qs)

	_, err = ParseQuestions("five questions")
	assert.Error(t, err)
}

func TestQuestions(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]string{
					"role":    "assistant",
					"content": `{"questions": [{"Query": "Who approves the gowning procedure?", "Language": "English", "Site": "Site A"}]}`,
				},
			}},
		})
	}))
	defer srv.Close()

	c, err := New(Config{
		APIKey:        flagext.SecretWithValue("sk-test"),
		BaseURL:       srv.URL + "/v1/",
		Model:         "gpt-4o-mini",
		MaxTokens:     100,
		MaxInputChars: 10,
		MinQuestions:  5,
		Timeout:       5 * time.Second,
	}, log.NewNopLogger())
	require.NoError(t, err)

	qs, err := c.Questions(context.Background(), "0123456789 and the rest is cut")
	require.NoError(t, err)
	assert.Equal(t, []Question{{Query: "Who approves the gowning procedure?", Language: "English", Site: "Site A"}}, qs)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	msgs := got["messages"].([]interface{})
	require.Len(t, msgs, 2)
	user := msgs[1].(map[string]interface{})["content"].(string)
	assert.Contains(t, user, "0123456789")
	assert.NotContains(t, user, "the rest is cut")
	assert.Contains(t, user, "at least 5")
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Config{}, log.NewNopLogger())
	assert.Error(t, err)
}
