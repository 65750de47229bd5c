package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consigliere/internal/game"
)

func envelope(result any) []byte {
	raw, _ := json.Marshal(result)
	out, _ := json.Marshal(map[string]any{"ok": true, "result": json.RawMessage(raw)})
	return out
}

type apiCall struct {
	method string
	body   map[string]any
}

func testServer(t *testing.T, results map[string]any) (*Client, *[]apiCall) {
	t.Helper()
	var calls []apiCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Path shape: /bot<token>/<method>
		method := r.URL.Path[len("/bottest-token/"):]
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		calls = append(calls, apiCall{method: method, body: body})

		result, ok := results[method]
		if !ok {
			w.Write([]byte(`{"ok":false,"description":"method not stubbed","error_code":404}`))
			return
		}
		w.Write(envelope(result))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientConfig{
		Token:       "test-token",
		BaseURL:     srv.URL,
		PollTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	return c, &calls
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient(ClientConfig{}, nil)
	require.Error(t, err)
}

func TestGetMeCachesSelf(t *testing.T) {
	c, _ := testServer(t, map[string]any{
		"getMe": User{ID: 99, IsBot: true, Username: "ConsigliereBot"},
	})

	me, err := c.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(99), me.ID)
	assert.Equal(t, "ConsigliereBot", c.Username())
}

func TestSendMessageWithButtons(t *testing.T) {
	c, calls := testServer(t, map[string]any{
		"sendMessage": Message{MessageID: 123},
	})

	id, err := c.SendMessage(context.Background(), -100, "pick one", &game.SendOptions{
		Buttons: [][]game.Button{{{Label: "Next step", Data: "next_step"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(123), id)

	require.Len(t, *calls, 1)
	body := (*calls)[0].body
	assert.Equal(t, "pick one", body["text"])
	markup, ok := body["reply_markup"].(map[string]any)
	require.True(t, ok, "buttons become an inline keyboard")
	rows := markup["inline_keyboard"].([]any)
	require.Len(t, rows, 1)
	btn := rows[0].([]any)[0].(map[string]any)
	assert.Equal(t, "Next step", btn["text"])
	assert.Equal(t, "next_step", btn["callback_data"])
}

func TestReplyToSetsReplyTarget(t *testing.T) {
	c, calls := testServer(t, map[string]any{
		"sendMessage": Message{MessageID: 124},
	})

	require.NoError(t, c.ReplyTo(context.Background(), -100, 77, "noted"))

	body := (*calls)[0].body
	assert.Equal(t, float64(77), body["reply_to_message_id"])
}

func TestRosterSizeExcludesBot(t *testing.T) {
	c, _ := testServer(t, map[string]any{"getChatMemberCount": 6})

	n, err := c.RosterSize(context.Background(), -100)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestAPIErrorSurfaces(t *testing.T) {
	c, _ := testServer(t, map[string]any{})

	_, err := c.SendMessage(context.Background(), -100, "hi", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not stubbed")
}

func TestAnswerCallback(t *testing.T) {
	c, calls := testServer(t, map[string]any{"answerCallbackQuery": true})

	require.NoError(t, c.AnswerCallback(context.Background(), "cb9", "counted"))
	body := (*calls)[0].body
	assert.Equal(t, "cb9", body["callback_query_id"])
	assert.Equal(t, "counted", body["text"])
}
