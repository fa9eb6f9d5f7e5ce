package chatbot

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AssistChat/internal/controller"
	"AssistChat/internal/session"
	"AssistChat/internal/storage"
)

type echoCompleter struct{}

func (echoCompleter) Complete(_ context.Context, window []session.Message) (session.Message, error) {
	last := window[len(window)-1]
	return session.NewMessage(session.RoleAssistant, "echo: "+last.Content+"\n```go\nx := 1\n```"), nil
}

func runScript(t *testing.T, script string, archives Archives) (string, *controller.Controller) {
	t.Helper()
	store := session.NewStore(storage.NewMemory(), "", nil)
	ctl := controller.New(store, echoCompleter{}, nil)

	var out strings.Builder
	bot := New(ctl, Options{In: strings.NewReader(script), Out: &out, Archives: archives})
	require.NoError(t, bot.Run(context.Background()))
	return out.String(), ctl
}

func TestRunSendsMessagesAndRendersCode(t *testing.T) {
	out, ctl := runScript(t, "hello\n   \n/quit\nignored\n", nil)

	assert.Contains(t, out, session.GreetingText)
	assert.Contains(t, out, "Assistant: echo: hello")
	assert.Contains(t, out, "┌─ go")
	assert.Contains(t, out, "Goodbye!")
	assert.Len(t, ctl.Messages(), 3)
}

func TestClearNeedsConfirmation(t *testing.T) {
	out, ctl := runScript(t, "q\n/clear\nn\n", nil)
	assert.Contains(t, out, "Kept chat history.")
	assert.Len(t, ctl.Messages(), 3)

	out, ctl = runScript(t, "q\n/clear\ny\n", nil)
	assert.Contains(t, out, session.ClearedText)
	require.Len(t, ctl.Messages(), 1)
}

func TestUnknownCommandReported(t *testing.T) {
	out, _ := runScript(t, "/nope\n", nil)
	assert.Contains(t, out, "unknown command: /nope")
}

func TestArchivesCommand(t *testing.T) {
	out, _ := runScript(t, "/archives\n", nil)
	assert.Contains(t, out, "Archives are not kept")

	db, err := storage.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	defer db.Close()

	store := session.NewStore(db, "", nil)
	ctl := controller.New(store, echoCompleter{}, nil)
	require.True(t, ctl.Submit(context.Background(), "first"))
	ctl.Clear()

	var buf strings.Builder
	bot := New(ctl, Options{In: strings.NewReader("/archives\n"), Out: &buf, Archives: db})
	require.NoError(t, bot.Run(context.Background()))
	assert.Contains(t, buf.String(), "(3 messages)")
}
