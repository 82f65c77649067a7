package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/data-question-platform/internal/model"
)

func runCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestRenderTable(t *testing.T) {
	out, _, err := runCommand(t, `[{"id":1,"name":"alice"},{"id":1000,"name":"bo"}]`, "render")
	require.NoError(t, err)
	assert.Equal(t, "id    name \n-----------\n   1  alice\n1000     bo\n", out)
}

func TestRenderCSV(t *testing.T) {
	out, _, err := runCommand(t, `[{"city":"Paris, FR","n":2}]`, "render", "--csv")
	require.NoError(t, err)
	assert.Equal(t, "city,n\n\"Paris, FR\",2\n", out)
}

func TestRenderTruncationNotice(t *testing.T) {
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < 40; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"v":"` + strings.Repeat("x", 99) + `"}`)
	}
	b.WriteString("]")

	_, errOut, err := runCommand(t, b.String(), "render")
	require.NoError(t, err)
	assert.Contains(t, errOut, "16 rows not shown")
}

func TestRenderRejectsInvalidInput(t *testing.T) {
	_, _, err := runCommand(t, `{"id":1}`, "render")
	assert.Error(t, err)
}

func TestAskRequiresQuestion(t *testing.T) {
	_, _, err := runCommand(t, "", "ask")
	assert.Error(t, err)
}

func TestAskViaNATSReportsUnreachableServer(t *testing.T) {
	t.Setenv("NATS_URL", "nats://127.0.0.1:1")

	_, _, err := runCommand(t, "", "ask", "--via-nats", "--timeout", "5s", "how many users?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
}

func TestAskThreadHelpExplainsScope(t *testing.T) {
	cmd := newAskCommand()
	flag := cmd.Flags().Lookup("thread")
	require.NotNil(t, flag)
	assert.Contains(t, flag.Usage, "--via-nats")
	assert.Contains(t, cmd.Long, "every invocation\nstarts a new conversation")
}

func TestPrintReply(t *testing.T) {
	newCmd := func() (*cobra.Command, *bytes.Buffer) {
		cmd := &cobra.Command{}
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		return cmd, &out
	}

	cmd, out := newCmd()
	err := printReply(cmd, &model.Reply{
		Status:      model.ReplyAnswered,
		Table:       "id\n--\n 1",
		CSV:         "id\n1",
		Query:       "SELECT 1 AS id",
		Assumptions: "None.",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "Assumptions: None.\n\nid\n--\n 1\n\nQuery:\nSELECT 1 AS id\n", out.String())

	cmd, out = newCmd()
	err = printReply(cmd, &model.Reply{Status: model.ReplyFailed, Text: "no luck", Query: "SELECT x"}, false)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "no luck")

	cmd, out = newCmd()
	err = printReply(cmd, &model.Reply{Status: model.ReplyNeedsClarification, Text: "more details?"}, false)
	require.NoError(t, err)
	assert.Equal(t, "more details?\n", out.String())
}
