package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/data-question-platform/internal/model"
)

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "dataqa.replies.1700000000_000100", ReplySubject("1700000000.000100"))
	assert.Equal(t, "dataqa.replies.a_b_c", ReplySubject("a*b>c"))
	assert.Equal(t, "dataqa.replies.C1", ReplySubject("C1"))
}

func TestDecodeQuestion(t *testing.T) {
	ev, err := decodeQuestion([]byte(`{"text":"top 5 users","thread_id":"T1","tenant_id":"acme"}`))
	require.NoError(t, err)
	assert.Equal(t, "top 5 users", ev.Text)
	assert.Equal(t, "T1", ev.ThreadID)
	assert.Equal(t, "acme", ev.TenantID)

	_, err = decodeQuestion([]byte(`{"text":"q"}`))
	assert.Error(t, err)

	_, err = decodeQuestion([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncodeQuestion(t *testing.T) {
	ev := model.QuestionEvent{Text: "top 5 users", ThreadID: "T1", TenantID: "acme"}

	data, err := encodeQuestion(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"top 5 users","thread_id":"T1","tenant_id":"acme"}`, string(data))

	decoded, err := decodeQuestion(data)
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)

	data, err = encodeQuestion(model.QuestionEvent{Text: "q", ThreadID: "T1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"q","thread_id":"T1"}`, string(data))

	_, err = encodeQuestion(model.QuestionEvent{Text: "  ", ThreadID: "T1"})
	assert.Error(t, err)
	_, err = encodeQuestion(model.QuestionEvent{Text: "q"})
	assert.Error(t, err)
}

func TestDecodeReply(t *testing.T) {
	reply, err := decodeReply([]byte(`{"question":"q","thread_id":"T1","status":"answered","text":"1 row","row_count":1}`))
	require.NoError(t, err)
	assert.Equal(t, model.ReplyAnswered, reply.Status)
	assert.Equal(t, 1, reply.RowCount)

	_, err = decodeReply([]byte(`{"thread_id":"T1"}`))
	assert.Error(t, err)

	_, err = decodeReply([]byte(`[`))
	assert.Error(t, err)
}
