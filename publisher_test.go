package websub_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/websub"
	"github.com/coregx/websub/model"
)

func TestNewPublisher(t *testing.T) {
	_, err := websub.NewPublisher(nil)
	assert.Error(t, err)
}

func TestPublisher_Publish(t *testing.T) {
	queue := newScriptedQueue()
	p, err := websub.NewPublisher(queue)
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx(), websub.PublishRequest{
		Predicate: "UN.CEFACT.TRADE.created",
		Message:   json.RawMessage(`{"id": 1}`),
	}))
	require.Len(t, queue.posted, 1)
	assert.Zero(t, queue.posted[0].delay)

	job, err := model.DecodeNotificationJob(queue.posted[0].body)
	require.NoError(t, err)
	assert.Equal(t, "UN.CEFACT.TRADE.created", job.Predicate)
	assert.JSONEq(t, `{"id": 1}`, string(job.Message))
}

func TestPublisher_PredicateFromMessage(t *testing.T) {
	queue := newScriptedQueue()
	p, err := websub.NewPublisher(queue)
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx(), websub.PublishRequest{
		Message: json.RawMessage(`{"predicate": "aa.bb.cc.dd"}`),
	}))
	assert.Len(t, queue.posted, 1)
}

func TestPublisher_Invalid(t *testing.T) {
	tests := []struct {
		name string
		req  websub.PublishRequest
	}{
		{"no predicate", websub.PublishRequest{}},
		{"message without predicate", websub.PublishRequest{Message: json.RawMessage(`{"x": 1}`)}},
		{"slashes", websub.PublishRequest{Predicate: "aa/bb"}},
		{"wildcard", websub.PublishRequest{Predicate: "aa.bb.*"}},
		{"invalid json", websub.PublishRequest{Predicate: "aa.bb", Message: json.RawMessage(`{oops`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := newScriptedQueue()
			p, err := websub.NewPublisher(queue)
			require.NoError(t, err)

			err = p.Publish(ctx(), tt.req)
			assert.True(t, websub.IsValidation(err), "got %v", err)
			assert.Empty(t, queue.posted)
		})
	}
}

func TestPublisher_QueueError(t *testing.T) {
	queue := newScriptedQueue()
	queue.postErr = func([]byte) error { return errBroker }
	p, err := websub.NewPublisher(queue)
	require.NoError(t, err)

	err = p.Publish(ctx(), websub.PublishRequest{Predicate: "aa.bb"})
	assert.ErrorIs(t, err, errBroker)
}
