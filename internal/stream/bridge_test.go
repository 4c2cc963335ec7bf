package stream_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/oversight/internal/agent"
	"github.com/kadirpekel/oversight/internal/authz"
	"github.com/kadirpekel/oversight/internal/event"
	"github.com/kadirpekel/oversight/internal/llm"
	"github.com/kadirpekel/oversight/internal/loopdetect"
	"github.com/kadirpekel/oversight/internal/memory"
	"github.com/kadirpekel/oversight/internal/message"
	"github.com/kadirpekel/oversight/internal/stream"
	"github.com/kadirpekel/oversight/internal/tool"
)

type scriptedLLM struct {
	responses []llm.Response
	i         int
}

func (s *scriptedLLM) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if s.i >= len(s.responses) {
		return llm.Response{Message: message.Message{Role: message.RoleAssistant, Content: "Final Answer: done"}}, nil
	}
	r := s.responses[s.i]
	s.i++
	return r, nil
}

func newTestBridge(t *testing.T, responses []llm.Response) *stream.Bridge {
	t.Helper()
	coord := authz.New(authz.WithMode(authz.ModeAlwaysAllow))
	registry := tool.NewRegistry(coord, 2)
	mem := memory.New()
	detector := loopdetect.New(loopdetect.DefaultConfig())
	e := agent.New(agent.Config{MaxSteps: 10}, &scriptedLLM{responses: responses}, registry, nil, mem, detector, coord)
	return stream.NewBridge(e, "", time.Hour)
}

func collect(t *testing.T, events <-chan event.Event, keepAlive <-chan struct{}) []event.Event {
	t.Helper()
	var out []event.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-keepAlive:
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestBridge_SimpleFinalAnswerSequence(t *testing.T) {
	b := newTestBridge(t, []llm.Response{
		{Message: message.Message{Role: message.RoleAssistant, Content: "Final Answer: Hi"}},
	})

	events, keepAlive := b.Run(context.Background(), stream.RunInput{
		ThreadID: "t1", RunID: "r1",
		Messages: []message.Message{{Role: message.RoleUser, Content: "hello"}},
	})
	got := collect(t, events, keepAlive)

	require.GreaterOrEqual(t, len(got), 4)
	assert.Equal(t, event.TypeRunStarted, got[0].Type)
	assert.Equal(t, event.TypeTextMessageStart, got[1].Type)
	assert.Equal(t, event.TypeTextMessageContent, got[2].Type)
	assert.Equal(t, "Final Answer: Hi", got[2].Delta)
	assert.Equal(t, event.TypeTextMessageEnd, got[3].Type)
	assert.Equal(t, event.TypeRunFinished, got[len(got)-1].Type)
}

func TestBridge_IceBreakerSentinelSkipsEngine(t *testing.T) {
	b := newTestBridge(t, nil)

	events, keepAlive := b.Run(context.Background(), stream.RunInput{
		ThreadID: "t1", RunID: "r1",
		Messages: []message.Message{{Role: message.RoleUser, Content: "gola-connect-HACK"}},
	})
	got := collect(t, events, keepAlive)

	require.Len(t, got, 5)
	assert.Equal(t, event.TypeRunStarted, got[0].Type)
	assert.Equal(t, "Hey there! What can I do for you?", got[2].Delta)
	assert.Equal(t, event.TypeRunFinished, got[4].Type)
}

func TestBridge_ContinuationHintKeepsRunAlive(t *testing.T) {
	b := newTestBridge(t, []llm.Response{
		{Message: message.Message{Role: message.RoleAssistant, Content: "Let me search for that."}},
		{Message: message.Message{Role: message.RoleAssistant, Content: "Final Answer: found it"}},
	})

	events, keepAlive := b.Run(context.Background(), stream.RunInput{
		ThreadID: "t1", RunID: "r1",
		Messages: []message.Message{{Role: message.RoleUser, Content: "find something"}},
	})
	got := collect(t, events, keepAlive)

	var runFinishedCount int
	var sawFirst, sawSecond bool
	for _, e := range got {
		if e.Type == event.TypeRunFinished {
			runFinishedCount++
		}
		if e.Type == event.TypeTextMessageContent && e.Delta == "Let me search for that." {
			sawFirst = true
		}
		if e.Type == event.TypeTextMessageContent && e.Delta == "Final Answer: found it" {
			sawSecond = true
		}
	}
	assert.Equal(t, 1, runFinishedCount, "exactly one RUN_FINISHED")
	assert.True(t, sawFirst && sawSecond, "both steps' content should be emitted")
}
