package authz_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/oversight/internal/authz"
)

func TestCoordinator_AlwaysAllowShortCircuits(t *testing.T) {
	c := authz.New(authz.WithMode(authz.ModeAlwaysAllow))
	decision, err := c.RequestAuthorization(context.Background(), authz.RequestContext{ToolCallID: "1"})
	require.NoError(t, err)
	assert.Equal(t, authz.DecisionYes, decision)
}

func TestCoordinator_AlwaysDenyShortCircuits(t *testing.T) {
	c := authz.New(authz.WithMode(authz.ModeAlwaysDeny))
	decision, err := c.RequestAuthorization(context.Background(), authz.RequestContext{ToolCallID: "1"})
	require.NoError(t, err)
	assert.Equal(t, authz.DecisionNo, decision)
}

func TestCoordinator_ApproveUnblocksEngine(t *testing.T) {
	c := authz.New(authz.WithTimeout(time.Second))

	resultCh := make(chan authz.Decision, 1)
	go func() {
		d, err := c.RequestAuthorization(context.Background(), authz.RequestContext{ToolCallID: "call-1"})
		require.NoError(t, err)
		resultCh <- d
	}()

	assert.Eventually(t, func() bool {
		return len(c.GetPending()) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, c.HandleResponse("call-1", authz.ReplyApprove))
	assert.Equal(t, authz.DecisionYes, <-resultCh)
}

func TestCoordinator_ApproveAndAllowPromotesMode(t *testing.T) {
	c := authz.New()

	resultCh := make(chan authz.Decision, 1)
	go func() {
		d, _ := c.RequestAuthorization(context.Background(), authz.RequestContext{ToolCallID: "call-1"})
		resultCh <- d
	}()
	assert.Eventually(t, func() bool { return len(c.GetPending()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, c.HandleResponse("call-1", authz.ReplyApproveAndAllow))
	<-resultCh

	assert.Equal(t, authz.ModeAlwaysAllow, c.Mode())
}

func TestCoordinator_TimeoutDenies(t *testing.T) {
	c := authz.New(authz.WithTimeout(10 * time.Millisecond))
	decision, err := c.RequestAuthorization(context.Background(), authz.RequestContext{ToolCallID: "call-1"})
	require.NoError(t, err)
	assert.Equal(t, authz.DecisionNo, decision)
	assert.Empty(t, c.GetPending())
}

func TestCoordinator_HandleResponseUnknownIDErrors(t *testing.T) {
	c := authz.New()
	err := c.HandleResponse("missing", authz.ReplyApprove)
	assert.Error(t, err)
}

func TestCoordinator_Cancel(t *testing.T) {
	c := authz.New(authz.WithTimeout(time.Second))

	resultCh := make(chan authz.Decision, 1)
	go func() {
		d, _ := c.RequestAuthorization(context.Background(), authz.RequestContext{ToolCallID: "call-1"})
		resultCh <- d
	}()
	assert.Eventually(t, func() bool { return len(c.GetPending()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Cancel("call-1"))
	assert.Equal(t, authz.DecisionNo, <-resultCh)
}
