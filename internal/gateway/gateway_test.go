package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/user/ledgerclaw/internal/state"
	"github.com/user/ledgerclaw/internal/types"
)

func TestGatewayHandleInbound(t *testing.T) {
	dir := t.TempDir()
	sessions := state.NewSessionStore(dir)

	gw := New(sessions, nil)
	ctx := context.Background()
	gw.Start(ctx)
	defer gw.Stop()

	inbound := &types.InboundRequest{
		Source:     "test",
		SessionKey: types.NewSessionKey("test", "123"),
		UserID:     "user1",
		Text:       "hello",
	}

	run, err := gw.HandleInbound(ctx, inbound)
	if err != nil {
		t.Fatal(err)
	}
	if run.SessionID == "" || run.Request != inbound {
		t.Errorf("run not bound to request: %+v", run)
	}

	sessionList, err := sessions.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessionList) != 1 {
		t.Errorf("expected 1 session, got %d", len(sessionList))
	}
}

func TestGatewayRejectsMissingSessionKey(t *testing.T) {
	gw := New(state.NewSessionStore(t.TempDir()), nil)
	gw.Start(context.Background())
	defer gw.Stop()

	if _, err := gw.HandleInbound(context.Background(), &types.InboundRequest{Source: "test"}); err == nil {
		t.Error("expected error for request without session key")
	}
}

func TestGatewaySameKeySameSession(t *testing.T) {
	dir := t.TempDir()
	sessions := state.NewSessionStore(dir)

	gw := New(sessions, nil)
	ctx := context.Background()
	gw.Start(ctx)
	defer gw.Stop()

	var ids []types.SessionID
	for i := 0; i < 2; i++ {
		run, err := gw.HandleInbound(ctx, &types.InboundRequest{
			Source:     "test",
			SessionKey: types.NewSessionKey("test", "same-key"),
			Text:       "msg",
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, run.SessionID)
	}
	if ids[0] != ids[1] {
		t.Errorf("expected one session for one key, got %v", ids)
	}

	run, err := gw.HandleInbound(ctx, &types.InboundRequest{Source: "test", SessionKey: types.NewSessionKey("test", "other")})
	if err != nil {
		t.Fatal(err)
	}
	if run.SessionID == ids[0] {
		t.Error("expected a different session for a different key")
	}
}

func TestGatewaySubmitWaitsForReply(t *testing.T) {
	gw := New(state.NewSessionStore(t.TempDir()), nil)
	gw.Queue.SetProcessor(func(run *Run) error {
		run.Complete(&types.Reply{SessionID: run.SessionID, RunID: run.ID, Messages: []*types.Message{{
			Role: types.RoleAssistant, Content: "echo: " + run.Request.Text,
		}}})
		return nil
	})
	ctx := context.Background()
	gw.Start(ctx)
	defer gw.Stop()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	reply, err := gw.Submit(ctx, &types.InboundRequest{Source: "test", SessionKey: "test:submit", Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if len(reply.Messages) != 1 || reply.Messages[0].Content != "echo: hi" {
		t.Errorf("unexpected reply: %+v", reply)
	}
}
