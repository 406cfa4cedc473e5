package logger

import (
	"context"
	"testing"

	"SocialSync/pkg/ctxmeta"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevelFuncsAttachContextMeta(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := L()
	ReplaceGlobal(zap.New(core))
	defer ReplaceGlobal(prev)

	ctx := ctxmeta.WithTraceID(context.Background(), "trace-1")
	ctx = ctxmeta.WithPrincipal(ctx, "a@x.io")

	Info(ctx, "hello", String("k", "v"))
	Warn(context.TODO(), "no ctx")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "trace-1", fields["trace_id"])
		assert.Equal(t, "a@x.io", fields["principal"])
		assert.Equal(t, "v", fields["k"])
		assert.NotContains(t, entries[1].ContextMap(), "trace_id")
	}
}
