package logsvc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kenamplan/backend/core/user"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapLogger(zap.New(core))

	usr := user.User{ID: "42", Username: "jane"}
	l.Error("checkout failed", errors.New("boom"), map[string]interface{}{"rental": "KP-1"}, usr)
	l.Debug("plain")

	entries := logs.AllUntimed()
	if assert.Len(t, entries, 2) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "checkout failed", entries[0].Message)
		assert.Equal(t, "boom", fields["error"])
		assert.Equal(t, "KP-1", fields["rental"])
		assert.Equal(t, "42", fields["user_id"])
		assert.Equal(t, "jane", fields["username"])
		assert.Equal(t, "plain", entries[1].Message)
	}
}
