package service

import (
	"os"
	"testing"

	"github.com/ayo6706/trade-escrow/internal/observability"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	observability.Init()
	undo := zap.ReplaceGlobals(zap.NewNop())
	code := m.Run()
	undo()
	os.Exit(code)
}
