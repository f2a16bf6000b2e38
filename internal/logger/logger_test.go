package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestFromFallsBackToSingleton(t *testing.T) {
	nop := zap.NewNop()
	Replace(nop)
	if From(context.Background()) != nop {
		t.Fatal("expected singleton when context carries no logger")
	}

	scoped := nop.Named("scoped")
	ctx := ToContext(context.Background(), scoped)
	if From(ctx) != scoped {
		t.Fatal("expected scoped logger from context")
	}
}
