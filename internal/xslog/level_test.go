package xslog

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Level
		wantErr bool
	}{
		{name: "debug", input: "debug", want: LevelDebug},
		{name: "upper case", input: "WARN", want: LevelWarn},
		{name: "padded", input: " error ", want: LevelError},
		{name: "info", input: "info", want: LevelInfo},
		{name: "invalid", input: "verbose", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	t.Parallel()

	if got := FromContext(context.Background()); got != slog.Default() {
		t.Error("FromContext() without logger should return slog.Default()")
	}
}

func TestWithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(&buf, LevelInfo))
	ctx = WithAttrs(ctx, Endpoint("recovery"))

	FromContext(ctx).InfoContext(ctx, "hello")

	if !strings.Contains(buf.String(), `"endpoint":"recovery"`) {
		t.Errorf("log output %q missing endpoint attr", buf.String())
	}
}

func TestSessionIDTruncated(t *testing.T) {
	t.Parallel()

	attr := SessionID("0123456789abcdef")
	if got := attr.Value.String(); got != "01234567" {
		t.Errorf("SessionID() value = %q, want %q", got, "01234567")
	}
}
