package logging

import (
	"log/slog"
	"testing"
)

func TestMaskField(t *testing.T) {
	if attr := MaskField("authorization", "Bearer abc"); attr.Value.String() != RedactedValue {
		t.Fatalf("expected redaction, got %s", attr.Value.String())
	}
	if attr := MaskField("route", "/v1/swap"); attr.Value.String() != "/v1/swap" {
		t.Fatalf("allowlisted key masked")
	}
	if attr := MaskField("token", " "); attr.Value.String() != " " {
		t.Fatalf("empty values should pass through")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("%q: expected %s, got %s", raw, want, got)
		}
	}
}
