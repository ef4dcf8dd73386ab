package main

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/MrWong99/soundstage/internal/config"
	"github.com/MrWong99/soundstage/pkg/audio/mock"
)

func TestPrintRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		want  string
	}{
		{name: "short", value: "mock", want: "mock"},
		{name: "exact width", value: "0123456789abcdefghi", want: "0123456789abcdefghi"},
		{name: "ascii cut", value: "127.0.0.1:9090/control", want: "127.0.0.1:9090/con…"},
		{name: "multibyte cut", value: "Lautsprecher-Ausgänge-Ü", want: "Lautsprecher-Ausgä…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			printRow(&buf, "Drivers", tt.value)
			line := strings.TrimSuffix(buf.String(), "\n")

			if !utf8.ValidString(line) {
				t.Fatalf("printRow() wrote invalid UTF-8: %q", line)
			}
			if !strings.Contains(line, ": "+tt.want) {
				t.Errorf("printRow() = %q, want value %q", line, tt.want)
			}
			if got := utf8.RuneCountInString(line); got != 41 {
				t.Errorf("printRow() width = %d runes, want 41", got)
			}
		})
	}
}

func TestPrintStartupSummary_Aligned(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Engine.Backend = "software"
	cfg.Engine.Fallback = []string{"mock"}
	eng := &mock.Engine{DriverNames: []string{"Haut-parleurs (Réaltek)", "null"}}

	var buf bytes.Buffer
	printStartupSummary(&buf, cfg, eng)

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	for i, line := range lines {
		if !utf8.ValidString(line) {
			t.Errorf("line %d is invalid UTF-8: %q", i, line)
		}
		if got := utf8.RuneCountInString(line); got != 41 {
			t.Errorf("line %d width = %d runes, want 41: %q", i, got, line)
		}
	}
}
