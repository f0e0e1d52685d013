package colindex

import (
	"strings"
	"testing"
)

func TestClassify_KVFormat(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Severity
	}{
		{"level=ERROR", `level=ERROR msg="something failed"`, Error},
		{"level=WARN", `level=WARN msg="retrying"`, Warn},
		{"level=INFO", `level=INFO msg="request completed"`, Info},
		{"level=DEBUG", `level=DEBUG msg="entering function"`, Debug},
		{"level=trace", `level=trace msg="step"`, Trace},
		{"level=error lowercase", `level=error msg="oops"`, Error},
		{"level=warning", `level=warning msg="slow"`, Warn},
		{"level=fatal", `level=fatal msg="crash"`, Fatal},
		{"level=critical", `level=critical msg="down"`, Fatal},
		{"severity=error", `severity=error msg="bad"`, Error},
		{"quoted value", `level="WARN" msg="test"`, Warn},
		{"single quoted", `level='info' msg="test"`, Info},
		{"mid-line", `ts=2024-01-01 level=ERROR msg="fail"`, Error},
		{"loglevel does not match", `loglevel=zzz unrelated=1`, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify([]byte(tt.raw)); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestClassify_JSONFormat(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Severity
	}{
		{"level error", `{"level":"error","msg":"fail"}`, Error},
		{"level warn", `{"level":"warn","msg":"slow"}`, Warn},
		{"level info", `{"level":"info","msg":"ok"}`, Info},
		{"level debug", `{"level":"debug","msg":"dbg"}`, Debug},
		{"level ERROR uppercase", `{"level":"ERROR","msg":"fail"}`, Error},
		{"severity field", `{"severity":"warning","msg":"hmm"}`, Warn},
		{"spaced colon", `{"level": "error", "msg": "fail"}`, Error},
		{"panic maps to fatal", `{"level":"panic","msg":"boom"}`, Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify([]byte(tt.raw)); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestClassify_SyslogPriority(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Severity
	}{
		{"err", "<11>Oct 11 22:14:15 host app: failed", Error},
		{"crit", "<10>kernel panic imminent", Fatal},
		{"warning", "<12>disk almost full", Warn},
		{"info", "<14>started service", Info},
		{"debug", "<15>entering loop", Debug},
		{"not a priority", "<notpri> hello", Unknown},
		{"unclosed bracket", "<123 hello", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify([]byte(tt.raw)); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestClassify_LeadingWord(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Severity
	}{
		{"bare ERROR", "ERROR something broke", Error},
		{"bare WARN colon", "WARN: retry scheduled", Warn},
		{"timestamp then level", "2024-01-01T10:00:00Z INFO server listening", Info},
		{"bracketed", "[DEBUG] cache miss", Debug},
		{"trace", "TRACE enter handler", Trace},
		{"no level", "plain message with nothing", Unknown},
		{"level word too deep", strings.Repeat("x", 100) + " ERROR", Unknown},
		{"embedded word ignored", "terrors are not errors_here", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify([]byte(tt.raw)); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseSeverity(t *testing.T) {
	if sev, ok := ParseSeverity("WARNING"); !ok || sev != Warn {
		t.Errorf("ParseSeverity(WARNING) = %v, %v", sev, ok)
	}
	if _, ok := ParseSeverity("verbose"); ok {
		t.Error("ParseSeverity(verbose) should not match")
	}
}
