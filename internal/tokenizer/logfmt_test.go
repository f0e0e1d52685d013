package tokenizer

import (
	"reflect"
	"testing"
)

func TestExtractLogfmt(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want map[string]string
	}{
		{
			name: "simple pairs",
			msg:  `level=info msg=started port=8080`,
			want: map[string]string{"level": "info", "msg": "started", "port": "8080"},
		},
		{
			name: "quoted value with spaces",
			msg:  `level=error msg="connection refused" retries=3`,
			want: map[string]string{"level": "error", "msg": "connection refused", "retries": "3"},
		},
		{
			name: "escaped quote in value",
			msg:  `msg="say \"hi\"" ok=true`,
			want: map[string]string{"msg": `say "hi"`, "ok": "true"},
		},
		{
			name: "bare key",
			msg:  `level=warn dryrun`,
			want: map[string]string{"level": "warn", "dryrun": "true"},
		},
		{
			name: "empty value",
			msg:  `user= level=info`,
			want: map[string]string{"user": "", "level": "info"},
		},
		{
			name: "empty quoted value",
			msg:  `user="" level=info`,
			want: map[string]string{"user": "", "level": "info"},
		},
		{
			name: "duplicate key keeps last",
			msg:  `a=1 a=2`,
			want: map[string]string{"a": "2"},
		},
		{
			name: "verbatim case preserved",
			msg:  `Level=ERROR Service=API`,
			want: map[string]string{"Level": "ERROR", "Service": "API"},
		},
		{
			name: "punctuation in keys",
			msg:  `http.status=500 x-request-id=abc`,
			want: map[string]string{"http.status": "500", "x-request-id": "abc"},
		},
		{
			name: "no equals sign",
			msg:  `just a plain message`,
			want: nil,
		},
		{
			name: "json object rejected",
			msg:  `{"level":"info"}`,
			want: nil,
		},
		{
			name: "empty line",
			msg:  "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractLogfmt([]byte(tt.msg))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractLogfmt(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}
