package embedding

import (
	"context"
	"testing"
)

func TestParseTaskType(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "RETRIEVAL_QUERY", false},
		{"retrieval_document", "RETRIEVAL_DOCUMENT", false},
		{" SEMANTIC_SIMILARITY ", "SEMANTIC_SIMILARITY", false},
		{"nonsense", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTaskType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err=%v, wantErr=%v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewGenAIEngine_RequiresKey(t *testing.T) {
	if _, err := NewGenAIEngine(context.Background(), "", "", ""); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestNewGenAIEngine_RejectsTaskType(t *testing.T) {
	if _, err := NewGenAIEngine(context.Background(), "key", "", "bogus"); err == nil {
		t.Fatal("expected error for unknown task type")
	}
}
