package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      common.AnalysisConfig
		wantName string
		wantErr  bool
	}{
		{"rules", common.AnalysisConfig{Provider: "rules"}, "rules", false},
		{"openai gateway", common.AnalysisConfig{Provider: "openai", ChatURL: "http://localhost:9/chat"}, "openai", false},
		{"openai with rules fallback", common.AnalysisConfig{Provider: "OpenAI", Fallback: "rules", APIKey: "k"}, "openai>rules", false},
		{"same fallback ignored", common.AnalysisConfig{Provider: "rules", Fallback: "rules"}, "rules", false},
		{"eino with key", common.AnalysisConfig{Provider: "eino", APIKey: "k", BaseURL: "http://localhost:9/v1"}, "eino", false},
		{"eino without key", common.AnalysisConfig{Provider: "eino"}, "", true},
		{"unknown", common.AnalysisConfig{Provider: "bard"}, "", true},
		{"unknown fallback", common.AnalysisConfig{Provider: "rules", Fallback: "bard"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(context.Background(), tt.cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got analyzer %q", a.Name())
				}
				if !errors.Is(err, common.ErrInvalidInput) && common.CodeOf(err) != common.CodeConfig {
					t.Errorf("err = %v, want a config error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if a.Name() != tt.wantName {
				t.Errorf("name = %q, want %q", a.Name(), tt.wantName)
			}
		})
	}
}
