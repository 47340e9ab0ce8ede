package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/stride/internal/presentation/graph"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name        string
		overlay     *graph.Overlay
		contains    []string
		notContains []string
	}{
		{
			name: "Shapes And Edges",
			contains: []string{
				"graph LR",
				"prepare((\"Prepare <br/> 0-20%\"))",
				"perform[\"Perform <br/> 41-70%\"]",
				"advance([\"Advance <br/> 91-100%\"])",
				"prepare -- \"plan\" --> activate",
				"analyze --> advance",
				"activate -.-> prepare",
			},
			notContains: []string{"classDef"},
		},
		{
			name:    "Overlay",
			overlay: &graph.Overlay{CurrentStage: domain.StagePerform, HasPlan: true},
			contains: []string{
				"class prepare visited;",
				"class activate visited;",
				"class perform current;",
				"%% plan generated",
			},
			notContains: []string{"class analyze", "class advance"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(domain.Stages(), tt.overlay)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, unwanted := range tt.notContains {
				assert.False(t, strings.Contains(got, unwanted), "unexpected %q", unwanted)
			}
		})
	}
}
