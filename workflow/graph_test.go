package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGraph_Validation(t *testing.T) {
	tests := []struct {
		name    string
		defs    []StepDefinition
		wantErr string
	}{
		{
			name:    "no steps",
			defs:    nil,
			wantErr: "no steps",
		},
		{
			name: "empty name",
			defs: []StepDefinition{
				{Name: ""},
			},
			wantErr: "empty name",
		},
		{
			name: "duplicate name",
			defs: []StepDefinition{
				{Name: "a"},
				{Name: "a"},
			},
			wantErr: "duplicate step name",
		},
		{
			name: "unknown dependency",
			defs: []StepDefinition{
				{Name: "a", DependsOn: []string{"ghost"}},
			},
			wantErr: "unknown step",
		},
		{
			name: "self dependency",
			defs: []StepDefinition{
				{Name: "a", DependsOn: []string{"a"}},
			},
			wantErr: "depends on itself",
		},
		{
			name: "cycle",
			defs: []StepDefinition{
				{Name: "a", DependsOn: []string{"b"}},
				{Name: "b", DependsOn: []string{"a"}},
			},
			wantErr: "cycle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(tt.defs...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewGraph_TopologicalOrder(t *testing.T) {
	g, err := NewGraph(
		StepDefinition{Name: "curation", DependsOn: []string{"financials", "news"}},
		StepDefinition{Name: "grounding"},
		StepDefinition{Name: "financials", DependsOn: []string{"grounding"}},
		StepDefinition{Name: "news", DependsOn: []string{"grounding"}},
	)
	require.NoError(t, err)

	pos := make(map[string]int)
	for i, def := range g.Steps() {
		pos[def.Name] = i
	}
	assert.Less(t, pos["grounding"], pos["financials"])
	assert.Less(t, pos["grounding"], pos["news"])
	assert.Less(t, pos["financials"], pos["curation"])
	assert.Less(t, pos["news"], pos["curation"])
	assert.Equal(t, 4, g.Len())
}

func TestGraph_StepLookup(t *testing.T) {
	g := MustGraph(
		StepDefinition{Name: "grounding", Topic: "grounding", Required: true},
	)

	def, ok := g.Step("grounding")
	require.True(t, ok)
	assert.True(t, def.Required)
	assert.Equal(t, "grounding", def.Topic)

	_, ok = g.Step("ghost")
	assert.False(t, ok)
}

func TestMustGraph_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() {
		MustGraph(StepDefinition{Name: "a", DependsOn: []string{"missing"}})
	})
}
