package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec() AgentSpec {
	return AgentSpec{
		Name:         "support",
		Version:      "1.0.0",
		Instructions: "Answer support questions.",
		Tools: []ToolDecl{
			{Name: "search_docs", Description: "Search documentation"},
		},
	}
}

func TestDefine(t *testing.T) {
	t.Run("should accept a valid spec", func(t *testing.T) {
		s, err := Define(validSpec())
		require.NoError(t, err)
		assert.Equal(t, "support", s.Name)
		assert.Len(t, s.Tools, 1)
	})

	t.Run("should reject empty name", func(t *testing.T) {
		in := validSpec()
		in.Name = ""
		_, err := Define(in)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "name")
	})

	t.Run("should reject empty version", func(t *testing.T) {
		in := validSpec()
		in.Version = ""
		_, err := Define(in)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("should reject empty instructions", func(t *testing.T) {
		in := validSpec()
		in.Instructions = ""
		_, err := Define(in)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("should reject spec without tools", func(t *testing.T) {
		in := validSpec()
		in.Tools = nil
		_, err := Define(in)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "tool")
	})

	t.Run("should reject duplicate tool names", func(t *testing.T) {
		in := validSpec()
		in.Tools = append(in.Tools, ToolDecl{Name: "search_docs", Description: "Duplicate"})
		_, err := Define(in)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("should reject confidence values outside the unit interval", func(t *testing.T) {
		in := validSpec()
		in.Policy.Confidence.Default = 1.5
		_, err := Define(in)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "confidence.default")

		in = validSpec()
		in.Policy.Escalation.ConfidenceThreshold = -0.1
		_, err = Define(in)
		assert.ErrorIs(t, err, ErrValidation)

		in = validSpec()
		in.Policy.Confidence.Min = 2
		_, err = Define(in)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("should freeze tool slice against caller mutation", func(t *testing.T) {
		in := validSpec()
		s, err := Define(in)
		require.NoError(t, err)

		in.Tools[0].Name = "mutated"
		assert.Equal(t, "search_docs", s.Tools[0].Name)
	})
}

func TestPolicyDefaults(t *testing.T) {
	t.Run("should default threshold to 0.7", func(t *testing.T) {
		assert.InDelta(t, 0.7, Policy{}.Threshold(), 1e-9)
	})

	t.Run("should prefer explicit escalation threshold", func(t *testing.T) {
		p := Policy{
			Confidence: ConfidencePolicy{Min: 0.6},
			Escalation: EscalationPolicy{ConfidenceThreshold: 0.9},
		}
		assert.InDelta(t, 0.9, p.Threshold(), 1e-9)
	})

	t.Run("should fall back to confidence minimum", func(t *testing.T) {
		p := Policy{Confidence: ConfidencePolicy{Min: 0.8}}
		assert.InDelta(t, 0.8, p.Threshold(), 1e-9)
	})

	t.Run("should default fallback confidence to 0.5", func(t *testing.T) {
		assert.InDelta(t, 0.5, Policy{}.FallbackConfidence(), 1e-9)
		p := Policy{Confidence: ConfidencePolicy{Default: 0.4}}
		assert.InDelta(t, 0.4, p.FallbackConfidence(), 1e-9)
	})

	t.Run("should keep policy-derived scores within the unit interval", func(t *testing.T) {
		p := Policy{Confidence: ConfidencePolicy{Default: 1.5}}
		assert.InDelta(t, 1.0, p.FallbackConfidence(), 1e-9)

		p = Policy{Escalation: EscalationPolicy{ConfidenceThreshold: 3}}
		assert.InDelta(t, 1.0, p.Threshold(), 1e-9)
	})
}

func TestToolLookup(t *testing.T) {
	s, err := Define(validSpec())
	require.NoError(t, err)

	assert.NotNil(t, s.Tool("search_docs"))
	assert.Nil(t, s.Tool("missing"))
	assert.Equal(t, []string{"search_docs"}, s.ToolNames())
}
