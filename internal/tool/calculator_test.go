package tool_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/oversight/internal/tool"
)

func TestCalculator_EvaluatesArithmetic(t *testing.T) {
	calc := tool.Calculator{}

	cases := map[string]string{
		"2 + 3":       "5",
		"2 + 3 * 4":   "14",
		"(2 + 3) * 4": "20",
		"10 / 4":      "2.5",
		"10 / 5":      "2",
		"7 % 3":       "1",
		"-5 + 2":      "-3",
	}

	for expr, want := range cases {
		got, err := calc.Execute(context.Background(), map[string]any{"expression": expr})
		require.NoError(t, err, expr)
		assert.Equal(t, want, got, expr)
	}
}

func TestCalculator_RejectsDivisionByZero(t *testing.T) {
	calc := tool.Calculator{}
	_, err := calc.Execute(context.Background(), map[string]any{"expression": "1 / 0"})
	assert.Error(t, err)
}

func TestCalculator_RejectsNonArithmeticSyntax(t *testing.T) {
	calc := tool.Calculator{}
	_, err := calc.Execute(context.Background(), map[string]any{"expression": "os.Exit(1)"})
	assert.Error(t, err)
}

func TestCalculator_RejectsMissingExpression(t *testing.T) {
	calc := tool.Calculator{}
	_, err := calc.Execute(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestCalculator_Metadata(t *testing.T) {
	meta := tool.Calculator{}.Metadata()
	assert.Equal(t, "calculator", meta.Name)
	assert.NotEmpty(t, meta.Description)
}
