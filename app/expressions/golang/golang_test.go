package golang

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	asserter := assert.New(t)
	asserter.True(Match("{{ .workflow_type }}"))
	asserter.True(Match("Tests of {{ .workflow_title }} on {{ .test_engine }}"))
	asserter.False(Match(`{% _.workflow_type == "galaxy" %}`))
	asserter.False(Match("workflow_type"))
}

func TestEvaluate_SingleExpressionKeepsType(t *testing.T) {
	asserter := assert.New(t)
	data := map[string]interface{}{
		"workflow_type": "galaxy",
		"versions":      2,
	}

	cases := map[string]interface{}{
		`{{ eq .workflow_type "galaxy" }}`: true,
		"{{ .versions }}":                  float64(2),
		"{{ .workflow_type }}":             "galaxy",
		"{{ gt .versions 3 }}":             false,
	}
	for expr, expected := range cases {
		result, err := Evaluate(expr, data)
		if asserter.NoError(err, expr) {
			asserter.Equal(expected, result, expr)
		}
	}
}

func TestEvaluate_TemplateRendersString(t *testing.T) {
	asserter := assert.New(t)
	data := map[string]interface{}{
		"workflow_title": "Variant calling",
		"versions":       2,
	}

	result, err := Evaluate("{{ .workflow_title }} has {{ .versions }} versions, latest {{ eq .versions 2 }}", data)
	if asserter.NoError(err) {
		asserter.Equal("Variant calling has 2 versions, latest true", result)
	}
}

func TestEvaluate_Errors(t *testing.T) {
	asserter := assert.New(t)
	_, err := Evaluate("{{ .workflow_title | nosuchfunc }}", map[string]interface{}{"workflow_title": "wf"})
	asserter.Error(err)
}
