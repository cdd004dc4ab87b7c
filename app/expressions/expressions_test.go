package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruthy(t *testing.T) {
	asserter := assert.New(t)
	data := map[string]interface{}{
		"workflow_type": "galaxy",
		"count":         2,
	}

	cases := map[string]bool{
		`{% _.workflow_type == "galaxy" %}`: true,
		`{% _.workflow_type == "cwl" %}`:    false,
		`{{ eq .workflow_type "galaxy" }}`:  true,
		`{{ gt .count 3 }}`:                 false,
		"workflow_type":                     true,
	}
	for expr, expected := range cases {
		ok, err := Truthy(expr, data)
		if asserter.NoError(err, expr) {
			asserter.Equal(expected, ok, expr)
		}
	}
}

func TestEvaluateRecursively(t *testing.T) {
	asserter := assert.New(t)
	data := map[string]interface{}{"name": "wf"}

	out, err := EvaluateRecursively(map[string]interface{}{
		"title": "Workflow {{ .name }}",
		"files": []interface{}{"{% _.name %}.ga", 3},
	}, data)
	if asserter.NoError(err) {
		asserter.Equal(map[string]interface{}{
			"title": "Workflow wf",
			"files": []interface{}{"wf.ga", 3},
		}, out)
	}
}
