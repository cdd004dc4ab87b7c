package jinja

import (
	"github.com/stretchr/testify/assert"
	"log"
	"testing"
)

func TestEvaluateBool(t *testing.T) {
	asserter := assert.New(t)
	data := map[string]interface{}{
		"test": 1,
	}

	expr := "{% _.test == 1 %}"
	ok := Match(expr)
	if asserter.Equal(true, ok) {
		result, err := Evaluate(expr, data)
		if asserter.NoError(err) {
			if asserter.Equal(true, result) {
				log.Println(result)
			}
		}
	}
}

func TestEvaluateString(t *testing.T) {
	asserter := assert.New(t)
	data := map[string]interface{}{
		"test": 1,
	}

	expr := "This is {% _.test == 1 %}, but some one is {% _.test == 2 %}, it's different"
	ok := Match(expr)
	if asserter.Equal(true, ok) {
		result, err := Evaluate(expr, data)
		if asserter.NoError(err) {
			if asserter.Equal("This is True, but some one is False, it's different", result) {
				log.Println(result)
			}
		}
	}
}

func TestEvaluateGuard(t *testing.T) {
	asserter := assert.New(t)
	data := map[string]interface{}{
		"workflow_type": "galaxy",
	}

	result, err := Evaluate(`{% _.workflow_type == "galaxy" %}`, data)
	if asserter.NoError(err) {
		asserter.Equal(true, result)
	}
	result, err = Evaluate(`{% _.workflow_type %}`, data)
	if asserter.NoError(err) {
		asserter.Equal("galaxy", result)
	}
}

func TestRender(t *testing.T) {
	asserter := assert.New(t)
	data := map[string]interface{}{
		"workflow_title": "Variant <calling>",
		"options":        []string{"galaxy", "cwl"},
	}

	out, err := Render("# {{ workflow_title }}\n{% for o in options %}- `{{ o }}`\n{% endfor %}{{ kebab(workflow_title) }}", data)
	if asserter.NoError(err) {
		asserter.Equal("# Variant <calling>\n- `galaxy`\n- `cwl`\nvariant-calling", out)
	}
}
