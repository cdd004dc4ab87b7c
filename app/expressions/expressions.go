// Package expressions evaluates the inline expressions used by wizard guards
// and repository templates. "{{ ... }}" is a Go template expression and
// "{% ... %}" a jinja expression.
package expressions

import (
	"fmt"
	"reflect"
	"strings"

	"lifemonitor/app/expressions/golang"
	"lifemonitor/app/expressions/jinja"
	"lifemonitor/pkg/log"
)

type Expression interface {
	Match(expr string) bool
	Evaluate(expr string, data map[string]interface{}) (interface{}, error)
}

var (
	builtinExpressions = []Expression{
		golang.GolangExpression{},
		jinja.JinjaExpression{},
	}
)

func Evaluate(expr string, dataCtx map[string]interface{}) (interface{}, error) {
	for _, expression := range builtinExpressions {
		if expression.Match(expr) {
			return expression.Evaluate(expr, dataCtx)
		}
	}
	// a bare name refers to a value of the context
	result, ok := dataCtx[expr]
	if ok {
		return result, nil
	}
	return expr, nil
}

// Truthy evaluates expr and reports whether the result holds.
func Truthy(expr string, dataCtx map[string]interface{}) (bool, error) {
	result, err := Evaluate(expr, dataCtx)
	if err != nil {
		return false, err
	}
	switch v := result.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "false", "0", "none", "no":
			return false, nil
		}
		return true, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("expression '%s' is not a condition: %v", expr, v)
	}
}

func EvaluateRecursively(data interface{}, dataCtx map[string]interface{}) (interface{}, error) {
	switch reflect.ValueOf(data).Kind() {
	case reflect.Slice:
		var result []interface{}

		for _, one := range data.([]interface{}) {
			r, err := EvaluateRecursively(one, dataCtx)
			if err != nil {
				return nil, err
			}
			result = append(result, r)
		}

		return result, nil

	case reflect.String:
		r, err := Evaluate(data.(string), dataCtx)
		if err != nil {
			log.Debugf(nil, "Expression %s is not evaluated, [context=%#v]: %s", data.(string), dataCtx, err.Error())
			return data, nil
		}
		return r, nil

	case reflect.Map:
		result := map[string]interface{}{}

		for k, v := range data.(map[string]interface{}) {
			r, err := EvaluateRecursively(v, dataCtx)
			if err != nil {
				return nil, err
			}
			result[k] = r
		}

		return result, nil

	default:
		return data, nil
	}
}
