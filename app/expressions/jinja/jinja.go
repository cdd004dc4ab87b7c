package jinja

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"lifemonitor/app/expressions/builtin"

	"github.com/flosch/pongo2/v4"
)

var (
	AnyRegexp   = `\{\%.*\%\}`
	JinjaRegexp = `\{\%(.*?)\%\}`

	reIdentifier = regexp.MustCompile(AnyRegexp)
	reExpression = regexp.MustCompile(JinjaRegexp)
)

type JinjaExpression struct {
}

func (e JinjaExpression) Match(expr string) bool {
	return Match(expr)
}

func (e JinjaExpression) Evaluate(expr string, data map[string]interface{}) (interface{}, error) {
	return Evaluate(expr, data)
}

func Match(expr string) bool {
	return reIdentifier.MatchString(expr)
}

func newContext(data map[string]interface{}) pongo2.Context {
	ctx := pongo2.Context{}
	ctx["_"] = data
	for k, v := range builtin.BuiltinFunc {
		ctx[k] = v
	}
	return ctx
}

func EvaluateReturnInterface(expr string, data map[string]interface{}) (interface{}, error) {
	tpl, err := pongo2.FromString(expr)
	if err != nil {
		return nil, err
	}

	result, err := tpl.Execute(newContext(data))
	if err != nil {
		return nil, err
	}

	if result != "" {
		var published interface{}
		err = json.Unmarshal([]byte(result), &published)
		if err != nil {
			return nil, errors.New(fmt.Sprintf("%s, output: '%s'", err.Error(), result))
		}

		return published, nil
	} else {
		return nil, nil
	}
}

func EvaluateReturnString(expr string, data map[string]interface{}) (interface{}, error) {
	tpl, err := pongo2.FromString(expr)
	if err != nil {
		return nil, err
	}

	return tpl.Execute(newContext(data))
}

func Evaluate(expr string, data map[string]interface{}) (interface{}, error) {
	matched := reExpression.FindAllStringSubmatchIndex(expr, -1)

	if len(matched) == 1 && matched[0][0] == 0 && matched[0][1] == len(expr) {
		// a single expression yields its value
		tplStr := fmt.Sprintf(`{{ json(%s)|safe }}`, expr[matched[0][2]:matched[0][3]])
		return EvaluateReturnInterface(tplStr, data)
	} else {
		// otherwise the expression is rendered as a template
		exprParts := []string{}
		lastPos := 0
		for i := 0; i < len(matched); i++ {
			values := matched[i]
			exprPart := fmt.Sprintf(`{{ %s }}`, expr[values[2]:values[3]])

			exprParts = append(exprParts, expr[lastPos:values[0]])
			exprParts = append(exprParts, exprPart)

			if i == len(matched)-1 {
				exprParts = append(exprParts, expr[values[1]:])
			} else {
				lastPos = values[1]
			}
		}

		tplStr := strings.Join(exprParts, "")
		return EvaluateReturnString(tplStr, data)
	}
}

// Render executes a full template. Values of data are available both at the top
// level and under "_"; output is not HTML escaped.
func Render(tpl string, data map[string]interface{}) (string, error) {
	t, err := pongo2.FromString("{% autoescape off %}" + tpl + "{% endautoescape %}")
	if err != nil {
		return "", err
	}
	ctx := newContext(data)
	for k, v := range data {
		if _, reserved := ctx[k]; !reserved {
			ctx[k] = v
		}
	}
	return t.Execute(ctx)
}
