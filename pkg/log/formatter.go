package log

import (
	"bytes"
	"os"
	"strings"
	"text/template"

	"github.com/sirupsen/logrus"
)

const (
	defaultTimestampFormat = "2006-01-02 15:04:05.000"
	defaultFormat          = "{{.timestamp}} {{.pid}} [{{.name}}] [{{.levelname}}] {{.message}}"
)

type LogFormatter struct {
	TimestampFormat string
	OutputFormat    string

	tpl *template.Template
}

func NewLogFormatter() *LogFormatter {
	return &LogFormatter{
		TimestampFormat: defaultTimestampFormat,
		OutputFormat:    defaultFormat,
	}
}

func (f *LogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer

	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	data := map[string]interface{}{
		"timestamp": entry.Time.Format(f.TimestampFormat),
		"pid":       os.Getpid(),
		"levelname": strings.ToUpper(entry.Level.String()),
		"message":   entry.Message,
		"requestId": "-",
		"job":       "-",
		"name":      "-",
	}
	for key, value := range entry.Data {
		data[key] = value
	}

	if f.tpl == nil {
		t, err := template.New("").Parse(f.OutputFormat)
		if err != nil {
			return nil, err
		}
		f.tpl = t
	}
	if err := f.tpl.Execute(b, data); err != nil {
		return nil, err
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}
