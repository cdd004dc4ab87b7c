package log

import (
	"bytes"
	"testing"

	"lifemonitor/pkg/contextx"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestFormatterRendersContextFields(t *testing.T) {
	asserter := assert.New(t)
	buf := &bytes.Buffer{}
	SetOutput(buf)
	getLogger().SetLevel(logrus.DebugLevel)

	ctx := contextx.NewContext()
	ctx.Set(contextx.RequestIDKey, "req-42")
	ctx.Set(contextx.JobKey, "githubEventHandler")
	Infof(ctx, "handled %s", "push")

	out := buf.String()
	asserter.Contains(out, "[lifemonitor] [INFO]")
	asserter.Contains(out, "[req-42 githubEventHandler]")
	asserter.Contains(out, "handled push")
}

func TestFormatterDefaultsMissingFields(t *testing.T) {
	asserter := assert.New(t)
	f := NewLogFormatter()
	f.OutputFormat = "[{{.requestId}} {{.job}}] {{.message}}"
	out, err := f.Format(&logrus.Entry{Message: "hello", Data: logrus.Fields{}})
	if asserter.NoError(err) {
		asserter.Equal("[- -] hello\n", string(out))
	}
}
