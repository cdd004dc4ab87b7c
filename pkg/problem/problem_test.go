package problem

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindsThroughWrapping(t *testing.T) {
	asserter := assert.New(t)
	err := errors.Wrap(NotFound("workflow", "abc"), "lookup")

	asserter.True(Is(err, KindNotFound))
	asserter.False(Is(err, KindConflict))
	asserter.Equal(http.StatusNotFound, StatusOf(err))
	asserter.Equal(http.StatusInternalServerError, StatusOf(errors.New("boom")))
}

func TestTestingServiceExceptionKeepsCause(t *testing.T) {
	asserter := assert.New(t)
	cause := errors.New("connection refused")
	err := TestingServiceException(cause, "jenkins %s", "https://ci.example.org")

	asserter.ErrorIs(err, cause)
	asserter.Contains(err.Error(), "connection refused")
	asserter.Equal(http.StatusInternalServerError, err.Status())
}

func TestWriteProblemDocument(t *testing.T) {
	asserter := assert.New(t)
	rec := httptest.NewRecorder()
	Write(rec, NotFound("workflow", "abc"), "/workflows/abc")

	asserter.Equal(http.StatusNotFound, rec.Code)
	asserter.Equal(ContentType, rec.Header().Get("Content-Type"))
	doc := Document{}
	if asserter.NoError(json.Unmarshal(rec.Body.Bytes(), &doc)) {
		asserter.Equal("Resource not found", doc.Title)
		asserter.Equal("/workflows/abc", doc.Instance)
		asserter.Equal(404, doc.Status)
		asserter.Equal("abc", doc.Extra["resource_identifier"])
	}
}
