package gormx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapJsonScan(t *testing.T) {
	asserter := assert.New(t)
	m := MapJson{}
	if asserter.NoError(m.Scan([]byte(`{"check_issues": true}`))) {
		asserter.Equal(true, m["check_issues"])
	}

	v, err := MapJson(nil).Value()
	asserter.NoError(err)
	asserter.Nil(v)
}

func TestJsonGeneric(t *testing.T) {
	asserter := assert.New(t)
	type settings struct {
		Branches []string `json:"branches"`
	}
	j := NewJson(settings{Branches: []string{"main"}})
	v, err := j.Value()
	if asserter.NoError(err) {
		var out Json[settings]
		if asserter.NoError(out.Scan(v)) {
			asserter.Equal([]string{"main"}, out.Data.Branches)
		}
	}
}

func TestStringSliceHas(t *testing.T) {
	asserter := assert.New(t)
	s := StringSlice{"a", "b"}
	asserter.True(s.Has("a"))
	asserter.False(s.Has("c"))
}
