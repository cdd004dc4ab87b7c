package gormx

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

func scan(s interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal JSON value:", v))
	}
}

func value(s interface{}) (driver.Value, error) {
	v := reflect.ValueOf(s)
	if v.IsZero() {
		return nil, nil
	}
	result, err := json.Marshal(s)
	return string(result), err
}

type SliceJson []interface{}

func (s *SliceJson) Scan(value interface{}) error {
	return scan(s, value)
}

func (s SliceJson) Value() (driver.Value, error) {
	return value(s)
}

type MapJson map[string]interface{}

func (s *MapJson) Scan(value interface{}) error {
	return scan(s, value)
}

func (s MapJson) Value() (driver.Value, error) {
	return value(s)
}

type StringSlice []string

func (s *StringSlice) Scan(value interface{}) error {
	return scan(s, value)
}

func (s StringSlice) Value() (driver.Value, error) {
	return value(s)
}

func (s StringSlice) Has(v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

// Json stores any JSON serializable value in a text column.
type Json[T any] struct {
	Data T
}

func NewJson[T any](data T) Json[T] {
	return Json[T]{Data: data}
}

func (j *Json[T]) Scan(value interface{}) error {
	return scan(&j.Data, value)
}

func (j Json[T]) Value() (driver.Value, error) {
	result, err := json.Marshal(j.Data)
	return string(result), err
}

func (j Json[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Data)
}

func (j *Json[T]) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &j.Data)
}
