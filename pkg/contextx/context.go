package contextx

import (
	"context"
	"time"
)

const (
	RequestIDKey = "requestId"
	JobKey       = "job"
	UserKey      = "user"
)

// Context is the request or job scoped context passed through objects and logs.
type Context struct {
	context.Context
	dbTx interface{}
	data map[string]interface{}
}

func (ctx *Context) Clone() *Context {
	newCtx := &Context{
		Context: ctx.Context,
		data:    map[string]interface{}{},
	}
	for k, v := range ctx.data {
		newCtx.data[k] = v
	}

	return newCtx
}

// WithTimeout returns a child context sharing the data map.
func (ctx *Context) WithTimeout(d time.Duration) (*Context, context.CancelFunc) {
	inner, cancel := context.WithTimeout(ctx.Context, d)
	child := ctx.Clone()
	child.Context = inner
	child.dbTx = ctx.dbTx
	return child, cancel
}

func (ctx *Context) Set(name string, value interface{}) {
	ctx.data[name] = value
}

func (ctx *Context) Get(name string) (interface{}, bool) {
	v, ok := ctx.data[name]
	return v, ok
}

func (ctx *Context) GetString(name string) string {
	if v, ok := ctx.data[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (ctx *Context) GetDB() interface{} {
	return ctx.dbTx
}

func (ctx *Context) SetDB(tx interface{}) {
	ctx.dbTx = tx
}

func (ctx *Context) GetMap() map[string]interface{} {
	return ctx.data
}

func (ctx *Context) RequestID() string {
	return ctx.GetString(RequestIDKey)
}

func (ctx *Context) JobID() string {
	return ctx.GetString(JobKey)
}

func NewContext() *Context {
	return &Context{
		Context: context.Background(),
		data:    map[string]interface{}{},
	}
}

// From wraps a plain context, reusing it when it already is a *Context.
func From(parent context.Context) *Context {
	if parent == nil {
		return NewContext()
	}
	if c, ok := parent.(*Context); ok {
		return c
	}
	return &Context{
		Context: parent,
		data:    map[string]interface{}{},
	}
}

func NewContextFromMap(data map[string]interface{}) *Context {
	return &Context{
		Context: context.Background(),
		data:    data,
	}
}
