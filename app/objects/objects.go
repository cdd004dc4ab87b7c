package objects

import (
	"time"

	"lifemonitor/app/db"
	"lifemonitor/pkg/contextx"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GetDB returns the transaction bound to ctx, or the shared connection.
func GetDB(ctx *contextx.Context) *gorm.DB {
	if ctx != nil {
		if tx, ok := ctx.GetDB().(*gorm.DB); ok && tx != nil {
			return tx
		}
		return db.GetDBConnection().WithContext(ctx)
	}
	return db.GetDBConnection()
}

type ContextObject struct {
	ctx *contextx.Context
}

func (c *ContextObject) GetContext() *contextx.Context {
	return c.ctx
}

func (c *ContextObject) SetContext(ctx *contextx.Context) {
	if ctx != nil {
		c.ctx = ctx
	}
}

func (c *ContextObject) GetDB(ctx *contextx.Context) *gorm.DB {
	if ctx == nil {
		ctx = c.GetContext()
	}
	return GetDB(ctx)
}

type PersistentObject struct {
	isCreated bool
}

func (p *PersistentObject) IsCreated() bool {
	return p.isCreated
}

func (p *PersistentObject) SetCreated() {
	if !p.isCreated {
		p.isCreated = true
	}
}

// touch fills id and timestamps before a Save.
func touch(p *PersistentObject, id *string, createdAt, updatedAt *time.Time) {
	now := time.Now().UTC()
	if !p.IsCreated() {
		if *id == "" {
			*id = uuid.NewString()
		}
		if createdAt != nil {
			*createdAt = now
		}
	}
	if updatedAt != nil {
		*updatedAt = now
	}
}
