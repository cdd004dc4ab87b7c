package objects

import (
	"lifemonitor/pkg/contextx"

	"gorm.io/gorm"
)

func Transaction(ctx *contextx.Context, fc func(subCtx *contextx.Context) error) error {
	if ctx == nil {
		ctx = contextx.NewContext()
	}
	subCtx := ctx.Clone()
	return GetDB(ctx).Transaction(func(tx *gorm.DB) error {
		subCtx.SetDB(tx)
		return fc(subCtx)
	})
}
