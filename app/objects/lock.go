package objects

import (
	"fmt"
	"time"

	"lifemonitor/app/db/models"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"

	"github.com/cenkalti/backoff/v4"
)

type NamedLock struct {
	*models.NamedLock
	ContextObject
	PersistentObject
}

func (l *NamedLock) Save(ctx *contextx.Context) error {
	touch(&l.PersistentObject, &l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err := l.GetDB(ctx).Create(l.NamedLock).Error; err != nil {
		return err
	}
	l.SetContext(ctx)
	l.SetCreated()
	return nil
}

func (l *NamedLock) Delete(ctx *contextx.Context) error {
	if !l.IsCreated() {
		return fmt.Errorf("object %s isn't a persistent object, can't delete it", l.ID)
	}
	return l.GetDB(ctx).Where("id = ?", l.ID).Delete(&models.NamedLock{}).Error
}

func NewNamedLock() *NamedLock {
	return &NamedLock{NamedLock: &models.NamedLock{}}
}

// WithNamedLock runs callback while holding a database row lock called name.
// Expired holders are evicted; contenders retry until timeout.
func WithNamedLock(ctx *contextx.Context, name string, hold, timeout time.Duration, callback func() error) error {
	if ctx == nil {
		ctx = contextx.NewContext()
	}
	locker := NewNamedLock()
	locker.Name = name

	acquire := func() error {
		now := time.Now().UTC()
		GetDB(ctx).Where("name = ? AND expires_at < ?", name, now).Delete(&models.NamedLock{})
		locker.ExpiresAt = now.Add(hold)
		err := locker.Save(ctx)
		if err != nil && !IsDuplicateError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = time.Second
	policy.MaxElapsedTime = timeout
	if err := backoff.Retry(acquire, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("unable to acquire lock %s: %w", name, err)
	}

	err := callback()
	delErr := locker.Delete(ctx)
	if delErr != nil {
		log.Warnf(ctx, "clear lock %s failed, error: %s", name, delErr.Error())
	}
	return err
}
