package objects

import (
	"encoding/json"
	"fmt"

	"lifemonitor/app/db/models"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/gormx"
)

const githubSettingsKey = "github_settings"

type User struct {
	*models.User
	ContextObject
	PersistentObject
}

func (u *User) Save(ctx *contextx.Context) error {
	touch(&u.PersistentObject, &u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err := u.GetDB(ctx).Save(u.User).Error; err != nil {
		return err
	}
	u.SetContext(ctx)
	u.SetCreated()
	return nil
}

func (u *User) Delete(ctx *contextx.Context) error {
	if !u.IsCreated() {
		return fmt.Errorf("object %s isn't a persistent object, can't delete it", u.ID)
	}
	return Transaction(ctx, func(subCtx *contextx.Context) error {
		tx := GetDB(subCtx)
		if err := tx.Where("user_id = ?", u.ID).Delete(&models.OAuthIdentity{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", u.ID).Delete(&models.Subscription{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", u.ID).Delete(&models.UserNotification{}).Error; err != nil {
			return err
		}
		return tx.Delete(u.User).Error
	})
}

// GithubSettings returns the hosting-service integration settings, defaults included.
func (u *User) GithubSettings() *GithubSettings {
	settings := DefaultGithubSettings()
	if raw, ok := u.Settings[githubSettingsKey]; ok {
		if b, err := json.Marshal(raw); err == nil {
			_ = json.Unmarshal(b, settings)
		}
	}
	return settings
}

func (u *User) SetGithubSettings(settings *GithubSettings) error {
	b, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if u.Settings == nil {
		u.Settings = gormx.MapJson{}
	}
	u.Settings[githubSettingsKey] = raw
	return nil
}

func NewUser(username string) *User {
	return &User{User: &models.User{Username: username, Settings: gormx.MapJson{}}}
}

func NewUserFromDB(ctx *contextx.Context, m *models.User) *User {
	if m == nil {
		return nil
	}
	u := &User{User: m}
	u.SetContext(ctx)
	u.SetCreated()
	return u
}

func QueryUserByID(ctx *contextx.Context, id string) (*User, error) {
	m := &models.User{}
	err := GetDB(ctx).Where("id = ?", id).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewUserFromDB(ctx, m), nil
}

func QueryUserByUsername(ctx *contextx.Context, username string) (*User, error) {
	m := &models.User{}
	err := GetDB(ctx).Where("username = ?", username).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewUserFromDB(ctx, m), nil
}

func CountUsers(ctx *contextx.Context) (int64, error) {
	var n int64
	err := GetDB(ctx).Model(&models.User{}).Count(&n).Error
	return n, err
}
