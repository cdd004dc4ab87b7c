package objects

import (
	"fmt"
	"time"

	"lifemonitor/app/db/models"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/gormx"
)

// Notification types emitted by the repository engine and the synchronizer.
const (
	NotificationVersionCreated = "workflow-version-created"
	NotificationVersionUpdated = "workflow-version-updated"
	NotificationVersionDeleted = "workflow-version-deleted"
	NotificationBuildFailed    = "build-failed"
	NotificationBuildRecovered = "build-recovered"
)

type Notification struct {
	*models.Notification
	ContextObject
	PersistentObject
}

// Save stores the notification and one delivery row per target user.
func (n *Notification) Save(ctx *contextx.Context, userIDs ...string) error {
	touch(&n.PersistentObject, &n.ID, &n.CreatedAt, nil)
	err := Transaction(ctx, func(subCtx *contextx.Context) error {
		tx := GetDB(subCtx)
		if err := tx.Save(n.Notification).Error; err != nil {
			return err
		}
		for _, uid := range userIDs {
			row := &models.UserNotification{NotificationID: n.ID, UserID: uid}
			if err := tx.Where(row).FirstOrCreate(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	n.SetContext(ctx)
	n.SetCreated()
	return nil
}

func (n *Notification) Delete(ctx *contextx.Context) error {
	if !n.IsCreated() {
		return fmt.Errorf("object %s isn't a persistent object, can't delete it", n.ID)
	}
	return Transaction(ctx, func(subCtx *contextx.Context) error {
		tx := GetDB(subCtx)
		if err := tx.Where("notification_id = ?", n.ID).Delete(&models.UserNotification{}).Error; err != nil {
			return err
		}
		return tx.Delete(n.Notification).Error
	})
}

func (n *Notification) Targets(ctx *contextx.Context) ([]*models.UserNotification, error) {
	var rows []*models.UserNotification
	err := n.GetDB(ctx).Where("notification_id = ?", n.ID).Order("user_id").Find(&rows).Error
	return rows, err
}

func NewNotification(kind, name, resourceType, resourceID string, data map[string]interface{}) *Notification {
	return &Notification{Notification: &models.Notification{
		Type:         kind,
		Name:         name,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Data:         gormx.MapJson(data),
	}}
}

func NewNotificationFromDB(ctx *contextx.Context, m *models.Notification) *Notification {
	if m == nil {
		return nil
	}
	n := &Notification{Notification: m}
	n.SetContext(ctx)
	n.SetCreated()
	return n
}

func QueryNotificationByID(ctx *contextx.Context, id string) (*Notification, error) {
	m := &models.Notification{}
	err := GetDB(ctx).Where("id = ?", id).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewNotificationFromDB(ctx, m), nil
}

func QueryUserNotifications(ctx *contextx.Context, userID string) ([]*models.UserNotification, error) {
	var rows []*models.UserNotification
	err := GetDB(ctx).Where("user_id = ?", userID).Find(&rows).Error
	return rows, err
}

// MarkRead sets read_at once; later calls keep the first timestamp.
func MarkRead(ctx *contextx.Context, userID string, notificationIDs ...string) error {
	return markOnce(ctx, "read_at", userID, notificationIDs)
}

// MarkEmailed sets emailed_at once; later calls keep the first timestamp.
func MarkEmailed(ctx *contextx.Context, userID string, notificationIDs ...string) error {
	return markOnce(ctx, "emailed_at", userID, notificationIDs)
}

func markOnce(ctx *contextx.Context, column, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return GetDB(ctx).Model(&models.UserNotification{}).
		Where("user_id = ? AND notification_id IN ? AND "+column+" IS NULL", userID, ids).
		Update(column, time.Now().UTC()).Error
}

// DeleteNotificationsOf removes the notifications attached to a resource.
func DeleteNotificationsOf(ctx *contextx.Context, resourceType, resourceID string) error {
	return Transaction(ctx, func(subCtx *contextx.Context) error {
		tx := GetDB(subCtx)
		sub := tx.Model(&models.Notification{}).Select("id").
			Where("resource_type = ? AND resource_id = ?", resourceType, resourceID)
		if err := tx.Where("notification_id IN (?)", sub).Delete(&models.UserNotification{}).Error; err != nil {
			return err
		}
		return tx.Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
			Delete(&models.Notification{}).Error
	})
}
