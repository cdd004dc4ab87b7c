package objects

import (
	"fmt"

	"lifemonitor/app/db/models"
	"lifemonitor/pkg/contextx"
)

// Event kinds a subscription can select.
const (
	EventBuildFailed = 1 << iota
	EventBuildRecovered
	EventWorkflowVersion

	EventAll = EventBuildFailed | EventBuildRecovered | EventWorkflowVersion
)

type Subscription struct {
	*models.Subscription
	ContextObject
	PersistentObject
}

func (s *Subscription) Save(ctx *contextx.Context) error {
	touch(&s.PersistentObject, &s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err := s.GetDB(ctx).Save(s.Subscription).Error; err != nil {
		return err
	}
	s.SetContext(ctx)
	s.SetCreated()
	return nil
}

func (s *Subscription) Delete(ctx *contextx.Context) error {
	if !s.IsCreated() {
		return fmt.Errorf("object %s isn't a persistent object, can't delete it", s.ID)
	}
	return s.GetDB(ctx).Delete(s.Subscription).Error
}

func (s *Subscription) Wants(event int) bool {
	return s.Events&event != 0
}

func NewSubscriptionFromDB(ctx *contextx.Context, m *models.Subscription) *Subscription {
	if m == nil {
		return nil
	}
	s := &Subscription{Subscription: m}
	s.SetContext(ctx)
	s.SetCreated()
	return s
}

func QuerySubscription(ctx *contextx.Context, userID, resourceType, resourceID string) (*Subscription, error) {
	m := &models.Subscription{}
	err := GetDB(ctx).Where("user_id = ? AND resource_type = ? AND resource_id = ?", userID, resourceType, resourceID).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewSubscriptionFromDB(ctx, m), nil
}

// Subscribe adds events to the user's subscription on a resource, creating it if needed.
func Subscribe(ctx *contextx.Context, userID, resourceType, resourceID string, events int) (*Subscription, error) {
	s, err := QuerySubscription(ctx, userID, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &Subscription{Subscription: &models.Subscription{
			UserID:       userID,
			ResourceType: resourceType,
			ResourceID:   resourceID,
		}}
	} else if s.Events|events == s.Events {
		return s, nil
	}
	s.Events |= events
	if err = s.Save(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// SubscribersOf returns the ids of the users subscribed to event on a resource.
func SubscribersOf(ctx *contextx.Context, resourceType, resourceID string, event int) ([]string, error) {
	var rows []*models.Subscription
	if err := GetDB(ctx).Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("user_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	var users []string
	for _, r := range rows {
		if r.Events&event != 0 {
			users = append(users, r.UserID)
		}
	}
	return users, nil
}

func DeleteSubscriptionsOf(ctx *contextx.Context, resourceType, resourceID string) error {
	return GetDB(ctx).Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Delete(&models.Subscription{}).Error
}
