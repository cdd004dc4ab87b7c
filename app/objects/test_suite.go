package objects

import (
	"fmt"
	"time"

	"lifemonitor/app/db/models"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/gormx"
)

type TestSuite struct {
	*models.TestSuite
	ContextObject
	PersistentObject
}

func (s *TestSuite) Save(ctx *contextx.Context) error {
	touch(&s.PersistentObject, &s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err := s.GetDB(ctx).Save(s.TestSuite).Error; err != nil {
		return err
	}
	s.SetContext(ctx)
	s.SetCreated()
	return nil
}

func (s *TestSuite) Delete(ctx *contextx.Context) error {
	if !s.IsCreated() {
		return fmt.Errorf("object %s isn't a persistent object, can't delete it", s.ID)
	}
	return Transaction(ctx, func(subCtx *contextx.Context) error {
		tx := GetDB(subCtx)
		if err := tx.Where("test_suite_id = ?", s.ID).Delete(&models.TestInstance{}).Error; err != nil {
			return err
		}
		return tx.Delete(s.TestSuite).Error
	})
}

func (s *TestSuite) Instances(ctx *contextx.Context) ([]*TestInstance, error) {
	var rows []*models.TestInstance
	if err := s.GetDB(ctx).Where("test_suite_id = ?", s.ID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return newTestInstances(ctx, rows), nil
}

func NewTestSuite(versionID, rocID, name string, definition map[string]interface{}) *TestSuite {
	return &TestSuite{TestSuite: &models.TestSuite{
		WorkflowVersionID: versionID,
		RocID:             rocID,
		Name:              name,
		Definition:        gormx.MapJson(definition),
	}}
}

func NewTestSuiteFromDB(ctx *contextx.Context, m *models.TestSuite) *TestSuite {
	if m == nil {
		return nil
	}
	s := &TestSuite{TestSuite: m}
	s.SetContext(ctx)
	s.SetCreated()
	return s
}

func QueryTestSuiteByID(ctx *contextx.Context, id string) (*TestSuite, error) {
	m := &models.TestSuite{}
	err := GetDB(ctx).Where("id = ?", id).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewTestSuiteFromDB(ctx, m), nil
}

func QueryTestSuitesByVersion(ctx *contextx.Context, versionID string) ([]*TestSuite, error) {
	var rows []*models.TestSuite
	if err := GetDB(ctx).Where("workflow_version_id = ?", versionID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*TestSuite, 0, len(rows))
	for _, r := range rows {
		result = append(result, NewTestSuiteFromDB(ctx, r))
	}
	return result, nil
}

type TestInstance struct {
	*models.TestInstance
	ContextObject
	PersistentObject
}

func (i *TestInstance) Save(ctx *contextx.Context) error {
	touch(&i.PersistentObject, &i.ID, &i.CreatedAt, &i.UpdatedAt)
	if err := i.GetDB(ctx).Save(i.TestInstance).Error; err != nil {
		return err
	}
	i.SetContext(ctx)
	i.SetCreated()
	return nil
}

func (i *TestInstance) Delete(ctx *contextx.Context) error {
	if !i.IsCreated() {
		return fmt.Errorf("object %s isn't a persistent object, can't delete it", i.ID)
	}
	return i.GetDB(ctx).Delete(i.TestInstance).Error
}

func (i *TestInstance) GetTestingService(ctx *contextx.Context) (*TestingService, error) {
	return QueryTestingServiceByID(ctx, i.TestingServiceID)
}

func (i *TestInstance) GetSuite(ctx *contextx.Context) (*TestSuite, error) {
	return QueryTestSuiteByID(ctx, i.TestSuiteID)
}

// NeedsSync reports whether the last builds update is older than interval.
func (i *TestInstance) NeedsSync(now time.Time, interval time.Duration) bool {
	return i.LastBuildsUpdate == nil || now.Sub(*i.LastBuildsUpdate) >= interval
}

func (i *TestInstance) MarkBuildsUpdated(ctx *contextx.Context, at time.Time) error {
	at = at.UTC()
	if err := i.GetDB(ctx).Model(&models.TestInstance{}).Where("id = ?", i.ID).
		Update("last_builds_update", at).Error; err != nil {
		return err
	}
	i.LastBuildsUpdate = &at
	return nil
}

func NewTestInstance(suiteID, rocID, name, resource, serviceID string, parameters map[string]interface{}) *TestInstance {
	return &TestInstance{TestInstance: &models.TestInstance{
		TestSuiteID:      suiteID,
		RocID:            rocID,
		Name:             name,
		Resource:         resource,
		Parameters:       gormx.MapJson(parameters),
		TestingServiceID: serviceID,
	}}
}

func NewTestInstanceFromDB(ctx *contextx.Context, m *models.TestInstance) *TestInstance {
	if m == nil {
		return nil
	}
	i := &TestInstance{TestInstance: m}
	i.SetContext(ctx)
	i.SetCreated()
	return i
}

func newTestInstances(ctx *contextx.Context, rows []*models.TestInstance) []*TestInstance {
	result := make([]*TestInstance, 0, len(rows))
	for _, r := range rows {
		result = append(result, NewTestInstanceFromDB(ctx, r))
	}
	return result
}

func QueryTestInstanceByID(ctx *contextx.Context, id string) (*TestInstance, error) {
	m := &models.TestInstance{}
	err := GetDB(ctx).Where("id = ?", id).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewTestInstanceFromDB(ctx, m), nil
}

func QueryTestInstancesByResource(ctx *contextx.Context, resource string) ([]*TestInstance, error) {
	var rows []*models.TestInstance
	if err := GetDB(ctx).Where("resource = ?", resource).Find(&rows).Error; err != nil {
		return nil, err
	}
	return newTestInstances(ctx, rows), nil
}

func QueryTestInstancesByResourcePrefix(ctx *contextx.Context, prefix string) ([]*TestInstance, error) {
	var rows []*models.TestInstance
	if err := GetDB(ctx).Where("resource LIKE ?", prefix+"%").Find(&rows).Error; err != nil {
		return nil, err
	}
	return newTestInstances(ctx, rows), nil
}

func ListTestInstances(ctx *contextx.Context) ([]*TestInstance, error) {
	var rows []*models.TestInstance
	if err := GetDB(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return newTestInstances(ctx, rows), nil
}
