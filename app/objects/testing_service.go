package objects

import (
	"fmt"
	"strings"

	"lifemonitor/app/db/models"
	"lifemonitor/pkg/contextx"
)

type TestingService struct {
	*models.TestingService
	ContextObject
	PersistentObject
}

func (s *TestingService) Save(ctx *contextx.Context) error {
	touch(&s.PersistentObject, &s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err := s.GetDB(ctx).Save(s.TestingService).Error; err != nil {
		return err
	}
	s.SetContext(ctx)
	s.SetCreated()
	return nil
}

func (s *TestingService) Delete(ctx *contextx.Context) error {
	if !s.IsCreated() {
		return fmt.Errorf("object %s isn't a persistent object, can't delete it", s.ID)
	}
	return s.GetDB(ctx).Delete(s.TestingService).Error
}

func NewTestingService(kind, url string) *TestingService {
	return &TestingService{TestingService: &models.TestingService{Type: kind, URL: NormalizeServiceURL(url)}}
}

func NewTestingServiceFromDB(ctx *contextx.Context, m *models.TestingService) *TestingService {
	if m == nil {
		return nil
	}
	s := &TestingService{TestingService: m}
	s.SetContext(ctx)
	s.SetCreated()
	return s
}

// NormalizeServiceURL drops trailing slashes so the same service maps to one row.
func NormalizeServiceURL(url string) string {
	return strings.TrimRight(strings.TrimSpace(url), "/")
}

func QueryTestingServiceByID(ctx *contextx.Context, id string) (*TestingService, error) {
	m := &models.TestingService{}
	err := GetDB(ctx).Where("id = ?", id).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewTestingServiceFromDB(ctx, m), nil
}

func QueryTestingServiceByURL(ctx *contextx.Context, url string) (*TestingService, error) {
	m := &models.TestingService{}
	err := GetDB(ctx).Where("url = ?", NormalizeServiceURL(url)).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewTestingServiceFromDB(ctx, m), nil
}

// GetOrCreateTestingService returns the service registered for url, creating it if needed.
func GetOrCreateTestingService(ctx *contextx.Context, kind, url string) (*TestingService, error) {
	s, err := QueryTestingServiceByURL(ctx, url)
	if err != nil || s != nil {
		return s, err
	}
	s = NewTestingService(kind, url)
	if err = s.Save(ctx); err != nil {
		if IsDuplicateError(err) {
			return QueryTestingServiceByURL(ctx, url)
		}
		return nil, err
	}
	return s, nil
}
