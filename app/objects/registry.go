package objects

import (
	"fmt"
	"time"

	"lifemonitor/app/config"
	"lifemonitor/app/db/models"
	"lifemonitor/pkg/contextx"
)

type WorkflowRegistry struct {
	*models.WorkflowRegistry
	ContextObject
	PersistentObject
}

func (r *WorkflowRegistry) Save(ctx *contextx.Context) error {
	touch(&r.PersistentObject, &r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err := r.GetDB(ctx).Save(r.WorkflowRegistry).Error; err != nil {
		return err
	}
	r.SetContext(ctx)
	r.SetCreated()
	return nil
}

func (r *WorkflowRegistry) Delete(ctx *contextx.Context) error {
	if !r.IsCreated() {
		return fmt.Errorf("object %s isn't a persistent object, can't delete it", r.ID)
	}
	return Transaction(ctx, func(subCtx *contextx.Context) error {
		tx := GetDB(subCtx)
		if err := tx.Where("registry_id = ?", r.ID).Delete(&models.WorkflowRegistration{}).Error; err != nil {
			return err
		}
		return tx.Delete(r.WorkflowRegistry).Error
	})
}

func NewWorkflowRegistry(name, kind, uri string) *WorkflowRegistry {
	return &WorkflowRegistry{WorkflowRegistry: &models.WorkflowRegistry{Name: name, Type: kind, URI: uri, Enabled: true}}
}

func NewWorkflowRegistryFromDB(ctx *contextx.Context, m *models.WorkflowRegistry) *WorkflowRegistry {
	if m == nil {
		return nil
	}
	r := &WorkflowRegistry{WorkflowRegistry: m}
	r.SetContext(ctx)
	r.SetCreated()
	return r
}

func QueryRegistryByID(ctx *contextx.Context, id string) (*WorkflowRegistry, error) {
	m := &models.WorkflowRegistry{}
	err := GetDB(ctx).Where("id = ?", id).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewWorkflowRegistryFromDB(ctx, m), nil
}

func QueryRegistryByName(ctx *contextx.Context, name string) (*WorkflowRegistry, error) {
	m := &models.WorkflowRegistry{}
	err := GetDB(ctx).Where("name = ?", name).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewWorkflowRegistryFromDB(ctx, m), nil
}

func ListEnabledRegistries(ctx *contextx.Context) ([]*WorkflowRegistry, error) {
	var rows []*models.WorkflowRegistry
	if err := GetDB(ctx).Where("enabled = ?", true).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*WorkflowRegistry, 0, len(rows))
	for _, m := range rows {
		result = append(result, NewWorkflowRegistryFromDB(ctx, m))
	}
	return result, nil
}

const syncRegistriesLock = "sync_registries"

// SyncRegistries upserts the registries declared in the configuration. Every
// process does it on startup, one at a time.
func SyncRegistries(ctx *contextx.Context, registries map[string]config.RegistryConfig) error {
	return WithNamedLock(ctx, syncRegistriesLock, time.Minute, 30*time.Second, func() error {
		return syncRegistries(ctx, registries)
	})
}

func syncRegistries(ctx *contextx.Context, registries map[string]config.RegistryConfig) error {
	return Transaction(ctx, func(subCtx *contextx.Context) error {
		for name, cfg := range registries {
			r, err := QueryRegistryByName(subCtx, name)
			if err != nil {
				return err
			}
			if r == nil {
				r = NewWorkflowRegistry(name, cfg.Type, cfg.URI)
			}
			r.Type = cfg.Type
			r.URI = cfg.URI
			r.ClientID = cfg.ClientID
			r.ClientSecret = cfg.ClientSecret
			r.TokenURL = cfg.TokenURL
			r.Enabled = cfg.Enabled
			if err = r.Save(subCtx); err != nil {
				return err
			}
		}
		return nil
	})
}

// WorkflowRegistration is the identifier a registry assigned to a workflow version.
type WorkflowRegistration struct {
	*models.WorkflowRegistration
	ContextObject
	PersistentObject
}

func (r *WorkflowRegistration) Save(ctx *contextx.Context) error {
	touch(&r.PersistentObject, &r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err := r.GetDB(ctx).Save(r.WorkflowRegistration).Error; err != nil {
		return err
	}
	r.SetContext(ctx)
	r.SetCreated()
	return nil
}

func (r *WorkflowRegistration) Delete(ctx *contextx.Context) error {
	if !r.IsCreated() {
		return fmt.Errorf("object %s isn't a persistent object, can't delete it", r.ID)
	}
	return r.GetDB(ctx).Delete(r.WorkflowRegistration).Error
}

func NewWorkflowRegistration(versionID, registryID, externalID string) *WorkflowRegistration {
	return &WorkflowRegistration{WorkflowRegistration: &models.WorkflowRegistration{
		WorkflowVersionID: versionID,
		RegistryID:        registryID,
		ExternalID:        externalID,
	}}
}

func NewWorkflowRegistrationFromDB(ctx *contextx.Context, m *models.WorkflowRegistration) *WorkflowRegistration {
	if m == nil {
		return nil
	}
	r := &WorkflowRegistration{WorkflowRegistration: m}
	r.SetContext(ctx)
	r.SetCreated()
	return r
}

func QueryRegistration(ctx *contextx.Context, versionID, registryID string) (*WorkflowRegistration, error) {
	m := &models.WorkflowRegistration{}
	err := GetDB(ctx).Where("workflow_version_id = ? AND registry_id = ?", versionID, registryID).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewWorkflowRegistrationFromDB(ctx, m), nil
}

func QueryRegistrationsByVersion(ctx *contextx.Context, versionID string) ([]*WorkflowRegistration, error) {
	var rows []*models.WorkflowRegistration
	if err := GetDB(ctx).Where("workflow_version_id = ?", versionID).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*WorkflowRegistration, 0, len(rows))
	for _, m := range rows {
		result = append(result, NewWorkflowRegistrationFromDB(ctx, m))
	}
	return result, nil
}

// CountRegisteredVersions counts the versions of a workflow registered on a registry.
func CountRegisteredVersions(ctx *contextx.Context, workflowID, registryID string) (int64, error) {
	var n int64
	err := GetDB(ctx).Model(&models.WorkflowRegistration{}).
		Joins("JOIN workflow_versions ON workflow_versions.id = workflow_registrations.workflow_version_id").
		Where("workflow_versions.workflow_id = ? AND workflow_registrations.registry_id = ?", workflowID, registryID).
		Count(&n).Error
	return n, err
}

// QueryWorkflowExternalID returns the identifier a registry assigned to any
// version of a workflow, empty when none is registered there.
func QueryWorkflowExternalID(ctx *contextx.Context, workflowID, registryID string) (string, error) {
	m := &models.WorkflowRegistration{}
	err := GetDB(ctx).
		Joins("JOIN workflow_versions ON workflow_versions.id = workflow_registrations.workflow_version_id").
		Where("workflow_versions.workflow_id = ? AND workflow_registrations.registry_id = ?", workflowID, registryID).
		Order("workflow_registrations.created_at").
		First(m).Error
	if IsNotFoundError(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return m.ExternalID, nil
}
