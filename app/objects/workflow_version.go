package objects

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"lifemonitor/app/db/models"
	"lifemonitor/pkg/contextx"
)

const ResourceWorkflowVersion = "workflow_version"

type WorkflowVersion struct {
	*models.WorkflowVersion
	ContextObject
	PersistentObject
}

func (v *WorkflowVersion) Save(ctx *contextx.Context) error {
	touch(&v.PersistentObject, &v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err := v.GetDB(ctx).Save(v.WorkflowVersion).Error; err != nil {
		return err
	}
	v.SetContext(ctx)
	v.SetCreated()
	return nil
}

// Delete removes the version together with its suites, instances and links.
func (v *WorkflowVersion) Delete(ctx *contextx.Context) error {
	if !v.IsCreated() {
		return fmt.Errorf("object %s isn't a persistent object, can't delete it", v.ID)
	}
	return Transaction(ctx, func(subCtx *contextx.Context) error {
		if err := v.DeleteSuites(subCtx); err != nil {
			return err
		}
		tx := GetDB(subCtx)
		if err := tx.Where("workflow_version_id = ?", v.ID).Delete(&models.WorkflowRegistration{}).Error; err != nil {
			return err
		}
		if err := tx.Where("workflow_version_id = ?", v.ID).Delete(&models.GithubWorkflowVersion{}).Error; err != nil {
			return err
		}
		if err := DeleteSubscriptionsOf(subCtx, ResourceWorkflowVersion, v.ID); err != nil {
			return err
		}
		return tx.Delete(v.WorkflowVersion).Error
	})
}

// SetManifest stores the manifest snapshot and reports whether it changed.
func (v *WorkflowVersion) SetManifest(manifest []byte) bool {
	hash := ManifestHash(manifest)
	if hash == v.ManifestHash {
		return false
	}
	v.Manifest = string(manifest)
	v.ManifestHash = hash
	return true
}

func (v *WorkflowVersion) Suites(ctx *contextx.Context) ([]*TestSuite, error) {
	return QueryTestSuitesByVersion(ctx, v.ID)
}

func (v *WorkflowVersion) DeleteSuites(ctx *contextx.Context) error {
	suites, err := v.Suites(ctx)
	if err != nil {
		return err
	}
	for _, s := range suites {
		if err = s.Delete(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (v *WorkflowVersion) GetWorkflow(ctx *contextx.Context) (*Workflow, error) {
	return QueryWorkflowByID(ctx, v.WorkflowID)
}

func (v *WorkflowVersion) Registrations(ctx *contextx.Context) ([]*WorkflowRegistration, error) {
	return QueryRegistrationsByVersion(ctx, v.ID)
}

func ManifestHash(manifest []byte) string {
	sum := sha256.Sum256(manifest)
	return hex.EncodeToString(sum[:])
}

func NewWorkflowVersion(workflowID, version string) *WorkflowVersion {
	return &WorkflowVersion{WorkflowVersion: &models.WorkflowVersion{WorkflowID: workflowID, Version: version}}
}

func NewWorkflowVersionFromDB(ctx *contextx.Context, m *models.WorkflowVersion) *WorkflowVersion {
	if m == nil {
		return nil
	}
	v := &WorkflowVersion{WorkflowVersion: m}
	v.SetContext(ctx)
	v.SetCreated()
	return v
}

func QueryWorkflowVersionByID(ctx *contextx.Context, id string) (*WorkflowVersion, error) {
	m := &models.WorkflowVersion{}
	err := GetDB(ctx).Where("id = ?", id).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewWorkflowVersionFromDB(ctx, m), nil
}

func QueryWorkflowVersion(ctx *contextx.Context, workflowID, version string) (*WorkflowVersion, error) {
	m := &models.WorkflowVersion{}
	err := GetDB(ctx).Where("workflow_id = ? AND version = ?", workflowID, version).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewWorkflowVersionFromDB(ctx, m), nil
}

func CountWorkflowVersions(ctx *contextx.Context) (int64, error) {
	var n int64
	err := GetDB(ctx).Model(&models.WorkflowVersion{}).Count(&n).Error
	return n, err
}
