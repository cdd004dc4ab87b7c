package objects

import (
	"fmt"

	"lifemonitor/app/db/models"
	"lifemonitor/pkg/contextx"
)

// GithubWorkflowRegistry tracks one installation of the GitHub App.
type GithubWorkflowRegistry struct {
	*models.GithubWorkflowRegistry
	ContextObject
	PersistentObject
}

func (r *GithubWorkflowRegistry) Save(ctx *contextx.Context) error {
	touch(&r.PersistentObject, &r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err := r.GetDB(ctx).Save(r.GithubWorkflowRegistry).Error; err != nil {
		return err
	}
	r.SetContext(ctx)
	r.SetCreated()
	return nil
}

// Delete drops the installation and its version links; the versions themselves are kept.
func (r *GithubWorkflowRegistry) Delete(ctx *contextx.Context) error {
	if !r.IsCreated() {
		return fmt.Errorf("object %s isn't a persistent object, can't delete it", r.ID)
	}
	return Transaction(ctx, func(subCtx *contextx.Context) error {
		tx := GetDB(subCtx)
		if err := tx.Where("registry_id = ?", r.ID).Delete(&models.GithubWorkflowVersion{}).Error; err != nil {
			return err
		}
		return tx.Delete(r.GithubWorkflowRegistry).Error
	})
}

func (r *GithubWorkflowRegistry) Versions(ctx *contextx.Context) ([]*GithubWorkflowVersion, error) {
	var rows []*models.GithubWorkflowVersion
	if err := r.GetDB(ctx).Where("registry_id = ?", r.ID).Order("repo_identifier, repo_ref").Find(&rows).Error; err != nil {
		return nil, err
	}
	return newGithubWorkflowVersions(ctx, rows), nil
}

func (r *GithubWorkflowRegistry) RepositoryVersions(ctx *contextx.Context, repo string) ([]*GithubWorkflowVersion, error) {
	var rows []*models.GithubWorkflowVersion
	if err := r.GetDB(ctx).Where("registry_id = ? AND repo_identifier = ?", r.ID, repo).Order("repo_ref").Find(&rows).Error; err != nil {
		return nil, err
	}
	return newGithubWorkflowVersions(ctx, rows), nil
}

// LinkVersion binds a workflow version to repo@ref of this installation.
func (r *GithubWorkflowRegistry) LinkVersion(ctx *contextx.Context, versionID, repo, ref string) (*GithubWorkflowVersion, error) {
	m := &models.GithubWorkflowVersion{}
	err := r.GetDB(ctx).Where("workflow_version_id = ?", versionID).First(m).Error
	if err != nil && !IsNotFoundError(err) {
		return nil, err
	}
	link := &GithubWorkflowVersion{GithubWorkflowVersion: m}
	if err == nil {
		link.SetCreated()
	}
	link.WorkflowVersionID = versionID
	link.RegistryID = r.ID
	link.RepoIdentifier = repo
	link.RepoRef = ref
	if err = link.Save(ctx); err != nil {
		return nil, err
	}
	return link, nil
}

func NewGithubWorkflowRegistry(installationID, accountLogin string) *GithubWorkflowRegistry {
	return &GithubWorkflowRegistry{GithubWorkflowRegistry: &models.GithubWorkflowRegistry{
		InstallationID: installationID,
		AccountLogin:   accountLogin,
	}}
}

func NewGithubWorkflowRegistryFromDB(ctx *contextx.Context, m *models.GithubWorkflowRegistry) *GithubWorkflowRegistry {
	if m == nil {
		return nil
	}
	r := &GithubWorkflowRegistry{GithubWorkflowRegistry: m}
	r.SetContext(ctx)
	r.SetCreated()
	return r
}

func QueryGithubRegistryByInstallation(ctx *contextx.Context, installationID string) (*GithubWorkflowRegistry, error) {
	m := &models.GithubWorkflowRegistry{}
	err := GetDB(ctx).Where("installation_id = ?", installationID).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewGithubWorkflowRegistryFromDB(ctx, m), nil
}

func GetOrCreateGithubRegistry(ctx *contextx.Context, installationID, accountLogin string) (*GithubWorkflowRegistry, error) {
	r, err := QueryGithubRegistryByInstallation(ctx, installationID)
	if err != nil || r != nil {
		return r, err
	}
	r = NewGithubWorkflowRegistry(installationID, accountLogin)
	if err = r.Save(ctx); err != nil {
		if IsDuplicateError(err) {
			return QueryGithubRegistryByInstallation(ctx, installationID)
		}
		return nil, err
	}
	return r, nil
}

func ListGithubRegistries(ctx *contextx.Context) ([]*GithubWorkflowRegistry, error) {
	var rows []*models.GithubWorkflowRegistry
	if err := GetDB(ctx).Order("installation_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*GithubWorkflowRegistry, 0, len(rows))
	for _, m := range rows {
		result = append(result, NewGithubWorkflowRegistryFromDB(ctx, m))
	}
	return result, nil
}

type GithubWorkflowVersion struct {
	*models.GithubWorkflowVersion
	ContextObject
	PersistentObject
}

func (v *GithubWorkflowVersion) Save(ctx *contextx.Context) error {
	touch(&v.PersistentObject, &v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err := v.GetDB(ctx).Save(v.GithubWorkflowVersion).Error; err != nil {
		return err
	}
	v.SetContext(ctx)
	v.SetCreated()
	return nil
}

func (v *GithubWorkflowVersion) Delete(ctx *contextx.Context) error {
	if !v.IsCreated() {
		return fmt.Errorf("object %s isn't a persistent object, can't delete it", v.ID)
	}
	return v.GetDB(ctx).Delete(v.GithubWorkflowVersion).Error
}

func (v *GithubWorkflowVersion) GetWorkflowVersion(ctx *contextx.Context) (*WorkflowVersion, error) {
	return QueryWorkflowVersionByID(ctx, v.WorkflowVersionID)
}

func newGithubWorkflowVersions(ctx *contextx.Context, rows []*models.GithubWorkflowVersion) []*GithubWorkflowVersion {
	result := make([]*GithubWorkflowVersion, 0, len(rows))
	for _, m := range rows {
		v := &GithubWorkflowVersion{GithubWorkflowVersion: m}
		v.SetContext(ctx)
		v.SetCreated()
		result = append(result, v)
	}
	return result
}
