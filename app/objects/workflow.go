package objects

import (
	"fmt"

	"lifemonitor/app/db/models"
	"lifemonitor/pkg/contextx"

	"github.com/google/uuid"
)

const ResourceWorkflow = "workflow"

type Workflow struct {
	*models.Workflow
	ContextObject
	PersistentObject
}

func (w *Workflow) Save(ctx *contextx.Context) error {
	touch(&w.PersistentObject, &w.ID, &w.CreatedAt, &w.UpdatedAt)
	if err := w.GetDB(ctx).Save(w.Workflow).Error; err != nil {
		return err
	}
	w.SetContext(ctx)
	w.SetCreated()
	return nil
}

// Delete removes the workflow with all its versions, subscriptions and notifications.
func (w *Workflow) Delete(ctx *contextx.Context) error {
	if !w.IsCreated() {
		return fmt.Errorf("object %s isn't a persistent object, can't delete it", w.ID)
	}
	return Transaction(ctx, func(subCtx *contextx.Context) error {
		versions, err := w.Versions(subCtx)
		if err != nil {
			return err
		}
		for _, v := range versions {
			if err = v.Delete(subCtx); err != nil {
				return err
			}
		}
		if err = DeleteSubscriptionsOf(subCtx, ResourceWorkflow, w.ID); err != nil {
			return err
		}
		if err = DeleteNotificationsOf(subCtx, ResourceWorkflow, w.ID); err != nil {
			return err
		}
		return GetDB(subCtx).Delete(w.Workflow).Error
	})
}

// Versions returns the workflow versions ordered by creation time.
func (w *Workflow) Versions(ctx *contextx.Context) ([]*WorkflowVersion, error) {
	var rows []*models.WorkflowVersion
	if err := w.GetDB(ctx).Where("workflow_id = ?", w.ID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*WorkflowVersion, 0, len(rows))
	for _, r := range rows {
		result = append(result, NewWorkflowVersionFromDB(ctx, r))
	}
	return result, nil
}

func (w *Workflow) GetVersion(ctx *contextx.Context, version string) (*WorkflowVersion, error) {
	return QueryWorkflowVersion(ctx, w.ID, version)
}

func (w *Workflow) CountVersions(ctx *contextx.Context) (int64, error) {
	var n int64
	err := w.GetDB(ctx).Model(&models.WorkflowVersion{}).Where("workflow_id = ?", w.ID).Count(&n).Error
	return n, err
}

// WorkflowUUIDFor derives the stable workflow identifier of a repository URL.
func WorkflowUUIDFor(repositoryURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(repositoryURL)).String()
}

func NewWorkflow(id, name, submitterID string) *Workflow {
	return &Workflow{Workflow: &models.Workflow{ID: id, Name: name, SubmitterID: submitterID}}
}

func NewWorkflowFromDB(ctx *contextx.Context, m *models.Workflow) *Workflow {
	if m == nil {
		return nil
	}
	w := &Workflow{Workflow: m}
	w.SetContext(ctx)
	w.SetCreated()
	return w
}

func QueryWorkflowByID(ctx *contextx.Context, id string) (*Workflow, error) {
	m := &models.Workflow{}
	err := GetDB(ctx).Where("id = ?", id).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewWorkflowFromDB(ctx, m), nil
}

func CountWorkflows(ctx *contextx.Context) (int64, error) {
	var n int64
	err := GetDB(ctx).Model(&models.Workflow{}).Count(&n).Error
	return n, err
}
