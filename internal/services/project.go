package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/internal/services/github"
	"github.com/huangang/codemender/pkg/logger"
	"gorm.io/gorm"
)

var ErrInvalidRepoURL = errors.New("invalid GitHub repository URL")

// SnapshotRemover deletes a project's local working copy.
type SnapshotRemover interface {
	Remove(localPath string) error
}

type ProjectService struct {
	db        *gorm.DB
	hosts     SourceHostFactory
	snapshots SnapshotRemover
	ghCfg     config.GitHubConfig
}

func NewProjectService(db *gorm.DB, hosts SourceHostFactory, snapshots SnapshotRemover, ghCfg config.GitHubConfig) *ProjectService {
	return &ProjectService{db: db, hosts: hosts, snapshots: snapshots, ghCfg: ghCfg}
}

type ConnectRequest struct {
	RepoURL     string `json:"repo_url" binding:"required"`
	AccessToken string `json:"access_token"`
}

type ProjectListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size" binding:"omitempty,max=100"`
	Name     string `form:"name"`
}

type ProjectListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.Project `json:"items"`
}

type UpdateProjectRequest struct {
	Name        string `json:"name"`
	Branch      string `json:"branch"`
	AccessToken string `json:"access_token"`
	LLMConfigID *uint  `json:"llm_config_id"`
	IMEnabled   *bool  `json:"im_enabled"`
	IMBotID     *uint  `json:"im_bot_id"`
}

// Connect registers a GitHub repository for userID after checking it is
// reachable with the given token. Connecting the same repository twice
// returns the existing project.
func (s *ProjectService) Connect(ctx context.Context, req *ConnectRequest, userID uint) (*models.Project, bool, error) {
	owner, repo, err := github.ParseRepoURL(req.RepoURL)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidRepoURL, err)
	}

	var existing models.Project
	err = s.db.WithContext(ctx).
		Where("created_by = ? AND LOWER(owner) = ? AND LOWER(repo) = ?", userID, strings.ToLower(owner), strings.ToLower(repo)).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	token := req.AccessToken
	if token == "" {
		token = s.ghCfg.Token
	}
	host, err := s.hosts(token)
	if err != nil {
		return nil, false, err
	}
	info, err := host.GetRepository(ctx, owner, repo)
	if err != nil {
		return nil, false, fmt.Errorf("cannot access %s/%s: %w", owner, repo, err)
	}

	project := models.Project{
		Name:        info.Name,
		Owner:       info.Owner,
		Repo:        info.Name,
		URL:         fmt.Sprintf("https://github.com/%s/%s", info.Owner, info.Name),
		Branch:      info.DefaultBranch,
		Language:    info.Language,
		HealthScore: 100,
		AccessToken: req.AccessToken,
		CreatedBy:   userID,
	}
	if project.Branch == "" {
		project.Branch = "main"
	}
	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, false, err
	}

	logger.Infof("[Project] %s connected by user %d (branch %s)", project.FullName(), userID, project.Branch)
	LogInfo("Project", "connect", "Connected "+project.FullName(), &userID, "", "", map[string]interface{}{"project_id": project.ID})
	return &project, true, nil
}

// List returns the user's projects; admins see all of them.
func (s *ProjectService) List(ctx context.Context, req *ProjectListRequest, userID uint, isAdmin bool) (*ProjectListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Project{})
	if !isAdmin {
		query = query.Where("created_by = ?", userID)
	}
	if req.Name != "" {
		like := "%" + req.Name + "%"
		query = query.Where("name LIKE ? OR owner LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}
	var projects []models.Project
	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC, id DESC").Find(&projects).Error; err != nil {
		return nil, err
	}

	return &ProjectListResponse{Total: total, Page: req.Page, PageSize: req.PageSize, Items: projects}, nil
}

// Authorize loads a project the user may act on: its owner or an admin.
func (s *ProjectService) Authorize(ctx context.Context, projectID, userID uint, isAdmin bool) (*models.Project, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	if !isAdmin && project.CreatedBy != userID {
		return nil, ErrForbidden
	}
	return &project, nil
}

func (s *ProjectService) Update(ctx context.Context, projectID, userID uint, isAdmin bool, req *UpdateProjectRequest) (*models.Project, error) {
	project, err := s.Authorize(ctx, projectID, userID, isAdmin)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Branch != "" {
		updates["branch"] = req.Branch
	}
	if req.AccessToken != "" {
		updates["access_token"] = req.AccessToken
	}
	if req.LLMConfigID != nil {
		if *req.LLMConfigID == 0 {
			updates["llm_config_id"] = nil
		} else {
			updates["llm_config_id"] = *req.LLMConfigID
		}
	}
	if req.IMEnabled != nil {
		updates["im_enabled"] = *req.IMEnabled
	}
	if req.IMBotID != nil {
		if *req.IMBotID == 0 {
			updates["im_bot_id"] = nil
		} else {
			updates["im_bot_id"] = *req.IMBotID
		}
	}
	if len(updates) == 0 {
		return project, nil
	}

	if err := s.db.WithContext(ctx).Model(project).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.Authorize(ctx, projectID, userID, isAdmin)
}

// Delete removes the project and its local snapshot. A snapshot that
// cannot be removed is logged, not returned.
func (s *ProjectService) Delete(ctx context.Context, projectID, userID uint, isAdmin bool) error {
	project, err := s.Authorize(ctx, projectID, userID, isAdmin)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(project).Error; err != nil {
		return err
	}

	if s.snapshots != nil && project.LocalPath != "" {
		if err := s.snapshots.Remove(project.LocalPath); err != nil {
			logger.Warnf("[Project] snapshot of %s not removed: %v", project.FullName(), err)
		} else {
			logger.Infof("[Project] removed snapshot %s", project.LocalPath)
		}
	}
	LogInfo("Project", "delete", "Deleted "+project.FullName(), &userID, "", "", map[string]interface{}{"project_id": project.ID})
	return nil
}
