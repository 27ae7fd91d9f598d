package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/models"
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
	"github.com/noah-isme/training-roster-api/pkg/export"
	"github.com/noah-isme/training-roster-api/pkg/learning"
)

const (
	maxDashboardPageSize = 100
	statsConcurrency     = 8
)

type dashboardUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListMeta(ctx context.Context, userID string) ([]models.UserMeta, error)
	ListMetaForUsers(ctx context.Context, userIDs []string) (map[string][]models.UserMeta, error)
	ListDashboard(ctx context.Context, filter models.DashboardFilter) ([]models.User, int, error)
}

type courseSummaryStore interface {
	ApprovedSummary(ctx context.Context, userID string) (models.CourseSummary, error)
	ListByUser(ctx context.Context, userID string) ([]models.ExternalCourse, error)
}

type roleNamer interface {
	DisplayNames(ctx context.Context) (map[string]string, error)
}

// DashboardServiceConfig tunes dashboard paging and stats caching.
type DashboardServiceConfig struct {
	PageSize int
	StatsTTL time.Duration
}

// DashboardService composes the training roster listing and profile views.
type DashboardService struct {
	users    dashboardUserStore
	courses  courseSummaryStore
	roles    roleNamer
	platform learning.Platform
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      DashboardServiceConfig
	now      func() time.Time

	exportBatch int
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Users    dashboardUserStore
	Courses  courseSummaryStore
	Roles    roleNamer
	Platform learning.Platform
	Cache    *CacheService
	Metrics  *MetricsService
	Logger   *zap.Logger
	Config   DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.PageSize > maxDashboardPageSize {
		cfg.PageSize = maxDashboardPageSize
	}
	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	platform := params.Platform
	if platform == nil {
		platform = learning.NoopPlatform{}
	}
	return &DashboardService{
		users:       params.Users,
		courses:     params.Courses,
		roles:       params.Roles,
		platform:    platform,
		cache:       params.Cache,
		metrics:     params.Metrics,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
		exportBatch: maxDashboardPageSize,
	}
}

type dashboardPage struct {
	Items      []models.UserSummary `json:"items"`
	Pagination models.Pagination    `json:"pagination"`
}

// List returns one page of the roster with learning stats per user.
func (s *DashboardService) List(ctx context.Context, query dto.DashboardQuery) ([]models.UserSummary, *models.Pagination, error) {
	filter, err := s.Filter(query)
	if err != nil {
		return nil, nil, err
	}

	key := dashboardListKey(filter)
	var cached dashboardPage
	if s.cache.Get(ctx, key, &cached) {
		return cached.Items, &cached.Pagination, nil
	}

	items, total, degraded, err := s.page(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	page := dashboardPage{
		Items:      items,
		Pagination: models.Pagination{Offset: filter.Offset, Limit: filter.Limit, Total: total},
	}
	if !degraded {
		s.cache.Set(ctx, key, page, s.cfg.StatsTTL)
	}
	return page.Items, &page.Pagination, nil
}

// Filter validates a listing query and applies paging defaults.
func (s *DashboardService) Filter(query dto.DashboardQuery) (models.DashboardFilter, error) {
	filter := models.DashboardFilter{
		Program:        strings.TrimSpace(query.Program),
		Site:           strings.TrimSpace(query.Site),
		TrainingStatus: models.TrainingStatus(strings.TrimSpace(query.TrainingStatus)),
		DateFrom:       strings.TrimSpace(query.DateFrom),
		DateTo:         strings.TrimSpace(query.DateTo),
		Role:           strings.TrimSpace(query.Role),
		Offset:         query.Offset,
		Limit:          query.Limit,
	}
	if filter.TrainingStatus != "" && !filter.TrainingStatus.Valid() {
		return filter, appErrors.Clone(appErrors.ErrValidation, "unknown training status")
	}

	var from, to time.Time
	var err error
	if filter.DateFrom != "" {
		if from, err = time.Parse(models.TrainingDateLayout, filter.DateFrom); err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "dateFrom must be YYYY-MM-DD")
		}
	}
	if filter.DateTo != "" {
		if to, err = time.Parse(models.TrainingDateLayout, filter.DateTo); err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "dateTo must be YYYY-MM-DD")
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return filter, appErrors.Clone(appErrors.ErrValidation, "dateFrom must not be after dateTo")
	}

	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Limit <= 0 {
		filter.Limit = s.cfg.PageSize
	}
	if filter.Limit > maxDashboardPageSize {
		filter.Limit = maxDashboardPageSize
	}
	return filter, nil
}

// Stats returns the learning stats of one user. Platform failures yield zero
// platform counters; such degraded results are not cached.
func (s *DashboardService) Stats(ctx context.Context, userID string) (models.LearningStats, error) {
	stats, _, err := s.loadStats(ctx, userID)
	return stats, err
}

// loadStats also reports whether the platform failed while building the stats.
func (s *DashboardService) loadStats(ctx context.Context, userID string) (models.LearningStats, bool, error) {
	key := profileStatsKey(userID)
	var stats models.LearningStats
	if s.cache.Get(ctx, key, &stats) {
		return stats, false, nil
	}

	var (
		courses     []learning.CourseProgress
		assignments int
		summary     models.CourseSummary
		degraded    atomic.Bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var ok bool
		courses, ok = s.courseProgress(gctx, userID)
		if !ok {
			degraded.Store(true)
		}
		return nil
	})
	g.Go(func() error {
		count, err := s.platform.SubmittedAssignments(gctx, userID)
		if err != nil {
			s.platformFailed("assignments", userID, err)
			degraded.Store(true)
			return nil
		}
		assignments = count
		return nil
	})
	g.Go(func() error {
		var err error
		summary, err = s.courses.ApprovedSummary(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.LearningStats{}, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course summary")
	}

	stats = models.LearningStats{
		EnrolledCourses:      len(courses),
		SubmittedAssignments: assignments,
		ExternalCourses:      summary.Count,
		ExternalHours:        summary.Hours,
	}
	for _, course := range courses {
		if course.Completed {
			stats.CompletedCourses++
		}
		if course.CertificateURL != "" {
			stats.EarnedCertificates++
		}
	}
	if degraded.Load() {
		return stats, true, nil
	}
	s.cache.Set(ctx, key, stats, s.cfg.StatsTTL)
	return stats, false, nil
}

// UserProfileDashboard returns the profile of one user with course progress
// and external course submissions.
func (s *DashboardService) UserProfileDashboard(ctx context.Context, userID string) (*models.ProfileDashboard, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	meta, err := s.users.ListMeta(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user attributes")
	}
	names, err := s.roles.DisplayNames(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := s.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	courses, _ := s.courseProgress(ctx, userID)
	external, err := s.courses.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load external courses")
	}
	if external == nil {
		external = []models.ExternalCourse{}
	}

	return &models.ProfileDashboard{
		Profile:         buildProfile(*user, meta, names),
		Stats:           stats,
		Courses:         courses,
		ExternalCourses: external,
	}, nil
}

// Export renders every page of the filtered roster.
func (s *DashboardService) Export(ctx context.Context, query dto.DashboardQuery, format string) (*ExportFile, error) {
	if _, err := export.ParseFormat(format); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	query.Offset = 0
	query.Limit = s.exportBatch
	filter, err := s.Filter(query)
	if err != nil {
		return nil, err
	}

	var all []models.UserSummary
	for {
		items, total, _, err := s.page(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		filter.Offset += filter.Limit
		if len(items) == 0 || filter.Offset >= total {
			break
		}
	}

	dataset := export.Dataset{
		Title: "Training Roster",
		Columns: []export.Column{
			{Key: "name", Label: "Name"},
			{Key: "email", Label: "Email"},
			{Key: "role", Label: "Role"},
			{Key: "program", Label: "Program"},
			{Key: "sites", Label: "Sites"},
			{Key: "status", Label: "Training Status"},
			{Key: "date", Label: "Training Date"},
			{Key: "enrolled", Label: "Enrolled"},
			{Key: "completed", Label: "Completed"},
			{Key: "certificates", Label: "Certificates"},
			{Key: "external", Label: "External Courses"},
			{Key: "hours", Label: "External Hours"},
		},
		Rows: make([]map[string]string, 0, len(all)),
	}
	for _, item := range all {
		date := ""
		if item.TrainingDate != nil {
			date = *item.TrainingDate
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"name":         item.FullName,
			"email":        item.Email,
			"role":         item.RoleName,
			"program":      item.Program,
			"sites":        strings.Join(item.Sites, "; "),
			"status":       item.TrainingStatusName,
			"date":         date,
			"enrolled":     strconv.Itoa(item.Stats.EnrolledCourses),
			"completed":    strconv.Itoa(item.Stats.CompletedCourses),
			"certificates": strconv.Itoa(item.Stats.EarnedCertificates),
			"external":     strconv.Itoa(item.Stats.ExternalCourses),
			"hours":        strconv.FormatFloat(item.Stats.ExternalHours, 'f', -1, 64),
		})
	}
	return renderExport(format, "training-roster", dataset, s.now())
}

// page loads one page of summaries. The flag is set when any user's stats
// were built while the learning platform was failing.
func (s *DashboardService) page(ctx context.Context, filter models.DashboardFilter) ([]models.UserSummary, int, bool, error) {
	users, total, err := s.users.ListDashboard(ctx, filter)
	if err != nil {
		return nil, 0, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	if len(users) == 0 {
		return []models.UserSummary{}, total, false, nil
	}

	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	meta, err := s.users.ListMetaForUsers(ctx, ids)
	if err != nil {
		return nil, 0, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user attributes")
	}
	names, err := s.roles.DisplayNames(ctx)
	if err != nil {
		return nil, 0, false, err
	}

	items := make([]models.UserSummary, len(users))
	var degraded atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statsConcurrency)
	for i, user := range users {
		i, user := i, user
		g.Go(func() error {
			stats, partial, err := s.loadStats(gctx, user.ID)
			if err != nil {
				return err
			}
			if partial {
				degraded.Store(true)
			}
			items[i] = models.UserSummary{UserProfile: buildProfile(user, meta[user.ID], names), Stats: stats}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, false, err
	}
	return items, total, degraded.Load(), nil
}

func (s *DashboardService) courseProgress(ctx context.Context, userID string) ([]learning.CourseProgress, bool) {
	courses, err := s.platform.CourseProgress(ctx, userID)
	if err != nil {
		s.platformFailed("courses", userID, err)
		return []learning.CourseProgress{}, false
	}
	if courses == nil {
		courses = []learning.CourseProgress{}
	}
	return courses, true
}

func (s *DashboardService) platformFailed(operation, userID string, err error) {
	s.metrics.RecordLearningError(operation)
	s.logger.Warn("learning platform unavailable",
		zap.String("operation", operation),
		zap.String("user_id", userID),
		zap.Error(err))
}

