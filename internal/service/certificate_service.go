package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/bonyankop-api/internal/models"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
	"github.com/noah-isme/bonyankop-api/pkg/export"
	"github.com/noah-isme/bonyankop-api/pkg/jobs"
	"github.com/noah-isme/bonyankop-api/pkg/storage"
)

// JobTypeCompletionCertificate identifies certificate rendering jobs.
const JobTypeCompletionCertificate = "completion_certificate"

type certificateProjectStore interface {
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Project, error)
	SetCertificateURL(ctx context.Context, id, url string) (bool, error)
}

type certificateProviderReader interface {
	GetByID(ctx context.Context, id string) (*models.ProviderProfile, error)
}

type objectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// objectURLer is implemented by stores that serve objects publicly.
type objectURLer interface {
	ObjectURL(key string) string
}

type documentRenderer interface {
	RenderDocument(doc export.Document) ([]byte, error)
}

type downloadSigner interface {
	Generate(subjectID, key string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (string, string, time.Time, error)
}

// CertificateServiceConfig controls certificate generation.
type CertificateServiceConfig struct {
	DownloadBaseURL string
	Queue           jobs.QueueConfig
}

// CertificateServiceParams groups the certificate service collaborators.
type CertificateServiceParams struct {
	Projects  certificateProjectStore
	Providers certificateProviderReader
	Storage   objectStore
	Signer    downloadSigner
	Renderer  documentRenderer
	Metrics   *MetricsService
	Logger    *zap.Logger
	Config    CertificateServiceConfig
}

// CertificateService renders completion certificates in the background and serves their downloads.
type CertificateService struct {
	projects  certificateProjectStore
	providers certificateProviderReader
	storage   objectStore
	signer    downloadSigner
	renderer  documentRenderer
	metrics   *MetricsService
	logger    *zap.Logger
	config    CertificateServiceConfig
	queue     *jobs.Queue
	now       func() time.Time
}

// NewCertificateService constructs the service and its worker queue.
func NewCertificateService(params CertificateServiceParams) *CertificateService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	renderer := params.Renderer
	if renderer == nil {
		renderer = export.NewPDFExporter()
	}
	cfg := params.Config
	cfg.DownloadBaseURL = strings.TrimRight(cfg.DownloadBaseURL, "/")
	if cfg.Queue.Logger == nil {
		cfg.Queue.Logger = logger
	}

	svc := &CertificateService{
		projects:  params.Projects,
		providers: params.Providers,
		storage:   params.Storage,
		signer:    params.Signer,
		renderer:  renderer,
		metrics:   params.Metrics,
		logger:    logger,
		config:    cfg,
		now:       time.Now,
	}
	hook := cfg.Queue.OnResult
	cfg.Queue.OnResult = func(job jobs.Job, err error) {
		svc.metrics.RecordJob(job.Type, err == nil)
		if hook != nil {
			hook(job, err)
		}
	}
	svc.queue = jobs.NewQueue("certificates", svc.Handle, cfg.Queue)
	return svc
}

// Start launches the certificate workers.
func (s *CertificateService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the certificate workers.
func (s *CertificateService) Stop() {
	s.queue.Stop()
}

// Enqueue schedules certificate rendering for a completed project.
func (s *CertificateService) Enqueue(projectID string) error {
	if projectID == "" {
		return fmt.Errorf("project id required")
	}
	id, err := s.queue.Enqueue(jobs.Job{Type: JobTypeCompletionCertificate, Payload: projectID})
	if err != nil {
		return err
	}
	s.logger.Sugar().Debugw("certificate job queued", "job_id", id, "project_id", projectID)
	return nil
}

// Handle renders, stores and links the certificate of the project named by the job payload.
func (s *CertificateService) Handle(ctx context.Context, job jobs.Job) error {
	if job.Type != JobTypeCompletionCertificate {
		return fmt.Errorf("unsupported job type %q", job.Type)
	}
	projectID := job.Payload
	project, err := s.projects.GetByID(ctx, nil, projectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", projectID, err)
	}
	if project.Status != models.ProjectStatusCompleted {
		s.logger.Sugar().Warnw("skipping certificate for unfinished project", "project_id", projectID, "status", project.Status)
		return nil
	}
	if project.CompletionCertificateURL != nil && *project.CompletionCertificateURL != "" {
		return nil
	}

	pdf, err := s.renderer.RenderDocument(s.buildDocument(ctx, project))
	if err != nil {
		return fmt.Errorf("render certificate: %w", err)
	}
	key := certificateKey(projectID)
	if err := s.storage.Put(ctx, key, pdf, "application/pdf"); err != nil {
		return fmt.Errorf("store certificate: %w", err)
	}
	url, err := s.certificateURL(projectID, key)
	if err != nil {
		return err
	}
	written, err := s.projects.SetCertificateURL(ctx, projectID, url)
	if err != nil {
		return fmt.Errorf("link certificate: %w", err)
	}
	s.logger.Sugar().Infow("completion certificate issued", "project_id", projectID, "linked", written)
	return nil
}

// ResolveDownload validates a signed download token and opens the certificate it names.
func (s *CertificateService) ResolveDownload(ctx context.Context, token string) (io.ReadCloser, string, error) {
	if s.signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "certificate downloads are not enabled")
	}
	projectID, key, _, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	if key != certificateKey(projectID) {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	body, err := s.storage.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, "", internalError(err, "failed to open certificate")
	}
	return body, "certificate-" + projectID + ".pdf", nil
}

func (s *CertificateService) certificateURL(projectID, key string) (string, error) {
	if public, ok := s.storage.(objectURLer); ok {
		if url := public.ObjectURL(key); url != "" {
			return url, nil
		}
	}
	if s.signer == nil {
		return "", fmt.Errorf("no download signer configured for private certificate storage")
	}
	token, _, err := s.signer.Generate(projectID, key)
	if err != nil {
		return "", fmt.Errorf("sign certificate url: %w", err)
	}
	return s.config.DownloadBaseURL + "/certificates/" + token, nil
}

func (s *CertificateService) buildDocument(ctx context.Context, project *models.Project) export.Document {
	providerName := project.ProviderID
	if s.providers != nil {
		if profile, err := s.providers.GetByID(ctx, project.ProviderID); err == nil && profile.BusinessName != "" {
			providerName = profile.BusinessName
		}
	}

	summary := []export.Field{
		{Label: "Project", Value: project.ProjectTitle},
		{Label: "Project ID", Value: project.ID},
		{Label: "Service request", Value: project.RequestID},
		{Label: "Provider", Value: providerName},
	}
	if project.ProjectDescription != nil && *project.ProjectDescription != "" {
		summary = append(summary, export.Field{Label: "Description", Value: *project.ProjectDescription})
	}

	schedule := []export.Field{
		{Label: "Started", Value: formatDate(project.ActualStartDate)},
		{Label: "Completed", Value: formatDate(project.ActualCompletionDate)},
	}
	if days := project.Duration(); days != nil {
		schedule = append(schedule, export.Field{Label: "Duration (days)", Value: strconv.Itoa(*days)})
	}
	if project.WarrantyEndDate != nil {
		schedule = append(schedule, export.Field{Label: "Warranty until", Value: formatDate(project.WarrantyEndDate)})
	}

	costs := []export.Field{
		{Label: "Agreed cost", Value: strconv.FormatFloat(project.AgreedCost, 'f', 2, 64)},
		{Label: "Payment status", Value: string(project.PaymentStatus)},
	}
	if project.ActualCost != nil {
		costs = append(costs, export.Field{Label: "Actual cost", Value: strconv.FormatFloat(*project.ActualCost, 'f', 2, 64)})
	}
	if project.CostDifferenceReason != nil && *project.CostDifferenceReason != "" {
		costs = append(costs, export.Field{Label: "Cost difference", Value: *project.CostDifferenceReason})
	}

	sections := []export.Section{
		{Heading: "Summary", Fields: summary},
		{Heading: "Schedule", Fields: schedule},
		{Heading: "Costs", Fields: costs},
	}
	if notes, err := project.Notes(); err == nil && len(notes) > 0 {
		table := export.Dataset{Headers: []string{"Date", "Author", "Note"}}
		for _, note := range notes {
			table.Rows = append(table.Rows, map[string]string{
				"Date":   note.Timestamp.UTC().Format("2006-01-02"),
				"Author": note.AuthorName,
				"Note":   note.Note,
			})
		}
		sections = append(sections, export.Section{Heading: "Work log", Table: &table})
	}

	return export.Document{
		Title:    "Completion Certificate",
		Subtitle: project.ProjectTitle,
		Sections: sections,
		Footer:   fmt.Sprintf("Issued %s - certificate %s", s.now().UTC().Format("2006-01-02"), project.ID),
	}
}

func certificateKey(projectID string) string {
	return "certificates/" + projectID + ".pdf"
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}
