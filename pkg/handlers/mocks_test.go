package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/schema-graph/pkg/models"
	"github.com/ekaya-inc/schema-graph/pkg/services"
)

type mockChatService struct {
	answer      *models.ChatAnswer
	turns       []*models.ChatTurn
	err         error
	lastRequest *models.ChatRequest
	lastLimit   int
}

func (m *mockChatService) HandleChat(ctx context.Context, req *models.ChatRequest) (*models.ChatAnswer, error) {
	m.lastRequest = req
	if m.err != nil {
		return nil, m.err
	}
	return m.answer, nil
}

func (m *mockChatService) Ask(ctx context.Context, query string) *models.ChatAnswer {
	return m.answer
}

func (m *mockChatService) History(ctx context.Context, sessionUUID uuid.UUID, limit int) ([]*models.ChatTurn, error) {
	m.lastLimit = limit
	return m.turns, m.err
}

var _ services.ChatService = (*mockChatService)(nil)

type mockSessionService struct {
	session *models.Session
	outcome models.LogoutOutcome
	err     error
}

func (m *mockSessionService) Guard(ctx context.Context, sessionUUID uuid.UUID) (string, error) {
	return "", m.err
}

func (m *mockSessionService) Open(ctx context.Context) (*models.Session, error) {
	return m.session, m.err
}

func (m *mockSessionService) Refresh(ctx context.Context, sessionUUID uuid.UUID) error {
	return m.err
}

func (m *mockSessionService) Logout(ctx context.Context, sessionUUID uuid.UUID) (models.LogoutOutcome, error) {
	return m.outcome, m.err
}

var _ services.SessionService = (*mockSessionService)(nil)

type mockImportService struct {
	report      *models.ImportReport
	err         error
	descriptors []models.SchemaDescriptor
	sourceType  string
	config      map[string]any
}

func (m *mockImportService) Import(ctx context.Context, descriptors []models.SchemaDescriptor) (*models.ImportReport, error) {
	m.descriptors = descriptors
	return m.report, m.err
}

func (m *mockImportService) ImportFromSource(ctx context.Context, sourceType string, config map[string]any) (*models.ImportReport, error) {
	m.sourceType = sourceType
	m.config = config
	return m.report, m.err
}

var _ services.SchemaImportService = (*mockImportService)(nil)

type mockLookupService struct {
	matches  []models.EntityDescription
	err      error
	lastName string
}

func (m *mockLookupService) Describe(ctx context.Context, name string) ([]models.EntityDescription, error) {
	m.lastName = name
	return m.matches, m.err
}

var _ services.SchemaLookupService = (*mockLookupService)(nil)

type mockExportService struct {
	artifact *models.ExportArtifact
	path     string
	err      error
}

func (m *mockExportService) ExportTabular(ctx context.Context) (*models.ExportArtifact, error) {
	return m.artifact, m.err
}

func (m *mockExportService) ExportDiagram(ctx context.Context) (*models.ExportArtifact, error) {
	return m.artifact, m.err
}

func (m *mockExportService) ArtifactPath(name string) (string, error) {
	return m.path, m.err
}

var _ services.ExportService = (*mockExportService)(nil)

type mockUsageService struct {
	report *models.TokenUsageReport
	err    error
}

func (m *mockUsageService) Report(ctx context.Context) (*models.TokenUsageReport, error) {
	return m.report, m.err
}

var _ services.TokenUsageService = (*mockUsageService)(nil)

type mockPinger struct{ err error }

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }
