package httpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/pscheid92/emojirank/internal/app"
	"github.com/pscheid92/emojirank/internal/domain"
)

// --- Mock implementations ---

type mockReportService struct {
	generateReportFn func(ctx context.Context, in app.ReportRequest) (*app.Report, error)
	settingsFn       func(ctx context.Context, guildID string) domain.GuildSettings
	updateSettingsFn func(ctx context.Context, settings domain.GuildSettings) (domain.GuildSettings, error)
}

func (m *mockReportService) GenerateReport(ctx context.Context, in app.ReportRequest) (*app.Report, error) {
	if m.generateReportFn != nil {
		return m.generateReportFn(ctx, in)
	}
	return nil, errors.New("not implemented")
}

func (m *mockReportService) Settings(ctx context.Context, guildID string) domain.GuildSettings {
	if m.settingsFn != nil {
		return m.settingsFn(ctx, guildID)
	}
	return domain.GuildSettings{GuildID: guildID, DefaultRank: 10}
}

func (m *mockReportService) UpdateSettings(ctx context.Context, settings domain.GuildSettings) (domain.GuildSettings, error) {
	if m.updateSettingsFn != nil {
		return m.updateSettingsFn(ctx, settings)
	}
	return settings, nil
}

// --- Test helpers ---

const testAPIToken = "s3cret-token"

func newTestServer(t *testing.T, reports reportService, opts ...func(*Options)) *Server {
	t.Helper()

	o := Options{Port: "0", APIToken: testAPIToken}
	for _, opt := range opts {
		opt(&o)
	}
	return NewServer(reports, o)
}

func withHealthChecks(checks ...HealthCheck) func(*Options) {
	return func(o *Options) {
		o.HealthChecks = checks
	}
}
