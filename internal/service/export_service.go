package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/classmark/attendance-api/internal/models"
	appErrors "github.com/classmark/attendance-api/pkg/errors"
	"github.com/classmark/attendance-api/pkg/export"
)

// ExportFormat identifies a supported export rendering.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type sessionDetailProvider interface {
	GetSessionDetail(ctx context.Context, claims *models.JWTClaims, sessionID string) (*models.SessionDetail, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult carries a rendered export plus download metadata.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders session attendance sheets as CSV or PDF.
type ExportService struct {
	attendance sessionDetailProvider
	csv        csvRenderer
	pdf        pdfRenderer
	logger     *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(attendance sessionDetailProvider, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{attendance: attendance, csv: csv, pdf: pdf, logger: logger}
}

// SessionSheet renders the attendance sheet for a session. Authorization is
// delegated to the session detail lookup, which requires the take capability.
func (s *ExportService) SessionSheet(ctx context.Context, claims *models.JWTClaims, sessionID string, format ExportFormat) (*ExportResult, error) {
	detail, err := s.attendance.GetSessionDetail(ctx, claims, sessionID)
	if err != nil {
		return nil, err
	}

	dataset, title := buildSessionDataset(detail)

	var payload []byte
	var contentType string
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("attendance_%s_%s.%s", sanitizeFilename(sessionID), detail.Date.UTC().Format("20060102"), format)
	return &ExportResult{Filename: filename, ContentType: contentType, Payload: payload}, nil
}

func buildSessionDataset(detail *models.SessionDetail) (export.Dataset, string) {
	statusByID := make(map[string]models.Status, len(detail.Statuses))
	for _, status := range detail.Statuses {
		statusByID[status.ID] = status
	}

	rows := make([]map[string]string, 0, len(detail.Users))
	for _, user := range detail.Users {
		row := map[string]string{
			"Student":  fmt.Sprintf("%s, %s", user.LastName, user.FirstName),
			"Tag":      derefString(user.TagValue),
			"Status":   "",
			"Taken At": "",
			"Remarks":  "",
		}
		if entry, ok := detail.Log[user.ID]; ok {
			if status, ok := statusByID[entry.StatusID]; ok {
				row["Status"] = status.Acronym
			} else {
				row["Status"] = entry.StatusID
			}
			row["Taken At"] = entry.TimeTaken.UTC().Format(time.RFC3339)
			row["Remarks"] = derefString(entry.Remarks)
		}
		rows = append(rows, row)
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Tag", "Status", "Taken At", "Remarks"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Attendance %s", detail.Date.UTC().Format("2006-01-02"))
	return dataset, title
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
