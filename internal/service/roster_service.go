package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/openacademy-api/internal/models"
	appErrors "github.com/noah-isme/openacademy-api/pkg/errors"
	"github.com/noah-isme/openacademy-api/pkg/export"
)

// RosterFormat enumerates supported roster outputs.
type RosterFormat string

const (
	RosterFormatCSV RosterFormat = "csv"
	RosterFormatPDF RosterFormat = "pdf"
)

type rosterSessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Roster(ctx context.Context, sessionID string) ([]models.SessionRosterLine, error)
}

type rosterCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// RosterFile is a rendered roster ready to be streamed.
type RosterFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// RosterService renders the attendee list of a session.
type RosterService struct {
	sessions rosterSessionRepository
	courses  rosterCourseRepository
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
}

// NewRosterService constructs a RosterService.
func NewRosterService(sessions rosterSessionRepository, courses rosterCourseRepository, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &RosterService{sessions: sessions, courses: courses, csv: csv, pdf: pdf, logger: logger}
}

// Render builds the roster of a session in the requested format.
func (s *RosterService) Render(ctx context.Context, sessionID string, format RosterFormat) (*RosterFile, error) {
	if format == "" {
		format = RosterFormatCSV
	}
	if format != RosterFormatCSV && format != RosterFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported roster format %q", format))
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	lines, err := s.sessions.Roster(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	courseName := session.CourseID
	if course, err := s.courses.FindByID(ctx, session.CourseID); err == nil {
		courseName = course.Name
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("roster course lookup failed", zap.String("course_id", session.CourseID), zap.Error(err))
	}

	dataset := buildRosterDataset(lines)
	file := &RosterFile{Filename: rosterFilename(session, format)}
	switch format {
	case RosterFormatCSV:
		file.ContentType = "text/csv"
		file.Payload, err = s.csv.Render(dataset)
	case RosterFormatPDF:
		file.ContentType = "application/pdf"
		dataset.Footer = rosterFooter(session, len(lines))
		file.Payload, err = s.pdf.Render(dataset, rosterTitle(courseName, session))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	return file, nil
}

func buildRosterDataset(lines []models.SessionRosterLine) export.Dataset {
	headers := []string{"No", "Partner ID", "Name", "Email"}
	rows := make([]map[string]string, 0, len(lines))
	for i, line := range lines {
		rows = append(rows, map[string]string{
			"No":         strconv.Itoa(i + 1),
			"Partner ID": line.PartnerID,
			"Name":       line.Name,
			"Email":      deref(line.Email),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows, Widths: []float64{1, 3, 5, 6}}
}

func rosterFooter(session *models.Session, attendees int) string {
	if session.Seats > 0 {
		return fmt.Sprintf("%d attendees, %d seats", attendees, session.Seats)
	}
	return fmt.Sprintf("%d attendees", attendees)
}

func rosterTitle(courseName string, session *models.Session) string {
	title := fmt.Sprintf("%s - %s", courseName, session.Name)
	if session.StartDate != nil {
		title += " (" + session.StartDate.Format(dateLayout) + ")"
	}
	return title
}

func rosterFilename(session *models.Session, format RosterFormat) string {
	return fmt.Sprintf("roster_%s.%s", sanitizeFilename(session.Name), format)
}

func sanitizeFilename(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "session"
	}
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
