// Package seed loads demo partners, courses and sessions from a YAML document.
package seed

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/openacademy-api/internal/models"
	"github.com/noah-isme/openacademy-api/internal/service"
)

// Document is the demo data file. Records reference each other by key, not by id.
type Document struct {
	Partners []Partner `yaml:"partners"`
	Courses  []Course  `yaml:"courses"`
	Sessions []Session `yaml:"sessions"`
}

type Partner struct {
	Key        string  `yaml:"key"`
	Name       string  `yaml:"name"`
	Email      *string `yaml:"email"`
	Instructor bool    `yaml:"instructor"`
}

type Course struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Responsible string `yaml:"responsible"`
}

type Session struct {
	Name       string   `yaml:"name"`
	Course     string   `yaml:"course"`
	StartDate  string   `yaml:"start_date"`
	Duration   float64  `yaml:"duration"`
	Seats      int      `yaml:"seats"`
	Instructor string   `yaml:"instructor"`
	Attendees  []string `yaml:"attendees"`
	Active     *bool    `yaml:"active"`
}

type partnerCreator interface {
	Create(ctx context.Context, req service.PartnerRequest) (*models.Partner, error)
}

type courseCreator interface {
	Create(ctx context.Context, req service.CourseRequest) (*models.Course, error)
}

type sessionCreator interface {
	Create(ctx context.Context, req service.CreateSessionRequest) (*models.Session, []models.Notice, error)
}

// Result counts created records.
type Result struct {
	Partners int
	Courses  int
	Sessions int
	Warnings int
}

// Decode parses a demo document and checks key references.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode seed document: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Document) validate() error {
	partners := make(map[string]struct{}, len(d.Partners))
	for _, p := range d.Partners {
		if p.Key == "" {
			return fmt.Errorf("partner %q has no key", p.Name)
		}
		if _, dup := partners[p.Key]; dup {
			return fmt.Errorf("duplicate partner key %q", p.Key)
		}
		partners[p.Key] = struct{}{}
	}
	courses := make(map[string]struct{}, len(d.Courses))
	for _, c := range d.Courses {
		if c.Key == "" {
			return fmt.Errorf("course %q has no key", c.Name)
		}
		if _, dup := courses[c.Key]; dup {
			return fmt.Errorf("duplicate course key %q", c.Key)
		}
		if c.Responsible != "" {
			if _, ok := partners[c.Responsible]; !ok {
				return fmt.Errorf("course %q: unknown responsible %q", c.Key, c.Responsible)
			}
		}
		courses[c.Key] = struct{}{}
	}
	for _, s := range d.Sessions {
		if _, ok := courses[s.Course]; !ok {
			return fmt.Errorf("session %q: unknown course %q", s.Name, s.Course)
		}
		if s.Instructor != "" {
			if _, ok := partners[s.Instructor]; !ok {
				return fmt.Errorf("session %q: unknown instructor %q", s.Name, s.Instructor)
			}
		}
		for _, a := range s.Attendees {
			if _, ok := partners[a]; !ok {
				return fmt.Errorf("session %q: unknown attendee %q", s.Name, a)
			}
		}
	}
	return nil
}

// Loader pushes a document through the services so every derived field and check applies.
type Loader struct {
	partners partnerCreator
	courses  courseCreator
	sessions sessionCreator
	logger   *zap.Logger
}

// NewLoader constructs a Loader.
func NewLoader(partners partnerCreator, courses courseCreator, sessions sessionCreator, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{partners: partners, courses: courses, sessions: sessions, logger: logger}
}

// Load creates partners, then courses, then sessions. It stops at the first failure.
func (l *Loader) Load(ctx context.Context, doc *Document) (Result, error) {
	var res Result
	partnerIDs := make(map[string]string, len(doc.Partners))
	for _, p := range doc.Partners {
		created, err := l.partners.Create(ctx, service.PartnerRequest{Name: p.Name, Email: p.Email, Instructor: p.Instructor})
		if err != nil {
			return res, fmt.Errorf("partner %q: %w", p.Key, err)
		}
		partnerIDs[p.Key] = created.ID
		res.Partners++
	}

	courseIDs := make(map[string]string, len(doc.Courses))
	for _, c := range doc.Courses {
		req := service.CourseRequest{Name: c.Name, Description: c.Description}
		if c.Responsible != "" {
			id := partnerIDs[c.Responsible]
			req.ResponsibleID = &id
		}
		created, err := l.courses.Create(ctx, req)
		if err != nil {
			return res, fmt.Errorf("course %q: %w", c.Key, err)
		}
		courseIDs[c.Key] = created.ID
		res.Courses++
	}

	for _, s := range doc.Sessions {
		req := service.CreateSessionRequest{
			Name:     s.Name,
			Duration: s.Duration,
			Seats:    s.Seats,
			CourseID: courseIDs[s.Course],
			Active:   s.Active,
		}
		if s.StartDate != "" {
			start := s.StartDate
			req.StartDate = &start
		}
		if s.Instructor != "" {
			id := partnerIDs[s.Instructor]
			req.InstructorID = &id
		}
		for _, a := range s.Attendees {
			req.AttendeeIDs = append(req.AttendeeIDs, partnerIDs[a])
		}
		_, notices, err := l.sessions.Create(ctx, req)
		if err != nil {
			return res, fmt.Errorf("session %q: %w", s.Name, err)
		}
		for _, n := range notices {
			l.logger.Warn("seed session warning", zap.String("session", s.Name), zap.String("check", n.Check), zap.String("message", n.Message))
		}
		res.Sessions++
		res.Warnings += len(notices)
	}
	return res, nil
}
