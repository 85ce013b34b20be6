package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/openacademy-api/internal/models"
)

// memoryDB backs the fake repositories used by the service tests. fakeTx snapshots it so a
// failed transaction leaves no trace, like the real transactor.
type memoryDB struct {
	courses  map[string]models.Course
	sessions map[string]models.Session
	partners map[string]models.Partner
	seq      int
	// locks records FindByIDForUpdate calls as "table:id" in call order.
	locks []string
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		courses:  map[string]models.Course{},
		sessions: map[string]models.Session{},
		partners: map[string]models.Partner{},
	}
}

// nextID skips ids that tests inserted by hand.
func (db *memoryDB) nextID(prefix string) string {
	for {
		db.seq++
		id := fmt.Sprintf("%s%d", prefix, db.seq)
		if !db.taken(id) {
			return id
		}
	}
}

func (db *memoryDB) taken(id string) bool {
	_, course := db.courses[id]
	_, session := db.sessions[id]
	_, partner := db.partners[id]
	return course || session || partner
}

func (db *memoryDB) snapshot() *memoryDB {
	cp := newMemoryDB()
	cp.seq = db.seq
	for k, v := range db.courses {
		cp.courses[k] = v
	}
	for k, v := range db.sessions {
		cp.sessions[k] = *v.Clone()
	}
	for k, v := range db.partners {
		cp.partners[k] = v
	}
	return cp
}

func (db *memoryDB) restore(from *memoryDB) {
	db.courses = from.courses
	db.sessions = from.sessions
	db.partners = from.partners
	db.seq = from.seq
}

func (db *memoryDB) addCourse(id, name string) {
	db.courses[id] = models.Course{ID: id, Name: name}
}

func (db *memoryDB) addPartner(id, name string) {
	db.partners[id] = models.Partner{ID: id, Name: name}
}

func (db *memoryDB) addSession(session models.Session) {
	if session.AttendeeIDs == nil {
		session.AttendeeIDs = []string{}
	}
	db.sessions[session.ID] = session
}

var errDuplicateKey = errors.New("duplicate primary key")

type fakeTx struct {
	db    *memoryDB
	calls int
}

func (t *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	snap := t.db.snapshot()
	if err := fn(ctx); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

type memSessionRepo struct{ db *memoryDB }

func (r *memSessionRepo) sorted(match func(models.Session) bool) []models.Session {
	out := []models.Session{}
	for _, s := range r.db.sessions {
		if match(s) {
			out = append(out, *s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memSessionRepo) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	list := r.sorted(func(s models.Session) bool {
		if filter.CourseID != "" && s.CourseID != filter.CourseID {
			return false
		}
		if filter.Active != nil && s.Active != *filter.Active {
			return false
		}
		return true
	})
	return list, len(list), nil
}

func (r *memSessionRepo) FindByID(ctx context.Context, id string) (*models.Session, error) {
	s, ok := r.db.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s.Clone(), nil
}

func (r *memSessionRepo) FindByIDForUpdate(ctx context.Context, id string) (*models.Session, error) {
	r.db.locks = append(r.db.locks, "sessions:"+id)
	return r.FindByID(ctx, id)
}

func (r *memSessionRepo) ListByCourse(ctx context.Context, courseID string) ([]models.Session, error) {
	return r.sorted(func(s models.Session) bool { return s.CourseID == courseID }), nil
}

func (r *memSessionRepo) ListIDsByCourse(ctx context.Context, courseID string) ([]string, error) {
	ids := []string{}
	for _, s := range r.sorted(func(s models.Session) bool { return s.CourseID == courseID }) {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (r *memSessionRepo) ListByAttendee(ctx context.Context, partnerID string) ([]models.Session, error) {
	return r.sorted(func(s models.Session) bool { return s.HasAttendee(partnerID) }), nil
}

func (r *memSessionRepo) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = r.db.nextID("s")
	}
	if _, exists := r.db.sessions[session.ID]; exists {
		return errDuplicateKey
	}
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	r.db.sessions[session.ID] = *session.Clone()
	return nil
}

// Update mirrors the SQL repository: attendee rows are only written by ReplaceAttendees.
func (r *memSessionRepo) Update(ctx context.Context, session *models.Session) error {
	stored, ok := r.db.sessions[session.ID]
	if !ok {
		return sql.ErrNoRows
	}
	cp := *session.Clone()
	cp.AttendeeIDs = stored.AttendeeIDs
	r.db.sessions[session.ID] = cp
	return nil
}

func (r *memSessionRepo) ReplaceAttendees(ctx context.Context, sessionID string, partnerIDs []string) error {
	stored := r.db.sessions[sessionID]
	stored.AttendeeIDs = append([]string{}, partnerIDs...)
	r.db.sessions[sessionID] = stored
	return nil
}

func (r *memSessionRepo) Delete(ctx context.Context, id string) error {
	delete(r.db.sessions, id)
	return nil
}

func (r *memSessionRepo) DeleteByCourse(ctx context.Context, courseID string) (int, error) {
	deleted := 0
	for id, s := range r.db.sessions {
		if s.CourseID == courseID {
			delete(r.db.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memSessionRepo) ClearInstructor(ctx context.Context, partnerID string) error {
	for id, s := range r.db.sessions {
		if s.InstructorID != nil && *s.InstructorID == partnerID {
			s.InstructorID = nil
			r.db.sessions[id] = s
		}
	}
	return nil
}

func (r *memSessionRepo) Roster(ctx context.Context, sessionID string) ([]models.SessionRosterLine, error) {
	s, ok := r.db.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	lines := []models.SessionRosterLine{}
	for _, id := range s.AttendeeIDs {
		p := r.db.partners[id]
		lines = append(lines, models.SessionRosterLine{PartnerID: id, Name: p.Name, Email: p.Email})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Name < lines[j].Name })
	return lines, nil
}

type memCourseRepo struct{ db *memoryDB }

func (r *memCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	out := []models.Course{}
	for _, c := range r.db.courses {
		if filter.Search == "" || strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Search)) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (r *memCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := r.db.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (r *memCourseRepo) FindByIDForUpdate(ctx context.Context, id string) (*models.Course, error) {
	r.db.locks = append(r.db.locks, "courses:"+id)
	return r.FindByID(ctx, id)
}

func (r *memCourseRepo) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	c, ok := r.db.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := &models.CourseDetail{Course: c}
	if c.ResponsibleID != nil {
		if p, ok := r.db.partners[*c.ResponsibleID]; ok {
			name := p.Name
			detail.ResponsibleName = &name
		}
	}
	return detail, nil
}

func (r *memCourseRepo) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	for id, c := range r.db.courses {
		if c.Name == name && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memCourseRepo) CountByNamePrefix(ctx context.Context, prefix string) (int, error) {
	count := 0
	for _, c := range r.db.courses {
		if strings.HasPrefix(c.Name, prefix) {
			count++
		}
	}
	return count, nil
}

func (r *memCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = r.db.nextID("c")
	}
	if _, exists := r.db.courses[course.ID]; exists {
		return errDuplicateKey
	}
	r.db.courses[course.ID] = *course
	return nil
}

func (r *memCourseRepo) Update(ctx context.Context, course *models.Course) error {
	r.db.courses[course.ID] = *course
	return nil
}

func (r *memCourseRepo) UpdateSessionCount(ctx context.Context, id string, count int) error {
	c := r.db.courses[id]
	c.SessionCount = count
	r.db.courses[id] = c
	return nil
}

func (r *memCourseRepo) Delete(ctx context.Context, id string) error {
	delete(r.db.courses, id)
	return nil
}

func (r *memCourseRepo) ClearResponsible(ctx context.Context, partnerID string) ([]string, error) {
	ids := []string{}
	for id, c := range r.db.courses {
		if c.ResponsibleID != nil && *c.ResponsibleID == partnerID {
			c.ResponsibleID = nil
			r.db.courses[id] = c
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type memPartnerRepo struct{ db *memoryDB }

func (r *memPartnerRepo) List(ctx context.Context, filter models.PartnerFilter) ([]models.Partner, int, error) {
	out := []models.Partner{}
	for _, p := range r.db.partners {
		if filter.Instructor != nil && p.Instructor != *filter.Instructor {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (r *memPartnerRepo) FindByID(ctx context.Context, id string) (*models.Partner, error) {
	p, ok := r.db.partners[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (r *memPartnerRepo) FindMissing(ctx context.Context, ids []string) ([]string, error) {
	missing := []string{}
	for _, id := range ids {
		if _, ok := r.db.partners[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r *memPartnerRepo) Create(ctx context.Context, partner *models.Partner) error {
	if partner.ID == "" {
		partner.ID = r.db.nextID("p")
	}
	if _, exists := r.db.partners[partner.ID]; exists {
		return errDuplicateKey
	}
	r.db.partners[partner.ID] = *partner
	return nil
}

func (r *memPartnerRepo) Update(ctx context.Context, partner *models.Partner) error {
	r.db.partners[partner.ID] = *partner
	return nil
}

func (r *memPartnerRepo) Delete(ctx context.Context, id string) error {
	delete(r.db.partners, id)
	return nil
}

type serviceFixture struct {
	db       *memoryDB
	tx       *fakeTx
	sessions *SessionService
	courses  *CourseService
	partners *PartnerService
	roster   *RosterService
}

var fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func newServiceFixture() *serviceFixture {
	db := newMemoryDB()
	tx := &fakeTx{db: db}
	sessionRepo := &memSessionRepo{db: db}
	courseRepo := &memCourseRepo{db: db}
	partnerRepo := &memPartnerRepo{db: db}

	sessions := NewSessionService(SessionServiceParams{
		Tx:       tx,
		Sessions: sessionRepo,
		Courses:  courseRepo,
		Partners: partnerRepo,
		Metrics:  NewMetricsService(),
		Now:      func() time.Time { return fixedNow },
	})
	courses := NewCourseService(tx, courseRepo, sessionRepo, partnerRepo, nil, nil, nil)
	partners := NewPartnerService(PartnerServiceParams{
		Tx:        tx,
		Partners:  partnerRepo,
		Sessions:  sessionRepo,
		Courses:   courseRepo,
		Attendees: sessions,
	})
	roster := NewRosterService(sessionRepo, courseRepo, nil, nil, nil)

	return &serviceFixture{db: db, tx: tx, sessions: sessions, courses: courses, partners: partners, roster: roster}
}

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
