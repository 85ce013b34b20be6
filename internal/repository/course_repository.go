package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/openacademy-api/internal/models"
	"github.com/noah-isme/openacademy-api/pkg/database"
)

const courseColumns = "id, name, description, responsible_id, session_count, created_at, updated_at"

// CourseRepository manages persistence for courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a new course repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) exec(ctx context.Context) sqlx.ExtContext {
	return database.Executor(ctx, r.db)
}

// List returns courses matching filter criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	base := "FROM courses WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ResponsibleID != "" {
		conditions = append(conditions, fmt.Sprintf("responsible_id = $%d", len(args)+1))
		args = append(args, filter.ResponsibleID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d)", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	allowedSorts := map[string]bool{
		"name":          true,
		"session_count": true,
		"created_at":    true,
		"updated_at":    true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", courseColumns, base, sortBy, order, size, offset)
	var courses []models.Course
	if err := sqlx.SelectContext(ctx, r.exec(ctx), &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := sqlx.GetContext(ctx, r.exec(ctx), &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course record by ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	return r.findByID(ctx, id, "")
}

// FindByIDForUpdate returns a course and holds its row lock until the surrounding
// transaction ends.
func (r *CourseRepository) FindByIDForUpdate(ctx context.Context, id string) (*models.Course, error) {
	return r.findByID(ctx, id, " FOR UPDATE")
}

func (r *CourseRepository) findByID(ctx context.Context, id, lock string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE id = $1%s", courseColumns, lock)
	var course models.Course
	if err := sqlx.GetContext(ctx, r.exec(ctx), &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindDetailByID returns a course with the responsible partner name joined in.
func (r *CourseRepository) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	const query = `SELECT c.id, c.name, c.description, c.responsible_id, c.session_count, c.created_at, c.updated_at, p.name AS responsible_name FROM courses c LEFT JOIN partners p ON p.id = c.responsible_id WHERE c.id = $1`
	var detail models.CourseDetail
	if err := sqlx.GetContext(ctx, r.exec(ctx), &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByName checks if a course with exactly the same name already exists.
func (r *CourseRepository) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM courses WHERE name = $1"
	args := []interface{}{name}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := sqlx.GetContext(ctx, r.exec(ctx), &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course name: %w", err)
	}
	return true, nil
}

// CountByNamePrefix counts courses whose name starts with prefix, case-sensitively.
func (r *CourseRepository) CountByNamePrefix(ctx context.Context, prefix string) (int, error) {
	const query = `SELECT COUNT(*) FROM courses WHERE name LIKE $1 ESCAPE '\'`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(ctx), &count, query, escapeLike(prefix)+"%"); err != nil {
		return 0, fmt.Errorf("count course copies: %w", err)
	}
	return count, nil
}

// Create persists a course record.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	const query = `INSERT INTO courses (id, name, description, responsible_id, session_count, created_at, updated_at) VALUES (:id, :name, :description, :responsible_id, :session_count, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(ctx), query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update modifies a course record.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET name = :name, description = :description, responsible_id = :responsible_id, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(ctx), query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// UpdateSessionCount persists the derived session count.
func (r *CourseRepository) UpdateSessionCount(ctx context.Context, id string, count int) error {
	const query = `UPDATE courses SET session_count = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(ctx).ExecContext(ctx, query, id, count, time.Now().UTC()); err != nil {
		return fmt.Errorf("update course session count: %w", err)
	}
	return nil
}

// Delete removes a course record.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.exec(ctx).ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

// ClearResponsible unsets the responsible partner on every course referencing partnerID and
// returns the affected course ids.
func (r *CourseRepository) ClearResponsible(ctx context.Context, partnerID string) ([]string, error) {
	const query = `UPDATE courses SET responsible_id = NULL, updated_at = $2 WHERE responsible_id = $1 RETURNING id`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(ctx), &ids, query, partnerID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("clear course responsible: %w", err)
	}
	return ids, nil
}

func escapeLike(raw string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(raw)
}

