package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/openacademy-api/internal/models"
	"github.com/noah-isme/openacademy-api/pkg/database"
)

// PartnerRepository manages persistence for partners.
type PartnerRepository struct {
	db *sqlx.DB
}

// NewPartnerRepository constructs a PartnerRepository.
func NewPartnerRepository(db *sqlx.DB) *PartnerRepository {
	return &PartnerRepository{db: db}
}

func (r *PartnerRepository) exec(ctx context.Context) sqlx.ExtContext {
	return database.Executor(ctx, r.db)
}

// List returns partners matching filters along with total count.
func (r *PartnerRepository) List(ctx context.Context, filter models.PartnerFilter) ([]models.Partner, int, error) {
	base := "FROM partners WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Instructor != nil {
		conditions = append(conditions, fmt.Sprintf("instructor = $%d", len(args)+1))
		args = append(args, *filter.Instructor)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(COALESCE(email, '')) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "name"
	}
	allowedSorts := map[string]string{
		"name":       "name",
		"email":      "email",
		"created_at": "created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "name"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT id, name, email, instructor, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", base, column, order, size, offset)
	var partners []models.Partner
	if err := sqlx.SelectContext(ctx, r.exec(ctx), &partners, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list partners: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := sqlx.GetContext(ctx, r.exec(ctx), &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count partners: %w", err)
	}

	return partners, total, nil
}

// FindByID fetches a partner by ID.
func (r *PartnerRepository) FindByID(ctx context.Context, id string) (*models.Partner, error) {
	const query = `SELECT id, name, email, instructor, created_at, updated_at FROM partners WHERE id = $1`
	var partner models.Partner
	if err := sqlx.GetContext(ctx, r.exec(ctx), &partner, query, id); err != nil {
		return nil, err
	}
	return &partner, nil
}

// FindMissing returns the ids among ids that have no partner record.
func (r *PartnerRepository) FindMissing(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []string
	if err := sqlx.SelectContext(ctx, r.exec(ctx), &found, `SELECT id FROM partners WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("check partners: %w", err)
	}
	known := make(map[string]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// Create inserts a new partner record.
func (r *PartnerRepository) Create(ctx context.Context, partner *models.Partner) error {
	if partner.ID == "" {
		partner.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if partner.CreatedAt.IsZero() {
		partner.CreatedAt = now
	}
	partner.UpdatedAt = now

	const query = `INSERT INTO partners (id, name, email, instructor, created_at, updated_at)
		VALUES (:id, :name, :email, :instructor, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(ctx), query, partner); err != nil {
		return fmt.Errorf("create partner: %w", err)
	}
	return nil
}

// Update modifies an existing partner record.
func (r *PartnerRepository) Update(ctx context.Context, partner *models.Partner) error {
	partner.UpdatedAt = time.Now().UTC()
	const query = `UPDATE partners SET name = :name, email = :email, instructor = :instructor, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(ctx), query, partner); err != nil {
		return fmt.Errorf("update partner: %w", err)
	}
	return nil
}

// Delete removes a partner record.
func (r *PartnerRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.exec(ctx).ExecContext(ctx, `DELETE FROM partners WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete partner: %w", err)
	}
	return nil
}
