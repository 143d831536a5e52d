package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/convocation-rfid-api/internal/models"
)

// GraduateRepository reads graduate identity and address records.
type GraduateRepository struct {
	db *sqlx.DB
}

// NewGraduateRepository constructs a GraduateRepository.
func NewGraduateRepository(db *sqlx.DB) *GraduateRepository {
	return &GraduateRepository{db: db}
}

// FindByConvocationNumber returns the identity for a convocation number.
func (r *GraduateRepository) FindByConvocationNumber(ctx context.Context, convocationNumber string) (*models.GraduateIdentity, error) {
	const query = `SELECT convocation_number, name, email, course FROM graduates WHERE UPPER(convocation_number) = UPPER($1) LIMIT 1`
	var identity models.GraduateIdentity
	if err := r.db.GetContext(ctx, &identity, query, convocationNumber); err != nil {
		return nil, err
	}
	return &identity, nil
}
