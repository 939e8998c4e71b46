package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krishisangam/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, first_name, last_name, email, phone, password_hash, role,
	village, district, state, address, farm_size, crops, skills,
	bank_account_holder, bank_account_number, bank_ifsc, bank_name, bank_upi, bank_verified,
	provider_contact_id, provider_fund_account_id, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var holder, number, ifsc, bank, upi *string
	var verified bool
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Phone, &u.PasswordHash, &u.Role,
		&u.Location.Village, &u.Location.District, &u.Location.State, &u.Address, &u.FarmSize, &u.Crops, &u.Skills,
		&holder, &number, &ifsc, &bank, &upi, &verified,
		&u.ProviderContactID, &u.ProviderFundAccountID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if number != nil {
		u.BankDetails = &models.BankDetails{
			AccountHolderName: deref(holder),
			AccountNumber:     *number,
			IFSCCode:          deref(ifsc),
			BankName:          deref(bank),
			UPIID:             deref(upi),
			Verified:          verified,
		}
	}
	return &u, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// ListLabour returns up to limit labour profiles, most recently registered
// first. The limit is sized by the labour-demand signal.
func (r *Repository) ListLabour(ctx context.Context, limit int) ([]*models.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY created_at DESC LIMIT $2
	`, models.RoleLabour, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// UpdateBankDetails replaces the labour's payout destination. A changed
// destination resets verified and drops the cached fund account so the next
// payout re-creates it against the new details.
func (r *Repository) UpdateBankDetails(ctx context.Context, userID uuid.UUID, b models.BankDetails) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET bank_account_holder = $2, bank_account_number = $3, bank_ifsc = $4,
			bank_name = $5, bank_upi = $6, bank_verified = FALSE,
			provider_fund_account_id = NULL, updated_at = now()
		WHERE id = $1
	`, userID, b.AccountHolderName, b.AccountNumber, b.IFSCCode, b.BankName, b.UPIID)
	return err
}

// ClaimProviderContact stores the provider contact id only if none is set
// yet. Returns false when another writer won the race; callers should
// re-read and reuse the stored id.
func (r *Repository) ClaimProviderContact(ctx context.Context, userID uuid.UUID, contactID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET provider_contact_id = $2, updated_at = now()
		WHERE id = $1 AND provider_contact_id IS NULL
	`, userID, contactID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimProviderFundAccount stores the fund account id once and flips
// bank_verified on first creation. Same race contract as ClaimProviderContact.
func (r *Repository) ClaimProviderFundAccount(ctx context.Context, userID uuid.UUID, fundAccountID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET provider_fund_account_id = $2, bank_verified = TRUE, updated_at = now()
		WHERE id = $1 AND provider_fund_account_id IS NULL
	`, userID, fundAccountID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateProfile mutates the basic profile fields owned by the user.
func (r *Repository) UpdateProfile(ctx context.Context, u *models.User) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET first_name = $2, last_name = $3, phone = $4,
			village = $5, district = $6, state = $7, address = $8,
			farm_size = $9, crops = $10, skills = $11, updated_at = now()
		WHERE id = $1
	`, u.ID, u.FirstName, u.LastName, u.Phone,
		u.Location.Village, u.Location.District, u.Location.State, u.Address,
		u.FarmSize, u.Crops, u.Skills)
	return err
}
