package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-fulfillment/internal/domain/member"
)

const (
	getMemberByIDSQL = `SELECT id, nickname, email, address FROM members WHERE id = $1`

	updateMemberAddressSQL = `UPDATE members SET address = $2 WHERE id = $1`

	insertMemberSQL = `INSERT INTO members (id, nickname, email, address)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET nickname = $2, email = $3, address = $4`
)

var _ member.Repository = (*MemberRepository)(nil)

// MemberRepository implements member.Repository backed by PostgreSQL.
type MemberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository returns a MemberRepository that uses the given pool.
func NewMemberRepository(pool *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

// GetByID returns a member by its identifier.
func (r *MemberRepository) GetByID(ctx context.Context, id string) (*member.Member, error) {
	var m member.Member
	err := r.pool.QueryRow(ctx, getMemberByIDSQL, id).
		Scan(&m.ID, &m.Nickname, &m.Email, &m.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, member.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting member %q: %w", id, err)
	}
	return &m, nil
}

// UpdateAddress changes the member's default shipping address.
func (r *MemberRepository) UpdateAddress(ctx context.Context, id, address string) error {
	tag, err := r.pool.Exec(ctx, updateMemberAddressSQL, id, address)
	if err != nil {
		return fmt.Errorf("updating address for member %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return member.ErrNotFound
	}
	return nil
}

// Upsert inserts or refreshes a member record. Used by seed tooling; member
// account management itself lives outside this service.
func (r *MemberRepository) Upsert(ctx context.Context, m *member.Member) error {
	_, err := r.pool.Exec(ctx, insertMemberSQL, m.ID, m.Nickname, m.Email, m.Address)
	if err != nil {
		return fmt.Errorf("upserting member %q: %w", m.ID, err)
	}
	return nil
}
