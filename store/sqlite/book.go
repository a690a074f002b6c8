package sqlite

// book.Store implementation: party records live in the same database as the
// ledger but never participate in WithLoan sections, so these methods run
// against the connection directly.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/credit-engine/book"
	"github.com/warp/credit-engine/engine"
)

const clientColumns = `id, name, national_id, phone, address, work_address, email, social_handle,
	guarantor_national_id, guarantor_name, guarantor_surname, guarantor_address, guarantor_phone,
	active, created_at`

func (s *Store) CreateClient(ctx context.Context, c *book.Client) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.NationalID, c.Phone, c.Address, c.WorkAddress, c.Email, c.SocialHandle,
		c.Guarantor.NationalID, c.Guarantor.Name, c.Guarantor.Surname, c.Guarantor.Address, c.Guarantor.Phone,
		c.Active, c.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err, "clients.national_id") {
			return book.ErrDuplicateNationalID
		}
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, id engine.ClientID) (*book.Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	client, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrClientNotFound
	}
	return client, err
}

func (s *Store) UpdateClient(ctx context.Context, c *book.Client) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clients SET phone = ?, address = ?, work_address = ?, email = ?, social_handle = ?, active = ?
		WHERE id = ?`,
		c.Phone, c.Address, c.WorkAddress, c.Email, c.SocialHandle, c.Active, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return engine.ErrClientNotFound
	}
	return nil
}

func (s *Store) ListClients(ctx context.Context) ([]*book.Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*book.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

func scanClient(row rowScanner) (*book.Client, error) {
	var c book.Client
	var createdAt string

	err := row.Scan(&c.ID, &c.Name, &c.NationalID, &c.Phone, &c.Address, &c.WorkAddress,
		&c.Email, &c.SocialHandle,
		&c.Guarantor.NationalID, &c.Guarantor.Name, &c.Guarantor.Surname,
		&c.Guarantor.Address, &c.Guarantor.Phone,
		&c.Active, &createdAt)
	if err != nil {
		return nil, err
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at for client %s: %w", c.ID, err)
	}
	return &c, nil
}

func (s *Store) CreatePortfolio(ctx context.Context, p *book.Portfolio) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolios (id, name, description, created_at)
		VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err, "portfolios.name") {
			return book.ErrDuplicatePortfolioName
		}
		return fmt.Errorf("failed to insert portfolio: %w", err)
	}
	return nil
}

func (s *Store) GetPortfolio(ctx context.Context, id engine.PortfolioID) (*book.Portfolio, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM portfolios WHERE id = ?`, id)
	portfolio, err := scanPortfolio(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrPortfolioNotFound
	}
	return portfolio, err
}

func (s *Store) ListPortfolios(ctx context.Context) ([]*book.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM portfolios ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []*book.Portfolio
	for rows.Next() {
		portfolio, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		portfolios = append(portfolios, portfolio)
	}
	return portfolios, rows.Err()
}

func scanPortfolio(row rowScanner) (*book.Portfolio, error) {
	var p book.Portfolio
	var createdAt string

	err := row.Scan(&p.ID, &p.Name, &p.Description, &createdAt)
	if err != nil {
		return nil, err
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at for portfolio %s: %w", p.ID, err)
	}
	return &p, nil
}

func (s *Store) UpsertMember(ctx context.Context, m *book.Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolio_members (portfolio_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (portfolio_id, user_id) DO UPDATE SET role = excluded.role`,
		m.PortfolioID, m.UserID, m.Role, m.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, portfolioID engine.PortfolioID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM portfolio_members WHERE portfolio_id = ? AND user_id = ?`,
		portfolioID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

func (s *Store) Members(ctx context.Context, portfolioID engine.PortfolioID) ([]*book.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT portfolio_id, user_id, role, created_at
		FROM portfolio_members WHERE portfolio_id = ? ORDER BY user_id`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*book.Member
	for rows.Next() {
		var m book.Member
		var createdAt string
		if err := rows.Scan(&m.PortfolioID, &m.UserID, &m.Role, &createdAt); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("bad created_at for member %s: %w", m.UserID, err)
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}
