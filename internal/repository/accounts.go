package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hebes/smscrm/internal/domain"
	"github.com/hebes/smscrm/internal/phone"
)

// CreateContact inserts a contact. The phone is stored normalized.
func (s *SQLiteStore) CreateContact(ctx context.Context, contact *domain.Contact) error {
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now().UTC()
	}
	contact.Phone = phone.Normalize(contact.Phone)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, name, phone, email, notes, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		contact.ID, contact.Name, contact.Phone, nullString(contact.Email), nullString(contact.Notes), contact.CreatedAt)
	return err
}

// GetContactByPhone finds a contact stored under any variant of phone.
func (s *SQLiteStore) GetContactByPhone(ctx context.Context, p string) (*domain.Contact, error) {
	variants := phone.Variants(p)
	if len(variants) == 0 {
		return nil, nil
	}
	clause, args := inClause(variants)
	var c domain.Contact
	var email, notes sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, phone, email, notes, created_at FROM contacts WHERE phone IN `+clause+` LIMIT 1`,
		args...).Scan(&c.ID, &c.Name, &c.Phone, &email, &notes, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Email = email.String
	c.Notes = notes.String
	return &c, nil
}

// ListContacts lists all contacts ordered by name.
func (s *SQLiteStore) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, phone, email, notes, created_at FROM contacts ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []domain.Contact
	for rows.Next() {
		var c domain.Contact
		var email, notes sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &email, &notes, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Email = email.String
		c.Notes = notes.String
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// UpsertSenderAccount inserts or replaces a sender account.
func (s *SQLiteStore) UpsertSenderAccount(ctx context.Context, a *domain.SenderAccount) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Provider == "" {
		a.Provider = domain.ProviderTwilio
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sender_accounts (id, account_name, provider, account_sid, auth_token, conversation_service_sid, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			account_name = excluded.account_name,
			provider = excluded.provider,
			account_sid = excluded.account_sid,
			auth_token = excluded.auth_token,
			conversation_service_sid = excluded.conversation_service_sid,
			is_active = excluded.is_active`,
		a.ID, a.AccountName, a.Provider, a.AccountSID, a.AuthToken, nullString(a.ConversationServiceSID), boolInt(a.IsActive), a.CreatedAt)
	return err
}

const accountColumns = `id, account_name, provider, account_sid, auth_token, conversation_service_sid, is_active, created_at`

func scanAccount(row rowScanner) (*domain.SenderAccount, error) {
	var a domain.SenderAccount
	var serviceSID sql.NullString
	var active int
	if err := row.Scan(&a.ID, &a.AccountName, &a.Provider, &a.AccountSID, &a.AuthToken, &serviceSID, &active, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ConversationServiceSID = serviceSID.String
	a.IsActive = active != 0
	return &a, nil
}

// GetSenderAccount retrieves a sender account by ID.
func (s *SQLiteStore) GetSenderAccount(ctx context.Context, id string) (*domain.SenderAccount, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM sender_accounts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// GetSenderAccountBySID retrieves a sender account by provider account SID.
func (s *SQLiteStore) GetSenderAccountBySID(ctx context.Context, accountSID string) (*domain.SenderAccount, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM sender_accounts WHERE account_sid = ? ORDER BY is_active DESC LIMIT 1`, accountSID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// ListSenderAccounts lists all sender accounts.
func (s *SQLiteStore) ListSenderAccounts(ctx context.Context) ([]domain.SenderAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM sender_accounts ORDER BY account_name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.SenderAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpsertSenderPhoneNumber inserts or replaces a sender phone. The phone is
// stored normalized.
func (s *SQLiteStore) UpsertSenderPhoneNumber(ctx context.Context, p *domain.SenderPhoneNumber) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.PhoneNumber = phone.Normalize(p.PhoneNumber)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sender_phone_numbers (id, account_id, phone_number, friendly_name, twilio_sid, is_primary, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			phone_number = excluded.phone_number,
			friendly_name = excluded.friendly_name,
			twilio_sid = excluded.twilio_sid,
			is_primary = excluded.is_primary,
			is_active = excluded.is_active`,
		p.ID, p.AccountID, p.PhoneNumber, nullString(p.FriendlyName), nullString(p.ProviderSID), boolInt(p.IsPrimary), boolInt(p.IsActive), p.CreatedAt)
	return err
}

const senderPhoneColumns = `id, account_id, phone_number, friendly_name, twilio_sid, is_primary, is_active, created_at`

func scanSenderPhone(row rowScanner) (*domain.SenderPhoneNumber, error) {
	var p domain.SenderPhoneNumber
	var friendly, sid sql.NullString
	var primary, active int
	if err := row.Scan(&p.ID, &p.AccountID, &p.PhoneNumber, &friendly, &sid, &primary, &active, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.FriendlyName = friendly.String
	p.ProviderSID = sid.String
	p.IsPrimary = primary != 0
	p.IsActive = active != 0
	return &p, nil
}

// GetSenderPhoneNumber retrieves a sender phone by ID.
func (s *SQLiteStore) GetSenderPhoneNumber(ctx context.Context, id string) (*domain.SenderPhoneNumber, error) {
	p, err := scanSenderPhone(s.db.QueryRowContext(ctx, `SELECT `+senderPhoneColumns+` FROM sender_phone_numbers WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// GetSenderPhoneNumberByPhone finds a sender phone stored under any variant of p.
func (s *SQLiteStore) GetSenderPhoneNumberByPhone(ctx context.Context, p string) (*domain.SenderPhoneNumber, error) {
	variants := phone.Variants(p)
	if len(variants) == 0 {
		return nil, nil
	}
	clause, args := inClause(variants)
	sp, err := scanSenderPhone(s.db.QueryRowContext(ctx,
		`SELECT `+senderPhoneColumns+` FROM sender_phone_numbers WHERE phone_number IN `+clause+` ORDER BY is_active DESC LIMIT 1`, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sp, err
}

// ListSenderPhoneNumbers lists sender phones, primary first.
func (s *SQLiteStore) ListSenderPhoneNumbers(ctx context.Context, activeOnly bool) ([]domain.SenderPhoneNumber, error) {
	query := `SELECT ` + senderPhoneColumns + ` FROM sender_phone_numbers`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY is_primary DESC, phone_number ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var phones []domain.SenderPhoneNumber
	for rows.Next() {
		p, err := scanSenderPhone(rows)
		if err != nil {
			return nil, err
		}
		phones = append(phones, *p)
	}
	return phones, rows.Err()
}
