package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hebes/smscrm/internal/domain"
	"github.com/hebes/smscrm/internal/phone"
)

const messageColumns = `id, direction, from_number, to_number, body, status, provider_message_sid,
	conversation_id, sender_phone_number_id, account_id, num_media, error_code, error_message,
	sent_at, received_at, delivered_at, failed_at, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var providerSID, convKey, senderID, accountID, errCode, errMsg sql.NullString
	var sentAt, receivedAt, deliveredAt, failedAt sql.NullTime
	err := row.Scan(&msg.ID, &msg.Direction, &msg.From, &msg.To, &msg.Body, &msg.Status, &providerSID,
		&convKey, &senderID, &accountID, &msg.MediaCount, &errCode, &errMsg,
		&sentAt, &receivedAt, &deliveredAt, &failedAt, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	msg.ProviderMessageSID = providerSID.String
	msg.ConversationKey = convKey.String
	msg.SenderPhoneNumberID = senderID.String
	msg.AccountID = accountID.String
	msg.ErrorCode = errCode.String
	msg.ErrorMessage = errMsg.String
	msg.SentAt = timePtr(sentAt)
	msg.ReceivedAt = timePtr(receivedAt)
	msg.DeliveredAt = timePtr(deliveredAt)
	msg.FailedAt = timePtr(failedAt)
	return &msg, nil
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	defer rows.Close()
	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// CreateMessage inserts a message into the log.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Direction, msg.From, msg.To, msg.Body, msg.Status, nullString(msg.ProviderMessageSID),
		nullString(msg.ConversationKey), nullString(msg.SenderPhoneNumberID), nullString(msg.AccountID),
		msg.MediaCount, nullString(msg.ErrorCode), nullString(msg.ErrorMessage),
		nullTime(msg.SentAt), nullTime(msg.ReceivedAt), nullTime(msg.DeliveredAt), nullTime(msg.FailedAt), msg.CreatedAt)
	return err
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return msg, err
}

// GetMessageByProviderSID retrieves a message by the provider's message SID.
func (s *SQLiteStore) GetMessageByProviderSID(ctx context.Context, sid string) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE provider_message_sid = ? LIMIT 1`, sid)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return msg, err
}

// ListMessages returns messages matching filter, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, filter domain.MessageFilter) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE 1=1`
	var args []interface{}

	if filter.CustomerPhone != "" {
		clause, vargs := inClause(phone.Variants(filter.CustomerPhone))
		query += ` AND ((direction = 'inbound' AND from_number IN ` + clause + `) OR (direction = 'outbound' AND to_number IN ` + clause + `))`
		args = append(args, vargs...)
		args = append(args, vargs...)
	}
	if filter.ConversationKey != "" {
		query += ` AND conversation_id = ?`
		args = append(args, filter.ConversationKey)
	}
	if filter.SenderPhoneNumberID != "" {
		query += ` AND sender_phone_number_id = ?`
		args = append(args, filter.SenderPhoneNumberID)
	}
	if filter.Unkeyed {
		query += ` AND (conversation_id IS NULL OR conversation_id = '')`
	}

	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// FindByCustomerAndSender returns messages exchanged between customerPhone and
// the given sender. The customer is matched on the counterpart field chosen by
// direction. The sender matches by binding id, or by the other phone field when
// the binding id is absent on the row.
func (s *SQLiteStore) FindByCustomerAndSender(ctx context.Context, customerPhone, senderPhoneNumberID, senderPhone string) ([]domain.Message, error) {
	customerVariants := phone.Variants(customerPhone)
	if len(customerVariants) == 0 {
		return nil, nil
	}
	cClause, cArgs := inClause(customerVariants)

	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE ((direction = 'inbound' AND from_number IN ` + cClause + `) OR (direction = 'outbound' AND to_number IN ` + cClause + `))`
	args := append(append([]interface{}{}, cArgs...), cArgs...)

	var senderConds []string
	if senderPhoneNumberID != "" {
		senderConds = append(senderConds, `sender_phone_number_id = ?`)
		args = append(args, senderPhoneNumberID)
	}
	if senderVariants := phone.Variants(senderPhone); len(senderVariants) > 0 {
		sClause, sArgs := inClause(senderVariants)
		senderConds = append(senderConds,
			`(sender_phone_number_id IS NULL AND direction = 'inbound' AND to_number IN `+sClause+`)`,
			`(sender_phone_number_id IS NULL AND direction = 'outbound' AND from_number IN `+sClause+`)`)
		args = append(args, sArgs...)
		args = append(args, sArgs...)
	}
	if len(senderConds) == 0 {
		return nil, nil
	}
	query += ` AND (` + strings.Join(senderConds, " OR ") + `) ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// UpdateMessageConversationKey sets the conversation key of a message.
func (s *SQLiteStore) UpdateMessageConversationKey(ctx context.Context, id, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET conversation_id = ? WHERE id = ?`, key, id)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// UpdateMessageStatus applies a delivery-status callback to the message with
// the callback's provider SID.
func (s *SQLiteStore) UpdateMessageStatus(ctx context.Context, cb domain.StatusCallback, at time.Time) (bool, error) {
	query := `UPDATE messages SET status = ?`
	args := []interface{}{cb.Status}

	switch {
	case cb.Status == domain.MessageStatusDelivered:
		query += `, delivered_at = ?`
		args = append(args, at)
	case cb.Status.IsFailure():
		query += `, failed_at = ?`
		args = append(args, at)
	}
	if cb.ErrorCode != "" {
		query += `, error_code = ?`
		args = append(args, cb.ErrorCode)
	}
	if cb.ErrorMessage != "" {
		query += `, error_message = ?`
		args = append(args, cb.ErrorMessage)
	}
	query += ` WHERE provider_message_sid = ?`
	args = append(args, cb.MessageSID)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ListPendingOutbound returns outbound messages created inside
// [createdAfter, createdBefore) that were handed to the provider but never
// reached a final status, oldest first.
func (s *SQLiteStore) ListPendingOutbound(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		WHERE direction = 'outbound' AND status IN ('queued', 'sending', 'sent')
		AND provider_message_sid IS NOT NULL AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC LIMIT ?`,
		createdAfter, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// DeleteMessage removes a message by ID.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
