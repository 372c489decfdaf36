package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hebes/smscrm/internal/domain"
	"github.com/hebes/smscrm/internal/phone"
)

func (s *Service) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	contacts, err := s.store.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get contacts: %w", err)
	}
	return contacts, nil
}

// GetContactByPhone finds the contact stored under any form of p.
func (s *Service) GetContactByPhone(ctx context.Context, p string) (*domain.Contact, error) {
	if phone.Normalize(p) == "" {
		return nil, newError(ErrorInvalidInput, "phone is required", nil)
	}
	contact, err := s.store.GetContactByPhone(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	if contact == nil {
		return nil, newError(ErrorNotFound, "contact not found", nil)
	}
	return contact, nil
}

func (s *Service) CreateContact(ctx context.Context, req domain.CreateContactRequest) (*domain.Contact, error) {
	name := strings.TrimSpace(req.Name)
	p := phone.Normalize(req.Phone)
	if name == "" || !phone.Valid(p) {
		return nil, newError(ErrorInvalidInput, "name and a valid phone are required", nil)
	}

	existing, err := s.store.GetContactByPhone(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	if existing != nil {
		return nil, newError(ErrorConflict, "contact with phone "+p+" already exists", nil)
	}

	contact := &domain.Contact{
		ID:    "ct_" + uuid.New().String(),
		Name:  name,
		Phone: p,
		Email: strings.TrimSpace(req.Email),
		Notes: req.Notes,
	}
	if err := s.store.CreateContact(ctx, contact); err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}
	return contact, nil
}

func (s *Service) ListSenderPhoneNumbers(ctx context.Context, activeOnly bool) ([]domain.SenderPhoneNumber, error) {
	phones, err := s.store.ListSenderPhoneNumbers(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to get sender phones: %w", err)
	}
	return phones, nil
}
