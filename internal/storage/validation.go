package storage

import (
	"context"
	"fmt"

	"github.com/sajagshrestha/autofin-BE/internal/model"
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	return ctx.Err()
}

func validateString(value, name string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	return nil
}

func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("transaction cannot be nil")
	}
	if err := validateString(txn.ID, "transaction id"); err != nil {
		return err
	}
	if err := validateString(txn.UserID, "transaction user id"); err != nil {
		return err
	}
	if txn.Amount.IsNegative() || txn.Amount.IsZero() {
		return fmt.Errorf("transaction amount must be positive, got %s", txn.Amount)
	}
	switch txn.Direction {
	case model.DirectionDebit, model.DirectionCredit:
	default:
		return fmt.Errorf("invalid transaction direction: %q", txn.Direction)
	}
	if txn.Confidence < 0 || txn.Confidence > 1 {
		return fmt.Errorf("transaction confidence must be in [0,1], got %f", txn.Confidence)
	}
	return nil
}

func validateCategory(cat *model.Category) error {
	if cat == nil {
		return fmt.Errorf("category cannot be nil")
	}
	return validateString(cat.Name, "category name")
}

func validateMailbox(mb *model.MailboxSync) error {
	if mb == nil {
		return fmt.Errorf("mailbox cannot be nil")
	}
	if err := validateString(mb.UserID, "mailbox user id"); err != nil {
		return err
	}
	return validateString(mb.EmailAddress, "mailbox email address")
}
