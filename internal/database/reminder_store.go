package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const reminderColumns = "id, message, scheduled_for, sent, task_id, created_at"

// CreateReminder validates and inserts a new pending reminder.
func (s *sqlxStore) CreateReminder(ctx context.Context, reminder *Reminder) error {
	if reminder == nil {
		return fmt.Errorf("%w: reminder is nil", ErrValidation)
	}
	if strings.TrimSpace(reminder.Message) == "" {
		return fmt.Errorf("%w: message must not be empty", ErrValidation)
	}
	if reminder.ScheduledFor.IsZero() {
		return fmt.Errorf("%w: scheduled_for must be set", ErrValidation)
	}

	reminder.ScheduledFor = reminder.ScheduledFor.UTC()
	reminder.Sent = false
	reminder.CreatedAt = time.Now().UTC()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if reminder.TaskID.Valid {
			if _, err := getTaskTx(ctx, tx, reminder.TaskID.Int64); err != nil {
				if errors.Is(err, ErrNotFound) {
					return fmt.Errorf("%w: task %d does not exist", ErrValidation, reminder.TaskID.Int64)
				}
				return err
			}
		}

		res, err := tx.NamedExecContext(ctx,
			`INSERT INTO reminders (message, scheduled_for, sent, task_id, created_at)
			VALUES (:message, :scheduled_for, :sent, :task_id, :created_at)`,
			reminder)
		if err != nil {
			return fmt.Errorf("failed to insert reminder: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inserted reminder id: %w", err)
		}
		reminder.ID = id
		return nil
	})
}

// ListReminders returns reminders, optionally including already sent ones,
// soonest first.
func (s *sqlxStore) ListReminders(ctx context.Context, includeSent bool) ([]Reminder, error) {
	query := "SELECT " + reminderColumns + " FROM reminders"
	if !includeSent {
		query += " WHERE sent = 0"
	}
	query += " ORDER BY scheduled_for"

	var reminders []Reminder
	if err := s.db.SelectContext(ctx, &reminders, query); err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return reminders, nil
}

// DueRemindersAsOf returns all unsent reminders scheduled at or before now,
// ordered by scheduled_for ascending.
func (s *sqlxStore) DueRemindersAsOf(ctx context.Context, now time.Time) ([]Reminder, error) {
	var reminders []Reminder
	err := s.db.SelectContext(ctx, &reminders,
		"SELECT "+reminderColumns+` FROM reminders
		WHERE scheduled_for <= ? AND sent = 0
		ORDER BY scheduled_for`,
		now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	return reminders, nil
}

// MarkReminderSent transitions a reminder to sent. The precondition on the
// sent flag prevents a double-send from ever touching the row twice.
func (s *sqlxStore) MarkReminderSent(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return markReminderSentTx(ctx, tx, id)
	})
}

func markReminderSentTx(ctx context.Context, tx *sqlx.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, "UPDATE reminders SET sent = 1 WHERE id = ? AND sent = 0", id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder %d sent: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var sent bool
		if err := tx.GetContext(ctx, &sent, "SELECT sent FROM reminders WHERE id = ?", id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("reminder %d: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to check reminder %d: %w", id, err)
		}
		return fmt.Errorf("reminder %d: %w", id, ErrReminderSent)
	}
	return nil
}

// CancelReminder removes a reminder that has not been sent yet. Sent
// reminders are immutable.
func (s *sqlxStore) CancelReminder(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var sent bool
		if err := tx.GetContext(ctx, &sent, "SELECT sent FROM reminders WHERE id = ?", id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("reminder %d: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to check reminder %d: %w", id, err)
		}
		if sent {
			return fmt.Errorf("reminder %d: %w", id, ErrReminderSent)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM reminders WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to cancel reminder %d: %w", id, err)
		}
		return nil
	})
}

// DeliverDueReminders runs the reminder-delivery cycle in one transaction
// scope: read due reminders, attempt delivery for each, mark them sent,
// commit. Delivery is best-effort and must not return control-flow errors;
// a crash before commit re-delivers on the next run rather than losing the
// reminder.
func (s *sqlxStore) DeliverDueReminders(ctx context.Context, now time.Time, deliver func(Reminder)) ([]Reminder, error) {
	var delivered []Reminder

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var due []Reminder
		err := tx.SelectContext(ctx, &due,
			"SELECT "+reminderColumns+` FROM reminders
			WHERE scheduled_for <= ? AND sent = 0
			ORDER BY scheduled_for`,
			now.UTC())
		if err != nil {
			return fmt.Errorf("failed to select due reminders: %w", err)
		}

		for _, rem := range due {
			if deliver != nil {
				deliver(rem)
			}
			if err := markReminderSentTx(ctx, tx, rem.ID); err != nil {
				return err
			}
			rem.Sent = true
			delivered = append(delivered, rem)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return delivered, nil
}
