package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// EnsureUser fetches a profile, provisioning a free-tier row on first use.
func (s *Store) EnsureUser(uid string) (User, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.Exec(`
		INSERT INTO users (uid, created_at) VALUES (?, ?)
		ON CONFLICT(uid) DO NOTHING`, uid, now); err != nil {
		return User{}, fmt.Errorf("provisioning user %s: %w", uid, err)
	}
	return s.GetUser(uid)
}

// GetUser fetches a profile by uid.
func (s *Store) GetUser(uid string) (User, error) {
	var u User
	var createdAt string
	var autoDelete int
	err := s.db.QueryRow(`
		SELECT uid, email, subscription, conversion_count, default_format, auto_delete, created_at
		FROM users WHERE uid = ?`, uid,
	).Scan(&u.UID, &u.Email, &u.Subscription, &u.ConversionCount, &u.DefaultFormat, &autoDelete, &createdAt)
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.AutoDelete = autoDelete != 0
	if u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return User{}, fmt.Errorf("parsing created_at for user %s: %w", uid, err)
	}
	return u, nil
}

// UpdateUserPreferences sets the default output format and auto-delete flag.
func (s *Store) UpdateUserPreferences(uid, defaultFormat string, autoDelete bool) error {
	ad := 0
	if autoDelete {
		ad = 1
	}
	res, err := s.db.Exec(`UPDATE users SET default_format = ?, auto_delete = ? WHERE uid = ?`,
		defaultFormat, ad, uid)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserSubscription changes a user's tier.
func (s *Store) SetUserSubscription(uid, tier string) error {
	res, err := s.db.Exec(`UPDATE users SET subscription = ? WHERE uid = ?`, tier, uid)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
