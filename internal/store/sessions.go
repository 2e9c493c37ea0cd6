package store

import (
	"context"
	"database/sql"
	"time"
)

func (c *conn) CreateSession(ctx context.Context, s Session) error {
	now := s.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	expires := s.ExpiresAt
	if expires.IsZero() {
		expires = now.Add(SessionTTL)
	}
	_, err := c.exec(`
		insert into sessions (session_id, account_address, owner_address, signature, status, device_data, created_at, completed_at, expires_at)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, s.SessionID, s.AccountAddress, s.OwnerAddress, s.Signature, SessionPending, nil, now, nil, expires)
	return err
}

// GetSession returns the session, deriving status "expired" at read time
// without mutating the persisted row, per the session invariant.
func (c *conn) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var (
		s           Session
		status      string
		deviceData  sql.NullString
		completedAt sql.NullTime
	)
	row := c.queryRow(`
		select session_id, account_address, owner_address, signature, status, device_data, created_at, completed_at, expires_at
		from sessions where session_id = ?;
	`, sessionID)
	if err := row.Scan(&s.SessionID, &s.AccountAddress, &s.OwnerAddress, &s.Signature, &status, &deviceData, &s.CreatedAt, &completedAt, &s.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return Session{}, wrapNotFound("session")
		}
		return Session{}, err
	}
	if deviceData.Valid {
		s.DeviceData = &deviceData.String
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	s.Status = SessionStatus(status)
	if s.Status == SessionPending && time.Now().UTC().After(s.ExpiresAt) {
		s.Status = SessionExpired
	}
	return s, nil
}

// CompleteSession atomically transitions a session from pending to
// completed. It only mutates rows whose persisted status is still
// "pending" -- the affected-row-count is the atomicity guarantee.
func (c *conn) CompleteSession(ctx context.Context, sessionID string, deviceData []byte, now time.Time) (bool, error) {
	res, err := c.exec(`
		update sessions set status = ?, device_data = ?, completed_at = ?
		where session_id = ? and status = ?;
	`, SessionCompleted, string(deviceData), now, sessionID, SessionPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CleanupExpiredSessions deletes sessions past their TTL, and completed
// sessions whose completion is older than the retention window.
func (c *conn) CleanupExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := c.exec(`
		delete from sessions
		where expires_at < ?
		   or (status = ? and completed_at < ?);
	`, now, SessionCompleted, now.Add(-CompletedSessionRetention))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
