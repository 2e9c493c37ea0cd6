package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hadv/ethaura-passkeys/internal/apierror"
)

func (c *conn) CreateDevice(ctx context.Context, d Device) error {
	attJSON, err := json.Marshal(d.Attestation)
	if err != nil {
		return fmt.Errorf("marshal attestation metadata: %w", err)
	}
	mdsJSON, err := json.Marshal(d.MDS)
	if err != nil {
		return fmt.Errorf("marshal mds metadata: %w", err)
	}

	now := d.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	_, err = c.exec(`
		insert into devices (
			account_address, device_id, device_name, device_type,
			credential_id, raw_id, public_key_x, public_key_y,
			attestation_object, client_data_json,
			is_active, proposal_hash, proposal_tx_hash,
			attestation_meta, mds_meta,
			created_at, updated_at
		) values (?,?,?,?, ?,?,?,?, ?,?, ?,?,?, ?,?, ?,?);
	`,
		d.AccountAddress, d.DeviceID, d.DeviceName, d.DeviceType,
		d.CredentialID, d.RawID, d.PublicKey.X, d.PublicKey.Y,
		d.AttestationObject, d.ClientDataJSON,
		d.IsActive, d.ProposalHash, d.ProposalTxHash,
		string(attJSON), string(mdsJSON),
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.New(apierror.CodeConflict, "device already registered for this account")
		}
		return err
	}
	return nil
}

func (c *conn) UpdateDeviceProposalHash(ctx context.Context, account, deviceID string, proposalHash string, proposalTxHash *string) error {
	res, err := c.exec(`
		update devices set proposal_hash = ?, proposal_tx_hash = ?, updated_at = ?
		where account_address = ? and device_id = ?;
	`, proposalHash, proposalTxHash, time.Now().UTC(), account, deviceID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return wrapNotFound("device")
	}
	return nil
}

// ActivateDevice runs the three-step activation transaction: deactivate
// all active devices for account, activate the one matching
// newPublicKeyX, abort if none is found. Partial application is
// impossible because both steps run in the same transaction.
func (c *conn) ActivateDevice(ctx context.Context, account, newPublicKeyX string) error {
	now := time.Now().UTC()
	return c.execTx(func(t *trans) error {
		if _, err := t.exec(`
			update devices set is_active = 0, proposal_hash = null, proposal_tx_hash = null, updated_at = ?
			where account_address = ? and is_active = 1;
		`, now, account); err != nil {
			return err
		}

		res, err := t.exec(`
			update devices set is_active = 1, proposal_hash = null, proposal_tx_hash = null, updated_at = ?
			where account_address = ? and public_key_x = ?;
		`, now, account, newPublicKeyX)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apierror.New(apierror.CodeNotFound, "no device with that public key to activate")
		}
		if n > 1 {
			return apierror.New(apierror.CodeNotFound, "ambiguous public key, refusing to activate")
		}
		return nil
	})
}

func (c *conn) GetDevices(ctx context.Context, account string) ([]Device, error) {
	rows, err := c.query(`
		select account_address, device_id, device_name, device_type,
			credential_id, raw_id, public_key_x, public_key_y,
			attestation_object, client_data_json,
			is_active, proposal_hash, proposal_tx_hash,
			attestation_meta, mds_meta,
			created_at, updated_at, last_used_at
		from devices where account_address = ?
		order by is_active desc, created_at desc;
	`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *conn) GetDeviceByCredentialID(ctx context.Context, account, credentialID string) (Device, error) {
	row := c.queryRow(`
		select account_address, device_id, device_name, device_type,
			credential_id, raw_id, public_key_x, public_key_y,
			attestation_object, client_data_json,
			is_active, proposal_hash, proposal_tx_hash,
			attestation_meta, mds_meta,
			created_at, updated_at, last_used_at
		from devices where account_address = ? and credential_id = ?;
	`, account, credentialID)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return Device{}, wrapNotFound("device")
	}
	return d, err
}

func (c *conn) GetActiveDevice(ctx context.Context, account string) (Device, error) {
	row := c.queryRow(`
		select account_address, device_id, device_name, device_type,
			credential_id, raw_id, public_key_x, public_key_y,
			attestation_object, client_data_json,
			is_active, proposal_hash, proposal_tx_hash,
			attestation_meta, mds_meta,
			created_at, updated_at, last_used_at
		from devices where account_address = ? and is_active = 1;
	`, account)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return Device{}, wrapNotFound("active device")
	}
	return d, err
}

func (c *conn) UpdateDeviceLastUsed(ctx context.Context, account, deviceID string, at time.Time) error {
	res, err := c.exec(`update devices set last_used_at = ? where account_address = ? and device_id = ?;`, at, account, deviceID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return wrapNotFound("device")
	}
	return nil
}

func (c *conn) UpdateDeviceMDSMetadata(ctx context.Context, account, deviceID string, md MDSMetadata) error {
	b, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal mds metadata: %w", err)
	}
	_, err = c.exec(`update devices set mds_meta = ? where account_address = ? and device_id = ?;`, string(b), account, deviceID)
	return err
}

func (c *conn) RemoveDevice(ctx context.Context, account, deviceID string) (bool, error) {
	res, err := c.exec(`delete from devices where account_address = ? and device_id = ?;`, account, deviceID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *conn) CountDevices(ctx context.Context) (int64, error) {
	var n int64
	if err := c.queryRow(`select count(*) from devices;`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *conn) OldestNewestDevice(ctx context.Context) (*time.Time, *time.Time, error) {
	var oldest, newest sql.NullTime
	err := c.queryRow(`select min(created_at), max(created_at) from devices;`).Scan(&oldest, &newest)
	if err != nil {
		return nil, nil, err
	}
	var o, n *time.Time
	if oldest.Valid {
		o = &oldest.Time
	}
	if newest.Valid {
		n = &newest.Time
	}
	return o, n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (Device, error) {
	var (
		d                   Device
		attJSON, mdsJSON    string
		attestationObj      sql.NullString
		clientDataJSON      sql.NullString
		proposalHash        sql.NullString
		proposalTxHash      sql.NullString
		lastUsedAt          sql.NullTime
	)
	if err := row.Scan(
		&d.AccountAddress, &d.DeviceID, &d.DeviceName, &d.DeviceType,
		&d.CredentialID, &d.RawID, &d.PublicKey.X, &d.PublicKey.Y,
		&attestationObj, &clientDataJSON,
		&d.IsActive, &proposalHash, &proposalTxHash,
		&attJSON, &mdsJSON,
		&d.CreatedAt, &d.UpdatedAt, &lastUsedAt,
	); err != nil {
		return Device{}, err
	}

	if attestationObj.Valid {
		d.AttestationObject = &attestationObj.String
	}
	if clientDataJSON.Valid {
		d.ClientDataJSON = &clientDataJSON.String
	}
	if proposalHash.Valid {
		d.ProposalHash = &proposalHash.String
	}
	if proposalTxHash.Valid {
		d.ProposalTxHash = &proposalTxHash.String
	}
	if lastUsedAt.Valid {
		d.LastUsedAt = &lastUsedAt.Time
	}
	if err := json.Unmarshal([]byte(attJSON), &d.Attestation); err != nil {
		return Device{}, fmt.Errorf("unmarshal attestation metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(mdsJSON), &d.MDS); err != nil {
		return Device{}, fmt.Errorf("unmarshal mds metadata: %w", err)
	}
	return d, nil
}
