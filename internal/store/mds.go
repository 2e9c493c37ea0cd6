package store

import (
	"context"
	"database/sql"
)

// PutMDSBlob persists a newly-verified MDS payload and marks it current,
// demoting any previously-current row. Historic rows are kept, matching
// the data model's "at most one current row; historic rows may be kept".
func (c *conn) PutMDSBlob(ctx context.Context, blob MDSBlob) error {
	return c.execTx(func(t *trans) error {
		if _, err := t.exec(`update mds_cache set is_current = 0 where is_current = 1;`); err != nil {
			return err
		}
		_, err := t.exec(`
			insert into mds_cache (payload, last_updated, next_update, blob_number, is_current)
			values (?, ?, ?, ?, 1);
		`, blob.Payload, blob.LastUpdated, blob.NextUpdate, blob.BlobNumber)
		return err
	})
}

// GetCurrentMDSBlob returns the active blob, if any. Readers must
// tolerate a missing cache.
func (c *conn) GetCurrentMDSBlob(ctx context.Context) (MDSBlob, bool, error) {
	var b MDSBlob
	row := c.queryRow(`
		select payload, last_updated, next_update, blob_number
		from mds_cache where is_current = 1
		order by id desc limit 1;
	`)
	if err := row.Scan(&b.Payload, &b.LastUpdated, &b.NextUpdate, &b.BlobNumber); err != nil {
		if err == sql.ErrNoRows {
			return MDSBlob{}, false, nil
		}
		return MDSBlob{}, false, err
	}
	return b, true, nil
}
