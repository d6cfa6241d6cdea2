// Package pg persists a queryable copy of the on-ledger provenance data.
// The ledger stays the source of truth; the archive exists so history
// and per-owner queries survive node restarts and can be indexed.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"provenly.org/internal/ledger"
	"provenly.org/internal/wallet"
)

// Archive mirrors ownership events and identities into Postgres.
type Archive struct {
	db *sql.DB
}

// Open connects to Postgres with pool settings suited to a small API tier.
func Open(dsn string) (*Archive, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Archive{db: db}, nil
}

// NewWithDB wraps an existing handle, primarily for tests.
func NewWithDB(db *sql.DB) *Archive { return &Archive{db: db} }

func (a *Archive) Close() error { return a.db.Close() }

// DB exposes the handle for migration tooling.
func (a *Archive) DB() *sql.DB { return a.db }

// RecordTransfer stores one ownership event. Replays of the same
// (asset_id, sequence) pair are absorbed, so re-subscribing after a
// disconnect cannot duplicate rows.
func (a *Archive) RecordTransfer(ctx context.Context, rec ledger.OwnershipRecord) error {
	_, err := a.db.ExecContext(ctx, `
		insert into ownership_events(asset_id, sequence, from_address, to_address, occurred_at)
		values ($1,$2,$3,$4,$5)
		on conflict (asset_id, sequence) do nothing
	`, rec.AssetID, rec.Sequence,
		rec.From.Normalize().String(), rec.To.Normalize().String(),
		time.Unix(rec.Timestamp, 0).UTC())
	return err
}

// RecordIdentity stores or refreshes a resolved identity.
func (a *Archive) RecordIdentity(ctx context.Context, id ledger.Identity) error {
	_, err := a.db.ExecContext(ctx, `
		insert into identities(address, name, is_brand, updated_at)
		values ($1,$2,$3,now())
		on conflict (address) do update
		set name = excluded.name, is_brand = excluded.is_brand, updated_at = now()
	`, id.Address.Normalize().String(), id.Name, id.IsBrand)
	return err
}

// HistoryByAsset returns the archived events for one asset in sequence order.
func (a *Archive) HistoryByAsset(ctx context.Context, assetID string) ([]ledger.OwnershipRecord, error) {
	rows, err := a.db.QueryContext(ctx, `
		select asset_id, sequence, from_address, to_address, occurred_at
		from ownership_events
		where asset_id = $1
		order by sequence asc
	`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []ledger.OwnershipRecord
	for rows.Next() {
		var rec ledger.OwnershipRecord
		var from, to string
		var occurred time.Time
		if err := rows.Scan(&rec.AssetID, &rec.Sequence, &from, &to, &occurred); err != nil {
			return nil, err
		}
		rec.From = wallet.Account(from)
		rec.To = wallet.Account(to)
		rec.Timestamp = occurred.Unix()
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ledger.ErrNotFound
	}
	return recs, nil
}

// AssetsByOwner returns the asset ids whose latest archived event
// transfers ownership to addr.
func (a *Archive) AssetsByOwner(ctx context.Context, addr wallet.Account) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		select asset_id
		from (
			select distinct on (asset_id) asset_id, to_address
			from ownership_events
			order by asset_id, sequence desc
		) latest
		where to_address = $1
		order by asset_id
	`, addr.Normalize().String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IdentityByAddress returns an archived identity.
func (a *Archive) IdentityByAddress(ctx context.Context, addr wallet.Account) (ledger.Identity, error) {
	var id ledger.Identity
	var address string
	err := a.db.QueryRowContext(ctx, `
		select address, name, is_brand from identities where address = $1
	`, addr.Normalize().String()).Scan(&address, &id.Name, &id.IsBrand)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Identity{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Identity{}, err
	}
	id.Address = wallet.Account(address)
	return id, nil
}
