package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vietddude/mpath/internal/mpath"
)

// Device is a published aggregate disk as stored in the registry.
type Device struct {
	Name        string    `db:"name"`
	Subsystem   int       `db:"subsystem"`
	NSID        int64     `db:"nsid"`
	UUID        string    `db:"uuid"`
	NGUID       string    `db:"nguid"`
	EUI64       string    `db:"eui64"`
	Paths       string    `db:"paths"`
	PublishedAt time.Time `db:"published_at"`
}

// PathList splits the stored path names.
func (d Device) PathList() []string {
	if d.Paths == "" {
		return nil
	}
	return strings.Split(d.Paths, ",")
}

// DeviceRepo persists aggregate disk identities. It doubles as an
// mpath.AttrPublisher.
type DeviceRepo struct {
	db *DB
}

var _ mpath.AttrPublisher = (*DeviceRepo)(nil)

// NewDeviceRepo creates a new PostgreSQL device repository.
func NewDeviceRepo(db *DB) *DeviceRepo {
	return &DeviceRepo{db: db}
}

// Upsert stores or replaces a device row.
func (r *DeviceRepo) Upsert(ctx context.Context, d *Device) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO devices (name, subsystem, nsid, uuid, nguid, eui64, paths, published_at)
		VALUES (:name, :subsystem, :nsid, :uuid, :nguid, :eui64, :paths, :published_at)
		ON CONFLICT (name) DO UPDATE SET
			subsystem = EXCLUDED.subsystem,
			nsid = EXCLUDED.nsid,
			uuid = EXCLUDED.uuid,
			nguid = EXCLUDED.nguid,
			eui64 = EXCLUDED.eui64,
			paths = EXCLUDED.paths,
			published_at = EXCLUDED.published_at`, d)
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", d.Name, err)
	}
	return nil
}

// Delete removes a device row. Missing rows are not an error.
func (r *DeviceRepo) Delete(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to delete device %s: %w", name, err)
	}
	return nil
}

// Get returns a device by name, or nil when it does not exist.
func (r *DeviceRepo) Get(ctx context.Context, name string) (*Device, error) {
	var d Device
	err := r.db.GetContext(ctx, &d, `SELECT * FROM devices WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device %s: %w", name, err)
	}
	return &d, nil
}

// List returns all devices ordered by subsystem and NSID.
func (r *DeviceRepo) List(ctx context.Context) ([]Device, error) {
	var out []Device
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM devices ORDER BY subsystem, nsid, name`); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return out, nil
}

// PublishedBefore returns the names of devices last published before t.
func (r *DeviceRepo) PublishedBefore(ctx context.Context, t time.Time) ([]string, error) {
	var names []string
	if err := r.db.SelectContext(ctx, &names,
		`SELECT name FROM devices WHERE published_at < $1 ORDER BY name`, t.UTC()); err != nil {
		return nil, fmt.Errorf("failed to list stale devices: %w", err)
	}
	return names, nil
}

// Publish implements mpath.AttrPublisher.
func (r *DeviceRepo) Publish(ctx context.Context, id mpath.Identity) error {
	return r.Upsert(ctx, DeviceFromIdentity(id, time.Now()))
}

// Unpublish implements mpath.AttrPublisher.
func (r *DeviceRepo) Unpublish(ctx context.Context, name string) error {
	return r.Delete(ctx, name)
}

// DeviceFromIdentity converts an identity to a registry row.
func DeviceFromIdentity(id mpath.Identity, now time.Time) *Device {
	return &Device{
		Name:        id.Name,
		Subsystem:   id.Subsystem,
		NSID:        int64(id.NSID),
		UUID:        id.UUID,
		NGUID:       id.NGUID,
		EUI64:       id.EUI64,
		Paths:       strings.Join(id.Paths, ","),
		PublishedAt: now.UTC(),
	}
}
