package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"orgwatch/internal/domain"
	"orgwatch/internal/ports"
)

// snapshotLockKey identifies the duplicate-audit advisory lock.
const snapshotLockKey int64 = 0x6f72677761746368

const organizationColumns = `id::text, name, website, source_id, triggering_url, events_url, tou_url,
	description, contact_email, contact_phone, address, city, logo_url, last_scraped_at, created_at,
	status, permission_type, tou_flag, tech_block_flag, tech_rendering_flag, duplicate_flag, duplicate_of::text`

func scanOrganization(row pgx.Row) (domain.Organization, error) {
	var o domain.Organization
	var status, perm string
	err := row.Scan(&o.ID, &o.Name, &o.Website, &o.SourceID, &o.TriggeringURL, &o.EventsURL, &o.TouURL,
		&o.Description, &o.ContactEmail, &o.ContactPhone, &o.Address, &o.City, &o.LogoURL, &o.LastScrapedAt, &o.CreatedAt,
		&status, &perm, &o.TouFlag, &o.TechBlockFlag, &o.TechRenderingFlag, &o.DuplicateFlag, &o.DuplicateOf)
	o.Status, o.PermissionType = domain.Status(status), domain.PermissionType(perm)
	return o, err
}

func (db *DB) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id)
	o, err := scanOrganization(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Organization{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.Organization{}, fmt.Errorf("select organization: %w", err)
	}
	return o, nil
}

func (db *DB) ListOrganizations(ctx context.Context, filter ports.OrganizationFilter) ([]domain.Organization, error) {
	query, args := listQuery(filter)
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var out []domain.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func listQuery(filter ports.OrganizationFilter) (string, []any) {
	var where []string
	var args []any
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !filter.IncludeDuplicates {
		where = append(where, "NOT duplicate_flag")
	}
	q := `SELECT ` + organizationColumns + ` FROM organizations`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	return q + ` ORDER BY created_at, id`, args
}

func (db *DB) UpdateOrganization(ctx context.Context, id string, upd domain.OrganizationUpdate) error {
	query, args, ok := updateQuery(id, upd)
	if !ok {
		return nil
	}
	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// updateQuery builds an UPDATE over the non-nil fields of upd. ok is false
// when there is nothing to set.
func updateQuery(id string, upd domain.OrganizationUpdate) (query string, args []any, ok bool) {
	var sets []string
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Status != nil {
		set("status", string(*upd.Status))
	}
	if upd.PermissionType != nil {
		set("permission_type", string(*upd.PermissionType))
	}
	if upd.TouFlag != nil {
		set("tou_flag", *upd.TouFlag)
	}
	if upd.TouURL != nil {
		set("tou_url", *upd.TouURL)
	}
	if upd.TouNotes != nil {
		set("tou_notes", *upd.TouNotes)
	}
	if upd.TechBlockFlag != nil {
		set("tech_block_flag", *upd.TechBlockFlag)
	}
	if upd.TechRenderingFlag != nil {
		set("tech_rendering_flag", *upd.TechRenderingFlag)
	}
	if upd.RenderConfidence != nil {
		set("render_confidence", string(*upd.RenderConfidence))
	}
	if upd.EventsURL != nil {
		set("events_url", *upd.EventsURL)
	}
	if upd.EventsURLValidated != nil {
		set("events_url_validated", *upd.EventsURLValidated)
	}
	if upd.EventsURLMethod != nil {
		set("events_url_method", string(*upd.EventsURLMethod))
	}
	if upd.DuplicateFlag != nil {
		set("duplicate_flag", *upd.DuplicateFlag)
	}
	if upd.DuplicateOf != nil {
		set("duplicate_of", *upd.DuplicateOf)
	}
	if upd.LastScannedAt != nil {
		set("last_scanned_at", upd.LastScannedAt.UTC().Truncate(time.Microsecond))
	}
	if len(sets) == 0 {
		return "", nil, false
	}
	args = append(args, id)
	query = fmt.Sprintf("UPDATE organizations SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	return query, args, true
}

func (db *DB) GetEventCount(ctx context.Context, orgID string) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM events WHERE organization_id = $1`, orgID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// LockSnapshot takes a session-level advisory lock on a dedicated
// connection. The returned func releases the lock and the connection.
func (db *DB) LockSnapshot(ctx context.Context) (func(), error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, snapshotLockKey); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, snapshotLockKey); err != nil {
			// The session lock dies with the connection.
			_ = conn.Conn().Close(ctx)
		}
		conn.Release()
	}, nil
}
