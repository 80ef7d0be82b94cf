/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package repo

import (
    "context"
    "errors"
    "strings"
    "time"

    "github.com/gorbunovav/redmine-slack/internal/config"
    "github.com/gorbunovav/redmine-slack/internal/domain"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

// Repository reads the host tracker's own tables. Everything is read-only
// except ClearIssueCustomValue, which consumes the one-shot return flag.
type Repository struct {
    db  *DB
    cfg config.Config
    log zerolog.Logger
}

func NewRepository(d *DB, cfg config.Config, log zerolog.Logger) *Repository {
    return &Repository{db: d, cfg: cfg, log: log}
}

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

const userSelect = `
    SELECT u.id, u.login,
           trim(concat(u.firstname, ' ', u.lastname)),
           COALESCE(ea.address, ''),
           COALESCE(cv.value, '')
    FROM users u
    LEFT JOIN email_addresses ea ON ea.user_id = u.id AND ea.is_default
    LEFT JOIN custom_values cv ON cv.customized_type = 'Principal'
        AND cv.customized_id = u.id
        AND cv.custom_field_id = (SELECT id FROM custom_fields WHERE name = $1 LIMIT 1)`

func (r *Repository) ActiveUsers(ctx context.Context) ([]domain.User, error) {
    rows, err := r.db.Pool.Query(ctx, userSelect+`
        WHERE u.type = 'User' AND u.status = 1`, r.cfg.FieldSlackHandle)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.User
    for rows.Next() {
        var u domain.User
        if err := rows.Scan(&u.ID, &u.Login, &u.Name, &u.Mail, &u.Handle); err != nil { return nil, err }
        u.Handle = strings.TrimSpace(u.Handle)
        out = append(out, u)
    }
    return out, rows.Err()
}

func (r *Repository) UserByID(ctx context.Context, id int64) (*domain.User, error) {
    row := r.db.Pool.QueryRow(ctx, userSelect+`
        WHERE u.type = 'User' AND u.id = $2`, r.cfg.FieldSlackHandle, id)
    var u domain.User
    if err := row.Scan(&u.ID, &u.Login, &u.Name, &u.Mail, &u.Handle); err != nil {
        if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
        return nil, err
    }
    u.Handle = strings.TrimSpace(u.Handle)
    return &u, nil
}

func (r *Repository) ProjectByID(ctx context.Context, id int64) (*domain.Project, error) {
    row := r.db.Pool.QueryRow(ctx,
        `SELECT id, name, COALESCE(parent_id, 0) FROM projects WHERE id = $1`, id)
    var p domain.Project
    if err := row.Scan(&p.ID, &p.Name, &p.ParentID); err != nil {
        if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
        return nil, err
    }
    return &p, nil
}

func (r *Repository) ProjectCustomValue(ctx context.Context, projectID int64, field string) (string, error) {
    return r.customValue(ctx, "Project", projectID, field)
}

func (r *Repository) IssueCustomValue(ctx context.Context, issueID int64, field string) (string, error) {
    return r.customValue(ctx, "Issue", issueID, field)
}

func (r *Repository) customValue(ctx context.Context, kind string, id int64, field string) (string, error) {
    row := r.db.Pool.QueryRow(ctx, `
        SELECT COALESCE(cv.value, '')
        FROM custom_values cv
        JOIN custom_fields cf ON cf.id = cv.custom_field_id
        WHERE cv.customized_type = $1 AND cv.customized_id = $2 AND cf.name = $3
        LIMIT 1`, kind, id, field)
    var v string
    if err := row.Scan(&v); err != nil {
        if errors.Is(err, pgx.ErrNoRows) { return "", nil }
        return "", err
    }
    return v, nil
}

func (r *Repository) ClearIssueCustomValue(ctx context.Context, issueID int64, field string) error {
    _, err := r.db.Pool.Exec(ctx, `
        UPDATE custom_values cv SET value = '0'
        FROM custom_fields cf
        WHERE cf.id = cv.custom_field_id
          AND cv.customized_type = 'Issue' AND cv.customized_id = $1 AND cf.name = $2`,
        issueID, field)
    return err
}

// ReferenceName maps an id-keyed journal detail to its display name. Unknown
// kinds and dangling ids come back empty, never as an error.
func (r *Repository) ReferenceName(ctx context.Context, kind string, id int64) (string, error) {
    var q string
    switch kind {
    case "status":
        q = `SELECT name FROM issue_statuses WHERE id = $1`
    case "priority":
        q = `SELECT name FROM enumerations WHERE type = 'IssuePriority' AND id = $1`
    case "tracker":
        q = `SELECT name FROM trackers WHERE id = $1`
    case "category":
        q = `SELECT name FROM issue_categories WHERE id = $1`
    case "fixed_version":
        q = `SELECT name FROM versions WHERE id = $1`
    case "project":
        q = `SELECT name FROM projects WHERE id = $1`
    case "assigned_to":
        q = `SELECT trim(concat(firstname, ' ', lastname)) FROM users WHERE id = $1`
    default:
        return "", nil
    }
    var name string
    if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&name); err != nil {
        if errors.Is(err, pgx.ErrNoRows) { return "", nil }
        return "", err
    }
    return name, nil
}

func (r *Repository) UserInGroup(ctx context.Context, userID int64, group string) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, `
        SELECT EXISTS(
            SELECT 1 FROM groups_users gu
            JOIN users g ON g.id = gu.group_id
            WHERE gu.user_id = $1 AND g.type = 'Group' AND g.lastname = $2)`,
        userID, group).Scan(&ok)
    return ok, err
}

func (r *Repository) AwaitingReview(ctx context.Context) ([]domain.IssueRef, error) {
    rows, err := r.db.Pool.Query(ctx, `
        SELECT id, subject FROM issues
        WHERE status_id = $1 AND tracker_id = ANY($2)
        ORDER BY updated_on`, r.cfg.StatusReview, r.cfg.StoryTrackers)
    if err != nil { return nil, err }
    defer rows.Close()
    return scanRefs(rows)
}

func (r *Repository) AwaitingAssignment(ctx context.Context, limit int) ([]domain.IssueRef, error) {
    if limit <= 0 { limit = 10 }
    rows, err := r.db.Pool.Query(ctx, `
        SELECT i.id, i.subject FROM issues i
        JOIN issue_statuses s ON s.id = i.status_id AND NOT s.is_closed
        WHERE i.assigned_to_id IS NULL AND i.tracker_id = ANY($1)
        ORDER BY i.created_on
        LIMIT $2`, r.cfg.StoryTrackers, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    return scanRefs(rows)
}

func scanRefs(rows pgx.Rows) ([]domain.IssueRef, error) {
    var out []domain.IssueRef
    for rows.Next() {
        var ref domain.IssueRef
        if err := rows.Scan(&ref.ID, &ref.Subject); err != nil { return nil, err }
        out = append(out, ref)
    }
    return out, rows.Err()
}
