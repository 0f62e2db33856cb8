package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/waypoint/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate applies the embedded schema scripts the database has not seen yet.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	_, err := runMigrations(ctx, s.db)
	return err
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Instances ---

const instanceColumns = `id, workflow_id, workflow_version, status, correlation_id, snapshot, fault, created_at, updated_at, completed_at`

func (s *LibSQLStore) SaveInstance(ctx context.Context, inst *Instance) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_instances (`+instanceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   workflow_version=excluded.workflow_version, status=excluded.status,
		   correlation_id=excluded.correlation_id, snapshot=excluded.snapshot,
		   fault=excluded.fault, updated_at=excluded.updated_at, completed_at=excluded.completed_at`,
		inst.ID, inst.WorkflowID, nullStr(inst.WorkflowVersion), string(inst.Status),
		nullStr(inst.CorrelationID), string(inst.Snapshot), nullRaw(inst.Fault),
		timeOrNow(inst.CreatedAt), timeOrNow(inst.UpdatedAt), nullTime(inst.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetInstance(ctx context.Context, id string) (*Instance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM workflow_instances WHERE id = ?`, id)
	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("instance", id)
	}
	return inst, err
}

func (s *LibSQLStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]*Instance, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.CorrelationID != "" {
		where = append(where, "correlation_id = ?")
		args = append(args, filter.CorrelationID)
	}

	query := `SELECT ` + instanceColumns + ` FROM workflow_instances`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func (s *LibSQLStore) DeleteInstance(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflow_instances WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "instance", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(r rowScanner) (*Instance, error) {
	inst := &Instance{}
	var (
		version, correlation, fault sql.NullString
		snapshot, status            string
		completedAt                 sql.NullTime
	)
	if err := r.Scan(&inst.ID, &inst.WorkflowID, &version, &status, &correlation, &snapshot, &fault,
		&inst.CreatedAt, &inst.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	inst.WorkflowVersion = version.String
	inst.Status = schema.InstanceStatus(status)
	inst.CorrelationID = correlation.String
	inst.Snapshot = json.RawMessage(snapshot)
	inst.Fault = rawOrNil(fault)
	if completedAt.Valid {
		inst.CompletedAt = &completedAt.Time
	}
	return inst, nil
}

// --- Bookmarks ---

const bookmarkColumns = `id, instance_id, workflow_id, hash, activity_type_name, activity_id, activity_instance_id, correlation_id, payload, created_at`

func (s *LibSQLStore) ReplaceBookmarks(ctx context.Context, instanceID string, bookmarks []*Bookmark) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE instance_id = ?`, instanceID); err != nil {
		return fmt.Errorf("clear bookmarks: %w", err)
	}
	for _, b := range bookmarks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO bookmarks (`+bookmarkColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, instanceID, b.WorkflowID, b.Hash, b.ActivityTypeName, b.ActivityID,
			b.ActivityInstanceID, nullStr(b.CorrelationID), nullRaw(b.Payload), timeOrNow(b.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert bookmark %s: %w", b.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bookmarks: %w", err)
	}
	return nil
}

func (s *LibSQLStore) FindBookmarks(ctx context.Context, filter BookmarkFilter) ([]*Bookmark, error) {
	var where []string
	var args []any

	if filter.ID != "" {
		where = append(where, "id = ?")
		args = append(args, filter.ID)
	}
	if filter.InstanceID != "" {
		where = append(where, "instance_id = ?")
		args = append(args, filter.InstanceID)
	}
	if filter.Hash != "" {
		where = append(where, "hash = ?")
		args = append(args, filter.Hash)
	}
	if filter.ActivityTypeName != "" {
		where = append(where, "activity_type_name = ?")
		args = append(args, filter.ActivityTypeName)
	}
	if filter.CorrelationID != "" {
		where = append(where, "correlation_id = ?")
		args = append(args, filter.CorrelationID)
	}

	query := `SELECT ` + bookmarkColumns + ` FROM bookmarks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookmarks []*Bookmark
	for rows.Next() {
		b := &Bookmark{}
		var correlation, payload sql.NullString
		if err := rows.Scan(&b.ID, &b.InstanceID, &b.WorkflowID, &b.Hash, &b.ActivityTypeName, &b.ActivityID,
			&b.ActivityInstanceID, &correlation, &payload, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.CorrelationID = correlation.String
		b.Payload = rawOrNil(payload)
		bookmarks = append(bookmarks, b)
	}
	return bookmarks, rows.Err()
}

func (s *LibSQLStore) DeleteBookmark(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- Bookmark queue ---

const queueColumns = `id, workflow_instance_id, bookmark_id, stimulus_hash, activity_instance_id, activity_type_name, correlation_id, tenant_id, input, created_at`

func (s *LibSQLStore) EnqueueBookmarkQueueItem(ctx context.Context, item *BookmarkQueueItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bookmark_queue (`+queueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, nullStr(item.WorkflowInstanceID), nullStr(item.BookmarkID), nullStr(item.StimulusHash),
		nullStr(item.ActivityInstanceID), nullStr(item.ActivityTypeName), nullStr(item.CorrelationID),
		item.TenantID, nullRaw(item.Input), timeOrNow(item.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) FindBookmarkQueueItems(ctx context.Context, filter BookmarkQueueFilter) ([]*BookmarkQueueItem, error) {
	where, args := queueWhere(filter)
	query := `SELECT ` + queueColumns + ` FROM bookmark_queue`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*BookmarkQueueItem
	for rows.Next() {
		item := &BookmarkQueueItem{}
		var instanceID, bookmarkID, hash, activityInstanceID, typeName, correlation, input sql.NullString
		if err := rows.Scan(&item.ID, &instanceID, &bookmarkID, &hash, &activityInstanceID, &typeName,
			&correlation, &item.TenantID, &input, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.WorkflowInstanceID = instanceID.String
		item.BookmarkID = bookmarkID.String
		item.StimulusHash = hash.String
		item.ActivityInstanceID = activityInstanceID.String
		item.ActivityTypeName = typeName.String
		item.CorrelationID = correlation.String
		item.Input = rawOrNil(input)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *LibSQLStore) DeleteBookmarkQueueItems(ctx context.Context, filter BookmarkQueueFilter) (int64, error) {
	where, args := queueWhere(filter)
	query := `DELETE FROM bookmark_queue`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func queueWhere(filter BookmarkQueueFilter) ([]string, []any) {
	var where []string
	var args []any

	if filter.ID != "" {
		where = append(where, "id = ?")
		args = append(args, filter.ID)
	}
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			where = append(where, "1 = 0")
		} else {
			where = append(where, "id IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(filter.IDs)), ", ")+")")
			for _, id := range filter.IDs {
				args = append(args, id)
			}
		}
	}
	if filter.BookmarkID != "" {
		where = append(where, "bookmark_id = ?")
		args = append(args, filter.BookmarkID)
	}
	if filter.WorkflowInstanceID != "" {
		where = append(where, "workflow_instance_id = ?")
		args = append(args, filter.WorkflowInstanceID)
	}
	if filter.BookmarkHash != "" {
		where = append(where, "stimulus_hash = ?")
		args = append(args, filter.BookmarkHash)
	}
	if filter.ActivityInstanceID != "" {
		where = append(where, "activity_instance_id = ?")
		args = append(args, filter.ActivityInstanceID)
	}
	if filter.ActivityTypeName != "" {
		where = append(where, "activity_type_name = ?")
		args = append(args, filter.ActivityTypeName)
	}
	if filter.CreatedAtLessThan != nil {
		where = append(where, "created_at < ?")
		args = append(args, *filter.CreatedAtLessThan)
	}
	if !filter.TenantAgnostic {
		where = append(where, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	return where, args
}

// --- Triggers ---

func (s *LibSQLStore) ReplaceTriggers(ctx context.Context, workflowID string, triggers []*Trigger) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM triggers WHERE workflow_id = ?`, workflowID); err != nil {
		return fmt.Errorf("clear triggers: %w", err)
	}
	for _, t := range triggers {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO triggers (id, workflow_id, activity_id, activity_type_name, hash, payload, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, workflowID, t.ActivityID, t.ActivityTypeName, t.Hash, nullRaw(t.Payload), timeOrNow(t.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert trigger %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit triggers: %w", err)
	}
	return nil
}

func (s *LibSQLStore) FindTriggers(ctx context.Context, filter TriggerFilter) ([]*Trigger, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Hash != "" {
		where = append(where, "hash = ?")
		args = append(args, filter.Hash)
	}
	if filter.ActivityTypeName != "" {
		where = append(where, "activity_type_name = ?")
		args = append(args, filter.ActivityTypeName)
	}

	query := `SELECT id, workflow_id, activity_id, activity_type_name, hash, payload, created_at FROM triggers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []*Trigger
	for rows.Next() {
		t := &Trigger{}
		var payload sql.NullString
		if err := rows.Scan(&t.ID, &t.WorkflowID, &t.ActivityID, &t.ActivityTypeName, &t.Hash, &payload, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Payload = rawOrNil(payload)
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// --- Scheduled Jobs ---

const jobColumns = `id, kind, workflow_id, instance_id, bookmark_id, activity_id, activity_type_name, payload, cron_expression, enabled, next_run_at, last_run_at, last_run_status, created_at`

func (s *LibSQLStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Kind, job.WorkflowID, nullStr(job.InstanceID), nullStr(job.BookmarkID), nullStr(job.ActivityID),
		job.ActivityTypeName, nullRaw(job.Payload), nullStr(job.CronExpression), job.Enabled,
		nullTime(job.NextRunAt), nullTime(job.LastRunAt), nullStr(job.LastRunStatus), timeOrNow(job.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled job", id)
	}
	return job, err
}

func (s *LibSQLStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	var sets []string
	var args []any

	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, *update.Enabled)
	}
	if update.Payload != nil {
		sets = append(sets, "payload = ?")
		args = append(args, string(update.Payload))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scheduled_jobs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled job", id)
}

func (s *LibSQLStore) ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	where, args := jobWhere(filter)
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY next_run_at ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledJobs(ctx context.Context, filter ScheduledJobFilter) (int64, error) {
	where, args := jobWhere(filter)
	query := `DELETE FROM scheduled_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func jobWhere(filter ScheduledJobFilter) ([]string, []any) {
	var where []string
	var args []any

	if filter.ID != "" {
		where = append(where, "id = ?")
		args = append(args, filter.ID)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, *filter.Enabled)
	}
	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.BookmarkID != "" {
		where = append(where, "bookmark_id = ?")
		args = append(args, filter.BookmarkID)
	}
	if filter.DueBefore != nil {
		where = append(where, "next_run_at IS NOT NULL AND next_run_at <= ?")
		args = append(args, *filter.DueBefore)
	}
	return where, args
}

func scanJob(r rowScanner) (*ScheduledJob, error) {
	j := &ScheduledJob{}
	var (
		instanceID, bookmarkID, activityID, payload, cronExpr, lastStatus sql.NullString
		nextRun, lastRun                                                  sql.NullTime
	)
	if err := r.Scan(&j.ID, &j.Kind, &j.WorkflowID, &instanceID, &bookmarkID, &activityID, &j.ActivityTypeName,
		&payload, &cronExpr, &j.Enabled, &nextRun, &lastRun, &lastStatus, &j.CreatedAt); err != nil {
		return nil, err
	}
	j.InstanceID = instanceID.String
	j.BookmarkID = bookmarkID.String
	j.ActivityID = activityID.String
	j.Payload = rawOrNil(payload)
	j.CronExpression = cronExpr.String
	j.LastRunStatus = lastStatus.String
	if nextRun.Valid {
		j.NextRunAt = &nextRun.Time
	}
	if lastRun.Valid {
		j.LastRunAt = &lastRun.Time
	}
	return j, nil
}

// --- Events ---

func (s *LibSQLStore) AppendEvents(ctx context.Context, instanceID string, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM events WHERE instance_id = ?`, instanceID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}

	for _, e := range events {
		seq++
		e.InstanceID = instanceID
		e.Sequence = seq
		e.Timestamp = timeOrNow(e.Timestamp)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO events (instance_id, activity_instance_id, event_type, payload, timestamp, sequence)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			instanceID, nullStr(e.ActivityInstanceID), e.Type, nullRaw(e.Payload), e.Timestamp, seq,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		if id, err := res.LastInsertId(); err == nil {
			e.ID = id
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, instanceID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, instance_id, activity_instance_id, event_type, payload, timestamp, sequence
		 FROM events WHERE instance_id = ? AND sequence > ? ORDER BY sequence ASC`,
		instanceID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var activityInstanceID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.InstanceID, &activityInstanceID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.ActivityInstanceID = activityInstanceID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.WaypointError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func storeConflict(resource, id string) *schema.WaypointError {
	return schema.NewErrorf(schema.ErrCodeConflict, "%s %q already exists", resource, id)
}
