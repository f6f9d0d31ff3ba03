package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mengeric/videogen-orchestrator-go/videogen"
)

//go:embed schema.sql
var schemaSQL string

// jobColumns SELECT/INSERT 列顺序，与 scanJob 一一对应。
const jobColumns = "job_id, provider_job_id, state, progress, last_event_seq, model, prompt, size, seconds, parent_job_id, artifact_refs, error_kind, error_message, created_at, updated_at"

// Store 基于 SQLite 的 JobStore 实现（modernc.org/sqlite，无 CGO）。
type Store struct{ db *sql.DB }

// Open 打开（或创建）SQLite 数据库并初始化表结构。
// 功能：建目录、建连接、设置 WAL 等 pragma、执行内嵌 schema。
// 参数：path 数据库文件路径。
// 返回：满足 JobStore 的 Store；任一步骤失败时关闭连接并返回错误。
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error { return s.db.Close() }

// Create 实现 JobStore.Create。
func (s *Store) Create(ctx context.Context, rec *videogen.JobRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	refs := ""
	if rec.ArtifactRefs != nil {
		b, err := json.Marshal(rec.ArtifactRefs)
		if err != nil {
			return err
		}
		refs = string(b)
	}
	kind, msg := "", ""
	if rec.Error != nil {
		kind, msg = string(rec.Error.Kind), rec.Error.Message
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO videogen_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.ProviderJobID, string(rec.State), rec.Progress, rec.LastEventSeq,
		rec.Model, rec.Prompt, rec.Size, rec.Seconds, rec.ParentJobID,
		refs, kind, msg, createdAt, updatedAt)
	return err
}

// Get 实现 JobStore.Get。
func (s *Store) Get(ctx context.Context, jobID string) (*videogen.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM videogen_jobs WHERE job_id = ?`, jobID)
	rec, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, videogen.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByProviderID 实现 JobStore.GetByProviderID。
func (s *Store) GetByProviderID(ctx context.Context, providerJobID string) (*videogen.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM videogen_jobs WHERE provider_job_id = ?`, providerJobID)
	rec, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, videogen.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Apply 实现 JobStore.Apply：带 last_event_seq 守卫的条件更新，0 行命中时区分不存在与冲突。
func (s *Store) Apply(ctx context.Context, jobID string, expectSeq int64, mut videogen.JobMutation) error {
	sets := []string{"state = ?", "progress = ?", "last_event_seq = ?", "updated_at = ?"}
	args := []any{string(mut.State), mut.Progress, mut.EventSeq, time.Now()}
	if mut.ProviderJobID != "" {
		sets = append(sets, "provider_job_id = ?")
		args = append(args, mut.ProviderJobID)
	}
	if mut.ArtifactRefs != nil {
		b, err := json.Marshal(mut.ArtifactRefs)
		if err != nil {
			return err
		}
		sets = append(sets, "artifact_refs = ?")
		args = append(args, string(b))
	}
	if mut.Error != nil {
		sets = append(sets, "error_kind = ?", "error_message = ?")
		args = append(args, string(mut.Error.Kind), mut.Error.Message)
	}
	args = append(args, jobID, expectSeq)
	res, err := s.db.ExecContext(ctx,
		`UPDATE videogen_jobs SET `+strings.Join(sets, ", ")+` WHERE job_id = ? AND last_event_seq = ?`, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var cnt int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM videogen_jobs WHERE job_id = ?`, jobID).Scan(&cnt); err != nil {
			return err
		}
		if cnt == 0 {
			return videogen.ErrNotFound
		}
		return videogen.ErrConflict
	}
	return nil
}

// ListByState 实现 JobStore.ListByState。
func (s *Store) ListByState(ctx context.Context, state videogen.JobState, limit int) ([]videogen.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM videogen_jobs WHERE state = ? ORDER BY created_at DESC`
	args := []any{string(state)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryJobs(ctx, query, args...)
}

// ListRecent 实现 JobStore.ListRecent。
func (s *Store) ListRecent(ctx context.Context, limit int) ([]videogen.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM videogen_jobs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryJobs(ctx, query, args...)
}

// ListActive 实现 JobStore.ListActive。
func (s *Store) ListActive(ctx context.Context) ([]videogen.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM videogen_jobs WHERE provider_job_id <> '' AND state NOT IN (?, ?, ?) ORDER BY created_at ASC`
	return s.queryJobs(ctx, query,
		string(videogen.StateCompleted), string(videogen.StateFailed), string(videogen.StateExpired))
}

// Delete 实现 JobStore.Delete。
func (s *Store) Delete(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM videogen_jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return videogen.ErrNotFound
	}
	return nil
}

// DeleteTerminalBefore 实现 JobStore.DeleteTerminalBefore。
func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM videogen_jobs WHERE state IN (?, ?, ?) AND updated_at < ?`,
		string(videogen.StateCompleted), string(videogen.StateFailed), string(videogen.StateExpired), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// queryJobs 执行查询并逐行还原记录。
func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]videogen.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]videogen.JobRecord, 0)
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// scanJob 从一行记录还原 JobRecord。
func scanJob(row interface{ Scan(...any) error }) (*videogen.JobRecord, error) {
	var (
		r     videogen.JobRecord
		state string
		refs  string
		kind  string
		msg   string
	)
	err := row.Scan(&r.JobID, &r.ProviderJobID, &state, &r.Progress, &r.LastEventSeq,
		&r.Model, &r.Prompt, &r.Size, &r.Seconds, &r.ParentJobID,
		&refs, &kind, &msg, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.State = videogen.JobState(state)
	if refs != "" {
		var list []string
		if jerr := json.Unmarshal([]byte(refs), &list); jerr == nil {
			r.ArtifactRefs = list
		}
	}
	if kind != "" || msg != "" {
		r.Error = &videogen.JobError{Kind: videogen.ErrorKind(kind), Message: msg}
	}
	return &r, nil
}
