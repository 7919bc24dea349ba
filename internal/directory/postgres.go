package directory

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

const notifyChannel = "directory_nodes"

// streamLookback is how far behind the highest streamed seq a poll still
// looks for late commits.
const streamLookback = 1000

type nodeRow struct {
	Seq   int64  `db:"seq"`
	Key   string `db:"key"`
	Value []byte `db:"value"`
}

func (r nodeRow) child() (Child, error) {
	record, err := decodeRecord(r.Value)
	if err != nil {
		return Child{}, err
	}
	return Child{Key: r.Key, Record: record}, nil
}

type notifier interface {
	Notifications() <-chan *pq.Notification
	Close() error
}

type pqNotifier struct {
	listener *pq.Listener
}

func (n pqNotifier) Notifications() <-chan *pq.Notification {
	return n.listener.Notify
}

func (n pqNotifier) Close() error {
	return n.listener.Close()
}

// Postgres keeps every node as a row of directory_nodes. Writes fire
// pg_notify with the parent path, which wakes the streams of that parent.
type Postgres struct {
	db           *sqlx.DB
	listen       func() (notifier, error)
	pollInterval time.Duration
	log          *zap.Logger
}

func NewPostgres(db *sqlx.DB, connStr string, pollInterval time.Duration, log *zap.Logger) *Postgres {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	return &Postgres{
		db:           db,
		listen:       pqListen(connStr, log),
		pollInterval: pollInterval,
		log:          log,
	}
}

func pqListen(connStr string, log *zap.Logger) func() (notifier, error) {
	return func() (notifier, error) {
		listener := pq.NewListener(connStr, 10*time.Second, time.Minute,
			func(event pq.ListenerEventType, err error) {
				if err != nil {
					log.Warn("ошибка слушателя уведомлений", zap.Error(err))
				}
			})

		if err := listener.Listen(notifyChannel); err != nil {
			listener.Close()
			return nil, fmt.Errorf("ошибка подписки на уведомления: %w", err)
		}

		return pqNotifier{listener: listener}, nil
	}
}

func (p *Postgres) StreamChildren(ctx context.Context, path string) (<-chan Child, error) {
	if err := validate(path); err != nil {
		return nil, err
	}

	n, err := p.listen()
	if err != nil {
		return nil, err
	}

	out := make(chan Child)
	go p.stream(ctx, path, n, out)

	return out, nil
}

func (p *Postgres) stream(ctx context.Context, path string, n notifier, out chan<- Child) {
	defer close(out)
	defer n.Close()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	// seq is taken before commit, so a row may become visible after a higher
	// one was already streamed. Every poll re-reads the trailing window and
	// skips what was delivered.
	var last int64
	delivered := make(map[int64]struct{})
	for {
		low := max(last-streamLookback, 0)

		rows, err := p.childrenAfter(ctx, path, low)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("ошибка чтения потока", zap.String("path", path), zap.Error(err))
		}

		for _, row := range rows {
			if _, ok := delivered[row.Seq]; ok {
				continue
			}

			child, err := row.child()
			if err != nil {
				p.log.Warn("пропущена повреждённая запись",
					zap.String("path", path), zap.String("key", row.Key), zap.Error(err))
			} else {
				select {
				case out <- child:
				case <-ctx.Done():
					return
				}
			}

			delivered[row.Seq] = struct{}{}
			last = max(last, row.Seq)
		}

		low = last - streamLookback
		for seq := range delivered {
			if seq <= low {
				delete(delivered, seq)
			}
		}

		if !p.waitForChange(ctx, path, n.Notifications(), ticker.C) {
			return
		}
	}
}

// waitForChange blocks until path may have new rows. A nil notification means
// the listener reconnected and events could have been missed.
func (p *Postgres) waitForChange(ctx context.Context, path string, notes <-chan *pq.Notification, tick <-chan time.Time) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-tick:
			return true
		case note, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			if note == nil || note.Extra == path {
				return true
			}
		}
	}
}

func (p *Postgres) childrenAfter(ctx context.Context, path string, seq int64) ([]nodeRow, error) {
	query := `
		SELECT seq, key, value FROM directory_nodes
		WHERE parent = $1 AND seq > $2
		ORDER BY seq
	`

	var rows []nodeRow
	if err := p.db.SelectContext(ctx, &rows, query, path, seq); err != nil {
		return nil, fmt.Errorf("ошибка при чтении дочерних записей %s: %w", path, err)
	}

	return rows, nil
}

func (p *Postgres) ReadOnce(ctx context.Context, path string) (Record, error) {
	parent, key, err := split(path)
	if err != nil {
		return nil, err
	}

	query := `SELECT value FROM directory_nodes WHERE parent = $1 AND key = $2`

	var raw []byte
	err = p.db.GetContext(ctx, &raw, query, parent, key)
	if err == nil {
		return decodeRecord(raw)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ошибка при чтении %s: %w", path, err)
	}

	rows, err := p.childrenAfter(ctx, path, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	out := make(Record, len(rows))
	for _, row := range rows {
		child, err := row.child()
		if err != nil {
			p.log.Warn("пропущена повреждённая запись",
				zap.String("path", path), zap.String("key", row.Key), zap.Error(err))
			continue
		}
		out[child.Key] = child.Record
	}

	return out, nil
}

func (p *Postgres) Append(ctx context.Context, path string, record Record) (string, error) {
	if err := validate(path); err != nil {
		return "", err
	}

	value, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации записи: %w", err)
	}

	key := xid.New().String()

	query := `INSERT INTO directory_nodes (parent, key, value) VALUES ($1, $2, $3)`

	if _, err := p.db.ExecContext(ctx, query, path, key, value); err != nil {
		return "", fmt.Errorf("ошибка при добавлении записи в %s: %w", path, err)
	}

	return key, nil
}

func (p *Postgres) Set(ctx context.Context, path string, record Record) error {
	parent, key, err := split(path)
	if err != nil {
		return err
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи: %w", err)
	}

	query := `
		INSERT INTO directory_nodes (parent, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (parent, key) DO UPDATE SET
			value = EXCLUDED.value,
			seq = nextval('directory_nodes_seq'),
			updated_at = now()
	`

	if _, err := p.db.ExecContext(ctx, query, parent, key, value); err != nil {
		return fmt.Errorf("ошибка при записи %s: %w", path, err)
	}

	return nil
}

func (p *Postgres) Update(ctx context.Context, path string, fields Record) error {
	parent, key, err := split(path)
	if err != nil {
		return err
	}

	value, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи: %w", err)
	}

	query := `
		UPDATE directory_nodes SET
			value = value || $3::jsonb,
			seq = nextval('directory_nodes_seq'),
			updated_at = now()
		WHERE parent = $1 AND key = $2
	`

	result, err := p.db.ExecContext(ctx, query, parent, key, value)
	if err != nil {
		return fmt.Errorf("ошибка при обновлении %s: %w", path, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка при проверке обновленных строк: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	return nil
}

// Increment adds delta in a single statement, so concurrent increments of
// the same field never lose an update.
func (p *Postgres) Increment(ctx context.Context, path string, field string, delta int64) (int64, error) {
	parent, key, err := split(path)
	if err != nil {
		return 0, err
	}

	query := `
		UPDATE directory_nodes SET
			value = jsonb_set(value, ARRAY[$3::text], to_jsonb(COALESCE((value->>$3::text)::numeric, 0)::bigint + $4)),
			seq = nextval('directory_nodes_seq'),
			updated_at = now()
		WHERE parent = $1 AND key = $2
		RETURNING (value->>$3::text)::bigint
	`

	var next int64
	if err := p.db.GetContext(ctx, &next, query, parent, key, field, delta); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return 0, fmt.Errorf("ошибка при увеличении %s в %s: %w", field, path, err)
	}

	return next, nil
}

func (p *Postgres) ReadRange(ctx context.Context, path string, from, to int) ([]Child, error) {
	if err := validate(path); err != nil {
		return nil, err
	}
	if from < 0 {
		from = 0
	}
	if from >= to {
		return []Child{}, nil
	}

	query := `
		SELECT seq, key, value FROM directory_nodes
		WHERE parent = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`

	var rows []nodeRow
	if err := p.db.SelectContext(ctx, &rows, query, path, to-from, from); err != nil {
		return nil, fmt.Errorf("ошибка при чтении диапазона %s: %w", path, err)
	}

	children := make([]Child, 0, len(rows))
	for _, row := range rows {
		child, err := row.child()
		if err != nil {
			p.log.Warn("пропущена повреждённая запись",
				zap.String("path", path), zap.String("key", row.Key), zap.Error(err))
			continue
		}
		children = append(children, child)
	}

	return children, nil
}

func decodeRecord(raw []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var record Record
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("ошибка разбора записи: %w", err)
	}

	return record, nil
}
