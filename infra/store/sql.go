// Package store provides SQL backends for the planboard store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/kilianp07/planboard/core/model"
	"github.com/kilianp07/planboard/core/planboard"
)

// Dialect selects the SQL flavour.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driver() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// SQLStore persists the planboard in a SQL database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ planboard.Store = (*SQLStore)(nil)

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	if dialect != SQLite && dialect != Postgres {
		return nil, fmt.Errorf("%w: unknown sql dialect %q", model.ErrConfiguration, dialect)
	}
	db, err := sql.Open(dialect.driver(), dsn)
	if err != nil {
		return nil, err
	}
	if dialect == SQLite {
		// a single connection serializes writers and keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	}
	s := &SQLStore{db: db, dialect: dialect}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if cerr := db.Close(); cerr != nil {
				return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
			}
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return s, nil
}

// rebind rewrites ? placeholders for PostgreSQL.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func day(t time.Time) string { return model.Day(t).Format(time.DateOnly) }

func parseDay(s string) (time.Time, error) { return time.Parse(time.DateOnly, s) }

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (s *SQLStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const documentColumns = `doc_type, sequence_number, participant_domain, direction, period,
        connection_group_id, status, creation_time, origin_sequence_number,
        conversation_id, message_id, ptu_rows`

func (s *SQLStore) InsertDocument(ctx context.Context, doc model.Document) error {
	rows, err := json.Marshal(doc.Rows)
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	key := doc.Key()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM documents
            WHERE (doc_type = ? AND sequence_number = ? AND participant_domain = ?)
               OR (message_id IS NOT NULL AND message_id = ?)`),
			int(key.Type), key.SequenceNumber, key.ParticipantDomain, doc.MessageID).Scan(&n)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s already recorded", model.ErrDuplicateMessageID, key)
		}
		var msg any
		if doc.MessageID != "" {
			msg = doc.MessageID
		}
		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO documents (`+documentColumns+`)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			int(doc.Type), doc.SequenceNumber, doc.ParticipantDomain, int(doc.Direction), day(doc.Period),
			doc.ConnectionGroupID, int(doc.Status), nanos(doc.CreationTime), doc.OriginSequenceNumber,
			doc.ConversationID, msg, string(rows))
		return err
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (model.Document, error) {
	var (
		doc              model.Document
		typ, dir, status int
		period, rows     string
		created          int64
		msg              sql.NullString
	)
	err := row.Scan(&typ, &doc.SequenceNumber, &doc.ParticipantDomain, &dir, &period,
		&doc.ConnectionGroupID, &status, &created, &doc.OriginSequenceNumber,
		&doc.ConversationID, &msg, &rows)
	if err != nil {
		return model.Document{}, err
	}
	doc.Type = model.DocumentType(typ)
	doc.Direction = model.Direction(dir)
	doc.Status = model.DocumentStatus(status)
	doc.CreationTime = fromNanos(created)
	doc.MessageID = msg.String
	if doc.Period, err = parseDay(period); err != nil {
		return model.Document{}, fmt.Errorf("decode period of %s: %w", doc.Key(), err)
	}
	if err := json.Unmarshal([]byte(rows), &doc.Rows); err != nil {
		return model.Document{}, fmt.Errorf("decode rows of %s: %w", doc.Key(), err)
	}
	return doc, nil
}

func (s *SQLStore) GetDocument(ctx context.Context, key model.DocumentKey) (model.Document, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+documentColumns+` FROM documents
        WHERE doc_type = ? AND sequence_number = ? AND participant_domain = ?`),
		int(key.Type), key.SequenceNumber, key.ParticipantDomain)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, fmt.Errorf("%w: %s", model.ErrNotFound, key)
	}
	return doc, err
}

func in[T ~int](column string, values []T, args []any) (string, []any) {
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = "?"
		args = append(args, int(v))
	}
	return fmt.Sprintf(" AND %s IN (%s)", column, strings.Join(marks, ", ")), args
}

func (s *SQLStore) FindDocuments(ctx context.Context, q planboard.DocumentQuery) ([]model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	var (
		args   []any
		clause string
	)
	if len(q.Types) > 0 {
		clause, args = in("doc_type", q.Types, args)
		query += clause
	}
	if len(q.Statuses) > 0 {
		clause, args = in("status", q.Statuses, args)
		query += clause
	}
	if len(q.Directions) > 0 {
		clause, args = in("direction", q.Directions, args)
		query += clause
	}
	if q.ConnectionGroupID != "" {
		query += ` AND connection_group_id = ?`
		args = append(args, q.ConnectionGroupID)
	}
	if q.ParticipantDomain != "" {
		query += ` AND participant_domain = ?`
		args = append(args, q.ParticipantDomain)
	}
	if q.ConversationID != "" {
		query += ` AND conversation_id = ?`
		args = append(args, q.ConversationID)
	}
	if q.SequenceNumber != 0 {
		query += ` AND sequence_number = ?`
		args = append(args, q.SequenceNumber)
	}
	if !q.PeriodFrom.IsZero() {
		query += ` AND period >= ?`
		args = append(args, day(q.PeriodFrom))
	}
	if !q.PeriodTo.IsZero() {
		query += ` AND period <= ?`
		args = append(args, day(q.PeriodTo))
	}
	query += ` ORDER BY creation_time, sequence_number`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateStatuses(ctx context.Context, changes []planboard.StatusChange) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range changes {
			res, err := tx.ExecContext(ctx, s.rebind(`UPDATE documents SET status = ?
                WHERE doc_type = ? AND sequence_number = ? AND participant_domain = ? AND status = ?`),
				int(c.To), int(c.Key.Type), c.Key.SequenceNumber, c.Key.ParticipantDomain, int(c.From))
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 1 {
				continue
			}
			var status int
			err = tx.QueryRowContext(ctx, s.rebind(`SELECT status FROM documents
                WHERE doc_type = ? AND sequence_number = ? AND participant_domain = ?`),
				int(c.Key.Type), c.Key.SequenceNumber, c.Key.ParticipantDomain).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", model.ErrNotFound, c.Key)
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: %s is %s, expected %s", model.ErrInvalidPhaseTransition, c.Key, model.DocumentStatus(status), c.From)
		}
		return nil
	})
}

func (s *SQLStore) DeleteDocuments(ctx context.Context, t model.DocumentType, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM documents WHERE doc_type = ? AND creation_time < ?`),
		int(t), nanos(before))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLStore) AppendGroupState(ctx context.Context, st model.ConnectionGroupState) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO connection_group_states
        (group_id, connection_id, valid_from, valid_until) VALUES (?, ?, ?, ?)`),
		st.GroupID, st.ConnectionID, nanos(st.ValidFrom), nanos(st.ValidUntil))
	return err
}

func (s *SQLStore) GroupStates(ctx context.Context, from, to time.Time) ([]model.ConnectionGroupState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_id, connection_id, valid_from, valid_until
        FROM connection_group_states ORDER BY group_id, connection_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.ConnectionGroupState
	for rows.Next() {
		var (
			st          model.ConnectionGroupState
			vFrom, vTil int64
		)
		if err := rows.Scan(&st.GroupID, &st.ConnectionID, &vFrom, &vTil); err != nil {
			return nil, err
		}
		st.ValidFrom, st.ValidUntil = fromNanos(vFrom), fromNanos(vTil)
		if st.Overlaps(from, to) {
			out = append(out, st)
		}
	}
	return out, rows.Err()
}

func (s *SQLStore) InsertSettlement(ctx context.Context, st model.FlexOrderSettlement) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := s.settlementExists(ctx, tx, st.OrderKey(), st.Period)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s on %s", model.ErrAlreadySettled, st.OrderKey(), day(st.Period))
		}
		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO settlements
            (id, flex_order_sequence, participant_domain, flex_offer_sequence, flex_request_sequence,
             connection_group_id, period, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			st.ID, st.FlexOrderSequence, st.ParticipantDomain, st.FlexOfferSequence, st.FlexRequestSequence,
			st.ConnectionGroupID, day(st.Period), nanos(st.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert settlement %s: %w", st.ID, err)
		}
		for _, p := range st.Ptus {
			_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO ptu_settlements
                (settlement_id, ptu_index, ordered_power, delivered_power, price) VALUES (?, ?, ?, ?, ?)`),
				st.ID, p.Index, p.OrderedPower.String(), p.DeliveredPower.String(), p.Price.String())
			if err != nil {
				return fmt.Errorf("insert ptu %d of settlement %s: %w", p.Index, st.ID, err)
			}
		}
		return nil
	})
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) settlementExists(ctx context.Context, q querier, order model.DocumentKey, period time.Time) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM settlements
        WHERE flex_order_sequence = ? AND participant_domain = ? AND period = ?`),
		order.SequenceNumber, order.ParticipantDomain, day(period)).Scan(&n)
	return n > 0, err
}

func (s *SQLStore) SettlementExists(ctx context.Context, order model.DocumentKey, period time.Time) (bool, error) {
	return s.settlementExists(ctx, s.db, order, period)
}

func (s *SQLStore) FindSettlements(ctx context.Context, from, to time.Time) ([]model.FlexOrderSettlement, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT s.id, s.flex_order_sequence, s.participant_domain,
            s.flex_offer_sequence, s.flex_request_sequence, s.connection_group_id, s.period, s.created_at,
            p.ptu_index, p.ordered_power, p.delivered_power, p.price
        FROM settlements s LEFT JOIN ptu_settlements p ON p.settlement_id = s.id
        WHERE s.period >= ? AND s.period <= ?
        ORDER BY s.id, p.ptu_index`), day(from), day(to))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var (
		out   []model.FlexOrderSettlement
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			st                        model.FlexOrderSettlement
			period                    string
			created                   int64
			ptuIndex                  sql.NullInt64
			ordered, delivered, price sql.NullString
		)
		err := rows.Scan(&st.ID, &st.FlexOrderSequence, &st.ParticipantDomain, &st.FlexOfferSequence,
			&st.FlexRequestSequence, &st.ConnectionGroupID, &period, &created,
			&ptuIndex, &ordered, &delivered, &price)
		if err != nil {
			return nil, err
		}
		i, ok := index[st.ID]
		if !ok {
			if st.Period, err = parseDay(period); err != nil {
				return nil, fmt.Errorf("decode period of settlement %s: %w", st.ID, err)
			}
			st.CreatedAt = fromNanos(created)
			out = append(out, st)
			i = len(out) - 1
			index[st.ID] = i
		}
		if !ptuIndex.Valid {
			continue
		}
		p := model.PtuSettlement{Index: int(ptuIndex.Int64)}
		if p.OrderedPower, err = decimal.NewFromString(ordered.String); err != nil {
			return nil, err
		}
		if p.DeliveredPower, err = decimal.NewFromString(delivered.String); err != nil {
			return nil, err
		}
		if p.Price, err = decimal.NewFromString(price.String); err != nil {
			return nil, err
		}
		out[i].Ptus = append(out[i].Ptus, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	planboard.SortSettlements(out)
	return out, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }
