// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package eventdb indexes committed protocol events in sqlite so the
// API can serve filtered history without walking ledger state.
package eventdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"math/big"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/event"
)

const eventTableSchema = `
create table if not exists event (
	seq integer primary key,
	at decimal(32,0),
	epoch decimal(32,0),
	name varchar(64),
	gauge decimal(32,0),
	actor blob(20),
	subject blob(20),
	token blob(20),
	amount varchar(80),
	aux decimal(32,0),
	label text
);

CREATE INDEX if not exists epochIndex on event(epoch);
CREATE INDEX if not exists nameIndex on event(name);
CREATE INDEX if not exists gaugeIndex on event(gauge);
CREATE INDEX if not exists actorIndex on event(actor);
CREATE INDEX if not exists subjectIndex on event(subject);
CREATE INDEX if not exists tokenIndex on event(token);
`

type RangeType string

const (
	Epoch RangeType = "Epoch"
	Time  RangeType = "Time"
)

type OrderType string

const (
	ASC  OrderType = "ASC"
	DESC OrderType = "DESC"
)

// Range bounds a query by epoch start or wall-clock time.
type Range struct {
	Unit RangeType `json:"unit"`
	From uint64    `json:"from"`
	To   uint64    `json:"to"`
}

// Options pages a query.
type Options struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

// Criteria matches rows; nil fields match anything. Criteria in a set
// are OR-ed, fields within one criteria are AND-ed.
type Criteria struct {
	Name    *string          `json:"name"`
	Gauge   *uint64          `json:"gauge"`
	Actor   *capstan.Address `json:"actor"`
	Subject *capstan.Address `json:"subject"`
	Token   *capstan.Address `json:"token"`
}

// Filter selects event rows.
type Filter struct {
	CriteriaSet []*Criteria `json:"criteriaSet"`
	Range       *Range      `json:"range"`
	Options     *Options    `json:"options"`
	Order       OrderType   `json:"order"`
}

// EventDB is the sqlite-backed event index.
type EventDB struct {
	path          string
	db            *sql.DB
	driverVersion string
}

// New creates or opens an event db at the given path.
func New(path string) (eventDB *EventDB, err error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if eventDB == nil {
			db.Close()
		}
	}()
	if _, err := db.Exec(eventTableSchema); err != nil {
		return nil, err
	}

	driverVer, _, _ := sqlite3.Version()
	return &EventDB{
		path,
		db,
		driverVer,
	}, nil
}

// NewMem creates an event db in ram.
func NewMem() (*EventDB, error) {
	return New(":memory:")
}

// Close closes the event db.
func (db *EventDB) Close() {
	db.db.Close()
}

func (db *EventDB) Path() string {
	return db.path
}

// Write appends rows in one transaction. Seq is the primary key, so a
// replayed batch fails instead of duplicating history.
func (db *EventDB) Write(rows []event.Row) (err error) {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(`INSERT INTO event(seq, at, epoch, name, gauge, actor, subject, token, amount, aux, label)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		var amount any
		if row.Amount != nil {
			amount = row.Amount.String()
		}
		if _, err = stmt.Exec(
			row.Seq,
			row.At,
			row.Epoch,
			row.Name,
			row.Gauge,
			addrArg(row.Actor),
			addrArg(row.Subject),
			addrArg(row.Token),
			amount,
			row.Aux,
			row.Label,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Post implements event.Sink.
func (db *EventDB) Post(rows []event.Row) error {
	return db.Write(rows)
}

// MaxSeq returns the highest written sequence, zero when empty.
func (db *EventDB) MaxSeq(ctx context.Context) (uint64, error) {
	row := db.db.QueryRowContext(ctx, "SELECT IFNULL(MAX(seq), 0) FROM event")
	var seq uint64
	if err := row.Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// Filter queries rows matching the filter, in seq order.
func (db *EventDB) Filter(ctx context.Context, filter *Filter) ([]*event.Row, error) {
	if filter == nil {
		return db.query(ctx, "SELECT * FROM event")
	}
	var args []any
	stmt := "SELECT * FROM event WHERE 1"
	if filter.Range != nil {
		condition := "epoch"
		if filter.Range.Unit == Time {
			condition = "at"
		}
		args = append(args, filter.Range.From)
		stmt += " AND " + condition + " >= ? "
		if filter.Range.To >= filter.Range.From {
			args = append(args, filter.Range.To)
			stmt += " AND " + condition + " <= ? "
		}
	}
	length := len(filter.CriteriaSet)
	for i, criteria := range filter.CriteriaSet {
		if i == 0 {
			stmt += " AND (( 1 "
		} else {
			stmt += " OR ( 1 "
		}
		if criteria.Name != nil {
			args = append(args, *criteria.Name)
			stmt += " AND name = ? "
		}
		if criteria.Gauge != nil {
			args = append(args, *criteria.Gauge)
			stmt += " AND gauge = ? "
		}
		if criteria.Actor != nil {
			args = append(args, criteria.Actor.Bytes())
			stmt += " AND actor = ? "
		}
		if criteria.Subject != nil {
			args = append(args, criteria.Subject.Bytes())
			stmt += " AND subject = ? "
		}
		if criteria.Token != nil {
			args = append(args, criteria.Token.Bytes())
			stmt += " AND token = ? "
		}
		if i == length-1 {
			stmt += " )) "
		} else {
			stmt += " ) "
		}
	}

	if filter.Order == DESC {
		stmt += " ORDER BY seq DESC "
	} else {
		stmt += " ORDER BY seq ASC "
	}

	if filter.Options != nil {
		stmt += " limit ?, ? "
		args = append(args, filter.Options.Offset, filter.Options.Limit)
	}
	return db.query(ctx, stmt, args...)
}

func (db *EventDB) query(ctx context.Context, stmt string, args ...any) ([]*event.Row, error) {
	rows, err := db.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*event.Row
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		var (
			row     event.Row
			actor   []byte
			subject []byte
			token   []byte
			amount  sql.NullString
		)
		if err := rows.Scan(
			&row.Seq,
			&row.At,
			&row.Epoch,
			&row.Name,
			&row.Gauge,
			&actor,
			&subject,
			&token,
			&amount,
			&row.Aux,
			&row.Label,
		); err != nil {
			return nil, err
		}
		row.Actor = capstan.BytesToAddress(actor)
		row.Subject = capstan.BytesToAddress(subject)
		row.Token = capstan.BytesToAddress(token)
		if amount.Valid {
			v, ok := new(big.Int).SetString(amount.String, 10)
			if !ok {
				return nil, errors.New("eventdb: corrupt amount column")
			}
			row.Amount = v
		}
		result = append(result, &row)
	}
	return result, rows.Err()
}

// addrArg maps the zero address to NULL so absent parties stay
// distinguishable from a literal zero address.
func addrArg(a capstan.Address) driver.Value {
	if a.IsZero() {
		return nil
	}
	return a.Bytes()
}
