package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-tradlet/internal/group"
	"github.com/rxtech-lab/argo-tradlet/internal/logger"
	"github.com/rxtech-lab/argo-tradlet/internal/playbook"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
	"go.uber.org/zap"
)

const (
	ordersFile       = "orders.parquet"
	transactionsFile = "transactions.parquet"
	transitionsFile  = "transitions.parquet"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		group_id TEXT,
		ref TEXT,
		playbook_id TEXT,
		instrument TEXT,
		direction TEXT,
		price_type TEXT,
		limit_price DOUBLE,
		volume INTEGER,
		offset_flag TEXT,
		state TEXT,
		filled_volume INTEGER,
		create_time TIMESTAMP,
		update_time TIMESTAMP,
		PRIMARY KEY (group_id, ref)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		group_id TEXT,
		order_ref TEXT,
		txn_id TEXT,
		direction TEXT,
		volume INTEGER,
		price DOUBLE,
		time TIMESTAMP,
		PRIMARY KEY (group_id, order_ref, txn_id)
	)`,
	`CREATE TABLE IF NOT EXISTS transitions (
		seq BIGINT,
		group_id TEXT,
		playbook_id TEXT,
		from_state TEXT,
		to_state TEXT,
		order_ref TEXT,
		action TEXT,
		time TIMESTAMP,
		opened_volume INTEGER,
		closed_volume INTEGER,
		realized_pnl TEXT
	)`,
}

// TransitionRecord is one journaled playbook state change.
type TransitionRecord struct {
	Seq          int64     `json:"seq"`
	GroupID      string    `json:"groupId"`
	PlaybookID   string    `json:"playbookId"`
	FromState    string    `json:"fromState"`
	ToState      string    `json:"toState"`
	OrderRef     string    `json:"orderRef"`
	Action       string    `json:"action"`
	Time         time.Time `json:"time"`
	OpenedVolume int       `json:"openedVolume"`
	ClosedVolume int       `json:"closedVolume"`
	RealizedPnL  string    `json:"realizedPnl"`
}

// DuckDBJournal keeps orders, fills and playbook transitions in an in-memory DuckDB database
// and exports them to parquet files in outputDir. Existing files are loaded on Initialize.
// An empty outputDir keeps everything in memory.
type DuckDBJournal struct {
	db        *sql.DB
	sq        squirrel.StatementBuilderType
	outputDir string
	nextSeq   int64
	log       *logger.Logger
	mu        sync.Mutex
}

func NewDuckDBJournal(outputDir string, log *logger.Logger) *DuckDBJournal {
	return &DuckDBJournal{
		db:        nil,
		sq:        squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		outputDir: outputDir,
		nextSeq:   0,
		log:       log.Named("journal"),
		mu:        sync.Mutex{},
	}
}

// Initialize opens the database and creates the tables.
func (j *DuckDBJournal) Initialize() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.outputDir != "" {
		if err := os.MkdirAll(j.outputDir, 0755); err != nil {
			return errors.Wrap(errors.ErrCodeJournalFailed, "failed to create journal directory", err)
		}
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalFailed, "failed to open DuckDB connection", err)
	}

	j.db = db

	for _, ddl := range schema {
		if _, err := j.db.Exec(ddl); err != nil {
			j.db.Close()
			j.db = nil

			return errors.Wrap(errors.ErrCodeJournalFailed, "failed to create journal tables", err)
		}
	}

	j.load("orders", ordersFile, "ON CONFLICT DO NOTHING")
	j.load("transactions", transactionsFile, "ON CONFLICT DO NOTHING")
	j.load("transitions", transitionsFile, "")

	if err := j.db.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM transitions").Scan(&j.nextSeq); err != nil {
		return errors.Wrap(errors.ErrCodeJournalFailed, "failed to read transition sequence", err)
	}

	return nil
}

// RecordOrder inserts an order or updates its lifecycle fields.
func (j *DuckDBJournal) RecordOrder(groupID string, order *types.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return errors.New(errors.ErrCodeJournalFailed, "journal not initialized")
	}

	_, err := j.sq.
		Insert("orders").
		Columns(
			"group_id", "ref", "playbook_id", "instrument", "direction", "price_type", "limit_price",
			"volume", "offset_flag", "state", "filled_volume", "create_time", "update_time",
		).
		Values(
			groupID, order.Ref, order.PlaybookID(), order.Instrument, string(order.Direction),
			string(order.PriceType), order.LimitPrice, order.Volume, string(order.OffsetFlag),
			string(order.State), order.FilledVolume, order.CreateTime, order.UpdateTime,
		).
		Suffix(`ON CONFLICT (group_id, ref) DO UPDATE SET
			state = excluded.state,
			filled_volume = excluded.filled_volume,
			update_time = excluded.update_time`).
		RunWith(j.db).
		Exec()
	if err != nil {
		return errors.Wrapf(errors.ErrCodeJournalFailed, err, "failed to record order %s", order.Ref)
	}

	return nil
}

// RecordTransaction stores a fill once.
func (j *DuckDBJournal) RecordTransaction(groupID string, txn *types.Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return errors.New(errors.ErrCodeJournalFailed, "journal not initialized")
	}

	_, err := j.sq.
		Insert("transactions").
		Columns("group_id", "order_ref", "txn_id", "direction", "volume", "price", "time").
		Values(groupID, txn.OrderRef, txn.ID, string(txn.Direction), txn.Volume, txn.Price, txn.Time).
		Suffix("ON CONFLICT DO NOTHING").
		RunWith(j.db).
		Exec()
	if err != nil {
		return errors.Wrapf(errors.ErrCodeJournalFailed, err, "failed to record transaction %s", txn.Key())
	}

	return nil
}

// RecordTransition appends a playbook state change.
func (j *DuckDBJournal) RecordTransition(groupID string, pb *playbook.Playbook, prev playbook.StateTuple) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return errors.New(errors.ErrCodeJournalFailed, "journal not initialized")
	}

	next := pb.StateTuple()

	_, err := j.sq.
		Insert("transitions").
		Columns(
			"seq", "group_id", "playbook_id", "from_state", "to_state", "order_ref", "action", "time",
			"opened_volume", "closed_volume", "realized_pnl",
		).
		Values(
			j.nextSeq+1, groupID, pb.ID(), string(prev.State), string(next.State), next.OrderRef,
			string(next.Action), next.Time, pb.OpenedVolume(), pb.ClosedVolume(), pb.RealizedPnL().String(),
		).
		RunWith(j.db).
		Exec()
	if err != nil {
		return errors.Wrapf(errors.ErrCodeJournalFailed, err, "failed to record transition of %s", pb.ID())
	}

	j.nextSeq++

	return nil
}

// Orders returns the journaled orders of a group in creation order.
func (j *DuckDBJournal) Orders(groupID string) ([]types.Order, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return nil, errors.New(errors.ErrCodeJournalFailed, "journal not initialized")
	}

	rows, err := j.sq.
		Select(
			"ref", "playbook_id", "instrument", "direction", "price_type", "limit_price", "volume",
			"offset_flag", "state", "filled_volume", "create_time", "update_time",
		).
		From("orders").
		Where(squirrel.Eq{"group_id": groupID}).
		OrderBy("create_time ASC", "ref ASC").
		RunWith(j.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query orders", err)
	}
	defer rows.Close()

	var orders []types.Order

	for rows.Next() {
		var (
			order      types.Order
			playbookID string
		)

		err := rows.Scan(
			&order.Ref,
			&playbookID,
			&order.Instrument,
			&order.Direction,
			&order.PriceType,
			&order.LimitPrice,
			&order.Volume,
			&order.OffsetFlag,
			&order.State,
			&order.FilledVolume,
			&order.CreateTime,
			&order.UpdateTime,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan order", err)
		}

		order.Attrs = map[string]string{types.AttrPlaybookID: playbookID}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read orders", err)
	}

	return orders, nil
}

// Transitions returns the journaled state changes of a group, optionally of one playbook.
func (j *DuckDBJournal) Transitions(groupID, playbookID string) ([]TransitionRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return nil, errors.New(errors.ErrCodeJournalFailed, "journal not initialized")
	}

	query := j.sq.
		Select(
			"seq", "group_id", "playbook_id", "from_state", "to_state", "order_ref", "action", "time",
			"opened_volume", "closed_volume", "realized_pnl",
		).
		From("transitions").
		Where(squirrel.Eq{"group_id": groupID}).
		OrderBy("seq ASC")

	if playbookID != "" {
		query = query.Where(squirrel.Eq{"playbook_id": playbookID})
	}

	rows, err := query.RunWith(j.db).Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query transitions", err)
	}
	defer rows.Close()

	var records []TransitionRecord

	for rows.Next() {
		var r TransitionRecord

		err := rows.Scan(
			&r.Seq, &r.GroupID, &r.PlaybookID, &r.FromState, &r.ToState, &r.OrderRef, &r.Action, &r.Time,
			&r.OpenedVolume, &r.ClosedVolume, &r.RealizedPnL,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan transition", err)
		}

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read transitions", err)
	}

	return records, nil
}

// TransactionCount returns how many distinct fills a group journaled.
func (j *DuckDBJournal) TransactionCount(groupID string) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return 0, errors.New(errors.ErrCodeJournalFailed, "journal not initialized")
	}

	var count int

	err := j.sq.
		Select("COUNT(*)").
		From("transactions").
		Where(squirrel.Eq{"group_id": groupID}).
		RunWith(j.db).
		QueryRow().
		Scan(&count)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count transactions", err)
	}

	return count, nil
}

// Flush exports every table to its parquet file.
func (j *DuckDBJournal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return errors.New(errors.ErrCodeJournalFailed, "journal not initialized")
	}

	return j.export()
}

// Close exports the journal and releases the database.
func (j *DuckDBJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return nil
	}

	exportErr := j.export()

	if err := j.db.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeJournalFailed, "failed to close database", err)
	}

	j.db = nil

	return exportErr
}

// OutputPath returns the parquet file of a table, or "" for an in-memory journal.
func (j *DuckDBJournal) OutputPath(table string) string {
	if j.outputDir == "" {
		return ""
	}

	return filepath.Join(j.outputDir, table+".parquet")
}

// export writes the tables to parquet. Caller holds j.mu.
func (j *DuckDBJournal) export() error {
	if j.outputDir == "" {
		return nil
	}

	exports := []struct {
		file  string
		query string
	}{
		{ordersFile, "SELECT * FROM orders ORDER BY create_time ASC"},
		{transactionsFile, "SELECT * FROM transactions ORDER BY time ASC"},
		{transitionsFile, "SELECT * FROM transitions ORDER BY seq ASC"},
	}

	for _, e := range exports {
		path := filepath.Join(j.outputDir, e.file)

		_, err := j.db.Exec(fmt.Sprintf(`COPY (%s) TO '%s' (FORMAT PARQUET)`, e.query, path))
		if err != nil {
			return errors.Wrapf(errors.ErrCodeJournalFailed, err, "failed to export %s", e.file)
		}
	}

	return nil
}

// load imports an earlier export into table. A missing or unreadable file starts the table empty.
// Caller holds j.mu.
func (j *DuckDBJournal) load(table, file, conflict string) {
	if j.outputDir == "" {
		return
	}

	path := filepath.Join(j.outputDir, file)
	if _, err := os.Stat(path); err != nil {
		return
	}

	_, err := j.db.Exec(fmt.Sprintf(`INSERT INTO %s SELECT * FROM read_parquet('%s') %s`, table, path, conflict))
	if err != nil {
		j.log.Warn("Failed to load journal file, starting empty", zap.String("path", path), zap.Error(err))
	}
}

var _ group.Journal = (*DuckDBJournal)(nil)
