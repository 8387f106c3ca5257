// Package memory is an in-process storage backend. It backs the test suites and the
// STORAGE_BACKEND=memory mode; data does not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository"
)

type txKey struct{}

type state struct {
	members      map[int64]models.Member
	tags         map[int64]string
	memberSkills map[int64][]int64
	requests     map[int64]models.Request
	requestTags  map[int64][]int64
	proposals    map[int64]models.Proposal
	entries      []models.TransactionEntry
	ratings      []models.Rating
	outbox       []models.OutboxEvent
	seq          int64
}

func newState() *state {
	return &state{
		members:      make(map[int64]models.Member),
		tags:         make(map[int64]string),
		memberSkills: make(map[int64][]int64),
		requests:     make(map[int64]models.Request),
		requestTags:  make(map[int64][]int64),
		proposals:    make(map[int64]models.Proposal),
	}
}

func (s *state) clone() *state {
	c := &state{
		members:      make(map[int64]models.Member, len(s.members)),
		tags:         make(map[int64]string, len(s.tags)),
		memberSkills: make(map[int64][]int64, len(s.memberSkills)),
		requests:     make(map[int64]models.Request, len(s.requests)),
		requestTags:  make(map[int64][]int64, len(s.requestTags)),
		proposals:    make(map[int64]models.Proposal, len(s.proposals)),
		entries:      append([]models.TransactionEntry(nil), s.entries...),
		ratings:      append([]models.Rating(nil), s.ratings...),
		outbox:       append([]models.OutboxEvent(nil), s.outbox...),
		seq:          s.seq,
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.tags {
		c.tags[k] = v
	}
	for k, v := range s.memberSkills {
		c.memberSkills[k] = append([]int64(nil), v...)
	}
	for k, v := range s.requests {
		v.Tags = append([]string(nil), v.Tags...)
		c.requests[k] = v
	}
	for k, v := range s.requestTags {
		c.requestTags[k] = append([]int64(nil), v...)
	}
	for k, v := range s.proposals {
		c.proposals[k] = v
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// DB holds all tables behind one mutex. A transaction keeps the mutex for its whole
// duration, so transactions are serial and every read inside one is consistent.
type DB struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func NewDB() *DB {
	return &DB{st: newState(), now: time.Now}
}

// NewStore returns a Store whose repositories share db.
func NewStore(db *DB) repository.Store {
	return repository.Store{
		Tx:           db,
		Members:      &memberRepo{db: db},
		Requests:     &requestRepo{db: db},
		Proposals:    &proposalRepo{db: db},
		Transactions: &transactionRepo{db: db},
		Tags:         &tagRepo{db: db},
		Ratings:      &ratingRepo{db: db},
		Outbox:       &outboxRepo{db: db},
	}
}

// WithinTx runs fn with the store locked. The previous state is restored if fn fails
// or panics. Nested calls join the outer transaction.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey{}) == db {
		return fn(ctx)
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.st.clone()
	defer func() {
		if p := recover(); p != nil {
			db.st = snapshot
			panic(p)
		}
		if err != nil {
			db.st = snapshot
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, db))
}

// view runs fn against the current state, taking the lock unless ctx is already
// inside a transaction on this store.
func (db *DB) view(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ctx.Value(txKey{}) == db {
		return fn(db.st)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(db.st)
}

// AddMember inserts a member with an empty balance and returns its id.
func (db *DB) AddMember(username string, skills ...string) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	id := db.st.nextID()
	db.st.members[id] = models.Member{ID: id, Username: username, CreatedAt: db.now().UTC()}
	for _, name := range skills {
		db.st.memberSkills[id] = append(db.st.memberSkills[id], db.st.tagID(name))
	}
	return id
}

// AddTags registers tag names, ignoring ones that already exist.
func (db *DB) AddTags(names ...string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, name := range names {
		db.st.tagID(name)
	}
}

func (s *state) tagID(name string) int64 {
	for id, n := range s.tags {
		if n == name {
			return id
		}
	}
	id := s.nextID()
	s.tags[id] = name
	return id
}

// Entries returns a copy of the transaction log.
func (db *DB) Entries() []models.TransactionEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]models.TransactionEntry(nil), db.st.entries...)
}

// Members returns a copy of every member row.
func (db *DB) Members() []models.Member {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]models.Member, 0, len(db.st.members))
	for _, m := range db.st.members {
		out = append(out, m)
	}
	return out
}
