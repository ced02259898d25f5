package inmemdb

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/article"
	"github.com/kenamplan/backend/core/cart"
	"github.com/kenamplan/backend/core/catalog"
	"github.com/kenamplan/backend/core/rental"
	"github.com/kenamplan/backend/core/user"
)

type (
	// DB keeps every table in memory. Rows are stored by value and replaced on update.
	DB struct {
		mutex sync.RWMutex
		txMu  sync.Mutex
		tables
	}

	tables struct {
		users       map[string]user.User
		categories  map[string]catalog.Category
		items       map[string]catalog.Item
		articles    map[string]article.Article
		cartItems   map[string]cart.CartItem
		rentals     map[string]rental.Rental // without Items
		rentalItems map[string]rental.RentalItem
		payments    map[string]rental.Payment
	}
)

var _ core.Transactor = (*DB)(nil)

func Open() *DB {
	return &DB{tables: tables{
		users:       make(map[string]user.User),
		categories:  make(map[string]catalog.Category),
		items:       make(map[string]catalog.Item),
		articles:    make(map[string]article.Article),
		cartItems:   make(map[string]cart.CartItem),
		rentals:     make(map[string]rental.Rental),
		rentalItems: make(map[string]rental.RentalItem),
		payments:    make(map[string]rental.Payment),
	}}
}

// PingContext always succeeds; it lets the health check treat both storage engines alike.
func (db *DB) PingContext(context.Context) error { return nil }

// InTx runs fn with transactions serialized. Writes made through the executor handed to fn are undone,
// row by row, when fn fails or panics; writes made outside the transaction are left alone.
func (db *DB) InTx(_ context.Context, fn func(exec core.DBExecutor) error) (err error) {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	t := &tx{}
	defer func() {
		if p := recover(); p != nil {
			db.rollback(t)
			panic(p)
		}
		if err != nil {
			db.rollback(t)
		}
	}()
	return fn(t)
}

func (db *DB) rollback(t *tx) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// tx identifies writes belonging to an InTx call. Its ExtContext is never set: repositories here do not run SQL.
type tx struct {
	sqlx.ExtContext
	undo []func()
}

func txFrom(exec []core.DBExecutor) *tx {
	for _, e := range exec {
		if t, ok := e.(*tx); ok {
			return t
		}
	}
	return nil
}

// put & del must be called with the write lock held.
func put[V any](m map[string]V, id string, v V, exec []core.DBExecutor) {
	logUndo(m, id, exec)
	m[id] = v
}

func del[V any](m map[string]V, id string, exec []core.DBExecutor) {
	logUndo(m, id, exec)
	delete(m, id)
}

func logUndo[V any](m map[string]V, id string, exec []core.DBExecutor) {
	t := txFrom(exec)
	if t == nil {
		return
	}
	prev, existed := m[id]
	t.undo = append(t.undo, func() {
		if existed {
			m[id] = prev
		} else {
			delete(m, id)
		}
	})
}

func newID() string { return uuid.New().String() }
