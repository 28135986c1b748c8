/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package store

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// badgerKeyPrefix keeps persisted queries apart from anything else sharing the
// badger directory.
const badgerKeyPrefix = "apq/"

// maxConflictRetries bounds how often CreateIfAbsent retries a transaction
// that lost a race.  One retry is enough to observe the winner's write.
const maxConflictRetries = 3

// BadgerOptions configures a badger backed store.
type BadgerOptions struct {
	Dir        string
	InMemory   bool
	SyncWrites bool
}

// Badger is a QueryStore on an embedded badger database.
type Badger struct {
	db *badger.DB
}

type glogLogger struct{}

func (glogLogger) Errorf(format string, args ...interface{}) {
	glog.ErrorDepth(1, fmt.Sprintf(format, args...))
}

func (glogLogger) Warningf(format string, args ...interface{}) {
	glog.WarningDepth(1, fmt.Sprintf(format, args...))
}

func (glogLogger) Infof(format string, args ...interface{}) {
	if glog.V(2) {
		glog.InfoDepth(1, fmt.Sprintf(format, args...))
	}
}

func (glogLogger) Debugf(format string, args ...interface{}) {
	if glog.V(3) {
		glog.InfoDepth(1, fmt.Sprintf(format, args...))
	}
}

// OpenBadger opens the badger database described by opts.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts = bopts.
		WithSyncWrites(opts.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(glogLogger{})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrapf(err, "while opening badger at %q", opts.Dir)
	}
	return NewBadger(db), nil
}

// NewBadger wraps an already open database.
func NewBadger(db *badger.DB) *Badger {
	return &Badger{db: db}
}

func badgerKey(version int, hash string) []byte {
	return []byte(badgerKeyPrefix + key(version, hash))
}

// Exists implements apq.QueryStore.
func (s *Badger) Exists(ctx context.Context, version int, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(version, hash))
		switch {
		case err == nil:
			found = true
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
	})
	return found, errors.Wrap(err, "badger exists failed")
}

// Get implements apq.QueryStore.
func (s *Badger) Get(ctx context.Context, version int, hash string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(version, hash))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case err == nil:
		return string(val), true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return "", false, nil
	default:
		return "", false, errors.Wrap(err, "badger get failed")
	}
}

// CreateIfAbsent implements apq.QueryStore.  The read and the write happen in
// one serializable transaction; if another writer commits the same key first
// badger aborts ours with ErrConflict, and the retry sees their record.
func (s *Badger) CreateIfAbsent(ctx context.Context, version int, hash,
	query string) (bool, error) {

	if err := ctx.Err(); err != nil {
		return false, err
	}
	k := badgerKey(version, hash)
	for attempt := 0; ; attempt++ {
		var created bool
		err := s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(k)
			switch {
			case err == nil:
				return nil
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			created = true
			return txn.Set(k, []byte(query))
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			glog.V(2).Infof("Retrying store of %s after a conflicting write", key(version, hash))
			continue
		}
		if err != nil {
			return false, errors.Wrap(err, "badger create failed")
		}
		return created, nil
	}
}

// Close closes the underlying database.
func (s *Badger) Close() error {
	return s.db.Close()
}
