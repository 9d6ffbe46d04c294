// Package undolog implements the append-only undo log: an ordered queue of
// (before, after) image entries keyed by transaction, flushed to a file in
// FIFO order by Write. Grounded on the teacher's
// manager.UndoLogManager.writeEntryToFile length-prefixed binary layout
// (server/innodb/manager/undo_log_manager.go) and on
// original_source/src/common/wal.h's logger member.
package undolog

import (
	"bufio"
	"encoding/binary"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/Legend147/nstore/internal/txn"
	"github.com/Legend147/nstore/logger"
)

// Mode selects how SetPath opens the backing file.
type Mode int

const (
	// Truncate opens the file fresh, discarding any prior contents.
	Truncate Mode = iota
	// Append opens the file for appending to existing contents.
	Append
)

// ErrLogIO wraps any I/O failure encountered while flushing the log.
var ErrLogIO = errors.New("undolog: write failed")

// Entry is one undo-log record: the txn that produced it, plus the
// before/after images (either may be nil — insert has only After, delete
// has only Before, update has both).
type Entry struct {
	Txn    txn.Txn
	Before []byte
	After  []byte
}

// Log is an in-memory queue of pushed entries with an explicit, durable
// flush. The queue has no capacity limit: it grows with every Push until
// the next Write empties it.
type Log struct {
	mu      sync.Mutex
	pending []Entry
	path    string
	mode    Mode
	file    *os.File
}

// New opens (or creates) the log file at path in mode and returns an empty
// Log ready to accept Push calls.
func New(path string, mode Mode) (*Log, error) {
	l := &Log{}
	if err := l.SetPath(path, mode); err != nil {
		return nil, err
	}
	return l, nil
}

// SetPath (re)configures the backing file, closing any previously open
// file first.
func (l *Log) SetPath(path string, mode Mode) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	flags := os.O_CREATE | os.O_WRONLY
	if mode == Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return errors.Wrap(ErrLogIO, err.Error())
	}

	l.path = path
	l.mode = mode
	l.file = f
	return nil
}

// Push appends entry to the in-memory queue. O(1), thread-safe. Entries
// pushed while a Write is in flight land in the next flush, never lost or
// duplicated.
func (l *Log) Push(e Entry) {
	l.mu.Lock()
	l.pending = append(l.pending, e)
	l.mu.Unlock()
}

// Write flushes all currently queued entries to the log file in FIFO
// order, then clears the queue. A Write with nothing queued is a true
// no-op. The flush is durable (fsync'd) on return.
func (l *Log) Write() error {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	file := l.file
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if file == nil {
		return errors.Wrap(ErrLogIO, "no backing file configured")
	}

	w := bufio.NewWriter(file)
	for _, e := range batch {
		if err := writeEntry(w, e); err != nil {
			return errors.Wrap(ErrLogIO, err.Error())
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(ErrLogIO, err.Error())
	}
	if err := file.Sync(); err != nil {
		return errors.Wrap(ErrLogIO, err.Error())
	}

	logger.Debugf("undolog: flushed %d entries to %s", len(batch), l.path)
	return nil
}

func writeEntry(w *bufio.Writer, e Entry) error {
	if err := binary.Write(w, binary.BigEndian, e.Txn.ID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint8(e.Txn.Op)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, e.Txn.Key); err != nil {
		return err
	}
	if err := writeBlob(w, e.Before); err != nil {
		return err
	}
	return writeBlob(w, e.After)
}

func writeBlob(w *bufio.Writer, b []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}

// Close flushes any pending entries and closes the backing file.
func (l *Log) Close() error {
	if err := l.Write(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
