package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	_ "modernc.org/sqlite"

	"github.com/yllada/wa-desktop/common"
)

// Credentials is the device state of one namespace.
type Credentials struct {
	Device *store.Device
}

// Registered reports whether the device belongs to a paired account.
func (c *Credentials) Registered() bool {
	return c != nil && c.Device != nil && c.Device.ID != nil
}

// Account returns the paired account address, or "".
func (c *Credentials) Account() string {
	if !c.Registered() {
		return ""
	}
	return c.Device.ID.ToNonAD().String()
}

// Store keeps whatsmeow device state in one SQLite database per namespace.
type Store struct {
	dir string
	log common.Logger

	mu         sync.Mutex
	containers map[string]*namespaceDB
}

type namespaceDB struct {
	db        *sql.DB
	container *sqlstore.Container
}

// NewStore returns a Store keeping its databases in dir.
func NewStore(dir string, log common.Logger) *Store {
	if log == nil {
		log = common.GetLogger()
	}
	return &Store{
		dir:        dir,
		log:        log,
		containers: make(map[string]*namespaceDB),
	}
}

// Location returns the database file of namespace.
func (s *Store) Location(namespace string) string {
	return filepath.Join(s.dir, namespace+".db")
}

// Load opens the namespace database, creating it when needed, and returns
// its device. A fresh database yields an unregistered device.
func (s *Store) Load(ctx context.Context, namespace string) (common.Credentials, common.SaveFunc, error) {
	ndb, err := s.open(ctx, namespace)
	if err != nil {
		return nil, nil, err
	}

	device, err := ndb.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reading device of %q: %w", namespace, err)
	}

	creds := &Credentials{Device: device}
	save := func(ctx context.Context) error {
		if !creds.Registered() {
			return nil
		}
		return device.Save(ctx)
	}
	return creds, save, nil
}

func (s *Store) open(ctx context.Context, namespace string) (*namespaceDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ndb, ok := s.containers[namespace]; ok {
		return ndb, nil
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, fmt.Errorf("creating auth directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		s.Location(namespace))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", s.Location(namespace), err)
	}
	db.SetMaxOpenConns(1)

	container := sqlstore.NewWithDB(db, "sqlite", newLibraryLogger(s.log, "Database"))
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("upgrading %s: %w", s.Location(namespace), err)
	}

	ndb := &namespaceDB{db: db, container: container}
	s.containers[namespace] = ndb
	return ndb, nil
}

// Reset closes and deletes the namespace database.
func (s *Store) Reset(namespace string) error {
	s.mu.Lock()
	if ndb, ok := s.containers[namespace]; ok {
		ndb.db.Close()
		delete(s.containers, namespace)
	}
	s.mu.Unlock()

	var errs []error
	base := s.Location(namespace)
	for _, path := range []string{base, base + "-wal", base + "-shm"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.log.Info("Removed credentials at %s", base)
	return nil
}

// Close closes every open database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for ns, ndb := range s.containers {
		if err := ndb.db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.containers, ns)
	}
	return errors.Join(errs...)
}
