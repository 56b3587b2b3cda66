package store

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type FileConfig struct {
	Dir string `yaml:"dir" json:"dir" mapstructure:"dir" env:"STORE_FILE_DIR"`
}

// headerSize is the expiry prefix of every file: unix nanos, 0 means never.
const headerSize = 8

// FileStore is a file-based store, each key corresponds to a file.
// Locks are per key and per process; SetNX is additionally atomic across
// processes sharing the directory through O_EXCL.
type FileStore struct {
	dir   string
	locks sync.Map // key -> *sync.RWMutex
	now   func() time.Time
}

// NewFileStore Creates a new file store rooted at config.Dir
func NewFileStore(config FileConfig) (*FileStore, error) {
	if config.Dir == "" {
		config.Dir = filepath.Join(os.TempDir(), "dbxnotify")
	}
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: config.Dir, now: time.Now}, nil
}

func (fs *FileStore) filePath(key string) string {
	hash := md5.Sum([]byte(keyPrefix + key))
	return filepath.Join(fs.dir, hex.EncodeToString(hash[:]))
}

func (fs *FileStore) getLock(key string) *sync.RWMutex {
	val, _ := fs.locks.LoadOrStore(key, &sync.RWMutex{})
	return val.(*sync.RWMutex)
}

func encodeEntry(value []byte, expiresAt time.Time) []byte {
	buf := make([]byte, headerSize+len(value))
	if !expiresAt.IsZero() {
		binary.BigEndian.PutUint64(buf, uint64(expiresAt.UnixNano()))
	}
	copy(buf[headerSize:], value)
	return buf
}

// read returns the live value, or ErrNotFound.
func (fs *FileStore) read(key string) ([]byte, error) {
	data, err := os.ReadFile(fs.filePath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(data) < headerSize {
		return nil, ErrNotFound
	}
	if exp := binary.BigEndian.Uint64(data); exp != 0 && fs.now().UnixNano() >= int64(exp) {
		return nil, ErrNotFound
	}
	return data[headerSize:], nil
}

// Has Checks if the key exists
func (fs *FileStore) Has(key string) bool {
	lock := fs.getLock(key)
	lock.RLock()
	defer lock.RUnlock()
	_, err := fs.read(key)
	return err == nil
}

// Set writes the value through a temp file and rename, so readers never see a
// partial entry.
func (fs *FileStore) Set(key string, value []byte) error {
	lock := fs.getLock(key)
	lock.Lock()
	defer lock.Unlock()
	return fs.write(key, encodeEntry(value, time.Time{}))
}

func (fs *FileStore) SetEX(key string, value []byte, ttl time.Duration) error {
	lock := fs.getLock(key)
	lock.Lock()
	defer lock.Unlock()
	return fs.write(key, encodeEntry(value, expiryOf(ttl, fs.now())))
}

func (fs *FileStore) write(key string, data []byte) error {
	tmp, err := os.CreateTemp(fs.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), fs.filePath(key))
}

func (fs *FileStore) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	lock := fs.getLock(key)
	lock.Lock()
	defer lock.Unlock()
	path := fs.filePath(key)
	if _, err := fs.read(key); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	// an expired entry is replaced
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_, werr := f.Write(encodeEntry(value, expiryOf(ttl, fs.now())))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(path)
		return false, errors.Join(werr, cerr)
	}
	return true, nil
}

// Get Reads the value corresponding to the key from the file
func (fs *FileStore) Get(key string) ([]byte, error) {
	lock := fs.getLock(key)
	lock.RLock()
	defer lock.RUnlock()
	return fs.read(key)
}

// Delete Deletes the file corresponding to the key
func (fs *FileStore) Delete(key string) error {
	lock := fs.getLock(key)
	lock.Lock()
	defer lock.Unlock()
	err := os.Remove(fs.filePath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (fs *FileStore) Close() error {
	return nil
}
