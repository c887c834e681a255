package persistence

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/ui"
	bolt "go.etcd.io/bbolt"
)

const (
	BucketConstants = "constants"
	BucketFaults    = "faults"

	// MaxFaultRecords is the number of fault records kept, older ones are dropped
	MaxFaultRecords = 100
)

// FaultRecord is a persisted thermal error.
type FaultRecord struct {
	Time    time.Time `json:"time"`
	Channel string    `json:"channel"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Fatal   bool      `json:"fatal"`
}

type Persistence interface {
	Init() error

	LoadConstants(channelId string) (control_loop.Constants, error)
	SaveConstants(channelId string, constants control_loop.Constants) (err error)
	DeleteConstants(channelId string) (err error)
	LoadAllConstants() (map[string]control_loop.Constants, error)

	AppendFault(record FaultRecord) (err error)
	LoadFaults() ([]FaultRecord, error)
}

type persistence struct {
	dbPath string
}

func NewPersistence(dbPath string) Persistence {
	p := &persistence{
		dbPath: dbPath,
	}
	return p
}

func (p persistence) Init() (err error) {
	// get parent path of dbPath
	parentDir := filepath.Dir(p.dbPath)
	_, err = os.Stat(parentDir)
	if errors.Is(err, os.ErrNotExist) {
		// create directory
		ui.Info("Creating directory for db: %s", parentDir)
		err = os.MkdirAll(parentDir, 0755)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p persistence) openPersistence() (db *bolt.DB, err error) {
	db, err = bolt.Open(p.dbPath, 0600, &bolt.Options{Timeout: 1 * time.Minute})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// SaveConstants saves the tuning result of the given channel to persistence
func (p persistence) SaveConstants(channelId string, constants control_loop.Constants) (err error) {
	if constants.Pid == nil && constants.Mpc == nil {
		return errors.New("no constants given")
	}

	db, err := p.openPersistence()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	data, err := json.Marshal(constants)
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketConstants))
		if err != nil {
			return fmt.Errorf("create bucket: %s", err)
		}
		return b.Put([]byte(channelId), data)
	})
}

// LoadConstants loads the tuning result of the given channel from persistence
func (p persistence) LoadConstants(channelId string) (control_loop.Constants, error) {
	db, err := p.openPersistence()
	if err != nil {
		return control_loop.Constants{}, err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	var constants control_loop.Constants
	err = db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketConstants))
		if b == nil {
			return os.ErrNotExist
		}
		v := b.Get([]byte(channelId))
		if v == nil {
			return os.ErrNotExist
		}

		err := json.Unmarshal(v, &constants)
		if err != nil {
			// if we cannot read the saved data, delete it
			ui.Warning("Unable to unmarshal saved constants for %s: %v", channelId, err)
			err := b.Delete([]byte(channelId))
			if err != nil {
				ui.Error("Unable to delete corrupt data key %s: %v", channelId, err)
			}
			return os.ErrNotExist
		}
		return nil
	})

	return constants, err
}

// LoadAllConstants returns the tuning results of all channels
func (p persistence) LoadAllConstants() (map[string]control_loop.Constants, error) {
	db, err := p.openPersistence()
	if err != nil {
		return nil, err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	result := map[string]control_loop.Constants{}
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketConstants))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var constants control_loop.Constants
			if err := json.Unmarshal(v, &constants); err != nil {
				ui.Warning("Skipping unreadable constants of %s: %v", string(k), err)
				return nil
			}
			result[string(k)] = constants
			return nil
		})
	})
	return result, err
}

func (p persistence) DeleteConstants(channelId string) error {
	db, err := p.openPersistence()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketConstants))
		if b == nil {
			// no constants bucket yet
			return nil
		}
		v := b.Get([]byte(channelId))
		if v == nil {
			// no data for given key
			return nil
		}

		return b.Delete([]byte(channelId))
	})
}

// AppendFault stores a fault record, keyed by an increasing sequence number
func (p persistence) AppendFault(record FaultRecord) error {
	db, err := p.openPersistence()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketFaults))
		if err != nil {
			return fmt.Errorf("create bucket: %s", err)
		}
		sequence, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(sequenceKey(sequence), data); err != nil {
			return err
		}

		// drop the oldest records
		c := b.Cursor()
		count := 0
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			count++
		}
		for ; count > MaxFaultRecords; count-- {
			if k, _ := c.First(); k == nil {
				break
			}
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadFaults returns all fault records, oldest first
func (p persistence) LoadFaults() ([]FaultRecord, error) {
	db, err := p.openPersistence()
	if err != nil {
		return nil, err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	var records []FaultRecord
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketFaults))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var record FaultRecord
			if err := json.Unmarshal(v, &record); err != nil {
				ui.Warning("Skipping unreadable fault record: %v", err)
				return nil
			}
			records = append(records, record)
			return nil
		})
	})
	return records, err
}

func sequenceKey(sequence uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, sequence)
	return key
}
