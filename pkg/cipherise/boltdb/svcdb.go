// Package boltdb provides a persistent cipherise.ServiceStore that keeps data in a file.
package boltdb

import (
	"crypto"
	"time"

	bolt "go.etcd.io/bbolt"
	_ "golang.org/x/crypto/blake2s"

	"github.com/forticode/cipherise-sdk-go/pkg/cipherise"
)

const (
	connectTimeout = 5 * time.Second
	hashAlgo       = crypto.BLAKE2s_256
	svcBucket      = "serviceTbl"
)

type svcStore struct {
	dbpath string
}

// New returns a ServiceStore implementation that persists Service snapshots in
// a single file boltdb database. It errors if the database schema can not be
// created.
func New(dbpath string) (cipherise.ServiceStore, error) {
	store := svcStore{dbpath: dbpath}

	db, err := bolt.Open(dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return nil, wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(svcBucket))
		return wrapError(err, "failed %s bucket creation", svcBucket) // nil if err is nil
	})
	if nil != err {
		return nil, wrapError(err, "failed db initialization")
	}

	return store, nil
}

// SaveService saves svc snapshot in the svcStore.
// It errors if the snapshot could not be saved.
func (self svcStore) SaveService(svc *cipherise.Service) error {
	if nil == svc {
		return newError("can not save nil Service")
	}
	data, err := svc.Serialize()
	if nil != err {
		return wrapError(err, "failed Service serialization")
	}

	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		svcTbl := tx.Bucket([]byte(svcBucket))
		if nil == svcTbl {
			return newError("missing %s bucket", svcBucket)
		}

		return svcTbl.Put(svcKey(svc.Id), data)
	})

	return wrapError(err, "failed db.Update") // nil if err is nil
}

// LoadService restores the Service with serviceId bound to client.
// It returns true if a snapshot was found and successfully restored.
func (self svcStore) LoadService(serviceId string, client *cipherise.Client) (*cipherise.Service, bool, error) {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return nil, false, wrapError(err, "failed connecting to the database")
	}
	defer db.Close()

	var data []byte
	err = db.View(func(tx *bolt.Tx) error {
		svcTbl := tx.Bucket([]byte(svcBucket))
		if nil == svcTbl {
			return newError("missing %s bucket", svcBucket)
		}

		// copy, the bucket slice is only valid inside the transaction
		if stored := svcTbl.Get(svcKey(serviceId)); nil != stored {
			data = make([]byte, len(stored))
			copy(data, stored)
		}

		return nil
	})
	if nil != err {
		return nil, false, wrapError(err, "failed db.View")
	}
	if nil == data {
		return nil, false, nil
	}

	svc, err := client.DeserializeService(data)
	if nil != err {
		return nil, false, wrapError(err, "failed Service restoration")
	}

	return svc, true, nil
}

// RemoveService removes the snapshot stored under serviceId.
// It returns true if a snapshot was effectively removed.
func (self svcStore) RemoveService(serviceId string) (bool, error) {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return false, wrapError(err, "failed connecting to the database")
	}
	defer db.Close()

	var removed bool
	err = db.Update(func(tx *bolt.Tx) error {
		svcTbl := tx.Bucket([]byte(svcBucket))
		if nil == svcTbl {
			return newError("missing %s bucket", svcBucket)
		}

		key := svcKey(serviceId)
		if nil == svcTbl.Get(key) {
			return nil
		}
		err := svcTbl.Delete(key)
		if nil != err {
			// unlikely as svcTbl is writable
			return err
		}

		removed = true

		return nil
	})

	return removed, wrapError(err, "failed db.Update") // nil if err is nil
}

// ServiceCount returns the number of snapshots in the svcStore, -1 if the
// database is not reachable.
func (self svcStore) ServiceCount() int {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return -1
	}
	defer db.Close()

	var count int
	err = db.View(func(tx *bolt.Tx) error {
		svcTbl := tx.Bucket([]byte(svcBucket))
		if nil == svcTbl {
			return newError("missing %s bucket", svcBucket)
		}
		count = svcTbl.Stats().KeyN

		return nil
	})

	if nil == err {
		return count
	}

	return -1
}

// svcKey returns the bucket key for serviceId.
//
// the id is hashed to preserve privacy, digest is calculated using the hash
// function referenced by the hashAlgo constant
func svcKey(serviceId string) []byte {
	h := hashAlgo.New()
	h.Write([]byte(serviceId))
	return h.Sum(nil)
}
