package cipherise

import (
	"context"
	"sync"
)

// ServiceStore persists Service snapshots keyed by service id. Snapshots are
// the Serialize output, so a restored Service resumes with the session token
// it was saved with.
type ServiceStore interface {
	SaveService(svc *Service) error
	LoadService(serviceId string, client *Client) (*Service, bool, error)
	RemoveService(serviceId string) (bool, error)
	ServiceCount() int
}

// RemoteServiceStore is implemented by network backed stores.
type RemoteServiceStore interface {
	SaveService(ctx context.Context, svc *Service) error
	LoadService(ctx context.Context, serviceId string, client *Client) (*Service, bool, error)
	RemoveService(ctx context.Context, serviceId string) (bool, error)
	ServiceCount(ctx context.Context) (int, error)
}

// MemServiceStore provides "in memory" implementation of ServiceStore.
type MemServiceStore struct {
	mut    sync.Mutex
	svcTbl map[string][]byte
}

func NewMemServiceStore() *MemServiceStore {
	return &MemServiceStore{svcTbl: make(map[string][]byte)}
}

// SaveService saves svc snapshot in the MemServiceStore.
// It errors if svc can not be serialized.
func (self *MemServiceStore) SaveService(svc *Service) error {
	if nil == svc {
		return newError("can not save nil Service")
	}
	data, err := svc.Serialize()
	if nil != err {
		return wrapError(err, "failed Service serialization")
	}

	self.mut.Lock()
	defer self.mut.Unlock()
	self.svcTbl[svc.Id] = data

	return nil
}

// LoadService restores the Service with serviceId bound to client.
// It returns false if no snapshot is stored under serviceId.
func (self *MemServiceStore) LoadService(serviceId string, client *Client) (*Service, bool, error) {
	self.mut.Lock()
	data, found := self.svcTbl[serviceId]
	self.mut.Unlock()
	if !found {
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
func (self *MemServiceStore) RemoveService(serviceId string) (bool, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	_, found := self.svcTbl[serviceId]
	delete(self.svcTbl, serviceId)

	return found, nil
}

// ServiceCount returns the number of snapshots in the MemServiceStore.
func (self *MemServiceStore) ServiceCount() int {
	self.mut.Lock()
	defer self.mut.Unlock()
	return len(self.svcTbl)
}

var _ ServiceStore = &MemServiceStore{}
