// Package servicemanager implements the client side of the Android
// ServiceManager protocol (the name service living at binder handle 0),
// service handles for outgoing calls and the listener loop for hosting
// services.
package servicemanager

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/marmos91/gobinder/internal/logger"
	"github.com/marmos91/gobinder/pkg/binder"
	"github.com/marmos91/gobinder/pkg/parcel"
)

const (
	// ServiceManagerHandle is the well-known handle of the ServiceManager.
	ServiceManagerHandle = int32(0)

	// InterfaceToken is the ServiceManager's interface name.
	InterfaceToken = "android.os.IServiceManager"
)

// ServiceManager protocol function codes.
const (
	FuncGetService   = uint32(1)
	FuncCheckService = uint32(2)
	FuncAddService   = uint32(3)
	FuncListServices = uint32(4)
)

// DumpPriorityDefault is the dump-priority argument registered services get
// unless the caller asks otherwise.
const DumpPriorityDefault = uint32(0)

// ErrNoReply indicates the driver drained without delivering a reply for a
// call that required one.
var ErrNoReply = errors.New("servicemanager: no reply from driver")

// localObject hands out process-local binder object identifiers used as the
// handle word of registered service objects.
var localObject atomic.Uint64

// ServiceManager wraps a binder client and talks to handle 0. Construction
// pings the ServiceManager to verify the kernel is delivering traffic.
//
// The ServiceManager owns the client; Service and Listener values hold a
// reference back to their ServiceManager, which keeps the client alive for
// as long as any of them is reachable.
type ServiceManager struct {
	client *binder.Client
}

// New wraps an open binder client and pings handle 0.
func New(client *binder.Client) (*ServiceManager, error) {
	sm := &ServiceManager{client: client}
	if err := sm.Ping(); err != nil {
		return nil, fmt.Errorf("ping servicemanager: %w", err)
	}
	return sm, nil
}

// Client exposes the underlying binder client.
func (sm *ServiceManager) Client() *binder.Client { return sm.client }

// Ping sends the well-known ping transaction to handle 0.
func (sm *ServiceManager) Ping() error {
	td, _, err := sm.client.Transact(ServiceManagerHandle, binder.CodePing, 0, nil)
	if err != nil {
		return err
	}
	return sm.client.FreeBuffer(td)
}

// GetService looks up a service by name, blocking in the ServiceManager
// until it is available. The returned Service speaks the given interface;
// its handle is reference-counted until Close.
func (sm *ServiceManager) GetService(name, interfaceName string) (*Service, error) {
	return sm.lookup(FuncGetService, name, interfaceName)
}

// CheckService is the non-blocking flavor of GetService: a service that is
// not currently registered fails instead of waiting.
func (sm *ServiceManager) CheckService(name, interfaceName string) (*Service, error) {
	return sm.lookup(FuncCheckService, name, interfaceName)
}

func (sm *ServiceManager) lookup(fn uint32, name, interfaceName string) (*Service, error) {
	p := parcel.New()
	if err := p.WriteInterfaceToken(InterfaceToken); err != nil {
		return nil, err
	}
	if err := p.WriteString16(name); err != nil {
		return nil, err
	}

	td, reply, err := sm.client.Transact(ServiceManagerHandle, fn, 0, p)
	if err != nil {
		return nil, err
	}
	if td == nil {
		return nil, ErrNoReply
	}
	defer func() {
		if err := sm.client.FreeBuffer(td); err != nil {
			logger.Warn("free lookup buffer failed", logger.Err(err))
		}
	}()

	status, err := reply.ReadUint32()
	if err != nil {
		return nil, err
	}
	if status != 0 {
		return nil, fmt.Errorf("servicemanager: lookup of %q failed with status 0x%x", name, status)
	}

	var obj parcel.FlatObject
	if err := obj.ReadParcel(reply); err != nil {
		return nil, err
	}

	handle := int32(obj.Handle)
	if err := sm.client.AddRef(handle); err != nil {
		return nil, err
	}
	if err := sm.client.Acquire(handle); err != nil {
		return nil, err
	}

	logger.Info("resolved service",
		logger.KeyService, name,
		logger.KeyInterface, interfaceName,
		logger.KeyHandle, handle)

	return &Service{
		sm:            sm,
		name:          name,
		interfaceName: interfaceName,
		handle:        handle,
	}, nil
}

// AddService registers a binder object under the given name.
func (sm *ServiceManager) AddService(name string, obj *parcel.FlatObject, allowIsolated bool, dumpPriority uint32) error {
	p := parcel.New()
	if err := p.WriteInterfaceToken(InterfaceToken); err != nil {
		return err
	}
	if err := p.WriteString16(name); err != nil {
		return err
	}
	if err := obj.WriteParcel(p); err != nil {
		return err
	}
	if err := p.WriteBool(allowIsolated); err != nil {
		return err
	}
	if err := p.WriteUint32(dumpPriority); err != nil {
		return err
	}

	td, reply, err := sm.client.Transact(ServiceManagerHandle, FuncAddService, 0, p)
	if err != nil {
		return err
	}
	defer func() {
		if err := sm.client.FreeBuffer(td); err != nil {
			logger.Warn("free add-service buffer failed", logger.Err(err))
		}
	}()

	if td != nil && reply.HasUnreadData() {
		status, err := reply.ReadUint32()
		if err != nil {
			return err
		}
		if status != 0 {
			return fmt.Errorf("servicemanager: add of %q failed with status 0x%x", name, status)
		}
	}
	return nil
}

// ListServices returns the names of all registered services matching the
// dump-priority filter.
func (sm *ServiceManager) ListServices(dumpPriority uint32) ([]string, error) {
	p := parcel.New()
	if err := p.WriteInterfaceToken(InterfaceToken); err != nil {
		return nil, err
	}
	if err := p.WriteUint32(dumpPriority); err != nil {
		return nil, err
	}

	td, reply, err := sm.client.Transact(ServiceManagerHandle, FuncListServices, 0, p)
	if err != nil {
		return nil, err
	}
	if td == nil {
		return nil, ErrNoReply
	}
	defer func() {
		if err := sm.client.FreeBuffer(td); err != nil {
			logger.Warn("free list buffer failed", logger.Err(err))
		}
	}()

	status, err := reply.ReadUint32()
	if err != nil {
		return nil, err
	}
	if status != 0 {
		return nil, fmt.Errorf("servicemanager: list failed with status 0x%x", status)
	}

	return parcel.ReadSliceFunc(reply, func(p *parcel.Parcel) (string, error) {
		return p.ReadString16()
	})
}

// RegisterService enters the looper, registers a local binder object under
// the given name and returns a Listener that dispatches incoming
// transactions to the handler.
func (sm *ServiceManager) RegisterService(handler Handler, name, interfaceName string, allowIsolated bool, dumpPriority uint32) (*Listener, error) {
	if handler == nil {
		return nil, errors.New("servicemanager: nil handler")
	}

	if err := sm.client.EnterLooper(); err != nil {
		return nil, err
	}

	obj := parcel.NewFlatObject(parcel.TypeBinder, localObject.Add(1), 0, 0)
	if err := sm.AddService(name, obj, allowIsolated, dumpPriority); err != nil {
		return nil, err
	}

	logger.Info("registered service",
		logger.KeyService, name,
		logger.KeyInterface, interfaceName)

	return &Listener{
		sm:            sm,
		name:          name,
		interfaceName: interfaceName,
		handler:       handler,
	}, nil
}
