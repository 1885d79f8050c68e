package servicemanager

import (
	"fmt"

	"github.com/marmos91/gobinder/internal/logger"
	"github.com/marmos91/gobinder/pkg/binder"
	"github.com/marmos91/gobinder/pkg/parcel"
)

// CallError is the service-level failure decoded from a non-zero status
// word in a reply: the diagnostic triple of message, code and detail.
type CallError struct {
	Status  uint32
	Message string
	Code    uint32
	Detail  string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("service call failed with status 0x%x: %s (%d) %s",
		e.Status, e.Message, e.Code, e.Detail)
}

// Service is a resolved remote service: a driver handle plus the interface
// name framed into every call.
type Service struct {
	sm            *ServiceManager
	name          string
	interfaceName string
	handle        int32
	closed        bool
}

// Name returns the registered service name.
func (s *Service) Name() string { return s.name }

// Interface returns the interface token name used on calls.
func (s *Service) Interface() string { return s.interfaceName }

// Handle returns the driver handle.
func (s *Service) Handle() int32 { return s.handle }

// Call invokes the function with the given code. The payload is framed with
// the service's interface token; the reply parcel is returned positioned
// after the status word for the caller to decode.
//
// A non-zero status word decodes the diagnostic triple and returns a
// *CallError.
func (s *Service) Call(code uint32, data *parcel.Parcel) (*parcel.Parcel, error) {
	lc := logger.NewLogContext(s.interfaceName).WithService(s.name).WithCode(code)

	p := parcel.New()
	if err := p.WriteInterfaceToken(s.interfaceName); err != nil {
		return nil, err
	}
	if data != nil && data.Len() > 0 {
		p.Append(data)
	}

	td, reply, err := s.sm.client.Transact(s.handle, code,
		binder.FlagAcceptFds|binder.FlagCollectNotedAppOps, p)
	if err != nil {
		return nil, err
	}
	if td == nil {
		return nil, ErrNoReply
	}
	defer func() {
		if err := s.sm.client.FreeBuffer(td); err != nil {
			logger.Warn("free call buffer failed", logger.Err(err))
		}
	}()

	status, err := reply.ReadUint32()
	if err != nil {
		return nil, err
	}
	if status != 0 {
		return nil, decodeCallError(reply, status)
	}

	logger.Debug("service call completed",
		logger.KeyService, s.name,
		logger.KeyCode, code,
		logger.KeyDurationMs, lc.DurationMs())

	return reply, nil
}

// Ping sends the well-known ping transaction to the service's handle.
func (s *Service) Ping() error {
	td, _, err := s.sm.client.Transact(s.handle, binder.CodePing, 0, nil)
	if err != nil {
		return err
	}
	return s.sm.client.FreeBuffer(td)
}

// Close queues release of the service's handle references. Safe to call
// more than once.
func (s *Service) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.sm.client.Release(s.handle); err != nil {
		return err
	}
	return s.sm.client.DecRef(s.handle)
}

// decodeCallError extracts the (message, code, detail) diagnostic triple
// that follows a non-zero status word. Truncated diagnostics still produce
// a CallError with whatever could be read.
func decodeCallError(reply *parcel.Parcel, status uint32) error {
	ce := &CallError{Status: status}
	var err error
	if ce.Message, err = reply.ReadString16(); err != nil {
		return ce
	}
	if ce.Code, err = reply.ReadUint32(); err != nil {
		return ce
	}
	ce.Detail, _ = reply.ReadString16()
	return ce
}
