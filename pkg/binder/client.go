package binder

import (
	"errors"
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"github.com/marmos91/gobinder/internal/logger"
	"github.com/marmos91/gobinder/pkg/metrics"
	"github.com/marmos91/gobinder/pkg/parcel"
)

// Terminal driver conditions for an in-flight call.
var (
	// ErrDeadReply indicates the remote process died before replying.
	ErrDeadReply = errors.New("binder: dead reply")

	// ErrFailedReply indicates the driver rejected the transaction.
	ErrFailedReply = errors.New("binder: failed reply")
)

// DriverError is an errno surfaced by the driver through BR_ERROR.
type DriverError struct {
	Errno int32
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("binder: driver error %d", e.Errno)
}

// Options configures a Client.
type Options struct {
	// Device is the driver device path. Defaults to DefaultDevice.
	Device string

	// MaxThreads is the driver-side thread limit set at open time.
	// Defaults to DefaultMaxThreads.
	MaxThreads uint32

	// ReadBufferSize is the inbound buffer size per write/read ioctl.
	// Defaults to DefaultReadBufferSize.
	ReadBufferSize int

	// Metrics receives transport observations; nil disables collection.
	Metrics metrics.BinderMetrics
}

func (o *Options) applyDefaults() {
	if o.Device == "" {
		o.Device = DefaultDevice
	}
	if o.MaxThreads == 0 {
		o.MaxThreads = DefaultMaxThreads
	}
	if o.ReadBufferSize == 0 {
		o.ReadBufferSize = DefaultReadBufferSize
	}
}

// Client is an open binder driver interface: the device descriptor, the
// shared inbound mapping and the pending outbound command buffer that
// accumulates commands between flushes.
//
// A Client is single-threaded and cooperative: the only blocking point is
// the write/read ioctl, and each call fully drains its inbound buffer
// before returning. Concurrent use from multiple goroutines is not
// supported.
type Client struct {
	dev             Device
	protocolVersion int32
	pending         *parcel.Parcel
	readSize        int
	inLooper        bool
	metrics         metrics.BinderMetrics

	// inflight pins outbound payload parcels so the buffers their
	// descriptors point at stay alive until the next flush completes.
	inflight []*parcel.Parcel
}

// Open opens the binder device, reads the driver protocol version, maps the
// shared region and sets the driver thread limit.
func Open(opts Options) (*Client, error) {
	opts.applyDefaults()

	dev, err := openKernelDevice(opts.Device)
	if err != nil {
		return nil, err
	}

	c, err := NewWithDevice(dev, opts)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	return c, nil
}

// NewWithDevice finishes setup over an already-open device. Tests and
// alternative transports inject their own Device here.
func NewWithDevice(dev Device, opts Options) (*Client, error) {
	opts.applyDefaults()

	version, err := dev.Version()
	if err != nil {
		return nil, err
	}

	if err := dev.SetMaxThreads(opts.MaxThreads); err != nil {
		return nil, err
	}

	logger.Info("binder client ready",
		logger.KeyDevice, opts.Device,
		logger.KeyVersion, version,
		"max_threads", opts.MaxThreads)

	return &Client{
		dev:             dev,
		protocolVersion: version,
		pending:         parcel.New(),
		readSize:        opts.ReadBufferSize,
		metrics:         opts.Metrics,
	}, nil
}

// Version returns the driver protocol version reported at open time.
func (c *Client) Version() int32 { return c.protocolVersion }

// PendingBytes returns the current pending outbound command bytes. Intended
// for tests and diagnostics.
func (c *Client) PendingBytes() []byte { return c.pending.Bytes() }

// Close emits the ExitLooper command and closes the device. The shared
// mapping is detached by the kernel on close.
func (c *Client) Close() error {
	if err := c.ExitLooper(); err != nil {
		logger.Warn("exit looper on close failed", logger.Err(err))
	}
	return c.dev.Close()
}

// ============================================================================
// Looper lifecycle
// ============================================================================

// EnterLooper tells the driver this thread is entering the looper. Flushed
// immediately, without draining inbound commands.
func (c *Client) EnterLooper() error {
	if err := c.flushCommand(CmdEnterLooper); err != nil {
		return err
	}
	c.inLooper = true
	return nil
}

// ExitLooper tells the driver this thread is leaving the looper.
func (c *Client) ExitLooper() error {
	if err := c.flushCommand(CmdExitLooper); err != nil {
		return err
	}
	c.inLooper = false
	return nil
}

// InLooper reports whether EnterLooper has been flushed.
func (c *Client) InLooper() bool { return c.inLooper }

// flushCommand writes a single bare command with a write-only ioctl.
func (c *Client) flushCommand(cmd Command) error {
	out := parcel.New()
	if err := out.WriteUint32(uint32(cmd)); err != nil {
		return err
	}
	_, err := c.writeRead(out.Bytes(), false)
	return err
}

// ============================================================================
// Reference counting
// ============================================================================

// AddRef queues an IncRefs for the handle. Ref-count commands take effect
// on the next flush.
func (c *Client) AddRef(handle int32) error { return c.queueRef(CmdIncRefs, handle) }

// DecRef queues a DecRefs for the handle.
func (c *Client) DecRef(handle int32) error { return c.queueRef(CmdDecRefs, handle) }

// Acquire queues an Acquire for the handle.
func (c *Client) Acquire(handle int32) error { return c.queueRef(CmdAcquire, handle) }

// Release queues a Release for the handle.
func (c *Client) Release(handle int32) error { return c.queueRef(CmdRelease, handle) }

func (c *Client) queueRef(cmd Command, handle int32) error {
	if err := c.pending.WriteUint32(uint32(cmd)); err != nil {
		return err
	}
	return c.pending.WriteInt32(handle)
}

// RequestDeathNotification queues a death-notification subscription for the
// handle; the cookie is echoed back in the DeadBinder return.
func (c *Client) RequestDeathNotification(handle int32, cookie uint64) error {
	if err := c.pending.WriteUint32(uint32(CmdRequestDeathNotification)); err != nil {
		return err
	}
	if err := c.pending.WriteInt32(handle); err != nil {
		return err
	}
	return c.pending.WriteUint64(cookie)
}

// ClearDeathNotification queues removal of a death-notification
// subscription.
func (c *Client) ClearDeathNotification(handle int32, cookie uint64) error {
	if err := c.pending.WriteUint32(uint32(CmdClearDeathNotification)); err != nil {
		return err
	}
	if err := c.pending.WriteInt32(handle); err != nil {
		return err
	}
	return c.pending.WriteUint64(cookie)
}

// FreeBuffer queues return of a kernel-delivered inbound buffer so the
// driver can reclaim its slot in the shared mapping. Call it once the
// parcel built from the descriptor is no longer needed.
func (c *Client) FreeBuffer(td *TransactionData) error {
	if td == nil || td.Data == 0 {
		return nil
	}
	if err := c.pending.WriteUint32(uint32(CmdFreeBuffer)); err != nil {
		return err
	}
	return c.pending.WritePointer(td.Data)
}

// ============================================================================
// Transactions
// ============================================================================

// Transact submits a call against the handle and drains inbound commands
// until the driver delivers the reply (or a terminal condition). AcceptFds
// is always ORed into the caller's flags.
//
// The returned parcel covers the reply payload; pass the returned
// descriptor to FreeBuffer once done with it. A nil descriptor means the
// inbound buffer drained without a reply (one-way calls).
func (c *Client) Transact(handle int32, code uint32, flags TransactionFlags, data *parcel.Parcel) (*TransactionData, *parcel.Parcel, error) {
	start := time.Now()

	if err := c.queueTransaction(CmdTransaction, uint32(handle), code, flags|FlagAcceptFds, data); err != nil {
		return nil, nil, err
	}

	td, reply, err := c.DoWriteRead(nil)
	c.observe("transact", code, start, err)
	return td, reply, err
}

// Reply submits a server-side reply for the transaction currently being
// handled. The caller's flags pass through verbatim.
func (c *Client) Reply(data *parcel.Parcel, flags TransactionFlags) (*TransactionData, *parcel.Parcel, error) {
	start := time.Now()

	if err := c.queueTransaction(CmdReply, 0xffffffff, 0, flags, data); err != nil {
		return nil, nil, err
	}

	td, reply, err := c.DoWriteRead(nil)
	c.observe("reply", 0, start, err)
	return td, reply, err
}

// queueTransaction appends a transaction command and its descriptor to the
// pending buffer. The descriptor points at the payload parcel's buffers, so
// the parcel is pinned until the next flush.
func (c *Client) queueTransaction(cmd Command, target, code uint32, flags TransactionFlags, data *parcel.Parcel) error {
	if data == nil {
		data = parcel.New()
	}

	td := TransactionData{
		Target:      target,
		Code:        code,
		Flags:       flags,
		DataSize:    uint64(data.Len()),
		OffsetsSize: uint64(data.OffsetsLen() * 8),
	}
	if data.Len() > 0 {
		td.Data = uintptr(unsafe.Pointer(&data.Bytes()[0]))
	}
	if data.OffsetsLen() > 0 {
		td.Offsets = uintptr(unsafe.Pointer(&data.Offsets()[0]))
	}

	if err := c.pending.WriteUint32(uint32(cmd)); err != nil {
		return err
	}
	if err := td.writeTo(c.pending); err != nil {
		return err
	}

	c.inflight = append(c.inflight, data)
	return nil
}

// DoWriteRead flushes the pending outbound buffer (plus the optional extra
// parcel) with a write/read ioctl and processes the inbound command stream.
func (c *Client) DoWriteRead(out *parcel.Parcel) (*TransactionData, *parcel.Parcel, error) {
	if out != nil {
		c.pending.Append(out)
	}

	in, err := c.writeRead(c.pending.Bytes(), true)
	c.pending.Reset()
	if err != nil {
		c.inflight = nil
		return nil, nil, err
	}
	c.inflight = nil

	return c.processIncoming(in)
}

// writeRead performs one BINDER_WRITE_READ round trip and returns the
// inbound command stream as a parcel.
func (c *Client) writeRead(out []byte, withRead bool) (*parcel.Parcel, error) {
	var bwr WriteReadBlock

	if len(out) > 0 {
		bwr.WriteSize = uint64(len(out))
		bwr.WriteBuffer = uintptr(unsafe.Pointer(&out[0]))
	}

	var in []byte
	if withRead {
		in = make([]byte, c.readSize)
		bwr.ReadSize = uint64(len(in))
		bwr.ReadBuffer = uintptr(unsafe.Pointer(&in[0]))
	}

	err := c.dev.WriteRead(&bwr)
	runtime.KeepAlive(out)
	runtime.KeepAlive(c.inflight)
	if err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.RecordFlush(bwr.WriteConsumed, bwr.ReadConsumed)
	}

	logger.Debug("binder write_read",
		logger.KeyWriteSize, bwr.WriteSize,
		logger.KeyWriteConsumed, bwr.WriteConsumed,
		logger.KeyReadSize, bwr.ReadSize,
		logger.KeyReadConsumed, bwr.ReadConsumed)

	if !withRead {
		return parcel.New(), nil
	}
	return parcel.FromBytes(in[:bwr.ReadConsumed]), nil
}

// processIncoming walks the inbound command stream strictly in driver
// order. Reference-count demands are answered with queued "done" commands;
// the first Reply or Transaction descriptor terminates the walk. Unknown
// opcodes are logged and skipped.
func (c *Client) processIncoming(in *parcel.Parcel) (*TransactionData, *parcel.Parcel, error) {
	for in.HasUnreadData() {
		raw, err := in.ReadUint32()
		if err != nil {
			return nil, nil, err
		}
		ret := Return(raw)

		if c.metrics != nil {
			c.metrics.RecordDriverReturn(ret.String())
		}

		switch ret {
		case RetOk, RetNoop, RetTransactionComplete:
			// No payload, nothing to do.

		case RetSpawnLooper:
			// Single-threaded looper: observed but never acted on.
			logger.Debug("driver requested looper spawn")

		case RetDeadReply:
			return nil, nil, ErrDeadReply

		case RetFailedReply:
			return nil, nil, ErrFailedReply

		case RetError:
			errno, err := in.ReadInt32()
			if err != nil {
				return nil, nil, err
			}
			return nil, nil, &DriverError{Errno: errno}

		case RetAcquireResult:
			result, err := in.ReadInt32()
			if err != nil {
				return nil, nil, err
			}
			logger.Debug("acquire result", "result", result)

		case RetIncRefs:
			if err := c.ackRefDemand(in, CmdIncRefsDone); err != nil {
				return nil, nil, err
			}

		case RetAcquire:
			if err := c.ackRefDemand(in, CmdAcquireDone); err != nil {
				return nil, nil, err
			}

		case RetRelease, RetDecRefs:
			// Ref drops carry the same two words but need no acknowledgment.
			if err := c.skipWords(in, 2); err != nil {
				return nil, nil, err
			}

		case RetAttemptAcquire:
			// priority word plus the object pointer
			if _, err := in.ReadUint32(); err != nil {
				return nil, nil, err
			}
			if _, err := in.ReadUint64(); err != nil {
				return nil, nil, err
			}
			logger.Debug("attempt acquire observed")

		case RetDeadBinder:
			cookie, err := in.ReadUint64()
			if err != nil {
				return nil, nil, err
			}
			logger.Info("remote binder died", logger.KeyCookie, cookie)
			if err := c.pending.WriteUint32(uint32(CmdDeadBinderDone)); err != nil {
				return nil, nil, err
			}
			if err := c.pending.WriteUint64(cookie); err != nil {
				return nil, nil, err
			}

		case RetClearDeathNotificationDone:
			cookie, err := in.ReadUint64()
			if err != nil {
				return nil, nil, err
			}
			logger.Debug("death notification cleared", logger.KeyCookie, cookie)

		case RetTransaction, RetReply:
			td, err := readTransactionData(in)
			if err != nil {
				return nil, nil, err
			}
			payload, err := c.dev.PayloadBytes(td.Data, int(td.DataSize))
			if err != nil {
				return nil, nil, err
			}
			offsets, err := c.dev.PayloadOffsets(td.Offsets, td.OffsetsLen())
			if err != nil {
				return nil, nil, err
			}
			return td, parcel.FromDataAndOffsets(payload, offsets), nil

		case RetFinished, RetFrozenReply, RetOnewaySpamSuspect:
			logger.Warn("unhandled driver return", logger.KeyReturn, ret.String())

		default:
			logger.Warn("unknown driver return, skipping",
				logger.KeyReturn, hex32(raw))
		}
	}

	return nil, parcel.New(), nil
}

// ackRefDemand consumes the pointer and cookie words of a driver ref-count
// demand and queues the matching "done" command for the next flush.
func (c *Client) ackRefDemand(in *parcel.Parcel, done Command) error {
	ptr, err := in.ReadUint64()
	if err != nil {
		return err
	}
	cookie, err := in.ReadUint64()
	if err != nil {
		return err
	}
	if err := c.pending.WriteUint32(uint32(done)); err != nil {
		return err
	}
	if err := c.pending.WriteUint64(ptr); err != nil {
		return err
	}
	return c.pending.WriteUint64(cookie)
}

// skipWords discards n 8-byte words from the inbound stream.
func (c *Client) skipWords(in *parcel.Parcel, n int) error {
	for i := 0; i < n; i++ {
		if _, err := in.ReadUint64(); err != nil {
			return err
		}
	}
	return nil
}

// observe records transaction metrics.
func (c *Client) observe(direction string, code uint32, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordTransaction(direction, code, time.Since(start), errClass(err))
}

// errClass maps an error to a small label set for metrics.
func errClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDeadReply):
		return "dead_reply"
	case errors.Is(err, ErrFailedReply):
		return "failed_reply"
	default:
		var de *DriverError
		if errors.As(err, &de) {
			return "driver_error"
		}
		return "other"
	}
}
