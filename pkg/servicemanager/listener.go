package servicemanager

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/marmos91/gobinder/internal/logger"
	"github.com/marmos91/gobinder/pkg/binder"
	"github.com/marmos91/gobinder/pkg/parcel"
)

// Handler processes one incoming transaction: the user-range code and the
// payload positioned after the interface token. It returns the reply
// payload (status word included) or an error, which the listener turns into
// an error reply.
type Handler func(code uint32, data *parcel.Parcel) (*parcel.Parcel, error)

// statusFailed is the status word of listener-generated error replies.
const statusFailed = uint32(0xffffffff)

// Listener hosts a registered service: it repeatedly flushes the driver
// with an empty outbound parcel and dispatches delivered transactions to
// the handler.
type Listener struct {
	sm            *ServiceManager
	name          string
	interfaceName string
	handler       Handler
}

// Name returns the registered service name.
func (l *Listener) Name() string { return l.name }

// Interface returns the hosted interface name.
func (l *Listener) Interface() string { return l.interfaceName }

// Run serves incoming transactions until the context is canceled or the
// driver reports a terminal condition. Cancellation is observed between
// flushes; the write/read ioctl itself is not interruptible.
func (l *Listener) Run(ctx context.Context) error {
	logger.Info("service listener running",
		logger.KeyService, l.name,
		logger.KeyInterface, l.interfaceName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := l.serveOnce(); err != nil {
			return err
		}
	}
}

// serveOnce performs one flush/dispatch cycle.
func (l *Listener) serveOnce() error {
	td, payload, err := l.sm.client.DoWriteRead(nil)
	if err != nil {
		return err
	}
	if td == nil {
		return nil
	}

	defer func() {
		if err := l.sm.client.FreeBuffer(td); err != nil {
			logger.Warn("free transaction buffer failed", logger.Err(err))
		}
	}()

	return l.dispatch(td, payload)
}

// dispatch routes one delivered transaction.
func (l *Listener) dispatch(td *binder.TransactionData, payload *parcel.Parcel) error {
	lc := logger.NewLogContext(l.interfaceName).
		WithService(l.name).
		WithCode(td.Code).
		WithSender(td.SenderPID, td.SenderEUID).
		WithTrace(uuid.NewString(), "")
	ctx := logger.WithContext(context.Background(), lc)

	switch {
	case td.Code >= binder.FirstCallCode && td.Code <= binder.LastCallCode:
		return l.dispatchCall(ctx, td, payload)

	case td.Code == binder.CodeInterface:
		reply := parcel.New()
		if err := reply.WriteUint32(0); err != nil {
			return err
		}
		if err := reply.WriteString16(l.interfaceName); err != nil {
			return err
		}
		return l.reply(reply, binder.FlagAcceptFds)

	case td.Code == binder.CodePing:
		reply := parcel.New()
		if err := reply.WriteUint32(0); err != nil {
			return err
		}
		return l.reply(reply, binder.FlagAcceptFds)

	default:
		logger.WarnCtx(ctx, "unsupported well-known transaction",
			logger.KeyCode, td.Code)
		if td.Flags&binder.FlagOneWay != 0 {
			return nil
		}
		return l.replyError(td, fmt.Sprintf("unsupported transaction 0x%x", td.Code))
	}
}

// dispatchCall verifies the interface token and invokes the handler.
func (l *Listener) dispatchCall(ctx context.Context, td *binder.TransactionData, payload *parcel.Parcel) error {
	iface, err := payload.ReadInterfaceToken()
	if err != nil {
		logger.WarnCtx(ctx, "rejecting transaction with bad token", logger.Err(err))
		return l.replyError(td, "bad interface token")
	}
	if iface != l.interfaceName {
		logger.WarnCtx(ctx, "rejecting transaction for foreign interface",
			logger.KeyInterface, iface)
		return l.replyError(td, fmt.Sprintf("unknown interface %q", iface))
	}

	logger.DebugCtx(ctx, "dispatching transaction")

	out, err := l.handler(td.Code, payload)
	if err != nil {
		logger.ErrorCtx(ctx, "handler failed", logger.Err(err))
		return l.replyError(td, err.Error())
	}
	if out == nil {
		out = parcel.New()
	}

	if td.Flags&binder.FlagOneWay != 0 {
		return nil
	}
	return l.reply(out, td.Flags)
}

// reply submits a reply and tolerates the driver draining without handing
// back a descriptor.
func (l *Listener) reply(data *parcel.Parcel, flags binder.TransactionFlags) error {
	_, _, err := l.sm.client.Reply(data, flags)
	return err
}

// replyError sends the failure-status reply in the diagnostic-triple
// format that Service.Call decodes.
func (l *Listener) replyError(td *binder.TransactionData, msg string) error {
	if td.Flags&binder.FlagOneWay != 0 {
		return nil
	}

	reply := parcel.New()
	if err := reply.WriteUint32(statusFailed); err != nil {
		return err
	}
	if err := reply.WriteString16(msg); err != nil {
		return err
	}
	if err := reply.WriteUint32(0); err != nil {
		return err
	}
	if err := reply.WriteString16(l.interfaceName); err != nil {
		return err
	}
	return l.reply(reply, td.Flags)
}
