package servicemanager

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/gobinder/pkg/binder"
	"github.com/marmos91/gobinder/pkg/parcel"
)

// sentTxn is one transaction or reply command the client flushed, with its
// payload snapshotted while the buffers were still pinned by the ioctl.
type sentTxn struct {
	cmd     binder.Command
	td      binder.TransactionData
	payload []byte
	offsets []uint64
}

// fakeDriver is a scripted binder.Device that parses outbound command
// streams and replays canned inbound ones.
type fakeDriver struct {
	inbound  [][]byte
	flushes  int
	txns     []sentTxn
	commands []binder.Command // every outbound opcode in order
	payloads map[uintptr][]byte
	offsets  map[uintptr][]uint64
	closed   bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		payloads: make(map[uintptr][]byte),
		offsets:  make(map[uintptr][]uint64),
	}
}

func (d *fakeDriver) Version() (int32, error)      { return 8, nil }
func (d *fakeDriver) SetMaxThreads(uint32) error   { return nil }
func (d *fakeDriver) Close() error                 { d.closed = true; return nil }

func (d *fakeDriver) PayloadBytes(addr uintptr, size int) ([]byte, error) {
	if addr == 0 || size == 0 {
		return nil, nil
	}
	return append([]byte(nil), d.payloads[addr][:size]...), nil
}

func (d *fakeDriver) PayloadOffsets(addr uintptr, count int) ([]uint64, error) {
	if addr == 0 || count == 0 {
		return nil, nil
	}
	return append([]uint64(nil), d.offsets[addr][:count]...), nil
}

func (d *fakeDriver) WriteRead(bwr *binder.WriteReadBlock) error {
	d.flushes++

	if bwr.WriteSize > 0 {
		out := unsafe.Slice((*byte)(unsafe.Pointer(bwr.WriteBuffer)), bwr.WriteSize)
		if err := d.parseOutbound(append([]byte(nil), out...)); err != nil {
			return err
		}
		bwr.WriteConsumed = bwr.WriteSize
	}

	if bwr.ReadSize > 0 && len(d.inbound) > 0 {
		in := unsafe.Slice((*byte)(unsafe.Pointer(bwr.ReadBuffer)), bwr.ReadSize)
		bwr.ReadConsumed = uint64(copy(in, d.inbound[0]))
		d.inbound = d.inbound[1:]
	}
	return nil
}

// parseOutbound walks the client's command stream, snapshotting transaction
// payloads while their buffers are pinned by the in-progress ioctl.
func (d *fakeDriver) parseOutbound(raw []byte) error {
	p := parcel.FromBytes(raw)
	for p.HasUnreadData() {
		op, err := p.ReadUint32()
		if err != nil {
			return err
		}
		cmd := binder.Command(op)
		d.commands = append(d.commands, cmd)

		switch cmd {
		case binder.CmdTransaction, binder.CmdReply:
			block, err := p.ReadUnaligned(64)
			if err != nil {
				return err
			}
			td, err := decodeDescriptor(block)
			if err != nil {
				return err
			}
			txn := sentTxn{cmd: cmd, td: td}
			if td.Data != 0 && td.DataSize > 0 {
				src := unsafe.Slice((*byte)(unsafe.Pointer(td.Data)), td.DataSize)
				txn.payload = append([]byte(nil), src...)
			}
			if td.Offsets != 0 && td.OffsetsSize > 0 {
				src := unsafe.Slice((*uint64)(unsafe.Pointer(td.Offsets)), td.OffsetsSize/8)
				txn.offsets = append([]uint64(nil), src...)
			}
			d.txns = append(d.txns, txn)

		case binder.CmdIncRefs, binder.CmdAcquire, binder.CmdRelease, binder.CmdDecRefs:
			if _, err := p.ReadInt32(); err != nil {
				return err
			}

		case binder.CmdFreeBuffer:
			if _, err := p.ReadUint64(); err != nil {
				return err
			}

		case binder.CmdIncRefsDone, binder.CmdAcquireDone:
			if _, err := p.ReadUnaligned(16); err != nil {
				return err
			}

		case binder.CmdEnterLooper, binder.CmdExitLooper, binder.CmdRegisterLooper:
			// no payload

		default:
			// Commands the fake does not model carry no payload in these tests.
		}
	}
	return nil
}

func decodeDescriptor(block []byte) (binder.TransactionData, error) {
	p := parcel.FromBytes(block)
	var td binder.TransactionData
	var err error
	read32 := func() uint32 {
		var v uint32
		if err == nil {
			v, err = p.ReadUint32()
		}
		return v
	}
	read64 := func() uint64 {
		var v uint64
		if err == nil {
			v, err = p.ReadUint64()
		}
		return v
	}
	td.Target = read32()
	read32() // alignment padding
	td.Cookie = read64()
	td.Code = read32()
	td.Flags = binder.TransactionFlags(read32())
	td.SenderPID = read32()
	td.SenderEUID = read32()
	td.DataSize = read64()
	td.OffsetsSize = read64()
	td.Data = uintptr(read64())
	td.Offsets = uintptr(read64())
	return td, err
}

// pushReply schedules an inbound stream carrying one reply whose payload is
// served from the given fake address.
func (d *fakeDriver) pushReply(t *testing.T, addr uintptr, payload *parcel.Parcel) {
	t.Helper()
	d.payloads[addr] = append([]byte(nil), payload.Bytes()...)
	if payload.OffsetsLen() > 0 {
		d.offsets[addr+1] = append([]uint64(nil), payload.Offsets()...)
	}

	stream := parcel.New()
	require.NoError(t, stream.WriteUint32(uint32(binder.RetTransactionComplete)))
	require.NoError(t, stream.WriteUint32(uint32(binder.RetReply)))
	td := binder.TransactionData{
		DataSize: uint64(payload.Len()),
		Data:     addr,
	}
	if payload.OffsetsLen() > 0 {
		td.OffsetsSize = uint64(payload.OffsetsLen() * 8)
		td.Offsets = addr + 1
	}
	writeDescriptor(t, stream, td)
	d.inbound = append(d.inbound, append([]byte(nil), stream.Bytes()...))
}

// pushEmpty schedules an inbound stream that drains without a reply.
func (d *fakeDriver) pushEmpty(t *testing.T) {
	t.Helper()
	stream := parcel.New()
	require.NoError(t, stream.WriteUint32(uint32(binder.RetTransactionComplete)))
	d.inbound = append(d.inbound, append([]byte(nil), stream.Bytes()...))
}

func writeDescriptor(t *testing.T, p *parcel.Parcel, td binder.TransactionData) {
	t.Helper()
	require.NoError(t, p.WriteUint32(td.Target))
	require.NoError(t, p.WriteUint32(0))
	require.NoError(t, p.WriteUint64(td.Cookie))
	require.NoError(t, p.WriteUint32(td.Code))
	require.NoError(t, p.WriteUint32(uint32(td.Flags)))
	require.NoError(t, p.WriteUint32(td.SenderPID))
	require.NoError(t, p.WriteUint32(td.SenderEUID))
	require.NoError(t, p.WriteUint64(td.DataSize))
	require.NoError(t, p.WriteUint64(td.OffsetsSize))
	require.NoError(t, p.WritePointer(td.Data))
	require.NoError(t, p.WritePointer(td.Offsets))
}

func newTestManager(t *testing.T, dev *fakeDriver) *ServiceManager {
	t.Helper()
	client, err := binder.NewWithDevice(dev, binder.Options{Device: "fake"})
	require.NoError(t, err)
	sm, err := New(client)
	require.NoError(t, err)
	return sm
}

func TestNewPingsServiceManager(t *testing.T) {
	dev := newFakeDriver()
	sm := newTestManager(t, dev)
	require.NotNil(t, sm)

	require.Len(t, dev.txns, 1)
	ping := dev.txns[0]
	assert.Equal(t, binder.CmdTransaction, ping.cmd)
	assert.Equal(t, uint32(0), ping.td.Target)
	assert.Equal(t, binder.CodePing, ping.td.Code)
	assert.Zero(t, ping.td.DataSize)
}

func TestGetService(t *testing.T) {
	dev := newFakeDriver()
	dev.pushEmpty(t) // ping

	replyPayload := parcel.New()
	require.NoError(t, replyPayload.WriteUint32(0))
	obj := parcel.NewFlatObject(parcel.TypeHandle, 7, 0, 0)
	require.NoError(t, obj.WriteParcel(replyPayload))
	dev.pushReply(t, 0x1000, replyPayload)

	sm := newTestManager(t, dev)
	svc, err := sm.GetService("myservice", "com.example.IMyService")
	require.NoError(t, err)

	assert.Equal(t, int32(7), svc.Handle())
	assert.Equal(t, "myservice", svc.Name())
	assert.Equal(t, "com.example.IMyService", svc.Interface())

	// Lookup request framing: token then the service name.
	lookup := dev.txns[1]
	assert.Equal(t, FuncGetService, lookup.td.Code)
	req := parcel.FromBytes(lookup.payload)
	iface, err := req.ReadInterfaceToken()
	require.NoError(t, err)
	assert.Equal(t, InterfaceToken, iface)
	name, err := req.ReadString16()
	require.NoError(t, err)
	assert.Equal(t, "myservice", name)

	// Handle references and the kernel buffer return are queued for the
	// next flush.
	pending := parcel.FromBytes(sm.Client().PendingBytes())
	cmd, err := pending.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(binder.CmdIncRefs), cmd)
	handle, err := pending.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(7), handle)
	cmd, err = pending.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(binder.CmdAcquire), cmd)
}

func TestServiceCall(t *testing.T) {
	dev := newFakeDriver()
	dev.pushEmpty(t) // ping

	lookupReply := parcel.New()
	require.NoError(t, lookupReply.WriteUint32(0))
	require.NoError(t, parcel.NewFlatObject(parcel.TypeHandle, 3, 0, 0).WriteParcel(lookupReply))
	dev.pushReply(t, 0x1000, lookupReply)

	callReply := parcel.New()
	require.NoError(t, callReply.WriteUint32(0)) // status
	require.NoError(t, callReply.WriteString16("pong"))
	dev.pushReply(t, 0x2000, callReply)

	sm := newTestManager(t, dev)
	svc, err := sm.GetService("echo", "com.example.IEcho")
	require.NoError(t, err)

	args := parcel.New()
	require.NoError(t, args.WriteString16("ping"))

	reply, err := svc.Call(1, args)
	require.NoError(t, err)

	got, err := reply.ReadString16()
	require.NoError(t, err)
	assert.Equal(t, "pong", got)

	call := dev.txns[2]
	assert.Equal(t, uint32(3), call.td.Target)
	assert.Equal(t, uint32(1), call.td.Code)
	assert.Equal(t,
		binder.FlagAcceptFds|binder.FlagCollectNotedAppOps,
		call.td.Flags)

	// Payload framing: interface token then the caller's arguments.
	req := parcel.FromBytes(call.payload)
	iface, err := req.ReadInterfaceToken()
	require.NoError(t, err)
	assert.Equal(t, "com.example.IEcho", iface)
	arg, err := req.ReadString16()
	require.NoError(t, err)
	assert.Equal(t, "ping", arg)
}

func TestServiceCallError(t *testing.T) {
	dev := newFakeDriver()
	dev.pushEmpty(t) // ping

	lookupReply := parcel.New()
	require.NoError(t, lookupReply.WriteUint32(0))
	require.NoError(t, parcel.NewFlatObject(parcel.TypeHandle, 3, 0, 0).WriteParcel(lookupReply))
	dev.pushReply(t, 0x1000, lookupReply)

	failure := parcel.New()
	require.NoError(t, failure.WriteUint32(0xffffffff))
	require.NoError(t, failure.WriteString16("no such function"))
	require.NoError(t, failure.WriteUint32(38))
	require.NoError(t, failure.WriteString16("com.example.IEcho"))
	dev.pushReply(t, 0x2000, failure)

	sm := newTestManager(t, dev)
	svc, err := sm.GetService("echo", "com.example.IEcho")
	require.NoError(t, err)

	_, err = svc.Call(99, nil)
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, uint32(0xffffffff), ce.Status)
	assert.Equal(t, "no such function", ce.Message)
	assert.Equal(t, uint32(38), ce.Code)
	assert.Equal(t, "com.example.IEcho", ce.Detail)
}

func TestServiceCloseQueuesReleases(t *testing.T) {
	dev := newFakeDriver()
	dev.pushEmpty(t)

	lookupReply := parcel.New()
	require.NoError(t, lookupReply.WriteUint32(0))
	require.NoError(t, parcel.NewFlatObject(parcel.TypeHandle, 5, 0, 0).WriteParcel(lookupReply))
	dev.pushReply(t, 0x1000, lookupReply)

	sm := newTestManager(t, dev)
	svc, err := sm.GetService("echo", "com.example.IEcho")
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close(), "close is idempotent")

	pending := parcel.FromBytes(sm.Client().PendingBytes())
	var cmds []binder.Command
	for pending.HasUnreadData() {
		op, err := pending.ReadUint32()
		require.NoError(t, err)
		cmds = append(cmds, binder.Command(op))
		switch binder.Command(op) {
		case binder.CmdFreeBuffer:
			_, err = pending.ReadUint64()
		default:
			_, err = pending.ReadInt32()
		}
		require.NoError(t, err)
	}
	assert.Contains(t, cmds, binder.CmdRelease)
	assert.Contains(t, cmds, binder.CmdDecRefs)
}

func TestListServices(t *testing.T) {
	dev := newFakeDriver()
	dev.pushEmpty(t) // ping

	listReply := parcel.New()
	require.NoError(t, listReply.WriteUint32(0))
	require.NoError(t, parcel.WriteSliceFunc(listReply,
		[]string{"activity", "package", "window"},
		func(p *parcel.Parcel, s string) error { return p.WriteString16(s) }))
	dev.pushReply(t, 0x1000, listReply)

	sm := newTestManager(t, dev)
	names, err := sm.ListServices(DumpPriorityDefault)
	require.NoError(t, err)
	assert.Equal(t, []string{"activity", "package", "window"}, names)

	list := dev.txns[1]
	assert.Equal(t, FuncListServices, list.td.Code)
}

func TestRegisterServiceFraming(t *testing.T) {
	dev := newFakeDriver()
	dev.pushEmpty(t) // ping
	dev.pushEmpty(t) // add service

	sm := newTestManager(t, dev)
	handler := func(code uint32, data *parcel.Parcel) (*parcel.Parcel, error) {
		return parcel.New(), nil
	}

	listener, err := sm.RegisterService(handler, "myservice", "com.example.IMyService", true, DumpPriorityDefault)
	require.NoError(t, err)
	assert.Equal(t, "myservice", listener.Name())
	assert.Equal(t, "com.example.IMyService", listener.Interface())
	assert.True(t, sm.Client().InLooper())

	// EnterLooper precedes the AddService transaction.
	assert.Equal(t, binder.CmdEnterLooper, dev.commands[1])

	add := dev.txns[1]
	assert.Equal(t, FuncAddService, add.td.Code)
	require.Len(t, add.offsets, 1, "the flat binder object offset rides along")

	req := parcel.FromBytes(add.payload)
	iface, err := req.ReadInterfaceToken()
	require.NoError(t, err)
	assert.Equal(t, InterfaceToken, iface)
	name, err := req.ReadString16()
	require.NoError(t, err)
	assert.Equal(t, "myservice", name)

	assert.Equal(t, uint64(req.Position()), add.offsets[0])
	var obj parcel.FlatObject
	require.NoError(t, obj.ReadParcel(req))
	assert.Equal(t, parcel.TypeBinder, obj.Type)
	assert.Equal(t, parcel.StabilitySystem, obj.Stability)

	allowIsolated, err := req.ReadBool()
	require.NoError(t, err)
	assert.True(t, allowIsolated)
	priority, err := req.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, DumpPriorityDefault, priority)
}
