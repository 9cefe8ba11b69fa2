// Package link is the host end of the framed command link to the drive.
//
// A background reader splits the byte stream into frames. Empty frames are
// acknowledgements; everything else is a response routed by id to a waiting
// Query or a Subscribe handler.
package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gofoc/protocol"
)

var (
	ErrTimeout        = errors.New("link: timed out waiting for the drive")
	ErrClosed         = errors.New("link: closed")
	ErrUnknownCommand = errors.New("link: unknown command")
	ErrNoDictionary   = errors.New("link: dictionary not loaded")
)

// Ids fixed by the firmware so the dictionary can be fetched
const (
	identifyResponseID = 0
	identifyID         = 1

	identifyChunk = 40
	maxRetries    = 3

	// DefaultTimeout bounds the wait for each acknowledgement
	DefaultTimeout = 500 * time.Millisecond
)

// Link sends commands to the drive and collects its responses
type Link struct {
	rw      io.ReadWriteCloser
	log     *zap.Logger
	timeout time.Duration

	sendMu sync.Mutex
	seq    uint8
	acks   chan uint8

	mu       sync.Mutex
	dict     *Dictionary
	waiters  map[uint16][]chan []byte
	handlers map[uint16][]func([]byte)
	collect  map[uint16]*[][]byte

	badFrames atomic.Uint32

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New starts a link over rw. A nil logger disables logging.
func New(rw io.ReadWriteCloser, log *zap.Logger) *Link {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Link{
		rw:       rw,
		log:      log,
		timeout:  DefaultTimeout,
		seq:      protocol.MessageDest,
		acks:     make(chan uint8, 8),
		waiters:  make(map[uint16][]chan []byte),
		handlers: make(map[uint16][]func([]byte)),
		collect:  make(map[uint16]*[][]byte),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// SetTimeout changes the acknowledgement timeout
func (l *Link) SetTimeout(d time.Duration) {
	l.timeout = d
}

// Close stops the reader and closes the underlying stream
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stop)
		err = l.rw.Close()
		<-l.done
	})
	return err
}

// BadFrames returns how many corrupt frames the reader has skipped
func (l *Link) BadFrames() uint32 {
	return l.badFrames.Load()
}

// Dictionary returns the dictionary loaded by Identify, or nil
func (l *Link) Dictionary() *Dictionary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dict
}

func (l *Link) readLoop() {
	defer close(l.done)

	var pending []byte
	buf := make([]byte, 256)
	for {
		n, err := l.rw.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			pending = l.processFrames(pending)
		}
		if err != nil {
			select {
			case <-l.stop:
			default:
				if err != io.EOF {
					l.log.Warn("link read failed", zap.Error(err))
				}
			}
			return
		}
	}
}

// processFrames handles every complete frame in data and returns the rest
func (l *Link) processFrames(data []byte) []byte {
	for len(data) > 0 {
		if data[0] == protocol.MessageValueSync {
			data = data[1:]
			continue
		}
		frame, n, err := protocol.DecodeFrame(data)
		if err == protocol.ErrNeedMore {
			break
		}
		if err != nil {
			l.badFrames.Add(1)
			l.log.Debug("dropping corrupt frame", zap.Error(err))
			i := bytes.IndexByte(data, protocol.MessageValueSync)
			if i < 0 {
				return data[:0]
			}
			data = data[i+1:]
			continue
		}
		data = data[n:]

		if len(frame.Payload) == 0 {
			select {
			case l.acks <- frame.Seq:
			default:
			}
			continue
		}
		l.dispatch(frame.Payload)
	}
	// Keep the remainder in a fresh slice so the backing array can shrink
	return append([]byte(nil), data...)
}

func (l *Link) dispatch(payload []byte) {
	p := payload
	id, err := protocol.DecodeVLQUint(&p)
	if err != nil {
		l.badFrames.Add(1)
		return
	}
	args := append([]byte(nil), p...)

	l.mu.Lock()
	waiters := l.waiters[uint16(id)]
	delete(l.waiters, uint16(id))
	handlers := l.handlers[uint16(id)]
	if c := l.collect[uint16(id)]; c != nil {
		*c = append(*c, args)
	}
	dict := l.dict
	l.mu.Unlock()

	if dict != nil {
		l.log.Debug("response", zap.String("name", dict.Name(uint16(id))), zap.Int("bytes", len(args)))
	}
	for _, w := range waiters {
		w <- args
	}
	for _, h := range handlers {
		h(args)
	}
}

// Send transmits one command and waits until the drive acknowledges it.
// Unacknowledged frames are retransmitted.
func (l *Link) Send(ctx context.Context, name string, args func(protocol.OutputBuffer)) error {
	id, err := l.commandID(name)
	if err != nil {
		return err
	}
	return l.send(ctx, id, args)
}

func (l *Link) commandID(name string) (uint16, error) {
	if name == "identify" {
		return identifyID, nil
	}
	dict := l.Dictionary()
	if dict == nil {
		return 0, ErrNoDictionary
	}
	id, ok := dict.CommandID(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return id, nil
}

func (l *Link) responseID(name string) (uint16, error) {
	if name == "identify_response" {
		return identifyResponseID, nil
	}
	dict := l.Dictionary()
	if dict == nil {
		return 0, ErrNoDictionary
	}
	id, ok := dict.ResponseID(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return id, nil
}

func (l *Link) send(ctx context.Context, id uint16, args func(protocol.OutputBuffer)) error {
	out := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(out, uint32(id))
	if args != nil {
		args(out)
	}
	payload := out.Result()

	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	// Acks left over from an earlier retransmission
	for len(l.acks) > 0 {
		<-l.acks
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		frame, err := protocol.AppendFrame(nil, l.seq, payload)
		if err != nil {
			return err
		}
		if _, err := l.rw.Write(frame); err != nil {
			return fmt.Errorf("link write: %w", err)
		}

		ack, err := l.waitAck(ctx)
		switch {
		case err == ErrTimeout:
			l.log.Debug("ack timeout, retransmitting", zap.Uint16("cmd", id), zap.Int("attempt", attempt))
			continue
		case err != nil:
			return err
		case ack == protocol.NextSeq(l.seq):
			l.seq = ack
			return nil
		case ack == l.seq:
			// NAK for a frame that was corrupted on the way
			continue
		default:
			// The drive expects another sequence, typically after its own reset
			l.log.Info("resynchronising sequence", zap.Uint8("have", l.seq), zap.Uint8("want", ack))
			l.seq = ack
		}
	}
	return fmt.Errorf("command %d: %w", id, ErrTimeout)
}

func (l *Link) waitAck(ctx context.Context) (uint8, error) {
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()
	select {
	case ack := <-l.acks:
		return ack, nil
	case <-timer.C:
		return 0, ErrTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-l.done:
		return 0, ErrClosed
	}
}

// Query sends a command and returns the arguments of the first resp
// message that follows it
func (l *Link) Query(ctx context.Context, name string, args func(protocol.OutputBuffer), resp string) ([]byte, error) {
	cmdID, err := l.commandID(name)
	if err != nil {
		return nil, err
	}
	respID, err := l.responseID(resp)
	if err != nil {
		return nil, err
	}
	return l.query(ctx, cmdID, args, respID)
}

func (l *Link) query(ctx context.Context, cmdID uint16, args func(protocol.OutputBuffer), respID uint16) ([]byte, error) {
	ch := make(chan []byte, 1)
	l.mu.Lock()
	l.waiters[respID] = append(l.waiters[respID], ch)
	l.mu.Unlock()
	defer l.removeWaiter(respID, ch)

	if err := l.send(ctx, cmdID, args); err != nil {
		return nil, err
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()
	select {
	case data := <-ch:
		return data, nil
	case <-timer.C:
		return nil, fmt.Errorf("response %d: %w", respID, ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *Link) removeWaiter(id uint16, ch chan []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ws := l.waiters[id]
	for i, w := range ws {
		if w == ch {
			l.waiters[id] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(l.waiters[id]) == 0 {
		delete(l.waiters, id)
	}
}

// Collect sends a command and returns every resp message the drive emits
// for it. The drive writes its responses ahead of the acknowledgement.
func (l *Link) Collect(ctx context.Context, name string, args func(protocol.OutputBuffer), resp string) ([][]byte, error) {
	cmdID, err := l.commandID(name)
	if err != nil {
		return nil, err
	}
	respID, err := l.responseID(resp)
	if err != nil {
		return nil, err
	}

	var got [][]byte
	l.mu.Lock()
	l.collect[respID] = &got
	l.mu.Unlock()

	err = l.send(ctx, cmdID, args)

	l.mu.Lock()
	delete(l.collect, respID)
	l.mu.Unlock()
	return got, err
}

// Subscribe calls fn with the arguments of every resp message. fn runs on
// the reader goroutine and must not block.
func (l *Link) Subscribe(resp string, fn func(args []byte)) error {
	id, err := l.responseID(resp)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.handlers[id] = append(l.handlers[id], fn)
	l.mu.Unlock()
	return nil
}

// Identify downloads and parses the firmware dictionary
func (l *Link) Identify(ctx context.Context) (*Dictionary, error) {
	var data []byte
	for {
		offset := uint32(len(data))
		resp, err := l.query(ctx, identifyID, func(o protocol.OutputBuffer) {
			protocol.EncodeVLQUint(o, offset)
			protocol.EncodeVLQUint(o, identifyChunk)
		}, identifyResponseID)
		if err != nil {
			return nil, fmt.Errorf("identify at offset %d: %w", offset, err)
		}

		got, err := protocol.DecodeVLQUint(&resp)
		if err != nil {
			return nil, err
		}
		if got != offset {
			return nil, fmt.Errorf("identify: offset %d, want %d", got, offset)
		}
		chunk, err := protocol.DecodeVLQBytes(&resp)
		if err != nil {
			return nil, err
		}
		data = append(data, chunk...)
		if len(chunk) < identifyChunk {
			break
		}
	}

	dict, err := ParseDictionary(data)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.dict = dict
	l.mu.Unlock()

	l.log.Info("dictionary loaded",
		zap.String("version", dict.Version),
		zap.Int("bytes", len(data)),
		zap.Int("commands", len(dict.Commands)),
		zap.Int("responses", len(dict.Responses)))
	return dict, nil
}
