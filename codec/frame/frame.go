// Package frame adapts the teacher's length-prefixed, message-type-tagged
// connection loop (originally goschemaipc's conn.go/server.go/const.go) to
// dispatch over schema.Type/codec.Read instead of the teacher's
// reflect-based MessageDescriptor, as an illustrative host-I/O layer on top
// of the core codec package (spec.md explicitly scopes framing/connection
// management as a Non-goal of the core; see SPEC_FULL.md §4). Nothing in
// package codec imports this package.
package frame

import (
	"encoding/binary"
	"errors"
	"io"
	"log"
	"net"
	"time"

	"github.com/finnur-hlynsson/bitspec/codec"
	"github.com/finnur-hlynsson/bitspec/document"
	"github.com/finnur-hlynsson/bitspec/schema"
)

// OverflowPolicy mirrors the teacher's MessageOverflowPolicy: what to do
// with a frame declaring a length past MaxMessageSize.
type OverflowPolicy int

const (
	OverflowDiscard OverflowPolicy = iota
	OverflowTerminate
)

var (
	ErrHeaderLength   = errors.New("frame: invalid header (must be 8 bytes)")
	ErrMessageTooLong = errors.New("frame: message exceeds the configured limit")
	ErrUnknownType    = errors.New("frame: unrecognized message type")
)

// Header is the wire framing: a 4-byte little-endian payload length
// followed by a 4-byte little-endian message type id, exactly the
// teacher's ProtocolHeader layout.
type Header struct {
	PayloadLength uint32
	MessageType   uint32
}

func readHeader(r io.Reader) (Header, error) {
	var raw [8]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Header{}, err
	}
	return Header{
		PayloadLength: binary.LittleEndian.Uint32(raw[:4]),
		MessageType:   binary.LittleEndian.Uint32(raw[4:]),
	}, nil
}

func writeHeader(w io.Writer, h Header) error {
	var raw [8]byte
	binary.LittleEndian.PutUint32(raw[:4], h.PayloadLength)
	binary.LittleEndian.PutUint32(raw[4:], h.MessageType)
	_, err := w.Write(raw[:])
	return err
}

// Handler processes one decoded message. conn is the originating
// connection, so a handler can write a reply via conn.Send.
type Handler func(msg document.Value, conn *Conn) error

type registration struct {
	typ     *schema.Type
	handler Handler
}

// Registry maps a wire message-type id to the schema.Type used to decode
// it and the Handler invoked with the decoded document, the schema-driven
// analogue of the teacher's MessageDescriptorRegistry.
type Registry struct {
	byID map[uint32]registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[uint32]registration)}
}

// Register binds a message type id to a schema and its handler. Passing a
// nil handler registers the type for encoding/Send use only; frames of
// that type are read and discarded on receipt.
func (r *Registry) Register(id uint32, t *schema.Type, h Handler) {
	r.byID[id] = registration{typ: t, handler: h}
}

// Server accepts connections and dispatches frames against Registry,
// mirroring the teacher's Server/Conn split.
type Server struct {
	Registry       *Registry
	Options        *codec.Options
	MaxMessageSize uint32
	OverflowPolicy OverflowPolicy

	listener net.Listener
}

// ListenAndServe opens network/address and serves connections until the
// listener is closed.
func (s *Server) ListenAndServe(network, address string) error {
	l, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.listener = l
	defer l.Close()

	log.Print("frame: listening")
	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Temporary() {
				log.Printf("frame: temporary accept error: %v", err)
				time.Sleep(3 * time.Second)
				continue
			}
			return err
		}
		go s.handleConnection(netConn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConnection(netConn net.Conn) {
	defer netConn.Close()
	c := &Conn{server: s, netConn: netConn}
	for {
		if err := c.next(); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("frame: connection closed: %v", err)
			}
			return
		}
	}
}

// Conn is one accepted connection, passed to Handler so a handler can send
// a reply frame.
type Conn struct {
	server  *Server
	netConn net.Conn
}

// Send encodes msg against the schema registered under id and writes a
// framed message.
func (c *Conn) Send(id uint32, msg document.Value) error {
	reg, ok := c.server.Registry.byID[id]
	if !ok {
		return ErrUnknownType
	}
	payload, err := codec.Write(reg.typ, msg, c.server.Options)
	if err != nil {
		return err
	}
	if err := writeHeader(c.netConn, Header{PayloadLength: uint32(len(payload)), MessageType: id}); err != nil {
		return err
	}
	_, err = c.netConn.Write(payload)
	return err
}

func (c *Conn) next() error {
	header, err := readHeader(c.netConn)
	if err != nil {
		return err
	}

	if header.PayloadLength > c.server.MaxMessageSize {
		switch c.server.OverflowPolicy {
		case OverflowDiscard:
			_, err := io.CopyN(io.Discard, c.netConn, int64(header.PayloadLength))
			return err
		default:
			return ErrMessageTooLong
		}
	}

	reg, ok := c.server.Registry.byID[header.MessageType]
	if !ok {
		_, err := io.CopyN(io.Discard, c.netConn, int64(header.PayloadLength))
		if err != nil {
			return err
		}
		return ErrUnknownType
	}

	payload := make([]byte, header.PayloadLength)
	if _, err := io.ReadFull(c.netConn, payload); err != nil {
		return err
	}

	if reg.handler == nil {
		return nil
	}

	msg, _, err := codec.Read(reg.typ, payload, c.server.Options)
	if err != nil {
		return err
	}
	return reg.handler(msg, c)
}
