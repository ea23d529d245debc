package ingest

import (
	"fmt"

	"github.com/pebbe/zmq4"

	"depthrig-go/internal/types"
)

// Publisher pushes encoded frames to a bound ZMQ PUSH socket. It stands in for
// the rig host when testing a receiver.
type Publisher struct {
	socket      *zmq4.Socket
	maxDistance float64
}

func NewPublisher(endpoint string, maxDistance float64) (*Publisher, error) {
	socket, err := zmq4.NewSocket(zmq4.PUSH)
	if err != nil {
		return nil, fmt.Errorf("zmq socket: %w", err)
	}
	if err := socket.Bind(endpoint); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("zmq bind %s: %w", endpoint, err)
	}
	return &Publisher{socket: socket, maxDistance: maxDistance}, nil
}

func (p *Publisher) Send(frame types.Frame) error {
	payload, err := EncodeFrame(frame, p.maxDistance)
	if err != nil {
		return err
	}
	_, err = p.socket.SendBytes(payload, 0)
	return err
}

func (p *Publisher) SendMeta(msgType string, meta map[string]any) error {
	payload, err := EncodeMeta(msgType, meta)
	if err != nil {
		return err
	}
	_, err = p.socket.SendBytes(payload, 0)
	return err
}

func (p *Publisher) Close() error {
	return p.socket.Close()
}
