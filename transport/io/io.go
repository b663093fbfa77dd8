// Package io appends forwarded messages to a JSON lines file.
package io

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/pipeflow/internal/runtime/jsoncodec"
	"github.com/drblury/pipeflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "io"

// DefaultFilePath is used when the config names no file.
const DefaultFilePath = "messages.jsonl"

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("io publisher is closed")

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.IOCapabilities)
}

// Build opens (or creates) the configured file for appending.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	path := cfg.GetIOFile()
	if path == "" {
		path = DefaultFilePath
	}
	return NewPublisher(path, logger)
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.IOCapabilities
}

// Record is one line of the file.
type Record struct {
	Topic    string            `json:"topic"`
	UUID     string            `json:"uuid"`
	Metadata map[string]string `json:"metadata"`
	Payload  []byte            `json:"payload"`
}

// Publisher writes one Record per message.
type Publisher struct {
	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	logger watermill.LoggerAdapter
}

// NewPublisher opens path for appending.
func NewPublisher(path string, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	logger.Debug("Opened io transport file", watermill.LogFields{"path": path})
	return &Publisher{file: f, w: bufio.NewWriter(f), logger: logger}, nil
}

// Publish appends messages and flushes, so each call is visible to readers
// once it returns.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return ErrClosed
	}

	for _, msg := range messages {
		line, err := jsoncodec.Marshal(Record{
			Topic:    topic,
			UUID:     msg.UUID,
			Metadata: msg.Metadata,
			Payload:  msg.Payload,
		})
		if err != nil {
			return fmt.Errorf("encode %s: %w", msg.UUID, err)
		}
		if _, err := p.w.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return p.w.Flush()
}

// Close flushes and closes the file. Further calls are no-ops.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	flushErr := p.w.Flush()
	closeErr := p.file.Close()
	p.file = nil
	return errors.Join(flushErr, closeErr)
}

// ReadRecords decodes every record in r, in file order.
func ReadRecords(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := jsoncodec.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return records, fmt.Errorf("decode record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}
