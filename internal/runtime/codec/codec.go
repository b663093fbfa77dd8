// Package codec encodes forwarded payloads. Codecs are looked up by name so
// configuration can select one with a plain string.
package codec

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	pipeerrors "github.com/drblury/pipeflow/internal/runtime/errors"
)

// Codec turns a message into bytes and back. Implementations must be safe for
// concurrent use.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Default is the codec used when no name is configured.
const Default = "json"

var (
	mu       sync.RWMutex
	registry = map[string]Codec{}
)

func init() {
	Register(JSON{})
	Register(ProtoJSON{})
	Register(Proto{})
	Register(MsgPack{})
}

// Register adds c under its name, replacing any codec with the same name.
func Register(c Codec) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(c.Name())] = c
}

// Lookup returns the codec registered under name. An empty name yields JSON.
func Lookup(name string) (Codec, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = Default
	}
	mu.RLock()
	defer mu.RUnlock()
	if c, ok := registry[key]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q", pipeerrors.ErrUnknownCodec, name)
}

// Names lists the registered codec names in lexical order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
