package propagation

import (
	"net/http"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// HeaderCarrier adapts http.Header-shaped maps to the codec. Keys go
// through MIME canonicalization, so lookups find headers however the
// transport cased them.
type HeaderCarrier map[string][]string

// Get returns the value associated with the passed key.
func (hc HeaderCarrier) Get(key string) string {
	return http.Header(hc).Get(key)
}

// Set stores the key-value pair.
func (hc HeaderCarrier) Set(key, value string) {
	http.Header(hc).Set(key, value)
}

// Keys lists the keys stored in this carrier.
func (hc HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(hc))
	for k := range hc {
		keys = append(keys, k)
	}
	return keys
}

// MapCarrier adapts a map[string]string to the codec.
type MapCarrier map[string]string

// Get returns the value associated with the passed key.
func (mc MapCarrier) Get(key string) string {
	return mc[key]
}

// Set stores the key-value pair.
func (mc MapCarrier) Set(key, value string) {
	mc[key] = value
}

// Keys lists the keys stored in this carrier.
func (mc MapCarrier) Keys() []string {
	keys := make([]string, 0, len(mc))
	for k := range mc {
		keys = append(keys, k)
	}
	return keys
}

// TableCarrier adapts an AMQP header table to the codec. AMQP tables hold
// arbitrarily typed values; the codec only ever reads and writes strings,
// so non-string values are invisible to Get and left untouched by Set.
type TableCarrier amqp.Table

// Get returns the string value associated with the passed key.
func (tc TableCarrier) Get(key string) string {
	if v, ok := tc[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Set stores the key-value pair.
func (tc TableCarrier) Set(key, value string) {
	tc[key] = value
}

// Keys lists the keys stored in this carrier.
func (tc TableCarrier) Keys() []string {
	keys := make([]string, 0, len(tc))
	for k := range tc {
		keys = append(keys, k)
	}
	return keys
}

// MetadataCarrier adapts gRPC metadata to the codec. Keys are lowercased
// the way metadata.MD stores them.
type MetadataCarrier map[string][]string

// Get returns the value associated with the passed key.
func (mc MetadataCarrier) Get(key string) string {
	vals := mc[strings.ToLower(key)]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Set stores the key-value pair.
func (mc MetadataCarrier) Set(key, value string) {
	mc[strings.ToLower(key)] = []string{value}
}

// Keys lists the keys stored in this carrier.
func (mc MetadataCarrier) Keys() []string {
	keys := make([]string, 0, len(mc))
	for k := range mc {
		keys = append(keys, k)
	}
	return keys
}
