// Package subscription loads the fixed set of (filter, datatypes,
// callback) triples a daemon run compiles against: Load decodes YAML
// bytes with gopkg.in/yaml.v3 into plain structs once at startup; the
// run command reads those bytes from the file the `subscriptions`
// setting names.
package subscription

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/flowlens/flowlens/track"
)

// Datatype names a view a callback wants delivered. The set is fixed
// at build: the tracked-state struct in package track has a field for
// every Datatype, and the Datatypes the loaded Declarations name decide
// which of those fields are populated.
type Datatype string

const (
	DatatypeRawFrames   Datatype = "raw_frames"
	DatatypeTCPConn     Datatype = "tcp_conn"
	DatatypeTLSHandshake Datatype = "tls_handshake"
	DatatypeHTTPTxn     Datatype = "http_transaction"
	DatatypeDNSTxn      Datatype = "dns_transaction"
	DatatypeQUICPacket  Datatype = "quic_packet"
)

// Declaration is one subscription: a filter expression, the datatypes
// its callback needs delivered, and the callback's name (loaded from
// the YAML `callback` key and resolved against a caller-supplied
// registry).
type Declaration struct {
	Name      string     `yaml:"name"`
	Filter    string     `yaml:"filter"`
	Datatypes []Datatype `yaml:"datatypes"`
	Callback  string     `yaml:"callback"`
}

// file is the on-disk shape of the subscriptions config block.
type file struct {
	Subscriptions []Declaration `yaml:"subscriptions"`
}

// Load decodes a list of Declarations from YAML, validating that every
// referenced datatype is one this build knows how to produce.
func Load(data []byte) ([]Declaration, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "subscription: malformed config")
	}
	for i, d := range f.Subscriptions {
		if d.Filter == "" {
			return nil, errors.Errorf("subscription[%d] %q: empty filter", i, d.Name)
		}
		if d.Callback == "" {
			return nil, errors.Errorf("subscription[%d] %q: missing callback", i, d.Name)
		}
		for _, dt := range d.Datatypes {
			if !track.KnownDatatype(string(dt)) {
				return nil, errors.Errorf("subscription[%d] %q: unknown datatype %q", i, d.Name, dt)
			}
		}
	}
	return f.Subscriptions, nil
}
