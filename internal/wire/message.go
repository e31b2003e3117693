package wire

import (
	"fmt"

	"github.com/xtxerr/treemon/internal/aggregate"
)

// Kind identifies an overlay message.
type Kind uint8

const (
	KindUnknown Kind = iota

	// KindAggregate carries a child's aggregate table to its parent.
	KindAggregate

	// KindMemberDead reports dead participants toward the root.
	KindMemberDead

	// KindReconfigure carries a new participant list down the tree.
	KindReconfigure

	// KindJoin asks the root to add the sender to the tree.
	KindJoin

	// KindHello opens a connection and names the sender.
	KindHello
)

func (k Kind) String() string {
	switch k {
	case KindAggregate:
		return "aggregate"
	case KindMemberDead:
		return "member_dead"
	case KindReconfigure:
		return "reconfigure"
	case KindJoin:
		return "join"
	case KindHello:
		return "hello"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Control reports whether messages of this kind must be delivered in order
// rather than superseded by newer ones.
func (k Kind) Control() bool {
	return k != KindAggregate
}

// Participant is a member of the overlay and the address it listens on.
type Participant struct {
	ID   string
	Addr string
}

// Entry is the wire form of an aggregate entry.
type Entry struct {
	Name         string
	Value        uint64
	Policy       aggregate.Policy
	Contributors uint32
	LastUpdate   uint64
	Origin       string
	Sketch       []byte

	// Seen is the sorted set of origins ever folded into the entry.
	Seen []string

	// Values maps each live origin to its latest value.
	Values map[string]uint64
}

// Message is the single envelope exchanged between overlay nodes.
// Fields not used by a kind are left empty.
type Message struct {
	Kind    Kind
	Sender  string
	Epoch   uint64
	Version uint64

	// Entries is set for KindAggregate.
	Entries []Entry

	// Dead is set for KindMemberDead.
	Dead []string

	// Participants and FanOut are set for KindReconfigure. KindJoin carries
	// the joining participant.
	Participants []Participant
	FanOut       uint32

	// Addr is the sender's listen address for KindHello and KindJoin.
	Addr string
}

// FromTable converts an aggregate table into wire entries, sorted by name.
func FromTable(t aggregate.Table) ([]Entry, error) {
	out := make([]Entry, 0, len(t))
	for _, name := range t.Names() {
		e := t[name]
		sketch, err := e.Distribution.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", name, err)
		}
		out = append(out, Entry{
			Name:         e.Name,
			Value:        e.Value,
			Policy:       e.Policy,
			Contributors: e.Contributors,
			LastUpdate:   e.LastUpdate,
			Origin:       e.Origin,
			Sketch:       sketch,
			Seen:         e.Seen,
			Values:       e.Values,
		})
	}
	return out, nil
}

// ToTable converts wire entries back into an aggregate table. The last entry
// wins if a name is repeated. An entry without an origin set counts its
// origin alone.
func ToTable(entries []Entry) (aggregate.Table, error) {
	out := make(aggregate.Table, len(entries))
	for _, e := range entries {
		dist, err := aggregate.UnmarshalDistribution(e.Sketch)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", e.Name, err)
		}
		seen := aggregate.NormalizeSeen(e.Seen)
		if len(seen) == 0 && e.Origin != "" {
			seen = []string{e.Origin}
		}
		values := e.Values
		if len(values) == 0 && e.Origin != "" {
			values = map[string]uint64{e.Origin: e.Value}
		}
		contributors := e.Contributors
		if len(seen) > 0 {
			contributors = uint32(len(seen))
		}
		out[e.Name] = aggregate.Entry{
			Name:         e.Name,
			Value:        e.Value,
			Policy:       e.Policy,
			Contributors: contributors,
			LastUpdate:   e.LastUpdate,
			Origin:       e.Origin,
			Seen:         seen,
			Values:       values,
			Distribution: dist,
		}
	}
	return out, nil
}
