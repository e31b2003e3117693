package wire

import (
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/proto"

	"github.com/xtxerr/treemon/internal/aggregate"
	"github.com/xtxerr/treemon/internal/errors"
	pb "github.com/xtxerr/treemon/internal/proto"
)

// Marshal encodes m without a length prefix.
func Marshal(m *Message) ([]byte, error) {
	env, err := toEnvelope(m)
	if err != nil {
		return nil, err
	}
	b, err := proto.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", m.Kind, err)
	}
	return b, nil
}

// Unmarshal decodes a message. Unknown fields are skipped. Malformed input,
// an unknown kind, a missing sender or an entry without a name fail with
// ErrProtocolViolation.
func Unmarshal(b []byte) (*Message, error) {
	env := &pb.Envelope{}
	if err := proto.Unmarshal(b, env); err != nil {
		return nil, fmt.Errorf("decode message: %v: %w", err, errors.ErrProtocolViolation)
	}
	return fromEnvelope(env)
}

func toEnvelope(m *Message) (*pb.Envelope, error) {
	if m.Kind == KindUnknown || m.Kind > KindHello {
		return nil, fmt.Errorf("marshal %s: %w", m.Kind, errors.ErrProtocolViolation)
	}

	env := &pb.Envelope{
		Kind:    pb.Kind(m.Kind),
		Sender:  m.Sender,
		Epoch:   m.Epoch,
		Version: m.Version,
		Dead:    m.Dead,
		FanOut:  m.FanOut,
		Addr:    m.Addr,
	}
	for i := range m.Entries {
		env.Entries = append(env.Entries, toProtoEntry(&m.Entries[i]))
	}
	for _, p := range m.Participants {
		env.Participants = append(env.Participants, &pb.Participant{Id: p.ID, Addr: p.Addr})
	}
	return env, nil
}

func toProtoEntry(e *Entry) *pb.Entry {
	out := &pb.Entry{
		Name:         e.Name,
		Value:        e.Value,
		Policy:       uint32(e.Policy),
		Contributors: e.Contributors,
		LastUpdate:   e.LastUpdate,
		Origin:       e.Origin,
		Sketch:       e.Sketch,
		Seen:         e.Seen,
	}
	if len(e.Values) > 0 {
		origins := make([]string, 0, len(e.Values))
		for o := range e.Values {
			origins = append(origins, o)
		}
		sort.Strings(origins)
		out.Values = make([]*pb.OriginValue, 0, len(origins))
		for _, o := range origins {
			out.Values = append(out.Values, &pb.OriginValue{Origin: o, Value: e.Values[o]})
		}
	}
	return out
}

func fromEnvelope(env *pb.Envelope) (*Message, error) {
	kind := env.GetKind()
	if kind <= pb.Kind_KIND_UNSPECIFIED || kind > pb.Kind_KIND_HELLO {
		return nil, fmt.Errorf("message kind %d: %w", int32(kind), errors.ErrProtocolViolation)
	}
	m := &Message{
		Kind:    Kind(kind),
		Sender:  env.GetSender(),
		Epoch:   env.GetEpoch(),
		Version: env.GetVersion(),
		Dead:    env.GetDead(),
		FanOut:  env.GetFanOut(),
		Addr:    env.GetAddr(),
	}
	if m.Sender == "" {
		return nil, fmt.Errorf("%s without sender: %w", m.Kind, errors.ErrProtocolViolation)
	}

	for _, pe := range env.GetEntries() {
		e, err := fromProtoEntry(pe)
		if err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, e)
	}
	for _, pp := range env.GetParticipants() {
		if pp.GetId() == "" {
			return nil, fmt.Errorf("participant without id: %w", errors.ErrProtocolViolation)
		}
		m.Participants = append(m.Participants, Participant{ID: pp.GetId(), Addr: pp.GetAddr()})
	}
	return m, nil
}

func fromProtoEntry(pe *pb.Entry) (Entry, error) {
	e := Entry{
		Name:         pe.GetName(),
		Value:        pe.GetValue(),
		Contributors: pe.GetContributors(),
		LastUpdate:   pe.GetLastUpdate(),
		Origin:       pe.GetOrigin(),
		Sketch:       pe.GetSketch(),
		Seen:         pe.GetSeen(),
	}
	if e.Name == "" {
		return Entry{}, fmt.Errorf("entry without name: %w", errors.ErrProtocolViolation)
	}
	if pe.GetPolicy() > math.MaxUint8 {
		return Entry{}, fmt.Errorf("entry %q policy %d: %w", e.Name, pe.GetPolicy(), errors.ErrProtocolViolation)
	}
	e.Policy = aggregate.Policy(pe.GetPolicy())
	if e.Policy != aggregate.PolicyUnset && !e.Policy.Valid() {
		return Entry{}, fmt.Errorf("entry %q policy %d: %w", e.Name, e.Policy, errors.ErrProtocolViolation)
	}
	if vals := pe.GetValues(); len(vals) > 0 {
		e.Values = make(map[string]uint64, len(vals))
		for _, v := range vals {
			if v.GetOrigin() == "" {
				return Entry{}, fmt.Errorf("entry %q value without origin: %w", e.Name, errors.ErrProtocolViolation)
			}
			e.Values[v.GetOrigin()] = v.GetValue()
		}
	}
	return e, nil
}
