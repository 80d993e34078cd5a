package domain

import "strconv"

// StreamType labels a chunk of a streamed response.
type StreamType string

const (
	StreamInformative StreamType = "informative"
	StreamStreaming   StreamType = "streaming"
	StreamFinal       StreamType = "final"
)

// ChannelData carries channel-specific fields. Known keys are read through
// accessors; everything else passes through untouched.
type ChannelData map[string]any

const (
	keyStreamID       = "streamId"
	keyStreamType     = "streamType"
	keyStreamSequence = "streamSequence"
)

// Merge returns the union of d and other, with other winning per key.
// d is not modified.
func (d ChannelData) Merge(other ChannelData) ChannelData {
	if d == nil && other == nil {
		return nil
	}
	out := make(ChannelData, len(d)+len(other))
	for k, v := range d {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// StreamType returns the stream marker or "" when none is set.
func (d ChannelData) StreamType() StreamType {
	switch v := d[keyStreamType].(type) {
	case StreamType:
		return v
	case string:
		return StreamType(v)
	}
	return ""
}

// StreamID returns the stream id or "".
func (d ChannelData) StreamID() string {
	s, _ := d[keyStreamID].(string)
	return s
}

// Entity is a loosely typed entity attached to an activity.
type Entity map[string]any

// Type returns the entity type discriminator.
func (e Entity) Type() string {
	s, _ := e["type"].(string)
	return s
}

// Copy returns a shallow copy of the entity map.
func (e Entity) Copy() Entity {
	if e == nil {
		return nil
	}
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

const streamInfoType = "streaminfo"

// StreamInfo builds the streaminfo entity. A zero sequence is omitted.
func StreamInfo(id string, typ StreamType, seq int) Entity {
	e := Entity{"type": streamInfoType, keyStreamType: string(typ)}
	if id != "" {
		e[keyStreamID] = id
	}
	if seq > 0 {
		e[keyStreamSequence] = seq
	}
	return e
}

// StreamInfoEntity returns the streaminfo entity of a, if any.
func (a *Activity) StreamInfoEntity() (Entity, bool) {
	for _, e := range a.Entities {
		if e.Type() == streamInfoType {
			return e, true
		}
	}
	return nil, false
}

// StreamSequence returns the sequence number carried by the streaminfo
// entity, or 0.
func (a *Activity) StreamSequence() int {
	e, ok := a.StreamInfoEntity()
	if !ok {
		return 0
	}
	switch v := e[keyStreamSequence].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// AddStreamUpdate marks a as an in-progress stream chunk with the given
// sequence number. Informative typing chunks keep their marker.
func (a *Activity) AddStreamUpdate(seq int) *Activity {
	typ := StreamStreaming
	if a.ChannelData.StreamType() == StreamInformative {
		typ = StreamInformative
	}
	a.setStreamInfo(typ, seq)
	return a
}

// AddStreamFinal marks a as the final message of a stream.
func (a *Activity) AddStreamFinal() *Activity {
	a.setStreamInfo(StreamFinal, 0)
	return a
}

func (a *Activity) setStreamInfo(typ StreamType, seq int) {
	data := ChannelData{keyStreamType: string(typ)}
	if seq > 0 {
		data[keyStreamSequence] = seq
	}
	if a.ID != "" {
		data[keyStreamID] = a.ID
	}
	a.ChannelData = a.ChannelData.Merge(data)

	ents := a.Entities[:0:0]
	for _, e := range a.Entities {
		if e.Type() != streamInfoType {
			ents = append(ents, e)
		}
	}
	a.Entities = append(ents, StreamInfo(a.ID, typ, seq))
}

// IsStreaming reports whether a is a non-final stream chunk.
func (a *Activity) IsStreaming() bool {
	switch a.ChannelData.StreamType() {
	case StreamInformative, StreamStreaming:
		return true
	}
	return false
}
