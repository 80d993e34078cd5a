package domain

import (
	"encoding/json"
	"time"
)

// ActivityType discriminates the kind of traffic an Activity carries.
type ActivityType string

const (
	ActivityMessage            ActivityType = "message"
	ActivityTyping             ActivityType = "typing"
	ActivityEvent              ActivityType = "event"
	ActivityInvoke             ActivityType = "invoke"
	ActivityEndOfConversation  ActivityType = "endOfConversation"
	ActivityConversationUpdate ActivityType = "conversationUpdate"
	ActivityMessageReaction    ActivityType = "messageReaction"
	ActivityInstallationUpdate ActivityType = "installationUpdate"
)

// InputHint tells the channel whether the bot expects a reply.
type InputHint string

const (
	InputHintAcceptingInput InputHint = "acceptingInput"
	InputHintIgnoringInput  InputHint = "ignoringInput"
	InputHintExpectingInput InputHint = "expectingInput"
)

// Activity is one unit of conversation traffic. The Type field selects which
// of the payload fields are meaningful; use the As* accessors rather than
// reading payload fields of the wrong kind.
type Activity struct {
	Type         ActivityType    `json:"type"`
	ID           string          `json:"id,omitempty"`
	Name         string          `json:"name,omitempty"`
	Timestamp    *time.Time      `json:"timestamp,omitempty"`
	ServiceURL   string          `json:"serviceUrl,omitempty"`
	ChannelID    string          `json:"channelId,omitempty"`
	From         Account         `json:"from"`
	Recipient    Account         `json:"recipient"`
	Conversation Conversation    `json:"conversation"`
	ReplyToID    string          `json:"replyToId,omitempty"`
	Text         string          `json:"text,omitempty"`
	TextFormat   string          `json:"textFormat,omitempty"`
	InputHint    InputHint       `json:"inputHint,omitempty"`
	Locale       string          `json:"locale,omitempty"`
	Attachments  []Attachment    `json:"attachments,omitempty"`
	Entities     []Entity        `json:"entities,omitempty"`
	ChannelData  ChannelData     `json:"channelData,omitempty"`
	Value        json.RawMessage `json:"value,omitempty"`

	RelatesTo *ConversationReference `json:"relatesTo,omitempty"`
}

// NewMessage creates an outbound message activity.
func NewMessage(text string) *Activity {
	return &Activity{Type: ActivityMessage, Text: text}
}

// NewTyping creates a typing activity, optionally carrying progress text.
func NewTyping(text string) *Activity {
	return &Activity{Type: ActivityTyping, Text: text}
}

// NewEvent creates an event activity with a JSON-encoded value.
func NewEvent(name string, value any) *Activity {
	return &Activity{Type: ActivityEvent, Name: name, Value: mustRaw(value)}
}

// NewInvoke creates an invoke activity with a JSON-encoded value.
func NewInvoke(name string, value any) *Activity {
	return &Activity{Type: ActivityInvoke, Name: name, Value: mustRaw(value)}
}

func mustRaw(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// Path returns "type" or "type/name" and is used to label request loggers.
func (a *Activity) Path() string {
	if a.Name != "" {
		return string(a.Type) + "/" + a.Name
	}
	return string(a.Type)
}

// Clone returns a deep copy that shares no slices or maps with a.
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	c := *a
	c.Conversation = a.Conversation.Copy()
	if a.Attachments != nil {
		c.Attachments = append([]Attachment(nil), a.Attachments...)
	}
	if a.Entities != nil {
		c.Entities = make([]Entity, len(a.Entities))
		for i, e := range a.Entities {
			c.Entities[i] = e.Copy()
		}
	}
	if a.ChannelData != nil {
		c.ChannelData = ChannelData{}.Merge(a.ChannelData)
	}
	if a.Value != nil {
		c.Value = append(json.RawMessage(nil), a.Value...)
	}
	if a.RelatesTo != nil {
		ref := a.RelatesTo.Copy()
		c.RelatesTo = &ref
	}
	return &c
}

// WithID sets the activity id.
func (a *Activity) WithID(id string) *Activity {
	a.ID = id
	return a
}

// WithData merges channel data into the activity.
func (a *Activity) WithData(data ChannelData) *Activity {
	a.ChannelData = a.ChannelData.Merge(data)
	return a
}

// AddAttachment appends attachments.
func (a *Activity) AddAttachment(att ...Attachment) *Activity {
	a.Attachments = append(a.Attachments, att...)
	return a
}

// AddEntity appends entities.
func (a *Activity) AddEntity(ents ...Entity) *Activity {
	a.Entities = append(a.Entities, ents...)
	return a
}

// DecodeValue unmarshals the activity value into target.
func (a *Activity) DecodeValue(target any) error {
	if len(a.Value) == 0 {
		return nil
	}
	return json.Unmarshal(a.Value, target)
}

// Message is the message view of an activity.
type Message struct {
	Text        string
	TextFormat  string
	Attachments []Attachment
	Entities    []Entity
}

// Typing is the typing view of an activity.
type Typing struct {
	Text       string
	StreamType StreamType
}

// Named is the view shared by event and invoke activities.
type Named struct {
	Name  string
	Value json.RawMessage
}

// AsMessage returns the message payload when a is a message activity.
func (a *Activity) AsMessage() (Message, bool) {
	if a == nil || a.Type != ActivityMessage {
		return Message{}, false
	}
	return Message{Text: a.Text, TextFormat: a.TextFormat, Attachments: a.Attachments, Entities: a.Entities}, true
}

// AsTyping returns the typing payload when a is a typing activity.
func (a *Activity) AsTyping() (Typing, bool) {
	if a == nil || a.Type != ActivityTyping {
		return Typing{}, false
	}
	return Typing{Text: a.Text, StreamType: a.ChannelData.StreamType()}, true
}

// AsEvent returns the event payload when a is an event activity.
func (a *Activity) AsEvent() (Named, bool) {
	if a == nil || a.Type != ActivityEvent {
		return Named{}, false
	}
	return Named{Name: a.Name, Value: a.Value}, true
}

// AsInvoke returns the invoke payload when a is an invoke activity.
func (a *Activity) AsInvoke() (Named, bool) {
	if a == nil || a.Type != ActivityInvoke {
		return Named{}, false
	}
	return Named{Name: a.Name, Value: a.Value}, true
}
