package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type MessageType string

const (
	MsgJoined             MessageType = "joined"
	MsgError              MessageType = "error"
	MsgPong               MessageType = "pong"
	MsgLeaderboardRefetch MessageType = "leaderboardRefetch"
	MsgBatchSubmissions   MessageType = "batchSubmissions"
	MsgViolation          MessageType = "violation"
	MsgContestEnded       MessageType = "contestEnded"
	MsgExecutionResult    MessageType = "executionResult"
)

// ServerMessage is the closed set of server to client payloads. Target returns the
// participant a private message is addressed to, or "" for room-wide messages.
type ServerMessage interface {
	Type() MessageType
	Target() string
}

type Joined struct {
	ContestID     string `json:"contestId"`
	ParticipantID string `json:"participantId"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

type Pong struct {
	Timestamp time.Time `json:"timestamp"`
}

// LeaderboardRefetch tells clients to re-read the board; it carries no standings.
type LeaderboardRefetch struct {
	Timestamp time.Time `json:"timestamp"`
}

type BatchSubmissions struct {
	Count            int          `json:"count"`
	LatestSubmission EventSummary `json:"latestSubmission"`
	Timestamp        time.Time    `json:"timestamp"`
}

type Violation struct {
	TargetParticipantID string            `json:"targetParticipantId"`
	Violation           ViolationCounters `json:"violation"`
	Timestamp           time.Time         `json:"timestamp"`
}

type ContestEnded struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionResult carries an opaque judge result whose fields are inlined next to
// targetParticipantId and timestamp on the wire.
type ExecutionResult struct {
	TargetParticipantID string
	Result              map[string]json.RawMessage
	Timestamp           time.Time
}

func (Joined) Type() MessageType             { return MsgJoined }
func (ErrorMessage) Type() MessageType       { return MsgError }
func (Pong) Type() MessageType               { return MsgPong }
func (LeaderboardRefetch) Type() MessageType { return MsgLeaderboardRefetch }
func (BatchSubmissions) Type() MessageType   { return MsgBatchSubmissions }
func (Violation) Type() MessageType          { return MsgViolation }
func (ContestEnded) Type() MessageType       { return MsgContestEnded }
func (ExecutionResult) Type() MessageType    { return MsgExecutionResult }

func (Joined) Target() string             { return "" }
func (ErrorMessage) Target() string       { return "" }
func (Pong) Target() string               { return "" }
func (LeaderboardRefetch) Target() string { return "" }
func (BatchSubmissions) Target() string   { return "" }
func (m Violation) Target() string        { return m.TargetParticipantID }
func (ContestEnded) Target() string       { return "" }
func (m ExecutionResult) Target() string  { return m.TargetParticipantID }

// EncodeMessage renders m with its "type" discriminator.
func EncodeMessage(m ServerMessage) ([]byte, error) {
	switch msg := m.(type) {
	case Joined:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			Joined
		}{MsgJoined, msg})
	case ErrorMessage:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			ErrorMessage
		}{MsgError, msg})
	case Pong:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			Pong
		}{MsgPong, msg})
	case LeaderboardRefetch:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			LeaderboardRefetch
		}{MsgLeaderboardRefetch, msg})
	case BatchSubmissions:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			BatchSubmissions
		}{MsgBatchSubmissions, msg})
	case Violation:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			Violation
		}{MsgViolation, msg})
	case ContestEnded:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			ContestEnded
		}{MsgContestEnded, msg})
	case ExecutionResult:
		return encodeExecutionResult(msg)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}
}

// DecodeMessage parses a server message produced by EncodeMessage.
func DecodeMessage(data []byte) (ServerMessage, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var (
		msg ServerMessage
		err error
	)
	switch head.Type {
	case MsgJoined:
		msg, err = decodeAs[Joined](data)
	case MsgError:
		msg, err = decodeAs[ErrorMessage](data)
	case MsgPong:
		msg, err = decodeAs[Pong](data)
	case MsgLeaderboardRefetch:
		msg, err = decodeAs[LeaderboardRefetch](data)
	case MsgBatchSubmissions:
		msg, err = decodeAs[BatchSubmissions](data)
	case MsgViolation:
		msg, err = decodeAs[Violation](data)
	case MsgContestEnded:
		msg, err = decodeAs[ContestEnded](data)
	case MsgExecutionResult:
		msg, err = decodeExecutionResult(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}

func decodeAs[T ServerMessage](data []byte) (ServerMessage, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

var executionResultReserved = []string{"type", "targetParticipantId", "timestamp"}

func encodeExecutionResult(m ExecutionResult) ([]byte, error) {
	fields := make(map[string]any, len(m.Result)+3)
	for k, v := range m.Result {
		fields[k] = v
	}
	fields["type"] = MsgExecutionResult
	fields["targetParticipantId"] = m.TargetParticipantID
	fields["timestamp"] = m.Timestamp
	return json.Marshal(fields)
}

func decodeExecutionResult(data []byte) (ServerMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	m := ExecutionResult{}
	if raw, ok := fields["targetParticipantId"]; ok {
		if err := json.Unmarshal(raw, &m.TargetParticipantID); err != nil {
			return nil, err
		}
	}
	if raw, ok := fields["timestamp"]; ok {
		if err := json.Unmarshal(raw, &m.Timestamp); err != nil {
			return nil, err
		}
	}
	for _, k := range executionResultReserved {
		delete(fields, k)
	}
	m.Result = fields
	return m, nil
}

// Envelope is the cross-process relay message. Data is one encoded ServerMessage.
type Envelope struct {
	ContestID string          `json:"contestId"`
	Data      json.RawMessage `json:"data"`
}

// ClientMessage is an inbound WebSocket frame.
type ClientMessage struct {
	Type      string `json:"type"`
	ContestID string `json:"contestId,omitempty"`
	Token     string `json:"token,omitempty"`
}

const (
	ClientJoin  = "join"
	ClientLeave = "leave"
	ClientPing  = "ping"
)

func ParseClientMessage(data []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: invalid JSON", ErrMalformedMessage)
	}

	switch m.Type {
	case ClientJoin:
		if m.ContestID == "" {
			return m, fmt.Errorf("%w: join requires contestId", ErrMalformedMessage)
		}
		if m.Token == "" {
			return m, fmt.Errorf("%w: join requires token", ErrMalformedMessage)
		}
	case ClientLeave, ClientPing:
	case "":
		return m, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return m, fmt.Errorf("%w: %q", ErrUnknownMessage, m.Type)
	}
	return m, nil
}
