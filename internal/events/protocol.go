package events

import (
	"encoding/json"

	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
)

// Protocol names.
const (
	ProtocolJSON  = "json"
	ProtocolToken = "token"
)

// Tokens written by the token protocol.
const (
	TokenReady = "READY"
	TokenWake  = "WAKE"
)

// Encoder renders a message as one line including the trailing newline. ok is false when the
// protocol has nothing to say about the message.
type Encoder func(Message) (line []byte, ok bool, err error)

// NewEncoder returns the encoder for a protocol name.
func NewEncoder(protocol string) (Encoder, error) {
	switch protocol {
	case ProtocolJSON, "":
		return encodeJSON, nil
	case ProtocolToken:
		return encodeToken, nil
	default:
		return nil, apperrors.Newf(apperrors.ConfigInvalid, "unknown protocol %q", protocol)
	}
}

func encodeJSON(m Message) ([]byte, bool, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, false, err
	}
	return append(b, '\n'), true, nil
}

func encodeToken(m Message) ([]byte, bool, error) {
	switch m.Type {
	case TypeWake:
		return []byte(TokenWake + "\n"), true, nil
	case TypeStatus:
		if s, ok := m.Data.(StatusData); ok && s.Status == StatusModelLoaded {
			return []byte(TokenReady + "\n"), true, nil
		}
	}
	return nil, false, nil
}
