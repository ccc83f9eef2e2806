package websocket

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseFrame splits a raw inbound text message into its id, code, and body.
// Frames are "<id> <code> <body>"; body may itself contain spaces, so only
// the first two fields are split off.
func ParseFrame(raw string) (Frame, error) {
	firstSpace := strings.IndexByte(raw, ' ')
	if firstSpace < 0 {
		return Frame{}, fmt.Errorf("malformed frame: missing id/code separator")
	}
	idPart := raw[:firstSpace]
	rest := raw[firstSpace+1:]

	secondSpace := strings.IndexByte(rest, ' ')
	var codePart, body string
	if secondSpace < 0 {
		codePart = rest
		body = ""
	} else {
		codePart = rest[:secondSpace]
		body = rest[secondSpace+1:]
	}

	id, err := strconv.Atoi(idPart)
	if err != nil {
		return Frame{}, fmt.Errorf("malformed frame: invalid id %q", idPart)
	}
	if len(codePart) != 1 {
		return Frame{}, fmt.Errorf("malformed frame: invalid code %q", codePart)
	}

	code := Code(codePart[0])
	switch code {
	case CodeAnswer, CodeDelta, CodeComplete, CodeError:
	default:
		return Frame{}, fmt.Errorf("malformed frame: unknown code %q", codePart)
	}

	return Frame{ID: id, Code: code, Body: body}, nil
}

// connectFrame is the fixed handshake payload sent the moment the transport
// opens.
const connectFrame = `connect 31 {"locale":"en","platformId":"webtrading","platformVersion":"browser","clientId":"app.traderepublic.com","clientVersion":"1"}`

// subscribeFrame builds the outbound "sub <id> <json>" frame.
func subscribeFrame(id int, body string) string {
	return fmt.Sprintf("sub %d %s", id, body)
}

// unsubscribeFrame builds the outbound "unsub <id>" frame.
func unsubscribeFrame(id int) string {
	return fmt.Sprintf("unsub %d", id)
}
