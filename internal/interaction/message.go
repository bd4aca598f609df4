package interaction

import (
	"encoding/hex"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Farcaster protobuf field numbers, from the hub's message.proto.
const (
	validationValidField   protowire.Number = 1
	validationMessageField protowire.Number = 2

	messageDataField      protowire.Number = 1
	messageDataBytesField protowire.Number = 7

	dataTypeField            protowire.Number = 1
	dataFIDField             protowire.Number = 2
	dataVerificationAddField protowire.Number = 9
	dataFrameActionField     protowire.Number = 16

	messagesResponseField protowire.Number = 1

	verificationAddressField  protowire.Number = 1
	verificationProtocolField protowire.Number = 7

	frameURLField         protowire.Number = 1
	frameButtonIndexField protowire.Number = 2
	frameInputTextField   protowire.Number = 4
	frameTxIDField        protowire.Number = 6
	frameAddressField     protowire.Number = 7
)

const (
	messageTypeVerificationAdd = 7  // MESSAGE_TYPE_VERIFICATION_ADD_ETH_ADDRESS
	messageTypeFrameAction     = 13 // MESSAGE_TYPE_FRAME_ACTION

	protocolEthereum = 0
)

type fieldValue struct {
	varint uint64
	bytes  []byte
}

// parseFields indexes the top-level fields of a protobuf message. Later
// occurrences of a field replace earlier ones.
func parseFields(b []byte) (map[protowire.Number]fieldValue, error) {
	fields := make(map[protowire.Number]fieldValue)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			fields[num] = fieldValue{varint: v}
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			fields[num] = fieldValue{bytes: v}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return fields, nil
}

// repeatedBytes returns every occurrence of the length-delimited field num.
func repeatedBytes(b []byte, num protowire.Number) ([][]byte, error) {
	var out [][]byte
	for len(b) > 0 {
		n, typ, size := protowire.ConsumeTag(b)
		if size < 0 {
			return nil, protowire.ParseError(size)
		}
		b = b[size:]
		if n == num && typ == protowire.BytesType {
			v, size := protowire.ConsumeBytes(b)
			if size < 0 {
				return nil, protowire.ParseError(size)
			}
			out = append(out, v)
			b = b[size:]
			continue
		}
		size = protowire.ConsumeFieldValue(n, typ, b)
		if size < 0 {
			return nil, protowire.ParseError(size)
		}
		b = b[size:]
	}
	return out, nil
}

// messageData returns the MessageData of a signed Message, preferring the
// raw data_bytes form.
func messageData(message []byte) (map[protowire.Number]fieldValue, error) {
	msg, err := parseFields(message)
	if err != nil {
		return nil, err
	}
	data := msg[messageDataBytesField].bytes
	if len(data) == 0 {
		data = msg[messageDataField].bytes
	}
	return parseFields(data)
}

// DecodeVerifications extracts the verified Ethereum addresses from a hub
// MessagesResponse. Messages of other types or protocols are skipped.
func DecodeVerifications(b []byte) ([]string, error) {
	messages, err := repeatedBytes(b, messagesResponseField)
	if err != nil {
		return nil, fmt.Errorf("decode verifications: %w", err)
	}

	var addrs []string
	for _, m := range messages {
		md, err := messageData(m)
		if err != nil {
			return nil, fmt.Errorf("decode verification message: %w", err)
		}
		if md[dataTypeField].varint != messageTypeVerificationAdd {
			continue
		}
		body, err := parseFields(md[dataVerificationAddField].bytes)
		if err != nil {
			return nil, fmt.Errorf("decode verification body: %w", err)
		}
		if body[verificationProtocolField].varint != protocolEthereum {
			continue
		}
		if addr := body[verificationAddressField].bytes; len(addr) == 20 {
			addrs = append(addrs, "0x"+hex.EncodeToString(addr))
		}
	}
	return addrs, nil
}

// DecodeValidationResponse decodes a hub ValidationResponse into an Interaction.
func DecodeValidationResponse(b []byte) (Interaction, error) {
	fields, err := parseFields(b)
	if err != nil {
		return Interaction{}, reject("malformed validation response", err)
	}
	if fields[validationValidField].varint == 0 {
		return Interaction{}, reject("message rejected by hub", nil)
	}
	msg, ok := fields[validationMessageField]
	if !ok {
		return Interaction{}, reject("validation response has no message", nil)
	}
	return DecodeFrameAction(msg.bytes)
}

// DecodeFrameAction decodes a signed Farcaster Message carrying a frame action.
// It does not verify the signature.
func DecodeFrameAction(message []byte) (Interaction, error) {
	md, err := messageData(message)
	if err != nil {
		return Interaction{}, reject("malformed message", err)
	}
	if t := md[dataTypeField].varint; t != messageTypeFrameAction {
		return Interaction{}, reject(fmt.Sprintf("message type %d is not a frame action", t), nil)
	}

	body, ok := md[dataFrameActionField]
	if !ok {
		return Interaction{}, reject("message has no frame action body", nil)
	}
	fa, err := parseFields(body.bytes)
	if err != nil {
		return Interaction{}, reject("malformed frame action body", err)
	}

	in := Interaction{
		FID:         int64(md[dataFIDField].varint),
		ButtonIndex: int(fa[frameButtonIndexField].varint),
		InputText:   string(fa[frameInputTextField].bytes),
		URL:         string(fa[frameURLField].bytes),
	}
	if tx := fa[frameTxIDField].bytes; len(tx) > 0 {
		in.TransactionHash = "0x" + hex.EncodeToString(tx)
	}
	if addr := fa[frameAddressField].bytes; len(addr) > 0 {
		in.Address = "0x" + hex.EncodeToString(addr)
	}
	return checkButton(in)
}
