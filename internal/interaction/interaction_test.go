package interaction

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/encoding/protowire"
)

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func frameActionMessage(fid, button uint64, input string, tx []byte) []byte {
	var body []byte
	body = appendBytesField(body, frameURLField, []byte("https://shop.example/frames/books/s1"))
	body = appendVarintField(body, frameButtonIndexField, button)
	body = appendBytesField(body, 3, []byte{0x08, 0x01}) // cast id, ignored
	if input != "" {
		body = appendBytesField(body, frameInputTextField, []byte(input))
	}
	if tx != nil {
		body = appendBytesField(body, frameTxIDField, tx)
	}

	var data []byte
	data = appendVarintField(data, dataTypeField, messageTypeFrameAction)
	data = appendVarintField(data, dataFIDField, fid)
	data = appendVarintField(data, 3, 1234567) // timestamp
	data = appendBytesField(data, dataFrameActionField, body)

	var msg []byte
	msg = appendBytesField(msg, 2, []byte{0xde, 0xad}) // hash
	msg = appendBytesField(msg, messageDataBytesField, data)
	return msg
}

func validationResponse(valid bool, msg []byte) []byte {
	var b []byte
	if valid {
		b = appendVarintField(b, validationValidField, 1)
	}
	return appendBytesField(b, validationMessageField, msg)
}

func signedPayload(msg []byte) Payload {
	return Payload{TrustedData: &TrustedData{MessageBytes: hex.EncodeToString(msg)}}
}

func TestValidationError(t *testing.T) {
	err := unavailable("hub unreachable", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsTemporary(err))

	err = reject("bad", nil)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.False(t, IsTemporary(err))
	assert.False(t, IsTemporary(errors.New("plain")))
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload(strings.NewReader(`{"untrustedData":{"fid":7,"buttonIndex":2,"inputText":"hi","verified_addresses":["0xabc"]}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, p.UntrustedData.ButtonIndex)
	assert.Equal(t, []string{"0xabc"}, p.UntrustedData.VerifiedAddresses)
	assert.Nil(t, p.TrustedData)

	_, err = DecodePayload(strings.NewReader(`{"untrustedData":`))
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestTrustedSource(t *testing.T) {
	in, err := TrustedSource{}.Interaction(context.Background(), Payload{UntrustedData: UntrustedData{
		FID: 7, ButtonIndex: 3, InputText: "x", TransactionID: "0xfeed", VerifiedAddresses: []string{"0xabc"},
	}})
	require.NoError(t, err)
	assert.Equal(t, Interaction{ButtonIndex: 3, InputText: "x", FID: 7, TransactionHash: "0xfeed", VerifiedAddresses: []string{"0xabc"}}, in)

	for _, idx := range []int{0, 5, -1} {
		_, err := TrustedSource{}.Interaction(context.Background(), Payload{UntrustedData: UntrustedData{ButtonIndex: idx}})
		assert.ErrorIs(t, err, ErrValidationFailed, "button %d", idx)
	}
}

func TestAttestedSource(t *testing.T) {
	var gotKey, gotHex string
	status := http.StatusOK
	valid := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/farcaster/frame/validate", r.URL.Path)
		gotKey = r.Header.Get("api_key")
		var req validateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotHex = req.MessageBytesInHex
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"valid":` + map[bool]string{true: "true", false: "false"}[valid] + `,"action":{
			"interactor":{"fid":99,"verified_addresses":{"eth_addresses":["0xAbC0000000000000000000000000000000000001"]}},
			"tapped_button":{"index":3},"input":{"text":"Brooklyn, NY"},"transaction":{"hash":"0x01"}}}`))
	}))
	defer srv.Close()

	src := NewAttestedSource(srv.URL, "secret", time.Second, nil)
	ctx := context.Background()

	in, err := src.Interaction(ctx, Payload{TrustedData: &TrustedData{MessageBytes: "0x0a0b"}})
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "0a0b", gotHex)
	assert.Equal(t, 3, in.ButtonIndex)
	assert.Equal(t, "Brooklyn, NY", in.InputText)
	assert.Equal(t, int64(99), in.FID)
	assert.Equal(t, []string{"0xAbC0000000000000000000000000000000000001"}, in.VerifiedAddresses)
	assert.Equal(t, "0x01", in.TransactionHash)

	t.Run("missing trusted data", func(t *testing.T) {
		_, err := src.Interaction(ctx, Payload{UntrustedData: UntrustedData{ButtonIndex: 1}})
		assert.ErrorIs(t, err, ErrValidationFailed)
		assert.False(t, IsTemporary(err))
	})

	t.Run("bad hex", func(t *testing.T) {
		_, err := src.Interaction(ctx, Payload{TrustedData: &TrustedData{MessageBytes: "zz"}})
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("invalid signature", func(t *testing.T) {
		valid = false
		defer func() { valid = true }()
		_, err := src.Interaction(ctx, Payload{TrustedData: &TrustedData{MessageBytes: "0a"}})
		assert.ErrorIs(t, err, ErrValidationFailed)
		assert.False(t, IsTemporary(err))
	})

	t.Run("upstream outage is temporary", func(t *testing.T) {
		status = http.StatusBadGateway
		defer func() { status = http.StatusOK }()
		_, err := src.Interaction(ctx, Payload{TrustedData: &TrustedData{MessageBytes: "0a"}})
		assert.True(t, IsTemporary(err))
	})
}

func TestAttestedSource_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	src := NewAttestedSource(srv.URL, "k", 20*time.Millisecond, nil)
	_, err := src.Interaction(context.Background(), Payload{TrustedData: &TrustedData{MessageBytes: "0a"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.True(t, IsTemporary(err))
}

func TestDecodeFrameAction(t *testing.T) {
	in, err := DecodeFrameAction(frameActionMessage(42, 2, "space exploration", []byte{0xab, 0xcd}))
	require.NoError(t, err)
	assert.Equal(t, int64(42), in.FID)
	assert.Equal(t, 2, in.ButtonIndex)
	assert.Equal(t, "space exploration", in.InputText)
	assert.Equal(t, "0xabcd", in.TransactionHash)
	assert.Equal(t, "https://shop.example/frames/books/s1", in.URL)

	_, err = DecodeFrameAction([]byte{0xff})
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = DecodeFrameAction(frameActionMessage(42, 9, "", nil))
	assert.ErrorIs(t, err, ErrValidationFailed, "button out of range")

	var castAdd []byte
	castAdd = appendVarintField(castAdd, dataTypeField, 1)
	_, err = DecodeFrameAction(appendBytesField(nil, messageDataField, castAdd))
	assert.ErrorIs(t, err, ErrValidationFailed, "wrong message type")
}

func verificationMessage(msgType, protocol uint64, addr []byte) []byte {
	var body []byte
	body = appendBytesField(body, verificationAddressField, addr)
	if protocol != protocolEthereum {
		body = appendVarintField(body, verificationProtocolField, protocol)
	}
	var data []byte
	data = appendVarintField(data, dataTypeField, msgType)
	data = appendVarintField(data, dataFIDField, 7)
	data = appendBytesField(data, dataVerificationAddField, body)
	return appendBytesField(nil, messageDataField, data)
}

var ethAddr = []byte{0xab, 0xc0, 17: 0, 18: 0, 19: 0x01}

func verificationsResponse() []byte {
	var b []byte
	b = appendBytesField(b, messagesResponseField, verificationMessage(messageTypeVerificationAdd, protocolEthereum, ethAddr))
	b = appendBytesField(b, messagesResponseField, verificationMessage(messageTypeVerificationAdd, 1, make([]byte, 32)))
	b = appendBytesField(b, messagesResponseField, verificationMessage(1, protocolEthereum, ethAddr))
	return b
}

func TestDecodeVerifications(t *testing.T) {
	addrs, err := DecodeVerifications(verificationsResponse())
	require.NoError(t, err)
	assert.Equal(t, []string{"0xabc0000000000000000000000000000000000001"}, addrs)

	addrs, err = DecodeVerifications(nil)
	require.NoError(t, err)
	assert.Empty(t, addrs)

	_, err = DecodeVerifications([]byte{0x0a, 0x05})
	assert.Error(t, err)
}

func startHub(t *testing.T, valid bool) *HubSource {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.ForceServerCodec(rawCodec{}),
		grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
			method, _ := grpc.MethodFromServerStream(stream)
			var req rawMessage
			if err := stream.RecvMsg(&req); err != nil {
				return err
			}
			var resp rawMessage
			switch method {
			case validateMessageMethod:
				resp = validationResponse(valid, req)
			case verificationsByFidMethod:
				resp = verificationsResponse()
			default:
				t.Errorf("unexpected method %s", method)
			}
			return stream.SendMsg(&resp)
		}),
	)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cfg := DefaultHubConfig("passthrough:///bufnet")
	src, err := NewHubSource(cfg, nil, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(src.Close)
	return src
}

func TestHubSource(t *testing.T) {
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		src := startHub(t, true)
		in, err := src.Interaction(ctx, signedPayload(frameActionMessage(7, 1, "Vintage Lamp", nil)))
		require.NoError(t, err)
		assert.Equal(t, 1, in.ButtonIndex)
		assert.Equal(t, "Vintage Lamp", in.InputText)
		assert.Equal(t, int64(7), in.FID)
		assert.Equal(t, []string{"0xabc0000000000000000000000000000000000001"}, in.VerifiedAddresses)
	})

	t.Run("rejected", func(t *testing.T) {
		src := startHub(t, false)
		_, err := src.Interaction(ctx, signedPayload(frameActionMessage(7, 1, "", nil)))
		assert.ErrorIs(t, err, ErrValidationFailed)
		assert.False(t, IsTemporary(err))
	})
}
