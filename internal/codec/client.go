package codec

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region methods

// Full method names served by the inference sidecar. Requests and replies are
// google.protobuf.Struct messages.
const (
	MethodGenerate           = "/carepoint.inference.v1.Inference/Generate"
	MethodEmbed              = "/carepoint.inference.v1.Inference/Embed"
	MethodScoreHallucination = "/carepoint.inference.v1.Inference/ScoreHallucination"
)

// ErrEmptyReply is returned when the sidecar answers without the expected field.
var ErrEmptyReply = errors.New("codec: empty reply")

// #endregion methods

// #region types

// HallucinationScore is the sidecar's judgement of one answer.
type HallucinationScore struct {
	Score       float64
	Label       string
	Explanation string
}

// #endregion types

// #region client-struct

// Client wraps the gRPC connection to the inference sidecar.
type Client struct {
	conn   grpc.ClientConnInterface
	closer io.Closer
}

// #endregion client-struct

// #region constructor

// NewClient connects to the inference sidecar at addr.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, closer: conn}, nil
}

// NewClientWithConn creates a Client over an existing connection.
// Used for testing without a real gRPC server.
func NewClientWithConn(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close shuts down the gRPC connection if the client owns it.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// #endregion constructor

// #region call

func (c *Client) call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	reply := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// #endregion call

// #region generate

// Generate asks the sidecar model for a completion. image may be nil.
func (c *Client) Generate(ctx context.Context, model, prompt string, image []byte, mimeType string) (string, error) {
	fields := map[string]any{
		"model":  model,
		"prompt": prompt,
	}
	if len(image) > 0 {
		fields["image_b64"] = base64.StdEncoding.EncodeToString(image)
		fields["image_mime"] = mimeType
	}

	reply, err := c.call(ctx, MethodGenerate, fields)
	if err != nil {
		return "", fmt.Errorf("generate rpc: %w", err)
	}
	text := reply.GetFields()["text"].GetStringValue()
	if text == "" {
		return "", fmt.Errorf("generate rpc: %w", ErrEmptyReply)
	}
	return text, nil
}

// #endregion generate

// #region embed

// Embed sends text to the sidecar for embedding.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	reply, err := c.call(ctx, MethodEmbed, map[string]any{"text": text})
	if err != nil {
		return nil, fmt.Errorf("embed rpc: %w", err)
	}
	values := reply.GetFields()["embedding"].GetListValue().GetValues()
	if len(values) == 0 {
		return nil, fmt.Errorf("embed rpc: %w", ErrEmptyReply)
	}
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v.GetNumberValue())
	}
	return vec, nil
}

// #endregion embed

// #region hallucination

// ScoreHallucination asks the sidecar judge whether output is grounded in
// input and reference. Score is in [0,1], higher means more hallucinated.
func (c *Client) ScoreHallucination(ctx context.Context, input, output, reference string) (HallucinationScore, error) {
	reply, err := c.call(ctx, MethodScoreHallucination, map[string]any{
		"input":     input,
		"output":    output,
		"reference": reference,
	})
	if err != nil {
		return HallucinationScore{}, fmt.Errorf("hallucination rpc: %w", err)
	}
	f := reply.GetFields()
	label := f["label"].GetStringValue()
	if label == "" {
		return HallucinationScore{}, fmt.Errorf("hallucination rpc: %w", ErrEmptyReply)
	}
	return HallucinationScore{
		Score:       f["score"].GetNumberValue(),
		Label:       label,
		Explanation: f["explanation"].GetStringValue(),
	}, nil
}

// #endregion hallucination
