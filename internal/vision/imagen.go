package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"
)

// Generator produces a brand-new interior concept from a free-standing text
// prompt. It shares no state with the redesign flow.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]byte, string, error)
}

// VertexImagen implements Generator via the Vertex AI SDK.
type VertexImagen struct {
	projectID          string
	location           string
	model              string
	serviceAccountJSON string
}

// VertexImagenConfig describes how to connect to Imagen.
type VertexImagenConfig struct {
	ProjectID          string
	Location           string
	Model              string
	ServiceAccountJSON string
}

// NewVertexImagen wires a VertexImagen client.
func NewVertexImagen(cfg VertexImagenConfig) *VertexImagen {
	return &VertexImagen{
		projectID:          strings.TrimSpace(cfg.ProjectID),
		location:           strings.TrimSpace(cfg.Location),
		model:              strings.TrimSpace(cfg.Model),
		serviceAccountJSON: strings.TrimSpace(cfg.ServiceAccountJSON),
	}
}

// Generate runs an Imagen prediction and returns the decoded image bytes.
func (v *VertexImagen) Generate(ctx context.Context, prompt string) ([]byte, string, error) {
	if v == nil || v.projectID == "" || v.location == "" || v.model == "" {
		return nil, "", fmt.Errorf("imagen: missing project/location/model")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, "", fmt.Errorf("imagen: prompt is required")
	}

	instance, err := structpb.NewValue(map[string]any{
		"prompt": prompt,
	})
	if err != nil {
		return nil, "", err
	}

	params, err := structpb.NewValue(map[string]any{
		"sampleCount": 1,
		"aspectRatio": "16:9",
	})
	if err != nil {
		return nil, "", err
	}

	endpoint := fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", v.projectID, v.location, v.model)
	options := []option.ClientOption{option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", v.location))}
	if v.serviceAccountJSON != "" {
		options = append(options, option.WithCredentialsJSON([]byte(v.serviceAccountJSON)))
	}

	client, err := aiplatform.NewPredictionClient(ctx, options...)
	if err != nil {
		return nil, "", fmt.Errorf("imagen: prediction client: %w", err)
	}
	defer client.Close()

	resp, err := client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:   endpoint,
		Instances:  []*structpb.Value{instance},
		Parameters: params,
	})
	if err != nil {
		return nil, "", fmt.Errorf("imagen: predict: %w", classifyQuota(err))
	}
	if len(resp.Predictions) == 0 {
		return nil, "", fmt.Errorf("imagen: %w", ErrNoImage)
	}

	fields := resp.Predictions[0].GetStructValue().GetFields()
	encoded := fields["bytesBase64Encoded"]
	if encoded == nil {
		return nil, "", fmt.Errorf("imagen: %w", ErrNoImage)
	}

	data, err := base64.StdEncoding.DecodeString(encoded.GetStringValue())
	if err != nil {
		return nil, "", fmt.Errorf("imagen: decode result: %w", err)
	}

	mime := "image/png"
	if field := fields["mimeType"]; field != nil && field.GetStringValue() != "" {
		mime = field.GetStringValue()
	}

	return data, mime, nil
}
