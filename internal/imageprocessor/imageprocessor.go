package imageprocessor

import (
	"context"
	"encoding/base64"
	"encoding/json"
)

// Client opens sessions against the hosted classification model.
type Client interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is a connected handle on the hosted model.
type Session interface {
	// ViewAPI returns the model's self-described interface, for diagnostics.
	ViewAPI(ctx context.Context) (json.RawMessage, error)
	// Predict submits positional inputs to route and waits for the result.
	Predict(ctx context.Context, route string, data ...any) (json.RawMessage, error)
}

// SniffMIME inspects the leading bytes of an image. Only PNG is told apart;
// everything else is assumed to be JPEG.
func SniffMIME(image []byte) string {
	if len(image) >= 2 && image[0] == 0x89 && image[1] == 0x50 {
		return "image/png"
	}
	return "image/jpeg"
}

// EncodeDataURL renders image as a base64 data URL.
func EncodeDataURL(image []byte) string {
	return "data:" + SniffMIME(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
}
