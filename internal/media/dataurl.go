package media

import (
	"encoding/base64"
	"fmt"
)

// DataURL inlines an image as a data URI. Used when no object storage is
// configured so rendered images remain addressable by clients.
func DataURL(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}
