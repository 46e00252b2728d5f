package faceengine

import (
	"encoding/base64"
	"os"
)

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func base64Thumbnail(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
