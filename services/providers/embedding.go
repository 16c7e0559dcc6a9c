package providers

import "encoding/json"

// encodeEmbedding serializes an embedding vector as the opaque string output
// the gateway carries for embedding requests.
func encodeEmbedding(vector []float32) (string, error) {
	data, err := json.Marshal(vector)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
