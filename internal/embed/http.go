package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	cmerrors "github.com/blackwell-systems/commitmux/internal/errors"
)

// HTTPEmbedFunc builds an EmbedFunc that calls an Ollama/OpenAI
// -compatible embeddings endpoint (POST {endpoint}/embeddings, body
// {"model":..., "input":...}, response {"data":[{"embedding":[...]}]}).
// This is deliberately a thin adapter around net/http rather than a
// pulled-in client SDK: the embed function itself is an external
// collaborator the core package only depends on through EmbedFunc, so
// there is no wider HTTP client surface (retries, connection pooling
// tuning, auth schemes) for a dependency to justify pulling in.
func HTTPEmbedFunc(client *http.Client, endpoint, model string) EmbedFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, text string) ([]float32, error) {
		reqBody, err := json.Marshal(struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}{Model: model, Input: text})
		if err != nil {
			return nil, cmerrors.Ingestf(err, "encode embed request")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/embeddings", bytes.NewReader(reqBody))
		if err != nil {
			return nil, cmerrors.Ingestf(err, "build embed request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, cmerrors.Ingestf(err, "call embed endpoint %s", endpoint)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, cmerrors.New(cmerrors.Ingest, fmt.Sprintf("embed endpoint %s returned status %d", endpoint, resp.StatusCode))
		}

		var parsed struct {
			Data []struct {
				Embedding []float32 `json:"embedding"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, cmerrors.Ingestf(err, "decode embed response")
		}
		if len(parsed.Data) == 0 {
			return nil, cmerrors.New(cmerrors.Ingest, "embed response contained no vectors")
		}
		return parsed.Data[0].Embedding, nil
	}
}
